package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jkaninda/securetools/internal/tools"
)

const (
	// DefaultWeatherBaseURL is the OpenWeatherMap API root.
	DefaultWeatherBaseURL = "https://api.openweathermap.org"

	weatherPath           = "/data/2.5/weather"
	defaultWeatherTimeout = 10 * time.Second
	defaultWeatherRPM     = 60

	// SourceMock tags simulated data; SourceOpenWeatherMap tags live data.
	SourceMock           = "mock_data"
	SourceOpenWeatherMap = "openweathermap"

	weatherFallbackPrefix = "Weather API unavailable, using cached data. "
)

// WeatherConfig configures the weather executor.
type WeatherConfig struct {
	BaseURL           string        // Default: https://api.openweathermap.org
	Timeout           time.Duration // Default: 10s
	RequestsPerMinute int           // Default: 60
	HTTPClient        *http.Client  // Optional; overrides Timeout.
}

// Weather implements get_current_weather. Without an api_key secret it
// serves mock data; with one it queries OpenWeatherMap and falls back to
// labeled mock data on failure.
type Weather struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWeather creates the weather executor.
func NewWeather(cfg WeatherConfig, logger *slog.Logger) *Weather {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWeatherTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultWeatherRPM
	}
	return &Weather{
		baseURL: baseURL,
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		logger:  logger,
	}
}

type mockCity struct {
	tempC     int
	condition string
}

var mockWeather = map[string]mockCity{
	"paris":         {12, "cloudy"},
	"london":        {8, "rainy"},
	"tokyo":         {18, "sunny"},
	"new york":      {5, "windy"},
	"san francisco": {15, "foggy"},
}

var defaultMockCity = mockCity{20, "partly cloudy"}

type weatherReport struct {
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	Humidity    string `json:"humidity,omitempty"`
	Source      string `json:"source"`
}

// Execute implements Executor.
func (w *Weather) Execute(ctx context.Context, args map[string]any, secrets map[string]string) (tools.Result, error) {
	location := stringArg(args, "location", "Unknown")
	format := stringArg(args, "format", "celsius")

	apiKey := secrets["api_key"]
	if apiKey == "" {
		return MockWeather(location, format)
	}

	obs, err := w.Fetch(ctx, location, format, apiKey)
	if err != nil {
		w.logger.WarnContext(ctx, "weather api failed, serving fallback",
			slog.String("location", location),
			slog.String("error", err.Error()),
		)
		mock, mockErr := MockWeather(location, format)
		if mockErr != nil {
			return tools.Result{}, mockErr
		}
		return tools.Result{Success: true, Content: weatherFallbackPrefix + mock.Content}, nil
	}

	return marshalResult(weatherReport{
		Location:    obs.Location,
		Temperature: obs.Temperature,
		Condition:   obs.Condition,
		Humidity:    obs.Humidity,
		Source:      SourceOpenWeatherMap,
	})
}

// MockWeather returns simulated weather tagged with source "mock_data".
func MockWeather(location, format string) (tools.Result, error) {
	key := strings.TrimSpace(strings.ToLower(strings.SplitN(location, ",", 2)[0]))
	city, ok := mockWeather[key]
	if !ok {
		city = defaultMockCity
	}

	temp, unit := city.tempC, "°C"
	if format == "fahrenheit" {
		temp = int(math.Round(float64(city.tempC)*9/5 + 32))
		unit = "°F"
	}

	return marshalResult(weatherReport{
		Location:    location,
		Temperature: fmt.Sprintf("%d%s", temp, unit),
		Condition:   city.condition,
		Source:      SourceMock,
	})
}

// Observation is a live weather reading.
type Observation struct {
	Location    string
	Country     string
	Temperature string
	FeelsLike   string
	Condition   string
	Humidity    string
	Wind        string
}

// APIError is a non-200 answer from the weather API.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "weather API rejected the API key (401 Unauthorized)"
	case http.StatusNotFound:
		return "weather API does not know this location (404 Not Found)"
	default:
		return fmt.Sprintf("weather API returned status %d", e.StatusCode)
	}
}

// Fetch queries the live API. The key travels only in the query string and
// is never part of the returned error.
func (w *Weather) Fetch(ctx context.Context, location, format, apiKey string) (*Observation, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather rate limit: %w", err)
	}

	units, unit := "metric", "°C"
	if format == "fahrenheit" {
		units, unit = "imperial", "°F"
	}
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", apiKey)
	q.Set("units", units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+weatherPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.New("building weather request failed")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode}
	}

	var data struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding weather response: %w", err)
	}
	if len(data.Weather) == 0 {
		return nil, errors.New("weather response has no conditions")
	}

	name := data.Name
	if name == "" {
		name = location
	}
	country := data.Sys.Country
	if country == "" {
		country = "Unknown"
	}
	return &Observation{
		Location:    name,
		Country:     country,
		Temperature: formatFloat(data.Main.Temp) + unit,
		FeelsLike:   formatFloat(data.Main.FeelsLike) + unit,
		Condition:   data.Weather[0].Description,
		Humidity:    formatFloat(data.Main.Humidity) + "%",
		Wind:        formatFloat(data.Wind.Speed) + " m/s",
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func marshalResult(v any) (tools.Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return tools.Result{}, fmt.Errorf("encoding result: %w", err)
	}
	return tools.Result{Success: true, Content: string(b)}, nil
}
