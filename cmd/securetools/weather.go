package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/broker"
	"github.com/jkaninda/securetools/internal/console"
	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools/executors"
)

var (
	weatherLocation string
	weatherVault    string
)

var testWeatherCmd = &cobra.Command{
	Use:   "test-weather-api",
	Short: "Resolve the weather API key and make one live request",
	RunE:  runTestWeather,
}

func init() {
	testWeatherCmd.Flags().StringVarP(&weatherLocation, "location", "l", "Paris", "location to query")
	testWeatherCmd.Flags().StringVarP(&weatherVault, "vault", "v", "", "1Password vault holding WeatherAPI (default: onepassword.vault)")
}

func runTestWeather(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := console.Stdio()

	vault := weatherVault
	if vault == "" {
		vault = cfg.OnePassword.VaultName()
	}
	store, err := newSecretStore(cfg, nil, logger)
	if err != nil {
		return err
	}
	b := broker.New(broker.Config{RequireSecrets: true, Store: store, Logger: logger})

	ctx := context.Background()
	ref := secrets.Reference{
		EnvVar: "OPENWEATHER_API_KEY",
		Store:  vault,
		Item:   "WeatherAPI",
		Field:  "api_key",
	}
	key, source, err := b.ResolveReference(ctx, ref)
	if err != nil {
		out.Error("Could not resolve the weather API key: %v", err)
		out.Info("Set OPENWEATHER_API_KEY or create the item:")
		out.Info("  op item create --category='API Credential' --title=WeatherAPI --vault=%s api_key=<your-key>", vault)
		return fmt.Errorf("weather API test failed")
	}
	out.Success("API key %s (from %s)", maskKey(key), source)

	w := executors.NewWeather(executors.WeatherConfig{
		BaseURL:           cfg.Weather.BaseURL,
		Timeout:           cfg.Weather.Timeout(),
		RequestsPerMinute: cfg.Weather.RequestsPerMinute,
	}, logger)
	obs, err := w.Fetch(ctx, weatherLocation, "celsius", key)
	if err != nil {
		var apiErr *executors.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				out.Error("The API key is invalid or not yet active")
			case http.StatusNotFound:
				out.Error("Location %q not found", weatherLocation)
			default:
				out.Error("%v", apiErr)
			}
			return fmt.Errorf("weather API test failed")
		}
		return fmt.Errorf("weather request: %s", broker.Scrub(err.Error(), []string{key}))
	}

	out.Success("Weather API is working")
	out.Println(fmt.Sprintf("  Location:    %s, %s", obs.Location, obs.Country))
	out.Println(fmt.Sprintf("  Temperature: %s (feels like %s)", obs.Temperature, obs.FeelsLike))
	out.Println(fmt.Sprintf("  Condition:   %s", obs.Condition))
	out.Println(fmt.Sprintf("  Humidity:    %s", obs.Humidity))
	out.Println(fmt.Sprintf("  Wind:        %s", obs.Wind))
	return nil
}

// maskKey shows the first and last four characters of a key.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
