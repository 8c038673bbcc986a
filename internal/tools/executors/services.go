package executors

import (
	"context"

	"github.com/jkaninda/securetools/internal/tools"
)

type service struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var availableServices = []service{
	{Name: "weather", Description: "Get current weather for any location"},
	{Name: "protected_status", Description: "Check project protection status"},
}

// ListServices implements list_available_services. Needs no secrets.
func ListServices(_ context.Context, _ map[string]any, _ map[string]string) (tools.Result, error) {
	return marshalResult(struct {
		Services []service `json:"services"`
	}{Services: availableServices})
}
