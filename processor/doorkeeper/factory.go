package doorkeeper

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the doorkeeper processor with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "doorkeeper",
		Factory:     NewComponent,
		Schema:      doorkeeperSchema,
		Type:        "processor",
		Protocol:    "semgate",
		Domain:      "validation",
		Description: "Validates resource edits and aggregates collections on commit",
		Version:     "1.0.0",
	})
}
