package doorkeeper

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// doorkeeperSchema defines the configuration schema.
var doorkeeperSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the doorkeeper processor.
type Config struct {
	Ports       *component.PortConfig `json:"ports" schema:"type:ports,description:Port configuration,category:basic"`
	GateConfig  string                `json:"gate_config" schema:"type:string,description:Path to the semgate YAML configuration (defaults to the layered semgate.yaml lookup),category:basic"`
	TimeoutSecs int                   `json:"timeout_secs" schema:"type:integer,description:Request timeout in seconds,category:basic,default:30"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.TimeoutSecs < 0 {
		return fmt.Errorf("timeout_secs must be non-negative")
	}
	if c.Ports != nil && len(c.Ports.Inputs) < 2 {
		return fmt.Errorf("ports must define edit and commit inputs")
	}
	return nil
}

// DefaultConfig returns the default configuration for doorkeeper.
func DefaultConfig() Config {
	return Config{
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "resource_edits",
					Type:        "nats",
					Subject:     SubjectResourceEdit,
					Required:    true,
					Description: "Resource edit validation request/reply subject",
				},
				{
					Name:        "transaction_commits",
					Type:        "nats",
					Subject:     SubjectTransactionCommit,
					Required:    true,
					Description: "Transaction commit request/reply subject",
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "collection_aggregates",
					Type:        "jetstream",
					Subject:     "graph.ingest.entity",
					Required:    false,
					Description: "Recomputed collection aggregates for graph ingestion",
				},
			},
		},
		TimeoutSecs: 30,
	}
}
