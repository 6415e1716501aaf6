package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema describes the structural rules for a device configuration.
// Durations are checked as integers because Config is validated after
// decoding, when they have already become nanosecond counts.
const configSchema = `{
  "type": "object",
  "required": ["id", "thingName", "endpoint", "relayPin", "reedPin"],
  "properties": {
    "id":        {"type": "string", "minLength": 1},
    "thingName": {"type": "string", "minLength": 1, "maxLength": 128, "pattern": "^[a-zA-Z0-9:_-]+$"},
    "endpoint":  {"type": "string", "minLength": 1},
    "relayPin":  {"type": "integer", "minimum": 0, "maximum": 53},
    "reedPin":   {"type": "integer", "minimum": 0, "maximum": 53},
    "mqtt": {
      "type": "object",
      "properties": {
        "port":           {"type": "integer", "minimum": 1, "maximum": 65535},
        "clientIdPrefix": {"type": "string", "minLength": 1},
        "qos":            {"type": "integer", "enum": [0, 1]},
        "keepAlive":      {"type": "integer", "minimum": 1000000000},
        "connectTimeout": {"type": "integer", "minimum": 1},
        "ackTimeout":     {"type": "integer", "minimum": 1}
      }
    },
    "actuator": {
      "type": "object",
      "properties": {
        "pulseDuration": {"type": "integer", "minimum": 1000000, "maximum": 5000000000}
      }
    },
    "hardware": {
      "type": "object",
      "properties": {
        "driver":           {"type": "string", "enum": ["periph", "sim"]},
        "edgePollInterval": {"type": "integer", "minimum": 1000000}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level":  {"type": "string", "enum": ["debug", "info", "warn", "warning", "error"]},
        "format": {"type": "string", "enum": ["json", "text"]},
        "output": {"type": "string", "enum": ["stdout", "stderr"]}
      }
    },
    "api": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    }
  }
}`

// schemaErrors validates c against configSchema and returns one message per
// violation. The error return is reserved for failures of the validator itself.
func schemaErrors(c *Config) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(c),
	)
	if err != nil {
		return nil, fmt.Errorf("running config schema: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
