// Package config handles loading and validating the rpigarage device configuration.
//
// This package manages:
//   - Loading configuration from a JSON or YAML file
//   - Overriding with environment variables
//   - Schema and semantic validation
//   - Default value handling
//
// The top-level keys (id, thingName, endpoint, certificatePath,
// privateKeyPath, rootCAPath, relayPin, reedPin) are the same ones the
// device has always used, so an existing conf.json loads unchanged. YAML is
// accepted as well because JSON is a YAML subset.
//
// Security Considerations:
//   - The private key path must point to a file readable only by the agent
//   - The InfluxDB token should be set via RPIGARAGE_INFLUXDB_TOKEN
//   - The API signing secret should be set via RPIGARAGE_API_JWT_SECRET
//
// Usage:
//
//	cfg, err := config.Load("/opt/rpigarage/conf.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ThingName)
package config
