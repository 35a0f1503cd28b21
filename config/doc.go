// Package config loads the process configuration of circulationd and builds what it names:
// database pools for the three supported adapters and the OpenTelemetry providers.
//
// Values are layered: defaults, then the YAML file, then a .env file, then the environment.
package config
