// Package config handles loading and validating commlink configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a dotenv file into the process environment
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Broker credentials and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	if err := config.LoadEnvFile(".env"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.TopicPrefix)
package config
