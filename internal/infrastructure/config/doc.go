// Package config loads and validates the inkblue daemon configuration.
//
// Configuration is layered: hardcoded defaults, then the YAML file, then
// INKBLUE_* environment variable overrides. Load returns a validated Config
// or an error describing every problem found.
package config
