// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets may additionally be supplied through CELLGRID_* environment variables,
// which take precedence over the file.
package config
