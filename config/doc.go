// Package config loads the gateway configuration from YAML files and
// environment variables and validates it. It covers the proxy and admin
// listeners, the instance endpoints and pass-through settings, placement,
// health checking, circuit breaking, metrics and logging.
package config
