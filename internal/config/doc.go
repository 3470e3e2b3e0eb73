// Package config provides configuration loading and validation for the voice assistant service.
// Configuration is read from YAML, completed with defaults and validated per section.
// API keys can be supplied through the environment or a .env file.
package config
