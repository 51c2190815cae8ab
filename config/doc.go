// Package config loads the expedition bus configuration.
//
// Values come, in increasing priority, from built-in defaults, an optional
// YAML/TOML/JSON file, EXPEDITION_* environment variables and bound command
// line flags. The result is a plain Config value; nothing reads viper after
// Load returns.
package config
