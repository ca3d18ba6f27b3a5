// Package config loads the JSON configuration of the simulation runtime and
// fills in defaults relative to the configuration file's directory.
package config
