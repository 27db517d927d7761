// Package config handles configuration loading for skwad-server.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults; a
// missing config file is not an error at the call sites, which fall back
// to Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SKWAD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/skwad/server.yaml
//  3. ~/.config/skwad/server.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	autopilot:
//	  api_key: "${SKWAD_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "127.0.0.1:7421"
//
// Session lifecycle:
//
//	sessions:
//	  stale_after: "1h"   # Go time.ParseDuration syntax
//
// Autopilot:
//
//	autopilot:
//	  enabled: false
//	  api_key: "${SKWAD_API_KEY}"
//
// Notifications:
//
//	notifications:
//	  enabled: true
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
