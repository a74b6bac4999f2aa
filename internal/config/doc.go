// Package config provides configuration loading and validation for the voice
// conversion service and batch driver. It reads a YAML file on top of built-in
// defaults, applies SVC_* environment overrides and validates every section.
package config
