// Package config defines the resolved settings for a single fetcher run and
// provides helpers to load optional YAML defaults, validate them and derive
// the effective RBE project from an instance identifier.
package config
