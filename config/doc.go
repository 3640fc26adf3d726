// Package config loads the edge router configuration from an optional YAML
// file and the environment. It covers the public and admin listeners, the
// edge_app backend, health probing, the demo log channel and the asset
// source.
package config
