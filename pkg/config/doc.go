// Package config holds the environment-driven configuration blocks for the
// service binary, read with cleanenv. Each block converts itself into the
// richer type the owning package consumes.
package config
