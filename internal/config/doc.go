// Package config loads, normalizes, and validates cellarcore configuration.
//
// It supplies repository defaults, reads TOML files, expands user paths and
// applies CELLAR_* environment overrides, so the CLI opens storage, the lot
// sequencer, the timeline sink and the equipment mirror from one value.
package config
