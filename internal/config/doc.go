// Package config loads, normalizes, and validates vidingest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, overlays an optional .env file, and honours
// environment fallbacks such as YOUTUBE_API_KEY. The Config type centralizes
// every knob the pipeline, daemon, and CLI need: retry budgets, model-tier
// thresholds, the disk safety multiplier, cache TTLs, and the storage root.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
