// Package config loads service configuration from defaults, an optional
// YAML file and TUTORFLOW_* environment variables, in that order of
// precedence. A polling Watcher can re-run the load when the file changes.
package config
