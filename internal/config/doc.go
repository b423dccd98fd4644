// Package config provides configuration management for snlscan.
//
// Configuration comes from three sources, in increasing precedence:
//   - Built-in defaults (the Default* constants)
//   - An optional YAML configuration file (.snlscan)
//   - CLI flags
//
// Design decision: Tool binary locations (discovery tool, detection tool,
// templates root) are explicit fields resolved once at startup and passed
// into the runner. We never mutate the process environment or PATH to
// locate binaries; doing so would leak scanner configuration into child
// processes and make resolution order dependent on global state.
package config
