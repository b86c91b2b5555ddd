// Package memory provides in-process implementations of the driven ports.
// They back tests and the --ephemeral mode and hold nothing across restarts.
package memory
