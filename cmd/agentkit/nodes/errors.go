package nodes

import (
	"fmt"
	"strings"
)

// ConfigError indicates invalid or missing node configuration.
// The node fails; no external call is attempted.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

// NewConfigError creates a ConfigError with a formatted message
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// UpstreamError indicates a failure from an external service
// (OpenAI, Google Sheets, Gmail). Status is the HTTP status code when
// one is available, zero otherwise.
type UpstreamError struct {
	Service string
	Status  int
	Detail  string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s API error %d: %s", e.Service, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s error: %s", e.Service, e.Detail)
}

// UnknownNodeTypeError indicates a registry lookup miss
type UnknownNodeTypeError struct {
	Type      string
	Supported []string
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type: %q, supported: [%s]", e.Type, strings.Join(e.Supported, ", "))
}
