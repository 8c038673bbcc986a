package broker

import "fmt"

// SecretResolutionError reports a required secret that no source could
// supply. Source is the env var name or item/field, never a value.
type SecretResolutionError struct {
	Source string
	Err    error
}

func (e *SecretResolutionError) Error() string {
	return fmt.Sprintf("Secret '%s' is required but unavailable. Set the environment variable or configure 1Password.", e.Source)
}

func (e *SecretResolutionError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure returned by an executor.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %s failed", e.Tool)
	}
	return e.Err.Error()
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
