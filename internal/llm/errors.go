package llm

import "fmt"

// ConnectionError means the model endpoint could not be reached or timed out.
// Fatal for the current turn.
type ConnectionError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResponseError means the endpoint answered with an unexpected status or shape.
type ResponseError struct {
	Provider   string
	StatusCode int // 0 when the status was fine but the body was not.
	Message    string
	Err        error
}

func (e *ResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ResponseError) Unwrap() error { return e.Err }
