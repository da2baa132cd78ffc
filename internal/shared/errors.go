package shared

import "fmt"

// StatusError is a failure carrying an explicit HTTP-style status code.
// Collaborators that can supply one should, so classification does not
// have to fall back to string heuristics.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// StatusCode returns the explicit status code.
func (e *StatusError) StatusCode() int { return e.Code }
