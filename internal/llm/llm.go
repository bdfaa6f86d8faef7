package llm

import (
	"context"
	"fmt"
)

// Client sends a composed prompt to a chat completion service.
type Client interface {
	Complete(ctx context.Context, prompt string) (Answer, error)
}

// Answer is a successful completion.
type Answer struct {
	Text  string
	Model string
}

// APIError is returned when the completion service answers with a status
// other than 200. Body is the raw response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion service returned status %d: %s", e.StatusCode, e.Body)
}

// Display renders the error the way it is shown in place of an answer.
func (e *APIError) Display() string {
	return "Error: " + e.Body
}
