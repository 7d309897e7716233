// Package llm is the language model port used by the intent classifier and the plan proposer.
package llm

import (
	"context"
	"errors"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single prompt message.
type Message struct {
	Role    Role
	Content string
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the model to answer only with a JSON document when the provider supports it.
	JSON bool
}

// UserText returns the content of the last user message.
func (r Request) UserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ErrUnavailable is returned when the model can't be reached.
var ErrUnavailable = errors.New("language model unavailable")

// Client completes prompts.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

//go:generate mockery --case underscore --output llmmock --outpkg llmmock --name Client --structname MockClient

// ClientFunc is a helper to use a function as a Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
