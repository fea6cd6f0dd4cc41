package ports

import (
	"context"

	"github.com/epivigil/epivigil/pkg/domain"
)

// ModelRequest is one completion request: the full conversation so far plus
// the tool specs the model may select from.
type ModelRequest struct {
	Messages    []domain.Message
	Tools       []domain.ToolSpec
	Temperature float64
}

// ModelReply is the model's turn: either a final text answer, or one or
// more tool invocation requests (Content may accompany them).
type ModelReply struct {
	Content   string
	ToolCalls []domain.ToolCall
}

// Model is the language-model collaborator.
type Model interface {
	Complete(ctx context.Context, req ModelRequest) (ModelReply, error)
}
