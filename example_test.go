package epivigil_test

import (
	"context"
	"fmt"
	"log"

	"github.com/epivigil/epivigil"
	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/ports"
)

// canned is a stand-in model that always produces the same final answer.
type canned struct {
	answer string
}

func (c canned) Complete(_ context.Context, _ ports.ModelRequest) (ports.ModelReply, error) {
	return ports.ModelReply{Content: c.answer}, nil
}

// ExampleEngine_Chat runs one conversational turn against a scripted model.
// In production the model decides when to invoke the analytic tools; here it
// answers directly so the output is deterministic.
func ExampleEngine_Chat() {
	engine, err := epivigil.New(epivigil.Collaborators{
		Model: canned{answer: "Os casos de SRAG subiram 15% nos ultimos 30 dias."},
	})
	if err != nil {
		log.Fatal(err)
	}

	result, err := engine.Chat(context.Background(), epivigil.ChatRequest{
		Message: "Como estao os casos de SRAG?",
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Response)
	// Output: Os casos de SRAG subiram 15% nos ultimos 30 dias.
}

// ExampleEngine_Chat_persistence resumes a thread across turns by attaching a
// checkpoint store.
func ExampleEngine_Chat_persistence() {
	engine, err := epivigil.New(epivigil.Collaborators{
		Model: canned{answer: "Entendido."},
	}, epivigil.WithStore(memory.NewStore()))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	first, err := engine.Chat(ctx, epivigil.ChatRequest{Message: "ola"})
	if err != nil {
		log.Fatal(err)
	}

	// Reusing the thread ID resumes the conversation from its checkpoint.
	_, err = engine.Chat(ctx, epivigil.ChatRequest{
		Message:  "continue",
		ThreadID: first.ThreadID,
	})
	if err != nil {
		log.Fatal(err)
	}

	history, err := engine.History(ctx, first.ThreadID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(history) > 0)
	// Output: true
}
