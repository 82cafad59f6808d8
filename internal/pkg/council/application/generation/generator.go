// Package generation treats the language model as an opaque capability:
// given conversation history and a persona, produce the next utterance.
// Prompt construction stays deliberately minimal.
package generation

import (
	"context"
	"fmt"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// Request asks for one utterance.
type Request struct {
	Topic     string
	Language  string
	Speaker   council.Character
	History   []council.Message
	Kind      council.MessageKind // utterance, raise_hand invitation, or summary
	MaxChars  int                 // bounded-length responses (wrap-up); 0 = unbounded
	HumanName string              // set for raise-hand invitations
}

// Generator is the text-generation capability consumed by the meeting manager.
type Generator interface {
	NextUtterance(ctx context.Context, req Request) (string, error)
}

// ProviderError is a non-transient generation failure. It abandons only the
// turn that triggered it; the session continues.
type ProviderError struct {
	Status int
	Detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("generation: provider error (status %d): %s", e.Status, e.Detail)
}
