package manager

import (
	"errors"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// TurnPolicy selects the next speaking character. It is consulted under the
// manager lock and must not block.
type TurnPolicy interface {
	Next(meeting *council.Meeting) (council.Character, error)
}

// RoundRobin walks the roster in order, resuming after whichever character
// uttered last. Human and injected messages do not advance the rotation.
type RoundRobin struct{}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

var _ TurnPolicy = (*RoundRobin)(nil)

func (*RoundRobin) Next(meeting *council.Meeting) (council.Character, error) {
	roster := meeting.Options.Characters
	if len(roster) == 0 {
		return council.Character{}, errors.New("meeting has no characters")
	}
	for i := len(meeting.Conversation) - 1; i >= 0; i-- {
		msg := meeting.Conversation[i]
		if msg.Kind != council.MessageKindUtterance {
			continue
		}
		for j, c := range roster {
			if c.Name == msg.Speaker {
				return roster[(j+1)%len(roster)], nil
			}
		}
		break
	}
	return roster[0], nil
}
