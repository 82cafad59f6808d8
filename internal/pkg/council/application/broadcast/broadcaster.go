// Package broadcast decouples meeting orchestration from the transport.
// Managers emit outbound events through the MeetingBroadcaster capability and
// never touch a websocket; the transport adapter lives in the presentation
// layer and can be swapped for tests or rebound on reconnect.
package broadcast

import (
	"sync"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// AudioUpdate carries synthesized audio (or its failure) for one message.
type AudioUpdate struct {
	ID        string
	Audio     []byte
	Sentences []council.Sentence
	Type      string // "" for audio, "error" when synthesis terminally failed
}

// MeetingBroadcaster is the outbound-event capability managers depend on.
type MeetingBroadcaster interface {
	MeetingStarted(meetingID int64)
	ConversationUpdate(conversation []council.Message)
	ConversationEnd(conversation []council.Message)
	AudioUpdate(update AudioUpdate)
	ClientKey(value string)
	Error(message string, code string)
	MeetingNotFound(meetingID int64)
}

// Noop swallows every event. Detached managers broadcast into it while
// in-flight generation and synthesis run to completion.
type Noop struct{}

var _ MeetingBroadcaster = Noop{}

func (Noop) MeetingStarted(int64)                 {}
func (Noop) ConversationUpdate([]council.Message) {}
func (Noop) ConversationEnd([]council.Message)    {}
func (Noop) AudioUpdate(AudioUpdate)              {}
func (Noop) ClientKey(string)                     {}
func (Noop) Error(string, string)                 {}
func (Noop) MeetingNotFound(int64)                {}

// Rebindable is the broadcaster handle a manager keeps for its lifetime.
// Reconnection rebinds it to a fresh transport without re-creating meeting
// state; disconnection detaches it back to a no-op.
type Rebindable struct {
	mu      sync.RWMutex
	current MeetingBroadcaster
}

// NewRebindable starts detached unless an initial broadcaster is given.
func NewRebindable(initial MeetingBroadcaster) *Rebindable {
	if initial == nil {
		initial = Noop{}
	}
	return &Rebindable{current: initial}
}

// Rebind swaps the underlying transport.
func (r *Rebindable) Rebind(b MeetingBroadcaster) {
	if b == nil {
		b = Noop{}
	}
	r.mu.Lock()
	r.current = b
	r.mu.Unlock()
}

// Detach makes the handle a no-op until the next Rebind.
func (r *Rebindable) Detach() { r.Rebind(Noop{}) }

// BoundTo reports whether the handle currently targets b. Used on disconnect
// so a stale session never detaches a manager that was already rebound.
func (r *Rebindable) BoundTo(b MeetingBroadcaster) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current == b
}

func (r *Rebindable) get() MeetingBroadcaster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

var _ MeetingBroadcaster = (*Rebindable)(nil)

func (r *Rebindable) MeetingStarted(id int64)                { r.get().MeetingStarted(id) }
func (r *Rebindable) ConversationUpdate(c []council.Message) { r.get().ConversationUpdate(c) }
func (r *Rebindable) ConversationEnd(c []council.Message)    { r.get().ConversationEnd(c) }
func (r *Rebindable) AudioUpdate(u AudioUpdate)              { r.get().AudioUpdate(u) }
func (r *Rebindable) ClientKey(v string)                     { r.get().ClientKey(v) }
func (r *Rebindable) Error(message string, code string)      { r.get().Error(message, code) }
func (r *Rebindable) MeetingNotFound(id int64)               { r.get().MeetingNotFound(id) }
