package port

import (
	"context"
	"errors"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// ErrNotFound signals a missing document in a typed way so callers can
// distinguish absence from transport errors.
var ErrNotFound = errors.New("repository: not found")

// MeetingRepository defines persistence for meetings, audio records, and the
// id counter. The meeting document is single-writer (its owning manager), so
// SaveMeeting may overwrite the whole document.
type MeetingRepository interface {
	// EnsureCounter bootstraps the meeting id sequence. A concurrent
	// already-exists race is benign and must not be reported as an error.
	EnsureCounter(ctx context.Context) error

	// NextMeetingID atomically allocates the next sequential meeting id.
	// Ids are strictly increasing and never reused.
	NextMeetingID(ctx context.Context) (int64, error)

	SaveMeeting(ctx context.Context, m council.Meeting) error
	GetMeeting(ctx context.Context, id int64) (*council.Meeting, error)

	// SaveAudio stores an immutable audio record keyed by message id.
	SaveAudio(ctx context.Context, a council.Audio) error
	GetAudio(ctx context.Context, id string) (*council.Audio, error)
	ListAudioByMeeting(ctx context.Context, meetingID int64) ([]council.Audio, error)
}
