package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/port"
)

const meetingCounterName = "meeting_id"

// PgMeetingRepository persists meetings, audio records, and the id counter in
// Postgres. Conversation and options travel as JSONB documents: the meeting is
// single-writer, so whole-document upserts are safe and keep the layout close
// to the stored shape clients consume.
type PgMeetingRepository struct {
	pool *pgxpool.Pool
}

func NewPgMeetingRepository(pool *pgxpool.Pool) *PgMeetingRepository {
	return &PgMeetingRepository{pool: pool}
}

var _ port.MeetingRepository = (*PgMeetingRepository)(nil)

// Migrate creates the schema objects if they do not exist yet.
func (r *PgMeetingRepository) Migrate(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMeetingRepository: nil pool")
	}
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS council`,
		`CREATE TABLE IF NOT EXISTS council.counter (
			name TEXT PRIMARY KEY,
			seq  BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS council.meeting (
			id           BIGINT PRIMARY KEY,
			date         TIMESTAMPTZ NOT NULL,
			conversation JSONB NOT NULL,
			options      JSONB NOT NULL,
			audio_ids    JSONB NOT NULL,
			summary      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS council.audio (
			id         TEXT PRIMARY KEY,
			date       TIMESTAMPTZ NOT NULL,
			meeting_id BIGINT NOT NULL REFERENCES council.meeting(id),
			audio      BYTEA NOT NULL,
			sentences  JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS audio_meeting_idx ON council.audio (meeting_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// EnsureCounter bootstraps the sequence row once. The ON CONFLICT clause
// swallows the benign race where two instances bootstrap at the same time.
func (r *PgMeetingRepository) EnsureCounter(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMeetingRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO council.counter (name, seq) VALUES ($1, 0) ON CONFLICT (name) DO NOTHING`,
		meetingCounterName)
	return err
}

// NextMeetingID increments and returns the sequence in one atomic statement,
// so concurrent allocations always receive unique, strictly increasing ids.
func (r *PgMeetingRepository) NextMeetingID(ctx context.Context) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgMeetingRepository: nil pool")
	}
	var id int64
	err := r.pool.QueryRow(ctx,
		`UPDATE council.counter SET seq = seq + 1 WHERE name = $1 RETURNING seq`,
		meetingCounterName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Counter row missing: bootstrap and retry once.
		if err := r.EnsureCounter(ctx); err != nil {
			return 0, err
		}
		err = r.pool.QueryRow(ctx,
			`UPDATE council.counter SET seq = seq + 1 WHERE name = $1 RETURNING seq`,
			meetingCounterName).Scan(&id)
	}
	return id, err
}

func (r *PgMeetingRepository) SaveMeeting(ctx context.Context, m council.Meeting) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMeetingRepository: nil pool")
	}
	conversation, err := json.Marshal(m.Conversation)
	if err != nil {
		return err
	}
	options, err := json.Marshal(m.Options)
	if err != nil {
		return err
	}
	audioIDs, err := json.Marshal(m.AudioIDs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO council.meeting (id, date, conversation, options, audio_ids, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET conversation = EXCLUDED.conversation,
		              audio_ids    = EXCLUDED.audio_ids,
		              summary      = EXCLUDED.summary
	`, m.ID, m.Date, conversation, options, audioIDs, m.Summary)
	return err
}

func (r *PgMeetingRepository) GetMeeting(ctx context.Context, id int64) (*council.Meeting, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMeetingRepository: nil pool")
	}
	var (
		m            council.Meeting
		conversation []byte
		options      []byte
		audioIDs     []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, date, conversation, options, audio_ids, summary
		FROM council.meeting WHERE id = $1
	`, id).Scan(&m.ID, &m.Date, &conversation, &options, &audioIDs, &m.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conversation, &m.Conversation); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(options, &m.Options); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(audioIDs, &m.AudioIDs); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PgMeetingRepository) SaveAudio(ctx context.Context, a council.Audio) error {
	if r == nil || r.pool == nil {
		return errors.New("PgMeetingRepository: nil pool")
	}
	sentences, err := json.Marshal(a.Sentences)
	if err != nil {
		return err
	}
	// Audio records are immutable: conflicts leave the existing record alone,
	// which makes re-synthesis attempts after replay idempotent.
	_, err = r.pool.Exec(ctx, `
		INSERT INTO council.audio (id, date, meeting_id, audio, sentences)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.Date, a.MeetingID, a.Audio, sentences)
	return err
}

func (r *PgMeetingRepository) GetAudio(ctx context.Context, id string) (*council.Audio, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMeetingRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, date, meeting_id, audio, sentences
		FROM council.audio WHERE id = $1
	`, id)
	return scanAudio(row)
}

func (r *PgMeetingRepository) ListAudioByMeeting(ctx context.Context, meetingID int64) ([]council.Audio, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgMeetingRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, meeting_id, audio, sentences
		FROM council.audio WHERE meeting_id = $1 ORDER BY date ASC
	`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []council.Audio
	for rows.Next() {
		a, err := scanAudio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAudio(row rowScanner) (*council.Audio, error) {
	var (
		a         council.Audio
		sentences []byte
	)
	err := row.Scan(&a.ID, &a.Date, &a.MeetingID, &a.Audio, &sentences)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sentences, &a.Sentences); err != nil {
		return nil, err
	}
	return &a, nil
}
