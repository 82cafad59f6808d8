// Package manager hosts the per-meeting orchestration state machine.
// One Manager owns one Meeting document (single writer) and processes inbound
// events strictly in arrival order; long-running generation and synthesis run
// as asynchronous continuations so other meetings never stall.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/broadcast"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/generation"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/audio"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/netretry"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/persistence/repository/port"
)

// State is the meeting lifecycle phase.
type State string

const (
	StateSettingUp        State = "setting_up"
	StateActive           State = "active"
	StateRaiseHandPending State = "raise_hand_pending"
	StateWrappingUp       State = "wrapping_up"
	StateCompleted        State = "completed"
)

// Outbound error codes.
const (
	CodeValidation        = "validation_error"
	CodeGenerationFailed  = "generation_error"
	CodeAudioFailed       = "audio_error"
	CodeInjectionConflict = "injection_conflict"
	CodeNotAllowed        = "not_allowed"
	CodeFatal             = "fatal_error"
)

const persistTimeout = 10 * time.Second

// AudioPipeline is the slice of the audio system the manager consumes.
type AudioPipeline interface {
	Submit(ctx context.Context, task audio.Task, resolve func(audio.Result))
	Forget(meetingID int64)
}

// IncidentReporter forwards fatal faults to the external monitoring sink.
type IncidentReporter interface {
	Incident(ctx context.Context, kind string, err error, meta map[string]any)
}

// Config carries the server-side tunables snapshotted into each meeting.
type Config struct {
	MaxTurns           int
	SummaryMaxChars    int
	AllowExtension     bool
	AllowClientOptions bool // development/test modes honor client-supplied tunables
}

// StartInput is the validated payload of start_conversation.
type StartInput struct {
	Topic      string
	Characters []council.Character
	Language   string
	State      map[string]any
	Options    map[string]any // generation tunables; ignored in production
}

// HumanMessageInput is the validated payload of submit_human_message and
// submit_human_panelist.
type HumanMessageInput struct {
	Text          string
	Speaker       string
	AskParticular string // one-shot turn override: character id to answer
	ID            string
	Sentences     []council.Sentence
}

// InjectionInput is the validated payload of submit_injection.
type InjectionInput struct {
	Text   string
	Date   time.Time
	Index  int
	Length int
}

// ReattachInput restores client-tracked state on reconnection.
type ReattachInput struct {
	HandRaised bool
	MaxTurns   int // conversationMaxLength override; 0 keeps the snapshot value
}

// Manager drives one meeting. All exported methods are safe for concurrent
// use; internally a single mutex serializes event handling.
type Manager struct {
	mu sync.Mutex

	state      State
	meeting    *council.Meeting
	turns      int
	generating bool   // a generation continuation is in flight
	inviteDue  bool   // raise-hand invitation still to be solicited
	raisedName string
	pendingSpk string // one-shot turn override (askParticular)
	failed     bool

	gen      generation.Generator
	audio    AudioPipeline
	repo     port.MeetingRepository
	bc       *broadcast.Rebindable
	policy   TurnPolicy
	retry    netretry.Policy
	reporter IncidentReporter
	cfg      Config
	met      *metrics.Metrics
	log      *slog.Logger
}

// New constructs a manager in SettingUp with a detached broadcaster.
func New(gen generation.Generator, pipeline AudioPipeline, repo port.MeetingRepository,
	policy TurnPolicy, retry netretry.Policy, reporter IncidentReporter,
	cfg Config, met *metrics.Metrics, log *slog.Logger) *Manager {
	if policy == nil {
		policy = NewRoundRobin()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		state:    StateSettingUp,
		gen:      gen,
		audio:    pipeline,
		repo:     repo,
		bc:       broadcast.NewRebindable(nil),
		policy:   policy,
		retry:    retry,
		reporter: reporter,
		cfg:      cfg,
		met:      met,
		log:      log.With("component", "manager"),
	}
}

// Broadcaster exposes the rebindable transport handle.
func (m *Manager) Broadcaster() *broadcast.Rebindable { return m.bc }

// MeetingID returns the allocated id, or 0 before Start succeeded.
func (m *Manager) MeetingID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meeting == nil {
		return 0
	}
	return m.meeting.ID
}

// Start allocates the meeting, snapshots configuration, and triggers the
// first turn.
func (m *Manager) Start(in StartInput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSettingUp {
		m.bc.Error("meeting already started", CodeNotAllowed)
		return
	}
	if in.Topic == "" || len(in.Characters) == 0 {
		m.bc.Error("topic and characters are required", CodeValidation)
		return
	}

	opts := m.snapshotOptions(in)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	id, err := m.repo.NextMeetingID(ctx)
	if err != nil {
		m.fatalLocked(fmt.Errorf("allocate meeting id: %w", err))
		return
	}
	m.meeting = &council.Meeting{
		ID:      id,
		Date:    time.Now().UTC(),
		Options: opts,
	}
	if err := m.repo.SaveMeeting(ctx, *m.meeting); err != nil {
		m.fatalLocked(fmt.Errorf("persist meeting: %w", err))
		return
	}

	m.log = m.log.With("meeting", id)
	if m.met != nil {
		m.met.MeetingsStarted.Inc()
	}
	m.state = StateActive
	m.bc.MeetingStarted(id)
	m.beginTurnLocked()
}

// snapshotOptions freezes topic, roster, and tunables into the meeting.
// Client-supplied tunables are honored only when the deployment allows them;
// production strips them even if present.
func (m *Manager) snapshotOptions(in StartInput) council.Options {
	opts := council.Options{
		Topic:           in.Topic,
		Characters:      in.Characters,
		Language:        in.Language,
		MaxTurns:        m.cfg.MaxTurns,
		SummaryMaxChars: m.cfg.SummaryMaxChars,
	}
	if !m.cfg.AllowClientOptions {
		return opts
	}
	if v, ok := numberOption(in.Options, "max_turns"); ok {
		opts.MaxTurns = v
	}
	if v, ok := numberOption(in.Options, "summary_max_chars"); ok {
		opts.SummaryMaxChars = v
	}
	extra := make(map[string]any)
	for k, v := range in.State {
		extra["state."+k] = v
	}
	for k, v := range in.Options {
		if k == "max_turns" || k == "summary_max_chars" {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		opts.Extra = extra
	}
	return opts
}

func numberOption(opts map[string]any, key string) (int, bool) {
	if opts == nil {
		return 0, false
	}
	switch v := opts[key].(type) {
	case float64:
		return int(v), v > 0
	case int:
		return v, v > 0
	}
	return 0, false
}

// HumanMessage inserts a human utterance out of normal order and re-enters
// the turn loop. It also resolves a pending raise-hand.
func (m *Manager) HumanMessage(in HumanMessageInput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptingLocked() {
		return
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	speaker := in.Speaker
	if speaker == "" {
		speaker = m.raisedName
	}
	msg, err := council.NewMessage(council.Message{
		ID:        id,
		Kind:      council.MessageKindHuman,
		Speaker:   speaker,
		Text:      in.Text,
		Sentences: in.Sentences,
	})
	if err != nil {
		m.bc.Error(err.Error(), CodeValidation)
		return
	}

	if m.state == StateRaiseHandPending {
		m.state = StateActive
		m.raisedName = ""
	}
	if in.AskParticular != "" {
		m.pendingSpk = in.AskParticular
	}

	if !m.appendAndBroadcastLocked(*msg) {
		return
	}
	// Human audio is produced client-side; no synthesis task.
	m.beginTurnLocked()
}

// RaiseHand moves to RaiseHandPending and solicits an invitation from the
// chair. The invitation is deferred while a turn is mid-generation.
func (m *Manager) RaiseHand(humanName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptingLocked() {
		return
	}
	if m.state != StateActive {
		m.bc.Error("cannot raise hand right now", CodeNotAllowed)
		return
	}
	m.state = StateRaiseHandPending
	m.raisedName = humanName
	m.inviteDue = true
	m.maybeInviteLocked()
}

// Inject inserts operator text at the given conversation index. An index that
// no longer matches (a concurrent turn won the race) fails soft with an error
// event and no mutation.
func (m *Manager) Inject(in InjectionInput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptingLocked() {
		return
	}
	if in.Index != len(m.meeting.Conversation) {
		m.bc.Error(fmt.Sprintf("injection index %d does not match conversation length %d",
			in.Index, len(m.meeting.Conversation)), CodeInjectionConflict)
		return
	}
	chair, err := m.meeting.Options.Chair()
	if err != nil {
		m.bc.Error(err.Error(), CodeValidation)
		return
	}

	msg, err := council.NewMessage(council.Message{
		ID:      uuid.NewString(),
		Kind:    council.MessageKindInjected,
		Date:    in.Date,
		Speaker: chair.Name,
		Text:    in.Text,
	})
	if err != nil {
		m.bc.Error(err.Error(), CodeValidation)
		return
	}
	msg.Truncate(in.Length)

	if !m.appendAndBroadcastLocked(*msg) {
		return
	}
	m.submitAudioLocked(*msg, chair)
}

// WrapUp forces the closing phase.
func (m *Manager) WrapUp() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acceptingLocked() {
		return
	}
	m.beginWrapUpLocked()
}

// Continue re-opens a completed meeting when the extension policy allows it.
func (m *Manager) Continue() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failed {
		return
	}
	if m.state != StateCompleted || !m.cfg.AllowExtension {
		m.bc.Error("meeting cannot be continued", CodeNotAllowed)
		return
	}
	m.state = StateActive
	// Each extension grants another full allotment of turns.
	m.meeting.Options.MaxTurns = m.turns + m.cfg.MaxTurns
	m.beginTurnLocked()
}

// Reattach rebinds the broadcaster and replays stored state to the new
// client. It never re-invokes generation or synthesis for completed turns.
func (m *Manager) Reattach(bc broadcast.MeetingBroadcaster, in ReattachInput) {
	m.mu.Lock()

	m.bc.Rebind(bc)
	if in.MaxTurns > 0 {
		m.meeting.Options.MaxTurns = in.MaxTurns
	}
	if in.HandRaised && m.state == StateActive {
		m.state = StateRaiseHandPending
	}

	conversation := append([]council.Message(nil), m.meeting.Conversation...)
	meetingID := m.meeting.ID
	completed := m.state == StateCompleted
	m.mu.Unlock()

	if completed {
		bc.ConversationEnd(conversation)
	} else {
		bc.ConversationUpdate(conversation)
	}

	// Re-deliver stored audio; replay reads, never re-synthesizes.
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	records, err := m.repo.ListAudioByMeeting(ctx, meetingID)
	if err != nil {
		m.log.Error("replay audio lookup failed", "err", err)
	}
	for _, a := range records {
		bc.AudioUpdate(broadcast.AudioUpdate{ID: a.ID, Audio: a.Audio, Sentences: a.Sentences})
	}

	m.mu.Lock()
	if m.state == StateActive && !m.generating {
		m.beginTurnLocked()
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the meeting document for read endpoints.
func (m *Manager) Snapshot() council.Meeting {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := *m.meeting
	snap.Conversation = append([]council.Message(nil), m.meeting.Conversation...)
	snap.AudioIDs = append([]string(nil), m.meeting.AudioIDs...)
	return snap
}

// restore rebuilds a manager around a persisted meeting after a process
// restart. A stored summary means the meeting had completed.
func (m *Manager) restore(meeting *council.Meeting) {
	m.mu.Lock()
	m.meeting = meeting
	m.log = m.log.With("meeting", meeting.ID)
	m.state = StateActive
	if meeting.Summary != "" {
		m.state = StateCompleted
	}
	for _, msg := range meeting.Conversation {
		if msg.Kind == council.MessageKindUtterance {
			m.turns++
		}
	}
	m.mu.Unlock()
}

// ----- turn loop -----

func (m *Manager) acceptingLocked() bool {
	if m.failed {
		return false
	}
	if m.meeting == nil {
		m.bc.Error("no meeting in this session", CodeNotAllowed)
		return false
	}
	if m.state == StateCompleted {
		m.bc.Error("meeting has ended", CodeNotAllowed)
		return false
	}
	return true
}

// beginTurnLocked starts the next character turn if the loop is idle.
func (m *Manager) beginTurnLocked() {
	if m.state != StateActive || m.generating || m.failed {
		return
	}
	if m.turns >= m.meeting.Options.MaxTurns {
		m.beginWrapUpLocked()
		return
	}

	speaker, err := m.nextSpeakerLocked()
	if err != nil {
		m.bc.Error(err.Error(), CodeGenerationFailed)
		return
	}
	m.generating = true
	req := generation.Request{
		Topic:    m.meeting.Options.Topic,
		Language: m.meeting.Options.Language,
		Speaker:  speaker,
		History:  append([]council.Message(nil), m.meeting.Conversation...),
		Kind:     council.MessageKindUtterance,
	}
	go m.runTurn(speaker, req)
}

func (m *Manager) nextSpeakerLocked() (council.Character, error) {
	if m.pendingSpk != "" {
		id := m.pendingSpk
		m.pendingSpk = ""
		if c, ok := m.meeting.Options.CharacterByID(id); ok {
			return c, nil
		}
	}
	return m.policy.Next(m.meeting)
}

func (m *Manager) runTurn(speaker council.Character, req generation.Request) {
	text, err := m.generate(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generating = false

	if err != nil {
		// Abandon the turn: no partial message, session continues.
		m.log.Warn("turn generation failed", "speaker", speaker.ID, "err", err)
		m.bc.Error("could not generate the next utterance", CodeGenerationFailed)
		m.maybeInviteLocked()
		return
	}
	if m.failed || m.state == StateCompleted {
		return
	}

	msg, err := council.NewMessage(council.Message{
		ID:      uuid.NewString(),
		Kind:    council.MessageKindUtterance,
		Speaker: speaker.Name,
		Text:    text,
	})
	if err != nil {
		m.bc.Error(err.Error(), CodeGenerationFailed)
		return
	}

	m.turns++
	if m.met != nil {
		m.met.TurnsTotal.Inc()
	}
	if !m.appendAndBroadcastLocked(*msg) {
		return
	}
	m.submitAudioLocked(*msg, speaker)

	if m.turns >= m.meeting.Options.MaxTurns && m.state == StateActive {
		m.beginWrapUpLocked()
		return
	}
	m.maybeInviteLocked()
}

// generate wraps the text-generation call in the network retry policy.
func (m *Manager) generate(req generation.Request) (string, error) {
	var text string
	err := m.retry.Do(context.Background(), func(ctx context.Context) error {
		var genErr error
		text, genErr = m.gen.NextUtterance(ctx, req)
		return genErr
	})
	return text, err
}

// ----- raise hand -----

func (m *Manager) maybeInviteLocked() {
	if !m.inviteDue || m.generating || m.failed || m.state != StateRaiseHandPending {
		return
	}
	chair, err := m.meeting.Options.Chair()
	if err != nil {
		m.inviteDue = false
		m.bc.Error(err.Error(), CodeValidation)
		return
	}
	m.inviteDue = false
	m.generating = true
	req := generation.Request{
		Topic:     m.meeting.Options.Topic,
		Language:  m.meeting.Options.Language,
		Speaker:   chair,
		History:   append([]council.Message(nil), m.meeting.Conversation...),
		Kind:      council.MessageKindRaiseHand,
		HumanName: m.raisedName,
	}
	go m.runInvitation(chair, req)
}

func (m *Manager) runInvitation(chair council.Character, req generation.Request) {
	text, err := m.generate(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generating = false

	if err != nil {
		m.log.Warn("invitation generation failed", "err", err)
		m.bc.Error("could not generate the invitation", CodeGenerationFailed)
		return
	}
	if m.failed || m.state != StateRaiseHandPending {
		return
	}

	msg, err := council.NewMessage(council.Message{
		ID:      uuid.NewString(),
		Kind:    council.MessageKindRaiseHand,
		Speaker: chair.Name,
		Text:    text,
	})
	if err != nil {
		m.bc.Error(err.Error(), CodeGenerationFailed)
		return
	}
	if !m.appendAndBroadcastLocked(*msg) {
		return
	}
	m.submitAudioLocked(*msg, chair)
}

// ----- wrap up -----

func (m *Manager) beginWrapUpLocked() {
	if m.state == StateWrappingUp || m.state == StateCompleted || m.failed {
		return
	}
	chair, err := m.meeting.Options.Chair()
	if err != nil {
		m.bc.Error(err.Error(), CodeValidation)
		return
	}
	m.state = StateWrappingUp
	m.inviteDue = false
	m.generating = true
	req := generation.Request{
		Topic:    m.meeting.Options.Topic,
		Language: m.meeting.Options.Language,
		Speaker:  chair,
		History:  append([]council.Message(nil), m.meeting.Conversation...),
		Kind:     council.MessageKindSummary,
		MaxChars: m.meeting.Options.SummaryMaxChars,
	}
	go m.runWrapUp(chair, req)
}

func (m *Manager) runWrapUp(chair council.Character, req generation.Request) {
	text, err := m.generate(req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.generating = false

	if err != nil {
		m.log.Warn("wrap-up generation failed", "err", err)
		m.bc.Error("could not generate the closing statement", CodeGenerationFailed)
		m.state = StateActive
		return
	}
	if m.failed {
		return
	}

	msg, err := council.NewMessage(council.Message{
		ID:      uuid.NewString(),
		Kind:    council.MessageKindSummary,
		Speaker: chair.Name,
		Text:    text, // stored text keeps any markup
	})
	if err != nil {
		m.bc.Error(err.Error(), CodeGenerationFailed)
		m.state = StateActive
		return
	}
	msg.Truncate(m.meeting.Options.SummaryMaxChars)

	m.meeting.Conversation = append(m.meeting.Conversation, *msg)
	m.meeting.Summary = msg.Text
	m.state = StateCompleted
	if !m.persistLocked() {
		return
	}
	m.bc.ConversationEnd(append([]council.Message(nil), m.meeting.Conversation...))
	// Synthesis still strips markup before the provider sees the text.
	m.submitAudioLocked(*msg, chair)
}

// ----- shared plumbing -----

// appendAndBroadcastLocked appends, persists, and broadcasts the text update.
// Returns false when persistence failed fatally.
func (m *Manager) appendAndBroadcastLocked(msg council.Message) bool {
	m.meeting.Conversation = append(m.meeting.Conversation, msg)
	if !m.persistLocked() {
		return false
	}
	m.bc.ConversationUpdate(append([]council.Message(nil), m.meeting.Conversation...))
	return true
}

func (m *Manager) persistLocked() bool {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.repo.SaveMeeting(ctx, *m.meeting); err != nil {
		m.fatalLocked(fmt.Errorf("persist meeting: %w", err))
		return false
	}
	return true
}

func (m *Manager) submitAudioLocked(msg council.Message, speaker council.Character) {
	task := audio.Task{
		MessageID: msg.ID,
		MeetingID: m.meeting.ID,
		Text:      msg.Text,
		Speaker:   speaker,
		Language:  m.meeting.Options.Language,
	}
	// Detached from any connection context: disconnection must not cancel
	// in-flight synthesis.
	m.audio.Submit(context.Background(), task, m.onAudioResolved)
}

// onAudioResolved receives terminal task results in per-meeting submission
// order and paces the turn loop: the next turn starts only after the previous
// turn's audio resolved.
func (m *Manager) onAudioResolved(res audio.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.Err != nil {
		if errors.Is(res.Err, audio.ErrPersistence) {
			m.fatalLocked(res.Err)
			return
		}
		m.bc.AudioUpdate(broadcast.AudioUpdate{ID: res.MessageID, Type: "error"})
		m.bc.Error("speech synthesis failed for one message", CodeAudioFailed)
	} else {
		m.attachSentencesLocked(res.MessageID, res.Sentences)
		m.meeting.AudioIDs = append(m.meeting.AudioIDs, res.MessageID)
		if !m.persistLocked() {
			return
		}
		m.bc.AudioUpdate(broadcast.AudioUpdate{ID: res.MessageID, Audio: res.Audio, Sentences: res.Sentences})
	}

	if m.state == StateCompleted {
		m.audio.Forget(m.meeting.ID)
		return
	}
	m.beginTurnLocked()
	m.maybeInviteLocked()
}

func (m *Manager) attachSentencesLocked(messageID string, sentences []council.Sentence) {
	for i := range m.meeting.Conversation {
		if m.meeting.Conversation[i].ID == messageID {
			m.meeting.Conversation[i].Sentences = sentences
			return
		}
	}
}

// fatalLocked handles an unrecoverable persistence fault: report to the
// monitoring sink, surface the terminal error, and freeze the meeting.
func (m *Manager) fatalLocked(err error) {
	m.log.Error("fatal meeting fault", "err", err)
	if m.reporter != nil {
		meta := map[string]any{}
		if m.meeting != nil {
			meta["meeting_id"] = m.meeting.ID
		}
		m.reporter.Incident(context.Background(), "persistence", err, meta)
	}
	m.failed = true
	m.state = StateCompleted
	m.bc.Error("the meeting hit an unrecoverable storage error", CodeFatal)
}
