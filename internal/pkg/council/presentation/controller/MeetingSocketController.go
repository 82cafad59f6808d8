package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	cacheport "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/cache/port"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/metrics"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/realtime"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/broadcast"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/manager"
)

const (
	defaultReadTimeout = 60 * time.Second
	clientKeyTTL       = 24 * time.Hour
	lookupTimeout      = 10 * time.Second
)

// MeetingSocketController handles the websocket endpoint carrying all meeting
// traffic. Each connection owns one session; the session follows at most one
// meeting at a time.
type MeetingSocketController struct {
	hub      *realtime.Hub
	registry *manager.Registry
	cache    cacheport.Cache
	met      *metrics.Metrics
	log      *slog.Logger
}

func NewMeetingSocketController(hub *realtime.Hub, registry *manager.Registry, cache cacheport.Cache, met *metrics.Metrics, log *slog.Logger) *MeetingSocketController {
	if log == nil {
		log = slog.Default()
	}
	return &MeetingSocketController{
		hub:      hub,
		registry: registry,
		cache:    cache,
		met:      met,
		log:      log.With("component", "socket"),
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when auth is added.
		return true
	},
}

// inboundFrame is the envelope for every client event. Fields beyond Type are
// optional and validated per event.
type inboundFrame struct {
	Type string `json:"type"`

	// start_conversation
	Topic      string              `json:"topic,omitempty"`
	Characters []council.Character `json:"characters,omitempty"`
	Language   string              `json:"language,omitempty"`
	State      map[string]any      `json:"state,omitempty"`
	Options    map[string]any      `json:"options,omitempty"`

	// submit_human_message / submit_human_panelist
	Text          string             `json:"text,omitempty"`
	Speaker       string             `json:"speaker,omitempty"`
	AskParticular string             `json:"ask_particular,omitempty"`
	MessageID     string             `json:"message_id,omitempty"`
	Sentences     []council.Sentence `json:"sentences,omitempty"`

	// raise_hand
	HumanName string `json:"human_name,omitempty"`

	// submit_injection
	Index  *int      `json:"index,omitempty"`
	Length int       `json:"length,omitempty"`
	Date   time.Time `json:"date,omitempty"`

	// attempt_reconnection
	MeetingID  int64 `json:"meeting_id,omitempty"`
	HandRaised bool  `json:"hand_raised,omitempty"`
	MaxTurns   int   `json:"max_turns,omitempty"`
}

// Handle upgrades the HTTP connection and processes frames until the client
// disconnects.
func (ctl *MeetingSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; nothing more to do.
			return
		}

		conn := realtime.NewConnection(ws)
		ctl.hub.Attach(conn)
		session := &socketSession{ctl: ctl, conn: conn}
		defer session.teardown()

		ws.SetReadLimit(1 << 20)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				session.sendError("invalid payload", "bad_request")
				continue
			}
			session.dispatch(frame)
		}
	}
}

// socketSession is the per-connection state: the broadcaster bound to this
// socket and the manager it currently follows.
type socketSession struct {
	ctl  *MeetingSocketController
	conn *realtime.Connection
	bc   *wsBroadcaster
	mgr  *manager.Manager
}

func (s *socketSession) dispatch(frame inboundFrame) {
	outcome := "ok"
	switch frame.Type {
	case "start_conversation":
		outcome = s.handleStart(frame)
	case "submit_human_message", "submit_human_panelist":
		outcome = s.handleHumanMessage(frame)
	case "raise_hand":
		outcome = s.handleRaiseHand(frame)
	case "submit_injection":
		outcome = s.handleInjection(frame)
	case "wrap_up_meeting":
		outcome = s.withManager(func(m *manager.Manager) { m.WrapUp() })
	case "continue_conversation":
		outcome = s.withManager(func(m *manager.Manager) { m.Continue() })
	case "attempt_reconnection":
		outcome = s.handleReconnection(frame)
	case "request_clientkey":
		outcome = s.handleClientKey()
	default:
		s.sendError("unknown event type", "bad_request")
		outcome = "rejected"
	}
	if s.ctl.met != nil {
		s.ctl.met.InboundEvents.WithLabelValues(frame.Type, outcome).Inc()
	}
}

func (s *socketSession) handleStart(frame inboundFrame) string {
	if s.mgr != nil {
		s.sendError("session already follows a meeting", "not_allowed")
		return "rejected"
	}
	if frame.Topic == "" || len(frame.Characters) == 0 {
		s.sendError("topic and characters are required", "validation_error")
		return "rejected"
	}
	for _, ch := range frame.Characters {
		if ch.ID == "" || ch.Name == "" || ch.VoiceID == "" || ch.Provider == "" {
			s.sendError("every character needs id, name, voice_id, and provider", "validation_error")
			return "rejected"
		}
	}

	m := s.ctl.registry.Create()
	s.bind(m)
	m.Start(manager.StartInput{
		Topic:      frame.Topic,
		Characters: frame.Characters,
		Language:   frame.Language,
		State:      frame.State,
		Options:    frame.Options,
	})
	if id := m.MeetingID(); id != 0 {
		s.ctl.registry.Register(m)
		s.bc.setMeeting(id)
		s.ctl.hub.Join(id, s.conn)
	}
	return "ok"
}

func (s *socketSession) handleHumanMessage(frame inboundFrame) string {
	return s.withManager(func(m *manager.Manager) {
		m.HumanMessage(manager.HumanMessageInput{
			Text:          frame.Text,
			Speaker:       frame.Speaker,
			AskParticular: frame.AskParticular,
			ID:            frame.MessageID,
			Sentences:     frame.Sentences,
		})
	})
}

func (s *socketSession) handleRaiseHand(frame inboundFrame) string {
	return s.withManager(func(m *manager.Manager) {
		m.RaiseHand(frame.HumanName)
	})
}

func (s *socketSession) handleInjection(frame inboundFrame) string {
	if frame.Index == nil {
		s.sendError("index is required", "validation_error")
		return "rejected"
	}
	return s.withManager(func(m *manager.Manager) {
		m.Inject(manager.InjectionInput{
			Text:   frame.Text,
			Date:   frame.Date,
			Index:  *frame.Index,
			Length: frame.Length,
		})
	})
}

func (s *socketSession) handleReconnection(frame inboundFrame) string {
	if frame.MeetingID == 0 {
		s.sendError("meeting_id is required", "validation_error")
		return "rejected"
	}

	bc := newWsBroadcaster(s.ctl.hub, s.conn)
	bc.setMeeting(frame.MeetingID)

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	m, err := s.ctl.registry.Reattach(ctx, frame.MeetingID, bc, manager.ReattachInput{
		HandRaised: frame.HandRaised,
		MaxTurns:   frame.MaxTurns,
	})
	if errors.Is(err, manager.ErrMeetingNotFound) {
		bc.MeetingNotFound(frame.MeetingID)
		return "rejected"
	}
	if err != nil {
		s.ctl.log.Error("reconnection failed", "meeting", frame.MeetingID, "err", err)
		s.sendError("could not restore the meeting", "internal_error")
		return "rejected"
	}

	s.detachCurrent()
	s.mgr = m
	s.bc = bc
	s.ctl.hub.Join(frame.MeetingID, s.conn)
	return "ok"
}

// handleClientKey issues a short-lived token backed by the cache so media
// clients can authenticate follow-up requests.
func (s *socketSession) handleClientKey() string {
	token := uuid.NewString()
	if s.ctl.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		if err := s.ctl.cache.Set(ctx, "clientkey:"+token, "issued", clientKeyTTL); err != nil {
			s.ctl.log.Error("client key issuance failed", "err", err)
			s.sendError("could not issue a client key", "internal_error")
			return "rejected"
		}
	}
	s.sessionBroadcaster().ClientKey(token)
	return "ok"
}

func (s *socketSession) withManager(fn func(*manager.Manager)) string {
	if s.mgr == nil {
		s.sendError("no meeting in this session", "not_allowed")
		return "rejected"
	}
	fn(s.mgr)
	return "ok"
}

// bind attaches a fresh broadcaster for a manager this session starts.
func (s *socketSession) bind(m *manager.Manager) {
	s.detachCurrent()
	s.bc = newWsBroadcaster(s.ctl.hub, s.conn)
	s.mgr = m
	m.Broadcaster().Rebind(s.bc)
}

func (s *socketSession) sessionBroadcaster() broadcast.MeetingBroadcaster {
	if s.bc != nil {
		return s.bc
	}
	return newWsBroadcaster(s.ctl.hub, s.conn)
}

func (s *socketSession) sendError(message, code string) {
	newWsBroadcaster(s.ctl.hub, s.conn).Error(message, code)
}

// detachCurrent releases the manager binding without tearing down in-flight
// work; the manager keeps generating into a no-op until someone reattaches.
func (s *socketSession) detachCurrent() {
	if s.mgr != nil && s.bc != nil && s.mgr.Broadcaster().BoundTo(s.bc) {
		s.mgr.Broadcaster().Detach()
	}
	s.mgr = nil
	s.bc = nil
}

func (s *socketSession) teardown() {
	s.detachCurrent()
	s.ctl.hub.Detach(s.conn)
	s.conn.Close(websocket.CloseNormalClosure, "session closed")
}
