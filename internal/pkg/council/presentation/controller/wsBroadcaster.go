package controller

import (
	"encoding/json"
	"sync/atomic"

	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/infrastructure/realtime"
	"github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/broadcast"
	council "github.com/Nonhuman-Nonsense/council-of-foods-sub002/internal/pkg/council/application/domain"
)

// wsBroadcaster adapts the broadcaster capability onto websocket frames.
// Events fan out to the meeting room once the meeting id is known; before
// that they go to the originating connection only.
type wsBroadcaster struct {
	hub       *realtime.Hub
	conn      *realtime.Connection
	meetingID atomic.Int64
}

func newWsBroadcaster(hub *realtime.Hub, conn *realtime.Connection) *wsBroadcaster {
	return &wsBroadcaster{hub: hub, conn: conn}
}

var _ broadcast.MeetingBroadcaster = (*wsBroadcaster)(nil)

func (b *wsBroadcaster) setMeeting(id int64) { b.meetingID.Store(id) }

func (b *wsBroadcaster) emit(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if id := b.meetingID.Load(); id != 0 {
		if b.hub.Broadcast(id, payload) > 0 {
			return
		}
	}
	_ = b.conn.Send(payload)
}

type meetingStartedFrame struct {
	Type      string `json:"type"`
	MeetingID int64  `json:"meeting_id"`
}

type conversationFrame struct {
	Type         string            `json:"type"`
	Conversation []council.Message `json:"conversation"`
}

type audioUpdateFrame struct {
	Type      string             `json:"type"`
	ID        string             `json:"id"`
	Audio     []byte             `json:"audio,omitempty"` // base64 in transit
	Sentences []council.Sentence `json:"sentences,omitempty"`
	Status    string             `json:"status,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type notFoundFrame struct {
	Type      string `json:"type"`
	MeetingID int64  `json:"meeting_id"`
}

type clientKeyFrame struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

func (b *wsBroadcaster) MeetingStarted(meetingID int64) {
	b.setMeeting(meetingID)
	b.emit(meetingStartedFrame{Type: "meeting_started", MeetingID: meetingID})
}

func (b *wsBroadcaster) ConversationUpdate(conversation []council.Message) {
	b.emit(conversationFrame{Type: "conversation_update", Conversation: conversation})
}

func (b *wsBroadcaster) ConversationEnd(conversation []council.Message) {
	b.emit(conversationFrame{Type: "conversation_end", Conversation: conversation})
}

func (b *wsBroadcaster) AudioUpdate(update broadcast.AudioUpdate) {
	b.emit(audioUpdateFrame{
		Type:      "audio_update",
		ID:        update.ID,
		Audio:     update.Audio,
		Sentences: update.Sentences,
		Status:    update.Type,
	})
}

func (b *wsBroadcaster) ClientKey(value string) {
	b.emit(clientKeyFrame{Type: "clientkey_response", Key: value})
}

func (b *wsBroadcaster) Error(message string, code string) {
	b.emit(errorFrame{Type: "conversation_error", Code: code, Error: message})
}

func (b *wsBroadcaster) MeetingNotFound(meetingID int64) {
	b.emit(notFoundFrame{Type: "meeting_not_found", MeetingID: meetingID})
}
