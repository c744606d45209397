package chat

import (
	"encoding/json"
	"time"

	"buzzchat/internal/app/profile"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/user"
)

// MessageType names a live session frame.
type MessageType string

// Inbound frames.
const (
	TypeSend          MessageType = "SEND"
	TypeDelete        MessageType = "DELETE"
	TypeReport        MessageType = "REPORT"
	TypeUpdateProfile MessageType = "UPDATE_PROFILE"
)

// Outbound frames.
const (
	TypeInitData     MessageType = "INIT_DATA"
	TypeSnapshot     MessageType = "SNAPSHOT"
	TypeConfirm      MessageType = "ACK"
	TypeError        MessageType = "ERROR"
	TypeProfile      MessageType = "PROFILE"
	TypeTokenUpdate  MessageType = "TOKEN_UPDATE"
	TypeNotification MessageType = "NOTIFICATION"
	TypeSessionEnded MessageType = "SESSION_ENDED"
)

// Envelope is the frame exchanged over the live session.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	TempID  string          `json:"tempId,omitempty"`
}

// NewEnvelope marshals payload into a frame of type t.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = b
	return env, nil
}

// SendPayload is the body of a SEND frame.
type SendPayload struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// DeletePayload is the body of a DELETE frame.
type DeletePayload struct {
	MessageID string `json:"messageId"`
}

// ReportPayload is the body of a REPORT frame.
type ReportPayload struct {
	MessageID string `json:"messageId"`
}

// UpdateProfilePayload is the body of an UPDATE_PROFILE frame.
type UpdateProfilePayload = profile.Update

// MessageView is a message as displayed to one session.
type MessageView struct {
	Message
	Segments  []Segment `json:"segments"`
	CanDelete bool      `json:"canDelete"`
}

// SnapshotPayload carries the full ordered message list.
type SnapshotPayload struct {
	Messages []MessageView `json:"messages"`
}

// InitDataPayload is sent once when the session opens.
type InitDataPayload struct {
	CurrentUser user.User `json:"currentUser"`
	Role        user.Role `json:"role"`
	OnlineUsers []string  `json:"onlineUsers"`
}

// ConfirmPayload acknowledges an inbound frame.
type ConfirmPayload struct {
	TempID string      `json:"tempId"`
	Type   MessageType `json:"type"`
	ID     string      `json:"id,omitempty"`
}

// ErrorPayload reports a failed command.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	TempID  string `json:"tempId,omitempty"`
}

// ProfilePayload carries the current user's profile.
type ProfilePayload struct {
	User user.User `json:"user"`
}

// TokenUpdatePayload carries a reissued session token.
type TokenUpdatePayload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NotificationPayload is a foreground notification about a new message.
type NotificationPayload struct {
	MessageID string `json:"messageId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// SessionEndedPayload explains why the server is closing the session.
type SessionEndedPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Views renders msgs for sess.
func Views(msgs []Message, sess session.Session) []MessageView {
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = MessageView{
			Message:   m,
			Segments:  Render(m.Text),
			CanDelete: m.AuthorID == sess.UserID || sess.IsModerator(),
		}
	}
	return out
}
