/*
Package chat implements the shared message stream: the per-session message
synchronizer, message rendering, reports, presence and the WebSocket session
that carries them to a connected user.
*/
package chat

import (
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/user"
)

const (
	// MessagesCollection holds one document per chat message.
	MessagesCollection = "messages"

	// ReportsCollection holds user reports filed against messages.
	ReportsCollection = "reports"

	// OrderField is the field the message stream is ordered by.
	OrderField = "createdAt"

	// MaxContentBytes is the maximum size of message text in bytes.
	MaxContentBytes = 5000
)

// Message is one chat message. The author fields are a copy of the author's
// profile taken when the message was sent.
type Message struct {
	ID                string      `json:"id"`
	AuthorID          string      `json:"authorId"`
	AuthorEmail       string      `json:"authorEmail"`
	AuthorDisplayName string      `json:"authorDisplayName"`
	AuthorNameColor   string      `json:"authorNameColor"`
	AuthorBadge       *user.Badge `json:"authorBadge,omitempty"`
	Text              string      `json:"text"`
	ImageURL          string      `json:"imageUrl,omitempty"`
	CreatedAt         string      `json:"createdAt"`
}

// CreatedTime parses CreatedAt. ok is false while the server timestamp is unset.
func (m Message) CreatedTime() (t time.Time, ok bool) {
	if m.CreatedAt == "" {
		return time.Time{}, false
	}
	t, err := docstore.ParseTimestamp(m.CreatedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecodeMessages converts a snapshot into messages, keeping its order.
// Documents that do not decode are skipped.
func DecodeMessages(docs []docstore.Doc) ([]Message, int) {
	out := make([]Message, 0, len(docs))
	skipped := 0
	for _, d := range docs {
		var m Message
		if err := d.Decode(&m); err != nil {
			skipped++
			continue
		}
		out = append(out, m)
	}
	return out, skipped
}
