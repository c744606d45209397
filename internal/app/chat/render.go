package chat

import (
	"regexp"
	"strings"
)

// SegmentKind tells a client how to display one token of message text.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentVideo SegmentKind = "video"
	SegmentLink  SegmentKind = "link"
)

// Segment is one whitespace-separated token of rendered text. VideoID is
// set for video segments only.
type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Value   string      `json:"value"`
	VideoID string      `json:"videoId,omitempty"`
}

const videoIDLength = 11

var (
	videoRe = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)
	linkRe  = regexp.MustCompile(`^https?://\S+$`)
)

// VideoID extracts a YouTube video id from token.
func VideoID(token string) (string, bool) {
	m := videoRe.FindStringSubmatch(token)
	if m == nil || len(m[2]) != videoIDLength {
		return "", false
	}
	return m[2], true
}

// Render splits text on whitespace and classifies every token.
func Render(text string) []Segment {
	tokens := strings.Fields(text)
	out := make([]Segment, 0, len(tokens))
	for _, tok := range tokens {
		switch id, ok := VideoID(tok); {
		case ok:
			out = append(out, Segment{Kind: SegmentVideo, Value: tok, VideoID: id})
		case linkRe.MatchString(tok):
			out = append(out, Segment{Kind: SegmentLink, Value: tok})
		default:
			out = append(out, Segment{Kind: SegmentText, Value: tok})
		}
	}
	return out
}
