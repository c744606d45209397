/*
Package push delivers new-message notifications to users who are not looking
at the chat: connected users get a foreground frame through the hub, offline
users with a registered device get a push through a Gateway.
*/
package push

import (
	"context"
	"errors"
	"strings"

	"buzzchat/internal/pkg/logx"

	"github.com/rs/zerolog"
)

// ErrEndpointDisabled is returned by Publish for a device endpoint that no
// longer accepts pushes. The endpoint should be forgotten.
var ErrEndpointDisabled = errors.New("push: endpoint disabled")

// Notification is one push message.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Gateway is the push delivery contract.
type Gateway interface {
	// Register exchanges a device token for a deliverable endpoint.
	Register(ctx context.Context, deviceToken string) (endpoint string, err error)
	// Publish sends n to endpoint.
	Publish(ctx context.Context, endpoint string, n Notification) error
}

// LogGateway only logs. It is used when no push service is configured.
type LogGateway struct {
	log zerolog.Logger
}

// NewLogGateway returns a gateway that accepts everything and delivers nothing.
func NewLogGateway() *LogGateway {
	return &LogGateway{log: logx.Component("push")}
}

func (g *LogGateway) Register(_ context.Context, deviceToken string) (string, error) {
	deviceToken = strings.TrimSpace(deviceToken)
	if deviceToken == "" {
		return "", errors.New("push: empty device token")
	}
	return "log:" + deviceToken, nil
}

func (g *LogGateway) Publish(_ context.Context, endpoint string, n Notification) error {
	g.log.Info().Str("endpoint", endpoint).Str("title", n.Title).Msg("Push notification (not delivered)")
	return nil
}
