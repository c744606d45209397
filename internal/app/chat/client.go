package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/profile"
	"buzzchat/internal/app/session"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/limiter"
	"buzzchat/internal/pkg/logx"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 16384

	// how long an inbound command may take against the store.
	commandTimeout = 10 * time.Second

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// telling the client its session is no longer valid.
	WsCloseCodeSessionKicked = 4001
)

// Deps are the collaborators shared by every live session.
type Deps struct {
	Store docstore.Store
	Hub   *Hub

	// SendLimiter throttles SEND frames per user. Nil disables throttling.
	SendLimiter *limiter.KeyedLimiter

	// SessionCheckInterval is how often the session is re-validated.
	SessionCheckInterval time.Duration
}

type closeFrame struct {
	code   int
	reason string
}

// Client is one signed-in WebSocket connection. It runs the message
// synchronizer, the profile manager and the session watcher of its session
// and relays their state to the socket.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	sess    session.Session
	auth    *identity.Auth
	sync    *Synchronizer
	profile *profile.Manager
	watcher *session.Watcher
	limiter *limiter.KeyedLimiter

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// the newest undelivered snapshot frame; older ones are dropped.
	snapshot chan []byte

	// a pending close frame; WritePump flushes send before writing it.
	kick     chan closeFrame
	kickOnce sync.Once

	// lastToken is only touched by the watcher goroutine.
	lastToken string

	ctx    context.Context
	cancel context.CancelFunc

	logger zerolog.Logger
}

// NewClient binds a connection to an established session. auth must hold
// the session's credential.
func NewClient(deps Deps, conn *websocket.Conn, auth *identity.Auth, sess session.Session) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		hub:      deps.Hub,
		conn:     conn,
		sess:     sess,
		auth:     auth,
		sync:     NewSynchronizer(deps.Store, sess),
		profile:  profile.NewManager(deps.Store, sess, nil),
		limiter:  deps.SendLimiter,
		send:     make(chan []byte, 256),
		snapshot: make(chan []byte, 1),
		kick:     make(chan closeFrame, 1),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logx.ForUser("client", sess.UserID),
	}
	if cred, ok := auth.Current(); ok {
		c.lastToken = cred.Token
	}

	interval := deps.SessionCheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c.watcher = session.NewWatcher(auth, interval)
	c.watcher.OnInvalid = c.endSession
	c.watcher.OnRefreshed = c.tokenRefreshed

	return c
}

// UserID implements Peer.
func (c *Client) UserID() string {
	return c.sess.UserID
}

// Serve runs the connection until the socket closes.
func (c *Client) Serve() {
	defer c.cancel()

	if err := c.hub.Register(c); err != nil {
		c.logger.Warn().Err(err).Msg("Hub refused connection.")
		_ = c.conn.Close()
		return
	}

	go c.WritePump()

	if err := c.sendInitData(); err != nil {
		c.SendError(err, "")
	}

	go c.forwardSnapshots()
	go c.watcher.Run(c.ctx)

	c.ReadPump()
}

// ReadPump handles reading frames from the WebSocket connection.
// It handles heartbeats (Pong), command dispatch, and performs cleanup upon connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(frame)
	}
}

// cleanupOnDisconnect stops the session's goroutines, leaves the hub and closes the socket.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.cancel()
	c.hub.Unregister(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage decodes one frame and runs its command.
func (c *Client) processInboundMessage(frame []byte) {
	var in Envelope
	if err := json.Unmarshal(frame, &in); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat), "")
		return
	}

	// Commands outlive the socket: a write already started completes even
	// if the client disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), commandTimeout)
	defer cancel()

	var err error
	switch in.Type {
	case TypeSend:
		err = c.handleSend(ctx, in)
	case TypeDelete:
		err = c.handleDelete(ctx, in)
	case TypeReport:
		err = c.handleReport(ctx, in)
	case TypeUpdateProfile:
		err = c.handleUpdateProfile(ctx, in)
	default:
		c.logger.Warn().Str("msg_type", string(in.Type)).Msg("Client sent unsupported message type")
		err = errs.NewError(errs.ErrUnknownCommand, in.Type)
	}

	if err != nil {
		c.SendError(err, in.TempID)
	}
}

func decodePayload(in Envelope, dst any) error {
	if len(in.Payload) == 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := json.Unmarshal(in.Payload, dst); err != nil {
		return errs.Wrap(errs.ErrInvalidParams, err)
	}
	return nil
}

func (c *Client) handleSend(ctx context.Context, in Envelope) error {
	var p SendPayload
	if err := decodePayload(in, &p); err != nil {
		return err
	}
	if c.limiter != nil && !c.limiter.Allow(c.sess.UserID) {
		return errs.NewError(errs.ErrRateLimitExceeded)
	}

	id, err := c.sync.Send(ctx, p.Text, p.ImageURL)
	if err != nil {
		return err
	}
	c.sendConfirmation(in, id)
	return nil
}

// handleDelete takes the author from the mirrored message, never from the client.
func (c *Client) handleDelete(ctx context.Context, in Envelope) error {
	var p DeletePayload
	if err := decodePayload(in, &p); err != nil {
		return err
	}
	msg, ok := c.sync.Find(p.MessageID)
	if !ok {
		return errs.NewError(errs.ErrMessageNotFound)
	}

	if err := c.sync.Remove(ctx, msg.ID, msg.AuthorID); err != nil {
		return err
	}
	c.sendConfirmation(in, msg.ID)
	return nil
}

func (c *Client) handleReport(ctx context.Context, in Envelope) error {
	var p ReportPayload
	if err := decodePayload(in, &p); err != nil {
		return err
	}
	msg, ok := c.sync.Find(p.MessageID)
	if !ok {
		return errs.NewError(errs.ErrMessageNotFound)
	}

	id, err := c.sync.Report(ctx, msg)
	if err != nil {
		return err
	}
	c.sendConfirmation(in, id)
	return nil
}

func (c *Client) handleUpdateProfile(ctx context.Context, in Envelope) error {
	var p UpdateProfilePayload
	if err := decodePayload(in, &p); err != nil {
		return err
	}

	u, err := c.profile.UpdateProfile(ctx, p)
	if err != nil {
		return err
	}
	c.sendEnvelope(TypeProfile, ProfilePayload{User: u})
	c.sendConfirmation(in, u.ID)
	return nil
}

// forwardSnapshots relays every message snapshot until the session ends.
func (c *Client) forwardSnapshots() {
	snaps, err := c.sync.Subscribe(c.ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to subscribe to messages")
		c.SendError(err, "")
		return
	}

	for msgs := range snaps {
		env, err := NewEnvelope(TypeSnapshot, SnapshotPayload{Messages: Views(msgs, c.sess)})
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to build SNAPSHOT message.")
			continue
		}
		b, err := json.Marshal(env)
		if err != nil {
			c.logger.Error().Err(err).Msg("Error marshaling snapshot")
			continue
		}

		select {
		case <-c.snapshot:
		default:
		}
		c.snapshot <- b
	}
}

// endSession tells the client why its session ended and closes the socket.
func (c *Client) endSession(err error) {
	code, message := errorFields(err)
	c.sendEnvelope(TypeSessionEnded, SessionEndedPayload{Code: code, Message: message})
	c.Kick(WsCloseCodeSessionKicked, message)
}

func (c *Client) tokenRefreshed(cred identity.Credential) {
	if cred.Token == c.lastToken {
		return
	}
	c.lastToken = cred.Token
	c.logger.Debug().Time("expires_at", cred.ExpiresAt).Msg("Session token reissued.")
	c.sendEnvelope(TypeTokenUpdate, TokenUpdatePayload{Token: cred.Token, ExpiresAt: cred.ExpiresAt})
}

// WritePump handles writing frames from the queues to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}

		case frame := <-c.snapshot:
			if !c.writeFrame(frame) {
				return
			}

		case cf := <-c.kick:
			c.flushQueued()
			c.writeClose(cf.code, cf.reason)
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

		case <-c.ctx.Done():
			c.writeClose(websocket.CloseNormalClosure, "")
			return
		}
	}
}

// writeFrame writes one text frame. It returns false if WritePump should stop.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}
	return true
}

func (c *Client) flushQueued() {
	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeClose(code int, reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)); err != nil {
		c.logger.Debug().Err(err).Int("close_code", code).Msg("Failed to send close message.")
	}
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing ping")
		return false
	}
	return true
}

// Deliver implements Peer.
func (c *Client) Deliver(env Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling data for client")
		return false
	}
	return c.queue(b) == nil
}

// queue hands frame to WritePump without blocking.
func (c *Client) queue(frame []byte) error {
	if c.ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return fmt.Errorf("client send queue full")
	}
}

func (c *Client) sendEnvelope(t MessageType, payload any) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_type", string(t)).Msg("Failed to build message.")
		return
	}
	c.Deliver(env)
}

// SendError sends a TypeError frame describing err.
func (c *Client) SendError(err error, tempID string) {
	code, message := errorFields(err)
	c.sendEnvelope(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
		Kind:    string(errs.KindOf(err)),
		TempID:  tempID,
	})
}

func (c *Client) sendInitData() error {
	u, err := c.profile.Current(c.ctx)
	if err != nil {
		return err
	}
	c.sendEnvelope(TypeInitData, InitDataPayload{
		CurrentUser: u,
		Role:        c.sess.Role,
		OnlineUsers: c.hub.OnlineUsers(),
	})
	return nil
}

// sendConfirmation acknowledges the inbound frame in with the id it produced.
func (c *Client) sendConfirmation(in Envelope, id string) {
	if in.TempID == "" {
		return
	}
	c.sendEnvelope(TypeConfirm, ConfirmPayload{TempID: in.TempID, Type: in.Type, ID: id})
}

// Kick implements Peer. Frames already queued are written before the close frame.
func (c *Client) Kick(code int, reason string) {
	c.kickOnce.Do(func() {
		c.logger.Warn().
			Int("close_code", code).
			Str("reason", reason).
			Msg("Closing connection.")
		c.kick <- closeFrame{code: code, reason: reason}
	})
}

func errorFields(err error) (int, string) {
	if ce, ok := errs.As(err); ok {
		return ce.Code, ce.Message
	}
	ce := errs.NewError(errs.ErrUnknown, err)
	return ce.Code, ce.Message
}
