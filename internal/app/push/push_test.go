package push

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/user"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	endpoint string
	note     Notification
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (g *fakeGateway) Register(_ context.Context, token string) (string, error) {
	return "endpoint/" + token, nil
}

func (g *fakeGateway) Publish(_ context.Context, endpoint string, n Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, published{endpoint: endpoint, note: n})
	return nil
}

func (g *fakeGateway) published() []published {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]published(nil), g.sent...)
}

type fakePresence struct {
	mu       sync.Mutex
	online   map[string]bool
	notified map[string][]chat.Envelope
}

func (p *fakePresence) IsOnline(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

func (p *fakePresence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, ok := range p.online {
		if ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *fakePresence) Notify(id string, env chat.Envelope) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified[id] = append(p.notified[id], env)
	return 1
}

func (p *fakePresence) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.notified[id])
}

func seedUsers(t *testing.T, store docstore.Store) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []user.User{
		{ID: "alice", DisplayName: "alice", Online: true},
		{ID: "bob", DisplayName: "bob", NotificationToken: "ep-bob"},
		{ID: "carol", DisplayName: "carol"},
		{ID: "dave", DisplayName: "dave", NotificationToken: "ep-dave"},
	} {
		fields, err := docstore.ToFields(u)
		require.NoError(t, err)
		require.NoError(t, store.SetDoc(ctx, user.Collection, u.ID, fields))
	}
}

func startNotifier(t *testing.T, n *Notifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNotifierNotifiesEveryoneButAuthor(t *testing.T) {
	store := docstore.NewMemoryStore()
	t.Cleanup(store.Close)
	seedUsers(t, store)
	ctx := context.Background()

	_, err := store.CreateDoc(ctx, chat.MessagesCollection, docstore.Fields{
		"authorId": "dave", "authorDisplayName": "dave", "text": "old", "createdAt": docstore.ServerTimestamp,
	})
	require.NoError(t, err)

	presence := &fakePresence{online: map[string]bool{"alice": true}, notified: map[string][]chat.Envelope{}}
	gw := &fakeGateway{}
	startNotifier(t, NewNotifier(store, presence, gw))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, gw.published(), "first snapshot only seeds")

	_, err = store.CreateDoc(ctx, chat.MessagesCollection, docstore.Fields{
		"authorId": "dave", "authorDisplayName": "dave", "text": "hello all", "createdAt": docstore.ServerTimestamp,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(gw.published()) == 1 }, 2*time.Second, 5*time.Millisecond)
	sent := gw.published()[0]
	assert.Equal(t, "ep-bob", sent.endpoint, "offline with token; the author and tokenless users are skipped")
	assert.Equal(t, "dave", sent.note.Title)
	assert.Equal(t, "hello all", sent.note.Body)

	assert.Eventually(t, func() bool { return presence.count("alice") == 1 }, time.Second, 5*time.Millisecond)
	var p chat.NotificationPayload
	require.NoError(t, json.Unmarshal(presence.notified["alice"][0].Payload, &p))
	assert.Equal(t, "hello all", p.Body)
	assert.Equal(t, 0, presence.count("dave"))
}

func TestNotifierClearsDisabledEndpoint(t *testing.T) {
	store := docstore.NewMemoryStore()
	t.Cleanup(store.Close)
	seedUsers(t, store)
	ctx := context.Background()

	presence := &fakePresence{online: map[string]bool{}, notified: map[string][]chat.Envelope{}}
	startNotifier(t, NewNotifier(store, presence, &fakeGateway{err: ErrEndpointDisabled}))
	time.Sleep(50 * time.Millisecond)

	_, err := store.CreateDoc(ctx, chat.MessagesCollection, docstore.Fields{
		"authorId": "alice", "authorDisplayName": "alice", "text": "ping", "createdAt": docstore.ServerTimestamp,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		doc, err := store.GetDoc(ctx, user.Collection, "bob")
		return err == nil && doc.Fields["notificationToken"] == ""
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNotificationFor(t *testing.T) {
	n := notificationFor(chat.Message{ID: "m", AuthorDisplayName: "bob", ImageURL: "https://x/y.png"})
	assert.Equal(t, "sent an image", n.Body)
	assert.Equal(t, "m", n.Data["messageId"])

	long := notificationFor(chat.Message{Text: strings.Repeat("é", maxBodyRunes+5)})
	assert.Equal(t, maxBodyRunes+1, len([]rune(long.Body)))
}

type fakeSNS struct {
	createIn  *sns.CreatePlatformEndpointInput
	publishIn *sns.PublishInput
	err       error
}

func (f *fakeSNS) CreatePlatformEndpoint(_ context.Context, in *sns.CreatePlatformEndpointInput, _ ...func(*sns.Options)) (*sns.CreatePlatformEndpointOutput, error) {
	f.createIn = in
	return &sns.CreatePlatformEndpointOutput{EndpointArn: aws.String("arn:aws:sns:eu-west-1:1:endpoint/GCM/app/abc")}, nil
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.publishIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("1")}, nil
}

func TestSNSGateway(t *testing.T) {
	const app = "arn:aws:sns:eu-west-1:1:app/GCM/buzz"
	api := &fakeSNS{}
	g := newSNSGateway(api, app)
	ctx := context.Background()

	ep, err := g.Register(ctx, " device-token ")
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:eu-west-1:1:endpoint/GCM/app/abc", ep)
	assert.Equal(t, app, aws.ToString(api.createIn.PlatformApplicationArn))
	assert.Equal(t, "device-token", aws.ToString(api.createIn.Token))

	_, err = g.Register(ctx, "  ")
	assert.Error(t, err)

	require.NoError(t, g.Publish(ctx, ep, Notification{Title: "bob", Body: "hi"}))
	assert.Equal(t, ep, aws.ToString(api.publishIn.TargetArn))
	assert.Equal(t, "json", aws.ToString(api.publishIn.MessageStructure))

	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.publishIn.Message)), &msg))
	assert.Equal(t, "bob: hi", msg["default"])
	assert.Contains(t, msg["GCM"], `"title":"bob"`)

	api.err = &types.EndpointDisabledException{Message: aws.String("disabled")}
	assert.ErrorIs(t, g.Publish(ctx, ep, Notification{}), ErrEndpointDisabled)
}

func TestRegionFromARN(t *testing.T) {
	r, err := regionFromARN("arn:aws:sns:us-east-2:123:app/APNS/buzz")
	require.NoError(t, err)
	assert.Equal(t, "us-east-2", r)

	_, err = regionFromARN("not-an-arn")
	assert.Error(t, err)
}

func TestLogGateway(t *testing.T) {
	g := NewLogGateway()
	ep, err := g.Register(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "log:tok", ep)
	assert.NoError(t, g.Publish(context.Background(), ep, Notification{Title: "x"}))
}
