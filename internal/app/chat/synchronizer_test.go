package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/docstore/docstoretest"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/storage"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newChatStore(t *testing.T) (*docstore.MemoryStore, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)}
	store := docstore.NewMemoryStore(docstore.WithClock(c.now))
	t.Cleanup(store.Close)

	ctx := context.Background()
	require.NoError(t, store.SetDoc(ctx, user.Collection, "alice", docstore.Fields{
		"displayName": "alice", "nameColor": "#ff0000", "badgeText": "VIP", "badgeColor": "#00ff00", "role": "member",
	}))
	require.NoError(t, store.SetDoc(ctx, user.Collection, "bob", docstore.Fields{
		"displayName": "bob", "nameColor": "#0000ff", "role": "member",
	}))
	return store, c
}

var (
	alice = session.Session{UserID: "alice", Email: "alice@example.com", Role: user.RoleMember}
	bob   = session.Session{UserID: "bob", Email: "bob@example.com", Role: user.RoleMember}
	mod   = session.Session{UserID: "mod", Email: "mod@example.com", Role: user.RoleModerator}
)

func next(t *testing.T, ch <-chan []Message) []Message {
	t.Helper()
	select {
	case msgs, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msgs
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot")
		return nil
	}
}

func TestSendSnapshotsAuthor(t *testing.T) {
	store, _ := newChatStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSynchronizer(store, alice)
	snaps, err := s.Subscribe(ctx)
	require.NoError(t, err)
	assert.Empty(t, next(t, snaps))

	id, err := s.Send(ctx, "  hello world  ", "")
	require.NoError(t, err)

	msgs := next(t, snaps)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "hello world", m.Text)
	assert.Equal(t, "alice", m.AuthorID)
	assert.Equal(t, "alice@example.com", m.AuthorEmail)
	assert.Equal(t, "alice", m.AuthorDisplayName)
	assert.Equal(t, "#ff0000", m.AuthorNameColor)
	require.NotNil(t, m.AuthorBadge)
	assert.Equal(t, user.Badge{Text: "VIP", Color: "#00ff00"}, *m.AuthorBadge)
	_, ok := m.CreatedTime()
	assert.True(t, ok)

	assert.Equal(t, msgs, s.Messages())
}

func TestSendKeepsAuthorSnapshotAfterRename(t *testing.T) {
	store, _ := newChatStore(t)
	ctx := context.Background()

	s := NewSynchronizer(store, bob)
	id, err := s.Send(ctx, "hi", "")
	require.NoError(t, err)
	require.NoError(t, store.UpdateDoc(ctx, user.Collection, "bob", docstore.Fields{"displayName": "robert"}))

	doc, err := store.GetDoc(ctx, MessagesCollection, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", doc.Fields["authorDisplayName"])
	assert.NotContains(t, doc.Fields, "authorBadge", "no badge, no field")
}

func TestSendOrderIsCreationOrder(t *testing.T) {
	store, c := newChatStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSynchronizer(store, alice)
	for _, text := range []string{"one", "two", "three"} {
		_, err := s.Send(ctx, text, "")
		require.NoError(t, err)
		c.t = c.t.Add(time.Second)
	}

	snaps, err := s.Subscribe(ctx)
	require.NoError(t, err)
	msgs := next(t, snaps)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Text)
	assert.Equal(t, "three", msgs[2].Text)
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		image    string
		wantCode int
	}{
		{"empty", "   ", "", errs.ErrMessageEmpty},
		{"too long", strings.Repeat("a", MaxContentBytes+1), "", errs.ErrMessageContentTooLong},
		{"bad image url", "", "ftp://example.com/x.png", errs.ErrImageURLInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newChatStore(t)
			counting := docstoretest.NewCounting(store)
			s := NewSynchronizer(counting, alice)

			_, err := s.Send(context.Background(), tt.text, tt.image)
			assert.True(t, errs.HasCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Equal(t, 0, counting.Total(), "rejected before any store call")
		})
	}
}

func TestSendAcceptsLimitAndImageOnly(t *testing.T) {
	store, _ := newChatStore(t)
	s := NewSynchronizer(store, alice)
	ctx := context.Background()

	_, err := s.Send(ctx, strings.Repeat("a", MaxContentBytes), "")
	assert.NoError(t, err)

	url := storage.DownloadURL(storage.ImageKey("alice", ".png"))
	id, err := s.Send(ctx, "", url)
	require.NoError(t, err)
	doc, err := store.GetDoc(ctx, MessagesCollection, id)
	require.NoError(t, err)
	assert.Equal(t, url, doc.Fields["imageUrl"])
	assert.Equal(t, "", doc.Fields["text"])
}

func TestSendStoreFailure(t *testing.T) {
	store, _ := newChatStore(t)
	counting := docstoretest.NewCounting(store)
	counting.Fail = assert.AnError
	s := NewSynchronizer(counting, alice)

	_, err := s.Send(context.Background(), "hi", "")
	assert.True(t, errs.HasCode(err, errs.ErrStoreUnavailable))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSendUnknownAuthor(t *testing.T) {
	store, _ := newChatStore(t)
	s := NewSynchronizer(store, session.Session{UserID: "ghost"})
	_, err := s.Send(context.Background(), "hi", "")
	assert.True(t, errs.HasCode(err, errs.ErrUserNotFound))
}

func TestRemovePermissions(t *testing.T) {
	store, _ := newChatStore(t)
	ctx := context.Background()
	id, err := NewSynchronizer(store, bob).Send(ctx, "bob's", "")
	require.NoError(t, err)

	counting := docstoretest.NewCounting(store)
	err = NewSynchronizer(counting, alice).Remove(ctx, id, "bob")
	assert.True(t, errs.HasCode(err, errs.ErrDeleteForbidden))
	assert.Equal(t, errs.KindPermission, errs.KindOf(err))
	assert.Equal(t, 0, counting.Total(), "refused delete never reaches the store")

	require.NoError(t, NewSynchronizer(store, mod).Remove(ctx, id, "bob"), "moderators delete anything")
	_, err = store.GetDoc(ctx, MessagesCollection, id)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = NewSynchronizer(store, bob).Remove(ctx, id, "bob")
	assert.True(t, errs.HasCode(err, errs.ErrMessageNotFound))
}

func TestRemoveOwnMessageUpdatesSubscription(t *testing.T) {
	store, _ := newChatStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSynchronizer(store, alice)
	snaps, err := s.Subscribe(ctx)
	require.NoError(t, err)
	next(t, snaps)

	id, err := s.Send(ctx, "oops", "")
	require.NoError(t, err)
	require.Len(t, next(t, snaps), 1)

	require.NoError(t, s.Remove(ctx, id, "alice"))
	assert.Empty(t, next(t, snaps))
	_, ok := s.Find(id)
	assert.False(t, ok)
}

func TestSubscribeClosesWithContext(t *testing.T) {
	store, _ := newChatStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := NewSynchronizer(store, alice)
	snaps, err := s.Subscribe(ctx)
	require.NoError(t, err)
	next(t, snaps)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-snaps:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestReport(t *testing.T) {
	store, _ := newChatStore(t)
	ctx := context.Background()
	msg := Message{ID: "m1", AuthorID: "bob", AuthorDisplayName: "bob"}

	id, err := NewSynchronizer(store, alice).Report(ctx, msg)
	require.NoError(t, err)

	doc, err := store.GetDoc(ctx, ReportsCollection, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", doc.Fields["reportedUser"])
	assert.Equal(t, "bob", doc.Fields["reportedUserName"])
	assert.Equal(t, "alice", doc.Fields["reportedBy"])
	assert.Equal(t, "alice@example.com", doc.Fields["reportedByEmail"])
	assert.Equal(t, "m1", doc.Fields["messageId"])
	assert.NotEmpty(t, doc.Fields["createdAt"])

	counting := docstoretest.NewCounting(store)
	_, err = NewSynchronizer(counting, bob).Report(ctx, msg)
	assert.True(t, errs.HasCode(err, errs.ErrReportSelf))
	assert.Equal(t, 0, counting.Total())
}

func TestViews(t *testing.T) {
	msgs := []Message{
		{ID: "1", AuthorID: "alice", Text: "mine https://example.com"},
		{ID: "2", AuthorID: "bob", Text: "theirs"},
	}

	views := Views(msgs, alice)
	assert.True(t, views[0].CanDelete)
	assert.False(t, views[1].CanDelete)
	assert.Equal(t, SegmentLink, views[0].Segments[1].Kind)

	for _, v := range Views(msgs, mod) {
		assert.True(t, v.CanDelete)
	}
}
