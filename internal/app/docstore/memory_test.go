package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func receive(t *testing.T, h LiveHandle) []Doc {
	t.Helper()
	select {
	case docs, ok := <-h.Snapshots():
		require.True(t, ok, "snapshot channel closed")
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func texts(docs []Doc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d.Fields["text"].(string)
	}
	return out
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.CreateDoc(ctx, "users", Fields{"displayName": "alice", "online": false})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := s.GetDoc(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Fields["displayName"])

	require.NoError(t, s.UpdateDoc(ctx, "users", id, Fields{"online": true}))
	d, err = s.GetDoc(ctx, "users", id)
	require.NoError(t, err)
	assert.Equal(t, true, d.Fields["online"])
	assert.Equal(t, "alice", d.Fields["displayName"], "update merges")

	require.NoError(t, s.DeleteDoc(ctx, "users", id))
	_, err = s.GetDoc(ctx, "users", id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.UpdateDoc(ctx, "users", id, Fields{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, s.DeleteDoc(ctx, "users", id), ErrNotFound)
}

func TestMemorySetDocKeepsSequence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetDoc(ctx, "users", "u1", Fields{"a": 1}))
	first, err := s.GetDoc(ctx, "users", "u1")
	require.NoError(t, err)

	require.NoError(t, s.SetDoc(ctx, "users", "u1", Fields{"b": 2}))
	second, err := s.GetDoc(ctx, "users", "u1")
	require.NoError(t, err)

	assert.Equal(t, first.Seq, second.Seq)
	assert.Equal(t, Fields{"b": float64(2)}, second.Fields, "set replaces")
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SetDoc(ctx, "users", "u1", Fields{"badge": map[string]any{"text": "x"}}))

	d, err := s.GetDoc(ctx, "users", "u1")
	require.NoError(t, err)
	d.Fields["badge"].(map[string]any)["text"] = "mutated"

	again, err := s.GetDoc(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Fields["badge"].(map[string]any)["text"])
}

func TestMemoryServerTimestamp(t *testing.T) {
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	id, err := s.CreateDoc(context.Background(), "messages", Fields{"text": "hi", "createdAt": ServerTimestamp})
	require.NoError(t, err)

	d, err := s.GetDoc(context.Background(), "messages", id)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00.000000000Z", d.Fields["createdAt"])

	ts, err := ParseTimestamp(d.Fields["createdAt"].(string))
	require.NoError(t, err)
	assert.True(t, ts.Equal(clock.Now()))
}

func TestMemoryGetDocsWhere(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetDoc(ctx, "users", "a", Fields{"displayName": "alice", "online": true}))
	require.NoError(t, s.SetDoc(ctx, "users", "b", Fields{"displayName": "bob", "online": false}))
	require.NoError(t, s.SetDoc(ctx, "users", "c", Fields{"displayName": "carol", "online": false}))

	docs, err := s.GetDocsWhere(ctx, "users", "online", false)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)

	docs, err = s.GetDocsWhere(ctx, "users", "displayName", "alice")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	docs, err = s.GetDocsWhere(ctx, "users", "displayName", "nobody")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryUniqueField(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithUniqueField("accounts", "email"))

	require.NoError(t, s.SetDoc(ctx, "accounts", "a", Fields{"email": "a@example.com"}))
	assert.ErrorIs(t, s.SetDoc(ctx, "accounts", "b", Fields{"email": "a@example.com"}), ErrAlreadyExists)
	_, err := s.CreateDoc(ctx, "accounts", Fields{"email": "a@example.com"})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	require.NoError(t, s.SetDoc(ctx, "accounts", "a", Fields{"email": "a@example.com", "x": 1}), "same doc may keep its value")
}

func TestMemoryLiveQueryOrdering(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	h, err := s.QueryOrdered(ctx, "messages", "createdAt", Asc)
	require.NoError(t, err)
	defer h.Close()

	assert.Empty(t, receive(t, h), "initial snapshot of empty collection")

	_, err = s.CreateDoc(ctx, "messages", Fields{"text": "first", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, texts(receive(t, h)))

	clock.Advance(time.Second)
	_, err = s.CreateDoc(ctx, "messages", Fields{"text": "second", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, texts(receive(t, h)))

	// Same instant: insertion sequence decides.
	_, err = s.CreateDoc(ctx, "messages", Fields{"text": "third", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, texts(receive(t, h)))
}

func TestMemoryLiveQueryDescAndMissingField(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SetDoc(ctx, "c", "1", Fields{"text": "b", "k": "2"}))
	require.NoError(t, s.SetDoc(ctx, "c", "2", Fields{"text": "a", "k": "1"}))
	require.NoError(t, s.SetDoc(ctx, "c", "3", Fields{"text": "none"}))

	asc, err := s.QueryOrdered(ctx, "c", "k", Asc)
	require.NoError(t, err)
	defer asc.Close()
	assert.Equal(t, []string{"a", "b", "none"}, texts(receive(t, asc)))

	desc, err := s.QueryOrdered(ctx, "c", "k", Desc)
	require.NoError(t, err)
	defer desc.Close()
	assert.Equal(t, []string{"none", "b", "a"}, texts(receive(t, desc)))
}

func TestMemoryLiveQueryDeleteAndLatestWins(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(WithClock(clock.Now))

	h, err := s.QueryOrdered(ctx, "messages", "createdAt", Asc)
	require.NoError(t, err)
	defer h.Close()

	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		clock.Advance(time.Second)
		id, err := s.CreateDoc(ctx, "messages", Fields{"text": text, "createdAt": ServerTimestamp})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.DeleteDoc(ctx, "messages", ids[1]))

	// Nothing was read in between, so only the newest snapshot is pending.
	assert.Equal(t, []string{"a", "c"}, texts(receive(t, h)))
	select {
	case docs := <-h.Snapshots():
		t.Fatalf("unexpected extra snapshot %v", texts(docs))
	default:
	}
}

func TestMemoryLiveQueryOtherCollectionIgnored(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	h, err := s.QueryOrdered(ctx, "messages", "createdAt", Asc)
	require.NoError(t, err)
	defer h.Close()
	receive(t, h)

	require.NoError(t, s.SetDoc(ctx, "users", "u1", Fields{"a": 1}))
	select {
	case <-h.Snapshots():
		t.Fatal("write to another collection produced a snapshot")
	default:
	}
}

func TestMemoryLiveHandleClose(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	h, err := s.QueryOrdered(ctx, "messages", "createdAt", Asc)
	require.NoError(t, err)
	receive(t, h)
	assert.Equal(t, 1, s.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-h.Snapshots()
	assert.False(t, ok)
	assert.NoError(t, h.Close(), "close is idempotent")
}

func TestMemoryStoreClose(t *testing.T) {
	s := NewMemoryStore()
	h, err := s.QueryOrdered(context.Background(), "messages", "createdAt", Asc)
	require.NoError(t, err)
	receive(t, h)

	s.Close()
	_, ok := <-h.Snapshots()
	assert.False(t, ok)

	_, err = s.CreateDoc(context.Background(), "messages", Fields{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.Close())
}

func TestDocDecodeAndToFields(t *testing.T) {
	type user struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Online      bool   `json:"online"`
	}

	f, err := ToFields(user{ID: "ignored", DisplayName: "alice", Online: true})
	require.NoError(t, err)
	assert.NotContains(t, f, "id")

	var u user
	require.NoError(t, Doc{ID: "u1", Collection: "users", Fields: f}.Decode(&u))
	assert.Equal(t, user{ID: "u1", DisplayName: "alice", Online: true}, u)
}
