package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"buzzchat/internal/app/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStore connects to TEST_DATABASE_URL, skipping when it is unset.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)

	s := NewPostgresStore(pool)
	t.Cleanup(func() {
		s.Close()
		pool.Close()
	})
	return s
}

func TestPostgresCRUD(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	coll := "test_" + uuid.NewString()[:8]

	id, err := s.CreateDoc(ctx, coll, Fields{"displayName": "alice", "online": false, "createdAt": ServerTimestamp})
	require.NoError(t, err)

	d, err := s.GetDoc(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Fields["displayName"])
	assert.Len(t, d.Fields["createdAt"], len(TimestampLayout))

	require.NoError(t, s.UpdateDoc(ctx, coll, id, Fields{"online": true}))
	d, err = s.GetDoc(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, true, d.Fields["online"])
	assert.Equal(t, "alice", d.Fields["displayName"])

	docs, err := s.GetDocsWhere(ctx, coll, "online", true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)

	require.NoError(t, s.DeleteDoc(ctx, coll, id))
	_, err = s.GetDoc(ctx, coll, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateDoc(ctx, coll, id, Fields{"a": 1}), ErrNotFound)
}

func TestPostgresAccountEmailUnique(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	require.NoError(t, s.SetDoc(ctx, "accounts", uuid.NewString(), Fields{"email": email}))
	err := s.SetDoc(ctx, "accounts", uuid.NewString(), Fields{"email": email})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestPostgresLiveQuery(t *testing.T) {
	s := newPostgresStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coll := "test_" + uuid.NewString()[:8]

	h, err := s.QueryOrdered(ctx, coll, "createdAt", Asc)
	require.NoError(t, err)
	assert.Empty(t, receive(t, h))

	_, err = s.CreateDoc(ctx, coll, Fields{"text": "first", "createdAt": ServerTimestamp})
	require.NoError(t, err)
	_, err = s.CreateDoc(ctx, coll, Fields{"text": "second", "createdAt": ServerTimestamp})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		select {
		case docs := <-h.Snapshots():
			got := texts(docs)
			return len(got) == 2 && got[0] == "first" && got[1] == "second"
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, h.Close())
	_, ok := <-h.Snapshots()
	assert.False(t, ok)
}
