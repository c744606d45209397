package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"buzzchat/internal/app/db"
	"buzzchat/internal/pkg/logx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// querier is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type feedKey struct {
	collection string
	orderField string
	dir        Direction
}

// feed is one LISTEN loop shared by every live query with the same key.
type feed struct {
	key     feedKey
	cancel  context.CancelFunc
	subs    map[*liveHandle]struct{}
	last    []Doc
	hasLast bool
}

// PostgresStore keeps documents in the documents table. Live queries are
// driven by the documents_notify trigger through LISTEN/NOTIFY.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
	log  zerolog.Logger

	// mu guards feeds and every feed's fields.
	mu     sync.Mutex
	feeds  map[feedKey]*feed
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPostgresStore wraps a migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	ctx, cancel := context.WithCancel(context.Background())
	return &PostgresStore{
		pool:   pool,
		now:    time.Now,
		log:    logx.Component("docstore"),
		feeds:  make(map[feedKey]*feed),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *PostgresStore) CreateDoc(ctx context.Context, collection string, fields Fields) (string, error) {
	_, data, err := resolve(fields, s.now())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(data))
	if err != nil {
		return "", wrapWriteErr("create", collection, id, err)
	}
	return id, nil
}

func (s *PostgresStore) SetDoc(ctx context.Context, collection, id string, fields Fields) error {
	_, data, err := resolve(fields, s.now())
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, string(data))
	if err != nil {
		return wrapWriteErr("set", collection, id, err)
	}
	return nil
}

func (s *PostgresStore) GetDoc(ctx context.Context, collection, id string) (Doc, error) {
	var (
		seq int64
		raw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT seq, data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&seq, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decodeRow(collection, id, seq, raw)
}

func (s *PostgresStore) UpdateDoc(ctx context.Context, collection, id string, fields Fields) error {
	_, data, err := resolve(fields, s.now())
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, string(data))
	if err != nil {
		return wrapWriteErr("update", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDoc(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetDocsWhere(ctx context.Context, collection, field string, value any) ([]Doc, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode filter value: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, seq, data FROM documents
		 WHERE collection = $1 AND data @> jsonb_build_object($2::text, $3::jsonb)
		 ORDER BY seq`,
		collection, field, string(v))
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s where %s: %w", collection, field, err)
	}
	return collectDocs(collection, rows)
}

func (s *PostgresStore) QueryOrdered(ctx context.Context, collection, orderField string, dir Direction) (LiveHandle, error) {
	key := feedKey{collection: collection, orderField: orderField, dir: dir}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	f, ok := s.feeds[key]
	s.mu.Unlock()

	var initial []Doc
	if !ok {
		docs, err := s.queryOrdered(ctx, s.pool, key)
		if err != nil {
			return nil, err
		}
		initial = docs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, ErrClosed
	}
	f, ok = s.feeds[key]
	if !ok {
		fctx, cancel := context.WithCancel(s.ctx)
		f = &feed{key: key, cancel: cancel, subs: make(map[*liveHandle]struct{}), last: initial, hasLast: true}
		s.feeds[key] = f
		s.wg.Add(1)
		go s.run(fctx, f)
	}

	h := newLiveHandle(ctx, s.detach)
	f.subs[h] = struct{}{}
	if f.hasLast {
		h.offer(f.last)
	}
	return h, nil
}

// Close stops every feed and closes every open live query.
func (s *PostgresStore) Close() {
	s.mu.Lock()
	s.cancel()
	for key, f := range s.feeds {
		for h := range f.subs {
			delete(f.subs, h)
			h.shut()
		}
		delete(s.feeds, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *PostgresStore) detach(h *liveHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, f := range s.feeds {
		if _, ok := f.subs[h]; !ok {
			continue
		}
		delete(f.subs, h)
		h.shut()
		if len(f.subs) == 0 {
			f.cancel()
			delete(s.feeds, key)
		}
		return
	}
}

func (s *PostgresStore) publish(f *feed, docs []Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.last = docs
	f.hasLast = true
	for h := range f.subs {
		h.offer(docs)
	}
}

// run keeps a LISTEN connection open for f, reconnecting with capped
// exponential backoff until ctx is done.
func (s *PostgresStore) run(ctx context.Context, f *feed) {
	defer s.wg.Done()

	backoff := minBackoff
	for ctx.Err() == nil {
		connected, err := s.listen(ctx, f)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
		}
		ev := s.log.Error()
		if db.IsTransient(err) {
			ev = s.log.Warn()
		}
		ev.Err(err).
			Str("collection", f.key.collection).
			Dur("retry_in", backoff).
			Msg("Live query interrupted, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// listen holds one connection until it fails. Every (re)connect is followed
// by a full resync, so changes made while disconnected are not lost.
func (s *PostgresStore) listen(ctx context.Context, f *feed) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(cctx, "UNLISTEN *"); err != nil {
			_ = conn.Conn().Close(cctx)
		}
		conn.Release()
	}()

	channel := pgx.Identifier{channelName(f.key.collection)}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return false, err
	}

	docs, err := s.queryOrdered(ctx, conn, f.key)
	if err != nil {
		return false, err
	}
	s.publish(f, docs)

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return true, err
		}
		docs, err := s.queryOrdered(ctx, conn, f.key)
		if err != nil {
			return true, err
		}
		s.publish(f, docs)
	}
}

func (s *PostgresStore) queryOrdered(ctx context.Context, q querier, key feedKey) ([]Doc, error) {
	sql := fmt.Sprintf(
		`SELECT id, seq, data FROM documents WHERE collection = $1
		 ORDER BY (data->>$2) COLLATE "C" %[1]s, seq %[1]s`, key.dir)

	rows, err := q.Query(ctx, sql, key.collection, key.orderField)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s ordered by %s: %w", key.collection, key.orderField, err)
	}
	return collectDocs(key.collection, rows)
}

func channelName(collection string) string {
	return "docstore_" + collection
}

func collectDocs(collection string, rows pgx.Rows) ([]Doc, error) {
	defer rows.Close()

	docs := []Doc{}
	for rows.Next() {
		var (
			id  string
			seq int64
			raw []byte
		)
		if err := rows.Scan(&id, &seq, &raw); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		d, err := decodeRow(collection, id, seq, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", collection, err)
	}
	return docs, nil
}

func decodeRow(collection, id string, seq int64, raw []byte) (Doc, error) {
	fields := Fields{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Doc{}, fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	return Doc{ID: id, Collection: collection, Fields: fields, Seq: seq}, nil
}

func wrapWriteErr(op, collection, id string, err error) error {
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return fmt.Errorf("docstore: %s %s/%s: %w", op, collection, id, err)
}
