package docstore

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySub struct {
	collection string
	orderField string
	dir        Direction
}

// MemoryStore keeps documents in process memory. It backs tests and the
// memory store driver.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	seq         int64
	closed      bool
	collections map[string]map[string]*Doc
	unique      map[string][]string
	subs        map[*liveHandle]memorySub
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for server timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithUniqueField makes field unique within collection, like a unique index.
func WithUniqueField(collection, field string) MemoryOption {
	return func(s *MemoryStore) {
		s.unique[collection] = append(s.unique[collection], field)
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:         time.Now,
		collections: make(map[string]map[string]*Doc),
		unique:      make(map[string][]string),
		subs:        make(map[*liveHandle]memorySub),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CreateDoc(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	resolved, _, err := resolve(fields, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if s.violatesUnique(collection, id, resolved) {
		return "", ErrAlreadyExists
	}
	s.seq++
	s.coll(collection)[id] = &Doc{ID: id, Collection: collection, Fields: resolved, Seq: s.seq}
	s.publish(collection)
	return id, nil
}

func (s *MemoryStore) SetDoc(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, _, err := resolve(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.violatesUnique(collection, id, resolved) {
		return ErrAlreadyExists
	}
	c := s.coll(collection)
	if existing, ok := c[id]; ok {
		existing.Fields = resolved
	} else {
		s.seq++
		c[id] = &Doc{ID: id, Collection: collection, Fields: resolved, Seq: s.seq}
	}
	s.publish(collection)
	return nil
}

func (s *MemoryStore) GetDoc(ctx context.Context, collection, id string) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return Doc{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Doc{}, ErrClosed
	}
	d, ok := s.collections[collection][id]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return cloneDoc(d), nil
}

func (s *MemoryStore) UpdateDoc(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, _, err := resolve(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	d, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged := make(Fields, len(d.Fields)+len(resolved))
	for k, v := range d.Fields {
		merged[k] = v
	}
	for k, v := range resolved {
		merged[k] = v
	}
	if s.violatesUnique(collection, id, merged) {
		return ErrAlreadyExists
	}
	d.Fields = merged
	s.publish(collection)
	return nil
}

func (s *MemoryStore) DeleteDoc(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	c := s.collections[collection]
	if _, ok := c[id]; !ok {
		return ErrNotFound
	}
	delete(c, id)
	s.publish(collection)
	return nil
}

func (s *MemoryStore) GetDocsWhere(ctx context.Context, collection, field string, value any) ([]Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want, err := normalizeValue(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	var out []Doc
	for _, d := range s.collections[collection] {
		if v, ok := d.Fields[field]; ok && reflect.DeepEqual(v, want) {
			out = append(out, cloneDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) QueryOrdered(ctx context.Context, collection, orderField string, dir Direction) (LiveHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	sub := memorySub{collection: collection, orderField: orderField, dir: dir}
	h := newLiveHandle(ctx, s.detach)
	s.subs[h] = sub
	h.offer(s.snapshot(sub))
	return h, nil
}

// Close shuts every live query. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for h := range s.subs {
		delete(s.subs, h)
		h.shut()
	}
}

// Subscribers returns the number of open live queries.
func (s *MemoryStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *MemoryStore) detach(h *liveHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[h]; ok {
		delete(s.subs, h)
		h.shut()
	}
}

func (s *MemoryStore) coll(name string) map[string]*Doc {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*Doc)
		s.collections[name] = c
	}
	return c
}

// publish must run under s.mu, which keeps offers in write order.
func (s *MemoryStore) publish(collection string) {
	for h, sub := range s.subs {
		if sub.collection == collection {
			h.offer(s.snapshot(sub))
		}
	}
}

func (s *MemoryStore) snapshot(sub memorySub) []Doc {
	c := s.collections[sub.collection]
	docs := make([]Doc, 0, len(c))
	for _, d := range c {
		docs = append(docs, cloneDoc(d))
	}
	sortDocs(docs, sub.orderField, sub.dir)
	return docs
}

func (s *MemoryStore) violatesUnique(collection, id string, fields Fields) bool {
	for _, field := range s.unique[collection] {
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		for otherID, d := range s.collections[collection] {
			if otherID != id && reflect.DeepEqual(d.Fields[field], v) {
				return true
			}
		}
	}
	return false
}

// sortDocs orders by the text form of orderField, then by Seq. Documents
// missing the field sort last ascending and first descending.
func sortDocs(docs []Doc, orderField string, dir Direction) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := textOf(docs[i].Fields[orderField])
		b, bok := textOf(docs[j].Fields[orderField])

		var less bool
		switch {
		case aok != bok:
			less = aok
		case a != b:
			less = a < b
		default:
			less = docs[i].Seq < docs[j].Seq
		}
		if dir == Desc {
			if aok == bok && a == b && docs[i].Seq == docs[j].Seq {
				return false
			}
			return !less
		}
		return less
	})
}

// textOf mirrors the ->> operator: strings as-is, everything else as JSON.
func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneDoc(d *Doc) Doc {
	return Doc{ID: d.ID, Collection: d.Collection, Fields: cloneValue(d.Fields).(Fields), Seq: d.Seq}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		out := make(Fields, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
