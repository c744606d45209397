// Package docstore is a small document database with live ordered queries.
//
// Documents are JSON objects grouped into named collections. Writes are atomic
// per document. A live query delivers the complete ordered result set on
// subscription and again after every change to the collection; delivery is
// latest-wins, so a slow consumer skips intermediate snapshots but never sees
// an older snapshot after a newer one.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrAlreadyExists is returned when a write would break a unique field.
	ErrAlreadyExists = errors.New("docstore: document already exists")

	// ErrClosed is returned by a store that has been shut down.
	ErrClosed = errors.New("docstore: store closed")
)

// TimestampLayout is how server timestamps are stored. The layout is fixed
// width so lexical order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value stored with FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

type serverTimestamp struct{}

// ServerTimestamp, used as a top-level field value, is replaced with the
// store's clock at write time.
var ServerTimestamp any = serverTimestamp{}

// Fields is the content of a document.
type Fields map[string]any

// Direction is a sort direction for ordered queries.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// Doc is one stored document.
type Doc struct {
	ID         string
	Collection string
	Fields     Fields
	// Seq is the store-wide insertion sequence. It breaks ordering ties.
	Seq int64
}

// Decode copies the document into dst through JSON. The document id is
// exposed to dst as the "id" field.
func (d Doc) Decode(dst any) error {
	m := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		m[k] = v
	}
	m["id"] = d.ID

	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// ToFields converts a JSON-tagged struct into Fields. The "id" key is dropped
// because ids live outside the document body.
func ToFields(v any) (Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	delete(f, "id")
	return f, nil
}

// Store is the document store contract.
type Store interface {
	// CreateDoc stores fields under a new store-assigned id.
	CreateDoc(ctx context.Context, collection string, fields Fields) (string, error)
	// SetDoc creates or replaces the document with the given id.
	SetDoc(ctx context.Context, collection, id string, fields Fields) error
	// GetDoc reads one document.
	GetDoc(ctx context.Context, collection, id string) (Doc, error)
	// UpdateDoc merges fields into an existing document.
	UpdateDoc(ctx context.Context, collection, id string, fields Fields) error
	// DeleteDoc removes a document permanently.
	DeleteDoc(ctx context.Context, collection, id string) error
	// GetDocsWhere returns the documents whose field equals value, in insertion order.
	GetDocsWhere(ctx context.Context, collection, field string, value any) ([]Doc, error)
	// QueryOrdered opens a live query over the whole collection. The handle
	// closes when ctx is done or Close is called.
	QueryOrdered(ctx context.Context, collection, orderField string, dir Direction) (LiveHandle, error)
}

// LiveHandle is an open live query.
type LiveHandle interface {
	// Snapshots yields full ordered result sets and is closed with the handle.
	// Snapshots may be shared between subscribers and must not be modified.
	Snapshots() <-chan []Doc
	Close() error
}

// resolve replaces ServerTimestamp sentinels with now and round-trips the
// fields through JSON, so every backend stores the same shapes.
func resolve(fields Fields, now time.Time) (Fields, []byte, error) {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = FormatTimestamp(now)
			continue
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, nil, fmt.Errorf("docstore: encode fields: %w", err)
	}
	var normalized Fields
	if err := json.Unmarshal(b, &normalized); err != nil {
		return nil, nil, fmt.Errorf("docstore: normalize fields: %w", err)
	}
	if normalized == nil {
		normalized = Fields{}
	}
	return normalized, b, nil
}

// liveHandle is the LiveHandle shared by the backends. The owning backend
// guards offer and shut with its own lock.
type liveHandle struct {
	ch     chan []Doc
	done   chan struct{}
	once   sync.Once
	detach func(h *liveHandle)
}

func newLiveHandle(ctx context.Context, detach func(h *liveHandle)) *liveHandle {
	h := &liveHandle{
		ch:     make(chan []Doc, 1),
		done:   make(chan struct{}),
		detach: detach,
	}
	go func() {
		select {
		case <-ctx.Done():
			h.Close()
		case <-h.done:
		}
	}()
	return h
}

func (h *liveHandle) Snapshots() <-chan []Doc {
	return h.ch
}

func (h *liveHandle) Close() error {
	h.once.Do(func() { h.detach(h) })
	return nil
}

// shut closes the channels. Call once, under the owner's lock.
func (h *liveHandle) shut() {
	close(h.done)
	close(h.ch)
}

// offer replaces any undelivered snapshot with docs. It never blocks.
func (h *liveHandle) offer(docs []Doc) {
	for {
		select {
		case h.ch <- docs:
			return
		default:
		}
		select {
		case <-h.ch:
		default:
		}
	}
}
