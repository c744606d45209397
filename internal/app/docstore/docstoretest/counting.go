// Package docstoretest provides document store helpers for tests.
package docstoretest

import (
	"context"
	"sync"

	"buzzchat/internal/app/docstore"
)

// Counting wraps a Store and counts calls per operation. Setting Fail makes
// every write return that error without reaching the wrapped store.
type Counting struct {
	docstore.Store

	mu    sync.Mutex
	calls map[string]int
	Fail  error
}

// NewCounting wraps inner.
func NewCounting(inner docstore.Store) *Counting {
	return &Counting{Store: inner, calls: make(map[string]int)}
}

func (c *Counting) hit(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	switch op {
	case "CreateDoc", "SetDoc", "UpdateDoc", "DeleteDoc":
		return c.Fail
	}
	return nil
}

// Calls returns how often op was called.
func (c *Counting) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// Total returns the number of calls across all operations.
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Reset zeroes the counters.
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = make(map[string]int)
}

func (c *Counting) CreateDoc(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := c.hit("CreateDoc"); err != nil {
		return "", err
	}
	return c.Store.CreateDoc(ctx, collection, fields)
}

func (c *Counting) SetDoc(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := c.hit("SetDoc"); err != nil {
		return err
	}
	return c.Store.SetDoc(ctx, collection, id, fields)
}

func (c *Counting) GetDoc(ctx context.Context, collection, id string) (docstore.Doc, error) {
	c.hit("GetDoc")
	return c.Store.GetDoc(ctx, collection, id)
}

func (c *Counting) UpdateDoc(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := c.hit("UpdateDoc"); err != nil {
		return err
	}
	return c.Store.UpdateDoc(ctx, collection, id, fields)
}

func (c *Counting) DeleteDoc(ctx context.Context, collection, id string) error {
	if err := c.hit("DeleteDoc"); err != nil {
		return err
	}
	return c.Store.DeleteDoc(ctx, collection, id)
}

func (c *Counting) GetDocsWhere(ctx context.Context, collection, field string, value any) ([]docstore.Doc, error) {
	c.hit("GetDocsWhere")
	return c.Store.GetDocsWhere(ctx, collection, field, value)
}

func (c *Counting) QueryOrdered(ctx context.Context, collection, orderField string, dir docstore.Direction) (docstore.LiveHandle, error) {
	c.hit("QueryOrdered")
	return c.Store.QueryOrdered(ctx, collection, orderField, dir)
}
