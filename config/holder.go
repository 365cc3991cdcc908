package config

import (
	"context"
	"sync"
	"sync/atomic"
)

// Holder publishes the current Document. Readers take a snapshot with
// Current and keep using it for the whole unit of work; Reload swaps the
// pointer only after the new file parses and validates.
type Holder struct {
	path    string
	mu      sync.Mutex
	current atomic.Pointer[Document]
}

func NewHolder(path string, doc *Document) *Holder {
	h := &Holder{path: path}
	h.current.Store(doc)
	return h
}

// LoadHolder reads the document at path and wraps it in a Holder.
func LoadHolder(path string) (*Holder, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return NewHolder(path, doc), nil
}

func (h *Holder) Current() *Document {
	return h.current.Load()
}

// For returns the snapshot attached to ctx by WithDocument, falling back to
// the current document. A run attaches its snapshot once so that a reload
// mid-run only takes effect on the next run.
func (h *Holder) For(ctx context.Context) *Document {
	if doc := DocumentFrom(ctx); doc != nil {
		return doc
	}
	return h.Current()
}

func (h *Holder) Path() string {
	return h.path
}

// Reload re-reads the document. On failure the previous snapshot stays
// active and the error is returned.
func (h *Holder) Reload() (*Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc, err := LoadDocument(h.path)
	if err != nil {
		return h.current.Load(), err
	}
	h.current.Store(doc)
	return doc, nil
}

type documentKey struct{}

func WithDocument(ctx context.Context, doc *Document) context.Context {
	return context.WithValue(ctx, documentKey{}, doc)
}

// DocumentFrom returns the snapshot attached to ctx, or nil.
func DocumentFrom(ctx context.Context) *Document {
	doc, _ := ctx.Value(documentKey{}).(*Document)
	return doc
}
