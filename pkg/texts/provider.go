// Package texts supplies source material for read-and-respond steps.
// Selection (possibly a network fetch) is separated from materialization
// (a pure insert) so that no transaction is held while content is fetched.
package texts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sprachpfad/pkg/db"
)

// ErrNoSourceAvailable is returned when the configured source pool for a
// source type is exhausted or no source is registered for it.
var ErrNoSourceAvailable = errors.New("no source available")

// Selection is a chosen passage that has not been persisted yet.
type Selection struct {
	SourceType db.SourceType
	Title      string
	Content    string
}

// Source supplies candidate passages for one source type.
type Source interface {
	// Next returns the next passage, or ErrNoSourceAvailable when the
	// pool is exhausted.
	Next(ctx context.Context) (Selection, error)
}

// Provider wraps source selection and persists chosen texts as immutable
// records. It never mutates an existing text.
type Provider struct {
	sources map[db.SourceType]Source
	Now     func() time.Time
}

// NewProvider creates an empty provider; register sources before use.
func NewProvider() *Provider {
	return &Provider{
		sources: make(map[db.SourceType]Source),
		Now:     time.Now,
	}
}

// Register binds a source to a source type, replacing any previous one.
func (p *Provider) Register(st db.SourceType, src Source) {
	p.sources[st] = src
}

// Select picks the next passage for the source type. May block on network
// or file I/O; call it outside any storage transaction.
func (p *Provider) Select(ctx context.Context, st db.SourceType) (Selection, error) {
	src, ok := p.sources[st]
	if !ok {
		return Selection{}, fmt.Errorf("source type %q: %w", st, ErrNoSourceAvailable)
	}
	sel, err := src.Next(ctx)
	if err != nil {
		return Selection{}, err
	}
	sel.SourceType = st
	return sel, nil
}

// Materialize persists a selection as an immutable text record inside the
// caller's transaction. Pure allocation.
func (p *Provider) Materialize(exec db.DBExecutor, sel Selection) (db.Text, error) {
	t := db.Text{
		ID:         uuid.New(),
		SourceType: sel.SourceType,
		Title:      sel.Title,
		Content:    sel.Content,
		CreatedAt:  p.Now().UTC(),
	}
	if err := db.InsertText(exec, t); err != nil {
		return db.Text{}, err
	}
	return t, nil
}
