// Package pagination implements keyset paging over rows ordered newest
// first by (created_at, id).
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrMalformedCursor is returned for any token Parse cannot turn back into a Cursor.
var ErrMalformedCursor = errors.New("malformed cursor")

// Params is a page request as it arrives from a handler.
type Params struct {
	Limit  int
	Cursor string
}

// PageSize clamps Limit into [1, MaxLimit], substituting DefaultLimit for zero or less.
func (p Params) PageSize() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Cursor is the sort key of the last row a caller has seen.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(Cursor{CreatedAt: c.CreatedAt.UTC(), ID: c.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// After restricts q to rows strictly older than the cursor. A nil cursor
// leaves q untouched.
func (c *Cursor) After(q *gorm.DB) *gorm.DB {
	if c == nil {
		return q
	}
	return q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
}

// Parse decodes a token produced by Encode. Blank input means first page.
func Parse(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing sort key", ErrMalformedCursor)
	}
	return &c, nil
}

// Page is one slice of results and the token for the slice after it.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Cut expects rows fetched with size+1 as the limit. The surplus row only
// signals that another page exists and is dropped.
func Cut[T any](rows []T, size int, keyOf func(T) Cursor) Page[T] {
	if len(rows) <= size {
		return Page[T]{Items: rows}
	}
	kept := rows[:size]
	return Page[T]{Items: kept, NextCursor: keyOf(kept[size-1]).Encode()}
}
