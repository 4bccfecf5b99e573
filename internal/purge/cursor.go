package purge

import "fmt"

// OlderFunc reports whether message id a was created before id b.
type OlderFunc func(a, b string) bool

// Cursor tracks the "older-than" boundary of a backward history walk.
// The zero boundary means the walk starts at the newest message.
type Cursor struct {
	boundary string
	done     bool
	seen     map[string]struct{}
	older    OlderFunc
}

// NewCursor creates a cursor at the newest message. older may be nil when the
// backend cannot compare identifiers; reuse is still rejected.
func NewCursor(older OlderFunc) *Cursor {
	return &Cursor{
		seen:  make(map[string]struct{}),
		older: older,
	}
}

// Boundary returns the boundary to request the next page with.
func (c *Cursor) Boundary() string { return c.boundary }

// Done reports whether an empty page has ended the walk.
func (c *Cursor) Done() bool { return c.done }

// Advance moves the boundary to the oldest message of a newest-first page.
// An empty page ends the walk and leaves the boundary unchanged.
func (c *Cursor) Advance(page []Message) (string, error) {
	if len(page) == 0 {
		c.done = true
		return c.boundary, nil
	}

	next := page[len(page)-1].ID
	if next == "" {
		return c.boundary, fmt.Errorf("%w: oldest message has no id", ErrCursorStalled)
	}
	if _, ok := c.seen[next]; ok {
		return c.boundary, fmt.Errorf("%w: boundary %s already used", ErrCursorStalled, next)
	}
	if c.older != nil && c.boundary != "" && !c.older(next, c.boundary) {
		return c.boundary, fmt.Errorf("%w: %s is not older than %s", ErrCursorStalled, next, c.boundary)
	}

	c.seen[next] = struct{}{}
	c.boundary = next
	return next, nil
}
