package models

import "time"

// Micropost is a short status update owned by a user.
type Micropost struct {
	ID         string
	UserID     string
	Content    string
	PictureKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 30
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
