// Package domain holds the notification types shared by the store, the
// broadcaster and the HTTP layer.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Audience selects the recipients of a broadcast.
type Audience string

const (
	AudienceAll     Audience = "all"
	AudienceStudent Audience = "student"
	AudienceFamily  Audience = "family"
	AudienceAdmin   Audience = "admin"
)

const (
	MaxTitleLen = 200
	MaxBodyLen  = 4000
)

var (
	ErrInvalidAudience = errors.New("invalid audience")
	ErrEmptyTitle      = errors.New("title is required")
	ErrTooLong         = errors.New("title or body too long")
)

// ParseAudience accepts the audience names case-insensitively; an empty
// string means everyone.
func ParseAudience(s string) (Audience, error) {
	switch a := Audience(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AudienceAll, nil
	case AudienceAll, AudienceStudent, AudienceFamily, AudienceAdmin:
		return a, nil
	default:
		return "", ErrInvalidAudience
	}
}

// Role returns the directory role filter, "" for AudienceAll.
func (a Audience) Role() string {
	if a == AudienceAll {
		return ""
	}
	return string(a)
}

type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Audience  Audience  `json:"audience"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate trims title and body in place.
func (n *Notification) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	if n.Title == "" {
		return ErrEmptyTitle
	}
	if len(n.Title) > MaxTitleLen || len(n.Body) > MaxBodyLen {
		return ErrTooLong
	}
	return nil
}

// InboxItem is one recipient row joined with its notification.
type InboxItem struct {
	Notification
	UserID string     `json:"user_id"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

func (i InboxItem) Read() bool { return i.ReadAt != nil }
