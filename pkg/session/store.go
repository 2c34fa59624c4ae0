package session

import (
	"context"
	"time"

	"github.com/harunnryd/stella/pkg/language"
)

// Session is the per-call state kept between webhook deliveries.
type Session struct {
	CallID    string
	Language  language.Tag
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store owns every Session. Implementations serialize their own mutations
// so handlers for the same call can run concurrently.
type Store interface {
	// Create starts a session in the default language, resetting any
	// existing session for the same call.
	Create(ctx context.Context, callID string) error
	Get(ctx context.Context, callID string) (Session, bool, error)
	// Update records the most recent detected language. Absent calls are
	// left absent.
	Update(ctx context.Context, callID string, lang language.Tag) error
	// Remove deletes the session; removing an absent call is not an error.
	Remove(ctx context.Context, callID string) error
}

// Counter is implemented by stores that can report how many calls are active.
type Counter interface {
	Len() int
}
