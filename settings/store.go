// Package settings persists the highlight set shared by the page daemon and
// the editor. The whole set lives under a single key and is replaced
// wholesale on every save; there are no partial or merge writes.
package settings

import (
	"context"
	"errors"

	"github.com/hazyhaar/chanlight/highlight"
)

// Key is the store key holding the JSON array of highlights.
const Key = "channelHighlights"

// ErrContextInvalidated is returned when the store has been torn down under
// a running component (database closed during shutdown, cancelled context).
// Callers abort the current operation and do not retry.
var ErrContextInvalidated = errors.New("settings: context invalidated")

// Store reads and writes the highlight set. A missing or malformed record
// loads as an empty set, never as an error.
type Store interface {
	Load(ctx context.Context) (highlight.Set, error)
	Save(ctx context.Context, set highlight.Set) error
}
