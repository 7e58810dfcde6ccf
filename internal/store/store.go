// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
)

// Repository defines durable storage for diary entries, the trash,
// key-value settings and the token usage counter.
//
// Lookup operations that find no matching record report (false, nil);
// errors are reserved for storage failures.
type Repository interface {
	// SaveEntry inserts a new active entry.
	SaveEntry(ctx context.Context, entry domain.DiaryEntry) error

	// ListEntries returns active entries ordered by date then time ascending.
	// Malformed rows are logged and skipped.
	ListEntries(ctx context.Context) ([]domain.DiaryEntry, error)

	// MoveToTrash atomically moves the active entry matching key into the
	// trash, stamped with deletedAt.
	MoveToTrash(ctx context.Context, key domain.EntryKey, deletedAt time.Time) (bool, error)

	// ListTrashed returns trashed entries, most recently deleted first.
	// Malformed rows are logged and skipped.
	ListTrashed(ctx context.Context) ([]domain.TrashedEntry, error)

	// Restore atomically moves the trashed record matching key back to the
	// active entries.
	Restore(ctx context.Context, key domain.TrashKey) (bool, error)

	// PermanentDelete removes the trashed record matching key.
	PermanentDelete(ctx context.Context, key domain.TrashKey) (bool, error)

	// PurgeExpired removes every trashed record whose expiry date is on or
	// before today and returns how many were removed.
	PurgeExpired(ctx context.Context, today time.Time) (int64, error)

	// EmptyTrash removes every trashed record.
	EmptyTrash(ctx context.Context) (int64, error)

	// GetSetting returns the stored value for key, or def when unset.
	GetSetting(ctx context.Context, key, def string) (string, error)

	// SetSetting creates or replaces the value for key.
	SetSetting(ctx context.Context, key, value string) error

	// GetTokenUsage returns the cumulative token usage counter.
	GetTokenUsage(ctx context.Context) (int64, error)

	// SetTokenUsage replaces the cumulative token usage counter.
	SetTokenUsage(ctx context.Context, tokens int64) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
