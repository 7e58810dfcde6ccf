package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/babydreamer5/emotion-journal-gpt40/internal/domain"
	"github.com/babydreamer5/emotion-journal-gpt40/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return openSQLite(dbPath)
}

func openSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps readers from blocking the single writer.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS diary_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		mood TEXT NOT NULL,
		summary TEXT NOT NULL,
		keywords_json TEXT NOT NULL DEFAULT '[]',
		suggested_keywords_json TEXT NOT NULL DEFAULT '[]',
		action_items_json TEXT NOT NULL DEFAULT '[]',
		chat_messages_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_diary_entries_key ON diary_entries(date, time, summary);

	CREATE TABLE IF NOT EXISTS trashed_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_id INTEGER,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		mood TEXT NOT NULL,
		summary TEXT NOT NULL,
		keywords_json TEXT NOT NULL DEFAULT '[]',
		suggested_keywords_json TEXT NOT NULL DEFAULT '[]',
		action_items_json TEXT NOT NULL DEFAULT '[]',
		chat_messages_json TEXT NOT NULL DEFAULT '[]',
		deleted_at INTEGER NOT NULL,
		auto_expire_at TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trashed_entries_expire ON trashed_entries(auto_expire_at);
	CREATE INDEX IF NOT EXISTS idx_trashed_entries_deleted ON trashed_entries(deleted_at);

	CREATE TABLE IF NOT EXISTS app_settings (
		setting_key TEXT PRIMARY KEY,
		setting_value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS token_usage (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_tokens INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// entryColumns is the shared column list of both entry tables.
const entryColumns = `date, time, mood, summary,
	keywords_json, suggested_keywords_json, action_items_json, chat_messages_json`

// SaveEntry inserts a new active entry.
func (s *SQLiteStore) SaveEntry(ctx context.Context, entry domain.DiaryEntry) error {
	cols, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	query := `INSERT INTO diary_entries (` + entryColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := append(cols, time.Now().Unix())

	return shared.RetryOnConflict(ctx, "save entry", func() error {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert diary entry: %w", err)
		}
		return nil
	})
}

// ListEntries returns active entries ordered by date then time ascending.
func (s *SQLiteStore) ListEntries(ctx context.Context) ([]domain.DiaryEntry, error) {
	query := `SELECT id, ` + entryColumns + ` FROM diary_entries ORDER BY date, time, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query diary entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close diary entry rows", "error", closeErr)
		}
	}()

	entries := []domain.DiaryEntry{}
	for rows.Next() {
		var id int64
		var raw rawEntry
		if err := rows.Scan(&id, &raw.date, &raw.time, &raw.mood, &raw.summary,
			&raw.keywords, &raw.suggested, &raw.actions, &raw.messages); err != nil {
			slog.Warn("Skipping unreadable diary entry row", "error", err)
			continue
		}
		entry, err := raw.decode()
		if err != nil {
			slog.Warn("Skipping malformed diary entry", "id", id, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diary entries: %w", err)
	}
	return entries, nil
}

// MoveToTrash atomically moves the active entry matching key into the trash.
func (s *SQLiteStore) MoveToTrash(ctx context.Context, key domain.EntryKey, deletedAt time.Time) (bool, error) {
	var moved bool
	err := shared.RetryOnConflict(ctx, "move to trash", func() error {
		var err error
		moved, err = s.moveToTrashOnce(ctx, key, deletedAt)
		return err
	})
	return moved, err
}

func (s *SQLiteStore) moveToTrashOnce(ctx context.Context, key domain.EntryKey, deletedAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin move to trash: %w", err)
	}
	defer rollback(tx)

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM diary_entries WHERE date = ? AND time = ? AND summary = ? ORDER BY id LIMIT 1`,
		key.Date, key.Time, key.Summary,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find diary entry: %w", err)
	}

	insert := `INSERT INTO trashed_entries (original_id, ` + entryColumns + `, deleted_at, auto_expire_at, created_at)
		SELECT id, ` + entryColumns + `, ?, ?, ? FROM diary_entries WHERE id = ?`
	if _, err := tx.ExecContext(ctx, insert,
		deletedAt.UnixMilli(), domain.ExpiryDate(deletedAt), time.Now().Unix(), id,
	); err != nil {
		return false, fmt.Errorf("insert trashed entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM diary_entries WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete diary entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit move to trash: %w", err)
	}
	return true, nil
}

// ListTrashed returns trashed entries, most recently deleted first.
func (s *SQLiteStore) ListTrashed(ctx context.Context) ([]domain.TrashedEntry, error) {
	query := `SELECT id, ` + entryColumns + `, deleted_at, auto_expire_at
		FROM trashed_entries ORDER BY deleted_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trashed entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close trashed entry rows", "error", closeErr)
		}
	}()

	trashed := []domain.TrashedEntry{}
	for rows.Next() {
		var id, deletedAt int64
		var expireAt string
		var raw rawEntry
		if err := rows.Scan(&id, &raw.date, &raw.time, &raw.mood, &raw.summary,
			&raw.keywords, &raw.suggested, &raw.actions, &raw.messages,
			&deletedAt, &expireAt); err != nil {
			slog.Warn("Skipping unreadable trashed entry row", "error", err)
			continue
		}
		entry, err := raw.decode()
		if err != nil {
			slog.Warn("Skipping malformed trashed entry", "id", id, "error", err)
			continue
		}
		trashed = append(trashed, domain.TrashedEntry{
			DiaryEntry:   entry,
			DeletedAt:    time.UnixMilli(deletedAt),
			AutoExpireAt: expireAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trashed entries: %w", err)
	}
	return trashed, nil
}

// Restore atomically moves the trashed record matching key back to the
// active entries. If the insert fails the trash row is left untouched.
func (s *SQLiteStore) Restore(ctx context.Context, key domain.TrashKey) (bool, error) {
	var restored bool
	err := shared.RetryOnConflict(ctx, "restore", func() error {
		var err error
		restored, err = s.restoreOnce(ctx, key)
		return err
	})
	return restored, err
}

func (s *SQLiteStore) restoreOnce(ctx context.Context, key domain.TrashKey) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin restore: %w", err)
	}
	defer rollback(tx)

	id, found, err := findTrashed(ctx, tx, key)
	if err != nil || !found {
		return false, err
	}

	insert := `INSERT INTO diary_entries (` + entryColumns + `, created_at)
		SELECT ` + entryColumns + `, ? FROM trashed_entries WHERE id = ?`
	if _, err := tx.ExecContext(ctx, insert, time.Now().Unix(), id); err != nil {
		return false, fmt.Errorf("reinsert diary entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trashed_entries WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete trashed entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit restore: %w", err)
	}
	return true, nil
}

// PermanentDelete removes the trashed record matching key.
func (s *SQLiteStore) PermanentDelete(ctx context.Context, key domain.TrashKey) (bool, error) {
	query := `DELETE FROM trashed_entries WHERE id = (
		SELECT id FROM trashed_entries
		WHERE date = ? AND time = ? AND summary = ? AND deleted_at = ?
		ORDER BY id LIMIT 1)`

	var affected int64
	err := shared.RetryOnConflict(ctx, "permanent delete", func() error {
		result, err := s.db.ExecContext(ctx, query, key.Date, key.Time, key.Summary, key.DeletedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete trashed entry: %w", err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return affected > 0, err
}

// PurgeExpired removes trashed records whose expiry date is on or before today.
func (s *SQLiteStore) PurgeExpired(ctx context.Context, today time.Time) (int64, error) {
	return s.deleteTrashed(ctx, "purge expired",
		`DELETE FROM trashed_entries WHERE auto_expire_at <= ?`, today.Format(domain.DateLayout))
}

// EmptyTrash removes every trashed record.
func (s *SQLiteStore) EmptyTrash(ctx context.Context) (int64, error) {
	return s.deleteTrashed(ctx, "empty trash", `DELETE FROM trashed_entries`)
}

func (s *SQLiteStore) deleteTrashed(ctx context.Context, op, query string, args ...any) (int64, error) {
	var affected int64
	err := shared.RetryOnConflict(ctx, op, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		affected, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	return affected, err
}

// GetSetting returns the stored value for key, or def when unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT setting_value FROM app_settings WHERE setting_key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting creates or replaces the value for key.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO app_settings (setting_key, setting_value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(setting_key) DO UPDATE SET
		setting_value = excluded.setting_value,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "set setting", func() error {
		if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
			return fmt.Errorf("set setting %s: %w", key, err)
		}
		return nil
	})
}

// GetTokenUsage returns the cumulative token usage counter.
func (s *SQLiteStore) GetTokenUsage(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `SELECT total_tokens FROM token_usage WHERE id = 1`).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get token usage: %w", err)
	}
	return total, nil
}

// SetTokenUsage replaces the cumulative token usage counter.
func (s *SQLiteStore) SetTokenUsage(ctx context.Context, tokens int64) error {
	query := `
	INSERT INTO token_usage (id, total_tokens, updated_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		total_tokens = excluded.total_tokens,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "set token usage", func() error {
		if _, err := s.db.ExecContext(ctx, query, tokens, time.Now().Unix()); err != nil {
			return fmt.Errorf("set token usage: %w", err)
		}
		return nil
	})
}

func findTrashed(ctx context.Context, tx *sql.Tx, key domain.TrashKey) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM trashed_entries
		 WHERE date = ? AND time = ? AND summary = ? AND deleted_at = ?
		 ORDER BY id LIMIT 1`,
		key.Date, key.Time, key.Summary, key.DeletedAt.UnixMilli(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find trashed entry: %w", err)
	}
	return id, true, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Warn("failed to roll back transaction", "error", err)
	}
}

// rawEntry holds the scanned column values of an entry row.
type rawEntry struct {
	date, time, mood, summary              string
	keywords, suggested, actions, messages string
}

func (r rawEntry) decode() (domain.DiaryEntry, error) {
	mood := domain.Mood(r.mood)
	if !mood.Valid() {
		return domain.DiaryEntry{}, fmt.Errorf("unknown mood %s", strconv.Quote(r.mood))
	}

	entry := domain.DiaryEntry{
		Date:    r.date,
		Time:    r.time,
		Mood:    mood,
		Summary: r.summary,
	}
	if err := decodeList(r.keywords, &entry.Keywords); err != nil {
		return domain.DiaryEntry{}, fmt.Errorf("decode keywords: %w", err)
	}
	if err := decodeList(r.suggested, &entry.SuggestedKeywords); err != nil {
		return domain.DiaryEntry{}, fmt.Errorf("decode suggested keywords: %w", err)
	}
	if err := decodeList(r.actions, &entry.ActionItems); err != nil {
		return domain.DiaryEntry{}, fmt.Errorf("decode action items: %w", err)
	}
	if err := decodeList(r.messages, &entry.ChatMessages); err != nil {
		return domain.DiaryEntry{}, fmt.Errorf("decode chat messages: %w", err)
	}
	return entry, nil
}

func encodeEntry(entry domain.DiaryEntry) ([]any, error) {
	keywords, err := encodeList(entry.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encode keywords: %w", err)
	}
	suggested, err := encodeList(entry.SuggestedKeywords)
	if err != nil {
		return nil, fmt.Errorf("encode suggested keywords: %w", err)
	}
	actions, err := encodeList(entry.ActionItems)
	if err != nil {
		return nil, fmt.Errorf("encode action items: %w", err)
	}
	messages, err := encodeList(entry.ChatMessages)
	if err != nil {
		return nil, fmt.Errorf("encode chat messages: %w", err)
	}
	return []any{
		entry.Date, entry.Time, string(entry.Mood), entry.Summary,
		keywords, suggested, actions, messages,
	}, nil
}

func encodeList[T any](items []T) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeList decodes a JSON array column; an empty array decodes to nil.
func decodeList[T any](raw string, out *[]T) error {
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return err
	}
	if len(items) == 0 {
		items = nil
	}
	*out = items
	return nil
}
