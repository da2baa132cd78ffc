package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bldg-7/authdoctor/internal/shared"
)

// HistoryEntry is one persisted diagnosis summary.
type HistoryEntry struct {
	ID              string                `json:"id"`
	Severity        shared.ResultSeverity `json:"severity"`
	IsHealthy       bool                  `json:"is_healthy"`
	IssueCount      int                   `json:"issue_count"`
	CriticalCount   int                   `json:"critical_count"`
	NeedsUserAction bool                  `json:"needs_user_action"`
	CanAutoRecover  bool                  `json:"can_auto_recover"`
	GeneratedAt     time.Time             `json:"generated_at"`
	RecordedAt      time.Time             `json:"recorded_at"`
}

// HistoryStore persists diagnosis summaries for later inspection.
type HistoryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryStore creates a history store over db.
func NewHistoryStore(db *sql.DB, logger *zap.Logger) *HistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryStore{db: db, logger: logger}
}

// Record persists a summary of one diagnostic result.
func (s *HistoryStore) Record(result shared.DiagnosticResult) error {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO diagnostic_history
			(id, severity, is_healthy, issue_count, critical_count, needs_user_action, can_auto_recover, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(result.Severity),
		result.IsHealthy,
		len(result.Issues),
		result.CriticalCount(),
		result.NeedsUserAction,
		result.CanAutoRecover,
		result.GeneratedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record diagnosis %s: %w", id, err)
	}
	return nil
}

// Recent returns the latest diagnosis summaries, newest first.
func (s *HistoryStore) Recent(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, severity, is_healthy, issue_count, critical_count, needs_user_action, can_auto_recover, generated_at, recorded_at
		FROM diagnostic_history
		ORDER BY recorded_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query diagnostic history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry       HistoryEntry
			severity    string
			generatedAt string
			recordedAt  sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &severity, &entry.IsHealthy, &entry.IssueCount, &entry.CriticalCount,
			&entry.NeedsUserAction, &entry.CanAutoRecover, &generatedAt, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan diagnostic history row: %w", err)
		}
		entry.Severity = shared.ResultSeverity(severity)
		if entry.GeneratedAt, err = parseSQLiteTimestamp(generatedAt); err != nil {
			return nil, fmt.Errorf("parse generated_at for entry %s: %w", entry.ID, err)
		}
		if recordedAt.Valid {
			if entry.RecordedAt, err = parseSQLiteTimestamp(recordedAt.String); err != nil {
				return nil, fmt.Errorf("parse recorded_at for entry %s: %w", entry.ID, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func parseSQLiteTimestamp(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999",
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

// KVStore is the key-value persistence used to carry cached diagnostic
// state across process restarts.
type KVStore struct {
	db *sql.DB
}

// NewKVStore creates a key-value store over db.
func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

// Set stores value under key, replacing any previous value.
func (s *KVStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or ok=false when absent.
func (s *KVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *KVStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv_store WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}
