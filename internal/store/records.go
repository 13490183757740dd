package store

import (
	"encoding/json"
	"fmt"
	"time"

	"artorias-backend/internal/db"
)

// RecordStore persists extracted intake records (qualified leads, escalated
// support tickets) in PostgreSQL.
type RecordStore struct {
	db *db.DB
}

func NewRecordStore(database *db.DB) *RecordStore {
	return &RecordStore{db: database}
}

// IntakeRecord is a persisted row of the records table.
type IntakeRecord struct {
	ID        int64
	UserID    string
	Action    string
	Fields    map[string]string
	CreatedAt time.Time
}

// Save inserts one intake record, keyed by insertion time.
func (rs *RecordStore) Save(userID, action string, fields map[string]string) error {
	if userID == "" || action == "" {
		return fmt.Errorf("user_id and action are required")
	}
	if fields == nil {
		fields = map[string]string{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode record fields: %w", err)
	}

	query := `
		INSERT INTO intake_records (user_id, action, fields, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := rs.db.Exec(query, userID, action, payload); err != nil {
		return fmt.Errorf("failed to save intake record: %w", err)
	}
	return nil
}

// List returns the newest records, optionally filtered by action type.
func (rs *RecordStore) List(action string, limit int) ([]IntakeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, action, fields, created_at
		FROM intake_records
		WHERE ($1 = '' OR action = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := rs.db.Query(query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list intake records: %w", err)
	}
	defer rows.Close()

	var out []IntakeRecord
	for rows.Next() {
		var rec IntakeRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Action, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan intake record: %w", err)
		}
		if err := json.Unmarshal(payload, &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode record fields: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
