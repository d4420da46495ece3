// Package store is the local entity cache: confirmed entities are
// written through per screen so a restarted client can show last-known
// content before page 1 of fresh history arrives.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmarins/livewire/internal/entity"
)

// SaveBatch upserts a batch of entities for one screen in a single
// transaction (idempotent on screen + entity ID).
func (db *DB) SaveBatch(screen string, items []entity.Entity) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, e := range items {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.EntityID(), err)
		}
		if _, err := tx.Exec(`
			INSERT INTO entities (screen, entity_id, kind, order_key, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(screen, entity_id) DO UPDATE SET
				kind = excluded.kind,
				order_key = excluded.order_key,
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			screen, e.EntityID(), string(e.Kind()), e.OrderKey(), string(payload), now); err != nil {
			return fmt.Errorf("upsert %s: %w", e.EntityID(), err)
		}
	}
	return tx.Commit()
}

// LoadRecent returns up to limit cached entities for a screen, newest
// first by ordering key. Rows whose payload no longer decodes are
// skipped.
func (db *DB) LoadRecent(screen string, limit int) ([]entity.Entity, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := db.Query(`
		SELECT kind, payload FROM entities
		WHERE screen = ?
		ORDER BY order_key DESC
		LIMIT ?`, screen, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Entity
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, err
		}
		e, err := decodeStored(entity.Kind(kind), []byte(payload))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteScreen drops every cached entity for a screen. Used on logout
// and user-context change.
func (db *DB) DeleteScreen(screen string) error {
	_, err := db.Exec(`DELETE FROM entities WHERE screen = ?`, screen)
	return err
}

func decodeStored(kind entity.Kind, payload []byte) (entity.Entity, error) {
	switch kind {
	case entity.KindMessage:
		var m entity.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case entity.KindConversation:
		var c entity.Conversation
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case entity.KindPost:
		var p entity.Post
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}
