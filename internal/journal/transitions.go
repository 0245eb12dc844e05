package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sesm/sesm/internal/memory"
)

// Transition is one recorded lifecycle event of a memory item.
type Transition struct {
	ID       int64
	ItemID   string
	Content  string
	Event    memory.EventType
	Kind     memory.Kind
	Mentions int
	Trust    float64
	TTL      time.Duration // zero when the item had none
	At       time.Time
}

// Record stores a store event.
func (db *DB) Record(ev memory.Event) error {
	var ttl sql.NullInt64
	if ev.Item.HasTTL() {
		ttl = sql.NullInt64{Int64: ev.Item.TTL.Milliseconds(), Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO transitions (item_id, content, event, kind, mentions, trust, ttl_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Item.ID, ev.Item.Content, string(ev.Type), string(ev.Item.Kind),
		ev.Item.Mentions, ev.Item.Trust, ttl, ev.At.UnixNano())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Observe implements memory.Observer. Failures are logged, never returned to
// the store.
func (db *DB) Observe(ev memory.Event) {
	if err := db.Record(ev); err != nil {
		db.log.Error("journal write failed", "item", ev.Item.ID, "event", ev.Type, "err", err)
	}
}

// History returns every transition for an item, oldest first.
func (db *DB) History(itemID string) ([]Transition, error) {
	rows, err := db.Query(`
		SELECT id, item_id, content, event, kind, mentions, trust, ttl_ms, at
		FROM transitions WHERE item_id = ? ORDER BY id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return scanTransitions(rows)
}

// Recent returns the latest transitions across all items, newest first.
func (db *DB) Recent(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, item_id, content, event, kind, mentions, trust, ttl_ms, at
		FROM transitions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent: %w", err)
	}
	return scanTransitions(rows)
}

// Counts returns the number of recorded transitions per event type.
func (db *DB) Counts() (map[memory.EventType]int, error) {
	rows, err := db.Query(`SELECT event, COUNT(*) FROM transitions GROUP BY event`)
	if err != nil {
		return nil, fmt.Errorf("count transitions: %w", err)
	}
	defer rows.Close()

	counts := make(map[memory.EventType]int)
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[memory.EventType(event)] = n
	}
	return counts, rows.Err()
}

func scanTransitions(rows *sql.Rows) ([]Transition, error) {
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var event, kind string
		var ttl sql.NullInt64
		var at int64
		if err := rows.Scan(&tr.ID, &tr.ItemID, &tr.Content, &event, &kind,
			&tr.Mentions, &tr.Trust, &ttl, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Event = memory.EventType(event)
		tr.Kind = memory.Kind(kind)
		if ttl.Valid {
			tr.TTL = time.Duration(ttl.Int64) * time.Millisecond
		}
		tr.At = time.Unix(0, at).UTC()
		out = append(out, tr)
	}
	return out, rows.Err()
}
