package bridge

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/domain"
	"github.com/nextlevelbuilder/lineproto-gateway/internal/gateway"
)

// Ledger is the optional on-disk record of which channel IDs have been
// assigned a colliding room name in a prior run. The backend has no
// notion of NameCollides, only the gateway does, so a restart would
// otherwise renumber collisions non-deterministically. Opt-in via
// config.StateDBPath; when nil the gateway runs fully in-memory.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if necessary) the sqlite-backed ledger at
// path, using the pure-Go driver the rest of the pack's SQLite-backed
// stores rely on (no cgo).
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS name_collisions (
	channel_id TEXT PRIMARY KEY
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Restore marks NameCollides on every channel already present in state
// whose ID is recorded in the ledger. Called once, before the Event
// Loop starts mutating State, so no locking is needed.
func (l *Ledger) Restore(ctx context.Context, state *gateway.State) error {
	rows, err := l.db.QueryContext(ctx, "SELECT channel_id FROM name_collisions")
	if err != nil {
		return err
	}
	defer rows.Close()

	collided := make(map[domain.ChannelID]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		collided[domain.ChannelID(id)] = struct{}{}
	}
	for id := range collided {
		if ch, ok := state.Channels[id]; ok {
			ch.NameCollides = true
		}
	}
	return rows.Err()
}

// Persist writes every currently-colliding channel ID to the ledger,
// replacing whatever was recorded before. Called once, after the Event
// Loop's Run has returned.
func (l *Ledger) Persist(ctx context.Context, state *gateway.State) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM name_collisions"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO name_collisions (channel_id) VALUES (?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, ch := range state.Channels {
		if !ch.NameCollides {
			continue
		}
		if _, err := stmt.ExecContext(ctx, string(id)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
