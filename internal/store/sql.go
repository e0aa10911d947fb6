package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/idot-digital/events-api/internal/models"
)

// dialect carries the statements that differ between SQL backends.
// Queries are written with ? placeholders and rebound per driver.
type dialect struct {
	schema         []string
	upsertReaction string
	forUpdate      string
	// maxOpenConns bounds the pool when the backend cannot arbitrate
	// concurrent writers itself. Zero leaves the pool unbounded.
	maxOpenConns int
}

const onConflictUpsert = `INSERT INTO event_reactions (event_id, reaction_type, total) VALUES (?, ?, 1)
	ON CONFLICT (event_id, reaction_type) DO UPDATE SET total = event_reactions.total + 1`

var dialects = map[string]dialect{
	"mysql": {
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id VARCHAR(26) NOT NULL PRIMARY KEY,
				data LONGTEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS event_reactions (
				event_id VARCHAR(26) NOT NULL,
				reaction_type VARCHAR(191) NOT NULL,
				total BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (event_id, reaction_type)
			)`,
		},
		upsertReaction: `INSERT INTO event_reactions (event_id, reaction_type, total) VALUES (?, ?, 1)
			ON DUPLICATE KEY UPDATE total = total + 1`,
		forUpdate: " FOR UPDATE",
	},
	"pgx": {
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id VARCHAR(26) NOT NULL PRIMARY KEY,
				data TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS event_reactions (
				event_id VARCHAR(26) NOT NULL,
				reaction_type VARCHAR(191) NOT NULL,
				total BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (event_id, reaction_type)
			)`,
		},
		upsertReaction: onConflictUpsert,
		forUpdate:      " FOR UPDATE",
	},
	"sqlite3": {
		schema: []string{
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT NOT NULL PRIMARY KEY,
				data TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS event_reactions (
				event_id TEXT NOT NULL,
				reaction_type TEXT NOT NULL,
				total INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (event_id, reaction_type)
			)`,
		},
		upsertReaction: onConflictUpsert,
		// a deferred BEGIN that later writes fails with "database is locked"
		// instead of waiting, so transactions are queued on one connection
		maxOpenConns: 1,
	},
}

type eventRow struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

type reactionRow struct {
	EventID      string `db:"event_id"`
	ReactionType string `db:"reaction_type"`
	Total        int64  `db:"total"`
}

// SQL stores events in a relational database. The event fields are kept
// as a JSON document, reaction counters in their own table.
type SQL struct {
	db      *sqlx.DB
	dialect dialect
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driverName, dsn string) (*SQL, error) {
	if _, ok := dialects[driverName]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	return NewSQL(db)
}

// NewSQL wraps an existing connection pool.
func NewSQL(db *sqlx.DB) (*SQL, error) {
	d, ok := dialects[db.DriverName()]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", db.DriverName())
	}
	if d.maxOpenConns > 0 {
		db.SetMaxOpenConns(d.maxOpenConns)
	}
	return &SQL{db: db, dialect: d}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) GetByID(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT id, data FROM events WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %q: %w", id, err)
	}

	var reactions []reactionRow
	err = s.db.SelectContext(ctx, &reactions,
		s.db.Rebind("SELECT event_id, reaction_type, total FROM event_reactions WHERE event_id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("get reactions of %q: %w", id, err)
	}

	e, err := toEvent(row, reactions)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQL) Add(ctx context.Context, fields models.Fields) ([]models.Event, error) {
	data, err := json.Marshal(fields.WithoutID())
	if err != nil {
		return nil, fmt.Errorf("encode event fields: %w", err)
	}

	var events []models.Event
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO events (id, data) VALUES (?, ?)"), ulid.Make().String(), string(data))
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		events, err = s.list(ctx, tx)
		return err
	})
	return events, err
}

func (s *SQL) Update(ctx context.Context, id string, patch models.Fields) ([]models.Event, error) {
	var events []models.Event
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var row eventRow
		err := tx.GetContext(ctx, &row, tx.Rebind("SELECT id, data FROM events WHERE id = ?"+s.dialect.forUpdate), id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update %q: %w", id, ErrEventNotFound)
		}
		if err != nil {
			return fmt.Errorf("load event %q: %w", id, err)
		}

		fields, err := decodeFields(row.Data)
		if err != nil {
			return fmt.Errorf("decode event %q: %w", id, err)
		}
		data, err := json.Marshal(fields.Merge(patch))
		if err != nil {
			return fmt.Errorf("encode event fields: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE events SET data = ? WHERE id = ?"), string(data), id); err != nil {
			return fmt.Errorf("update event %q: %w", id, err)
		}

		events, err = s.list(ctx, tx)
		return err
	})
	return events, err
}

func (s *SQL) Delete(ctx context.Context, id string) ([]models.Event, error) {
	var events []models.Event
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM event_reactions WHERE event_id = ?"), id); err != nil {
			return fmt.Errorf("delete reactions of %q: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM events WHERE id = ?"), id); err != nil {
			return fmt.Errorf("delete event %q: %w", id, err)
		}
		var err error
		events, err = s.list(ctx, tx)
		return err
	})
	return events, err
}

func (s *SQL) ChangeReaction(ctx context.Context, id, reactionType string) (int64, error) {
	var total int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var found string
		err := tx.GetContext(ctx, &found, tx.Rebind("SELECT id FROM events WHERE id = ?"+s.dialect.forUpdate), id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("change reaction %q on %q: %w", reactionType, id, ErrEventNotFound)
		}
		if err != nil {
			return fmt.Errorf("load event %q: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(s.dialect.upsertReaction), id, reactionType); err != nil {
			return fmt.Errorf("increment %q on %q: %w", reactionType, id, err)
		}
		err = tx.GetContext(ctx, &total,
			tx.Rebind("SELECT total FROM event_reactions WHERE event_id = ? AND reaction_type = ?"), id, reactionType)
		if err != nil {
			return fmt.Errorf("read %q on %q: %w", reactionType, id, err)
		}
		return nil
	})
	return total, err
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQL) list(ctx context.Context, q sqlx.QueryerContext) ([]models.Event, error) {
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, q, &rows, "SELECT id, data FROM events ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var reactions []reactionRow
	if err := sqlx.SelectContext(ctx, q, &reactions, "SELECT event_id, reaction_type, total FROM event_reactions"); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}

	byEvent := make(map[string][]reactionRow, len(rows))
	for _, r := range reactions {
		byEvent[r.EventID] = append(byEvent[r.EventID], r)
	}

	events := make([]models.Event, 0, len(rows))
	for _, row := range rows {
		e, err := toEvent(row, byEvent[row.ID])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func toEvent(row eventRow, reactions []reactionRow) (models.Event, error) {
	fields, err := decodeFields(row.Data)
	if err != nil {
		return models.Event{}, fmt.Errorf("decode event %q: %w", row.ID, err)
	}
	e := models.Event{ID: row.ID, Fields: fields, Reactions: make(map[string]int64, len(reactions))}
	for _, r := range reactions {
		e.Reactions[r.ReactionType] = r.Total
	}
	return e, nil
}

func decodeFields(data string) (models.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var fields models.Fields
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = models.Fields{}
	}
	return fields, nil
}
