// Package prefstore persists connection credentials, table specs, and the
// per-database usage ledger in an embedded SQLite file.
package prefstore

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tomfevang/datasmith/internal/generator"
	"github.com/tomfevang/datasmith/internal/populate"
)

const schema = `
CREATE TABLE IF NOT EXISTS db_creds (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	host           TEXT NOT NULL,
	port           TEXT NOT NULL,
	user           TEXT NOT NULL,
	password       TEXT NOT NULL,
	dialect        TEXT NOT NULL DEFAULT 'mysql',
	last_connected TIMESTAMP,
	UNIQUE (name, host, port, user, dialect)
);

CREATE TABLE IF NOT EXISTS table_specs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	db_id         INTEGER NOT NULL REFERENCES db_creds (id) ON DELETE CASCADE,
	page_size     INTEGER NOT NULL DEFAULT 100,
	name          TEXT NOT NULL,
	no_of_entries INTEGER NOT NULL,
	UNIQUE (db_id, name)
);

CREATE TABLE IF NOT EXISTS column_specs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	table_id  INTEGER NOT NULL REFERENCES table_specs (id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	generator TEXT,
	type      TEXT NOT NULL,
	ordinal   INTEGER NOT NULL DEFAULT 0,
	UNIQUE (table_id, name)
);

CREATE TABLE IF NOT EXISTS usage_stats (
	db_id         INTEGER NOT NULL REFERENCES db_creds (id) ON DELETE CASCADE,
	table_name    TEXT NOT NULL,
	new_rows      INTEGER NOT NULL DEFAULT 0,
	last_accessed TIMESTAMP,
	PRIMARY KEY (db_id, table_name)
);
`

// Credentials is one saved connection. Password is plaintext in memory and
// base64 on disk; it never appears in the public view.
type Credentials struct {
	ID            int64
	Name          string
	Host          string
	Port          string
	User          string
	Password      string
	Dialect       string
	LastConnected *time.Time
}

// PublicCreds is the wire view of a saved connection.
type PublicCreds struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Host          string     `json:"host"`
	Port          string     `json:"port"`
	User          string     `json:"user"`
	Dialect       string     `json:"dialect"`
	LastConnected *time.Time `json:"last_connected"`
}

func (c Credentials) Public() PublicCreds {
	return PublicCreds{
		ID:            c.ID,
		Name:          c.Name,
		Host:          c.Host,
		Port:          c.Port,
		User:          c.User,
		Dialect:       c.Dialect,
		LastConnected: c.LastConnected,
	}
}

// Store wraps the config.db handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3",
		"file:"+path+"?_pragma=foreign_keys(ON)&_pragma=busy_timeout(10000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("opening preference store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing preference store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// FindCred returns the credential matching the identity tuple, or nil when
// none is saved.
func (s *Store) FindCred(name, host, port, user, dialect string) (*Credentials, error) {
	row := s.db.QueryRow(`
		SELECT id, name, host, port, user, password, dialect, last_connected
		FROM db_creds
		WHERE name = ? AND host = ? AND port = ? AND user = ? AND dialect = ?`,
		name, host, port, user, dialect)
	return scanCred(row)
}

// LastConnected returns the most recently used credential, or nil when the
// store holds none.
func (s *Store) LastConnected() (*Credentials, error) {
	row := s.db.QueryRow(`
		SELECT id, name, host, port, user, password, dialect, last_connected
		FROM db_creds
		WHERE last_connected IS NOT NULL
		ORDER BY last_connected DESC, id DESC
		LIMIT 1`)
	return scanCred(row)
}

func scanCred(row *sql.Row) (*Credentials, error) {
	var (
		c       Credentials
		encoded string
		last    sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.User, &encoded, &c.Dialect, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding stored password: %w", err)
	}
	c.Password = string(raw)
	if last.Valid {
		c.LastConnected = &last.Time
	}
	return &c, nil
}

// InsertCred saves a new credential and returns its id. The identity tuple
// must not already exist.
func (s *Store) InsertCred(c Credentials) (int64, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(c.Password))
	res, err := s.db.Exec(`
		INSERT INTO db_creds (name, host, port, user, password, dialect)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Host, c.Port, c.User, encoded, c.Dialect)
	if err != nil {
		return 0, fmt.Errorf("saving credential: %w", err)
	}
	return res.LastInsertId()
}

// TouchLastConnected stamps the credential as used now.
func (s *Store) TouchLastConnected(id int64) error {
	now := time.Now().UTC()
	if _, err := s.db.Exec(
		`UPDATE db_creds SET last_connected = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("updating last connected: %w", err)
	}
	return nil
}

// ListCreds returns every saved credential without passwords, oldest first.
func (s *Store) ListCreds() ([]PublicCreds, error) {
	rows, err := s.db.Query(`
		SELECT id, name, host, port, user, dialect, last_connected
		FROM db_creds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	creds := []PublicCreds{}
	for rows.Next() {
		var (
			c    PublicCreds
			last sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Host, &c.Port, &c.User, &c.Dialect, &last); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		if last.Valid {
			c.LastConnected = &last.Time
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// DeleteCred removes every credential matching the tuple. Cascades to its
// saved table specs.
func (s *Store) DeleteCred(name, host, port, user string) error {
	if _, err := s.db.Exec(`
		DELETE FROM db_creds
		WHERE name = ? AND host = ? AND port = ? AND user = ?`,
		name, host, port, user); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// SaveSpec replaces the stored spec for (spec.DBID, spec.Name) wholesale.
func (s *Store) SaveSpec(spec *populate.TableSpec) error {
	if spec.DBID == nil {
		return errors.New("Database not initialized with a valid ID.")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving spec: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO table_specs (db_id, page_size, name, no_of_entries)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (db_id, name) DO UPDATE SET
			page_size = excluded.page_size,
			no_of_entries = excluded.no_of_entries`,
		*spec.DBID, spec.PageSize, spec.Name, spec.NoOfEntries); err != nil {
		return fmt.Errorf("saving spec: %w", err)
	}

	var tableID int64
	if err := tx.QueryRow(
		`SELECT id FROM table_specs WHERE db_id = ? AND name = ?`,
		*spec.DBID, spec.Name).Scan(&tableID); err != nil {
		return fmt.Errorf("saving spec: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM column_specs WHERE table_id = ?`, tableID); err != nil {
		return fmt.Errorf("saving spec: %w", err)
	}
	for _, col := range spec.Columns {
		if _, err := tx.Exec(`
			INSERT INTO column_specs (table_id, name, generator, type, ordinal)
			VALUES (?, ?, ?, ?, ?)`,
			tableID, col.Name, col.Generator, string(col.Type), col.Order); err != nil {
			return fmt.Errorf("saving column spec %s: %w", col.Name, err)
		}
	}

	return tx.Commit()
}

// GetSpec loads the saved spec for (dbID, tableName), columns in insertion
// order, or nil when none is stored.
func (s *Store) GetSpec(dbID int64, tableName string) (*populate.TableSpec, error) {
	spec := &populate.TableSpec{DBID: &dbID, Name: tableName}
	var tableID int64
	err := s.db.QueryRow(`
		SELECT id, page_size, no_of_entries
		FROM table_specs WHERE db_id = ? AND name = ?`,
		dbID, tableName).Scan(&tableID, &spec.PageSize, &spec.NoOfEntries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading spec: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT name, generator, type, ordinal
		FROM column_specs WHERE table_id = ? ORDER BY id`, tableID)
	if err != nil {
		return nil, fmt.Errorf("reading column specs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			col  populate.ColumnSpec
			gen  sql.NullString
			kind string
		)
		if err := rows.Scan(&col.Name, &gen, &kind, &col.Order); err != nil {
			return nil, fmt.Errorf("scanning column spec: %w", err)
		}
		if gen.Valid {
			col.Generator = &gen.String
		}
		col.Type = generator.Kind(kind)
		spec.Columns = append(spec.Columns, col)
	}
	return spec, rows.Err()
}

// AddRows accumulates inserted-but-uncommitted rows for (dbID, table).
func (s *Store) AddRows(dbID int64, table string, n int) error {
	now := time.Now().UTC()
	if _, err := s.db.Exec(`
		INSERT INTO usage_stats (db_id, table_name, new_rows, last_accessed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (db_id, table_name) DO UPDATE SET
			new_rows = new_rows + excluded.new_rows,
			last_accessed = excluded.last_accessed`,
		dbID, table, n, now); err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// Rows returns the pending-row ledger for one database, keyed by table.
func (s *Store) Rows(dbID int64) (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT table_name, new_rows FROM usage_stats WHERE db_id = ?`, dbID)
	if err != nil {
		return nil, fmt.Errorf("reading usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int64)
	for rows.Next() {
		var (
			table string
			n     int64
		)
		if err := rows.Scan(&table, &n); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		usage[table] = n
	}
	return usage, rows.Err()
}

// Reset clears the ledger for one database.
func (s *Store) Reset(dbID int64) error {
	if _, err := s.db.Exec(`DELETE FROM usage_stats WHERE db_id = ?`, dbID); err != nil {
		return fmt.Errorf("resetting usage: %w", err)
	}
	return nil
}

// ResetAll clears the ledger for every database.
func (s *Store) ResetAll() error {
	if _, err := s.db.Exec(`DELETE FROM usage_stats`); err != nil {
		return fmt.Errorf("resetting usage: %w", err)
	}
	return nil
}
