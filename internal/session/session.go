// Package session owns the live database connection: the transaction
// lifecycle, packet inserts and exports, the monitor banner, and the
// per-database SQL activity log.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tomfevang/datasmith/internal/depgraph"
	"github.com/tomfevang/datasmith/internal/introspect"
	"github.com/tomfevang/datasmith/internal/populate"
)

// Credentials are the connection parameters for one database.
type Credentials struct {
	Name     string
	Host     string
	Port     string
	User     string
	Password string
	Dialect  string
}

// Info is the public view of the session, as returned by get_db_info.
// Password and dialect stay out of it.
type Info struct {
	ID   *int64 `json:"id"`
	Host string `json:"host"`
	User string `json:"user"`
	Port string `json:"port"`
	Name string `json:"name"`
}

// TableRows is one get_pref_rows entry: the live count joined with the
// uncommitted-rows ledger.
type TableRows struct {
	TableName string `json:"table_name"`
	TotalRows int64  `json:"total_rows"`
	NewRows   int64  `json:"new_rows"`
}

// Banner is the monitor greeting.
type Banner struct {
	Log    []string `json:"log"`
	Prompt string   `json:"prompt"`
}

// Ledger tracks rows inserted per database until the next commit or
// rollback settles them.
type Ledger interface {
	AddRows(dbID int64, table string, n int) error
	Rows(dbID int64) (map[string]int64, error)
	Reset(dbID int64) error
	ResetAll() error
}

// dsnBuilder renders a driver name and connection string for one dialect.
// Adding a dialect means adding an entry here.
type dsnBuilder func(c Credentials) (driver, dsn string)

var dialects = map[string]dsnBuilder{
	"mysql": mysqlDSN,
}

func mysqlDSN(c Credentials) (string, string) {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, c.Port)
	cfg.DBName = c.Name
	return "mysql", cfg.FormatDSN()
}

// Session is the dispatch loop's database handle. Not safe for concurrent
// use; background jobs work on a Clone.
type Session struct {
	creds   Credentials
	id      *int64
	db      *sql.DB
	tx      *sql.Tx
	pending int
	ledger  Ledger
	logsDir string
}

// New returns a disconnected session. ledger may be nil when usage
// bookkeeping is not wanted (clones, tests).
func New(logsDir string, ledger Ledger) *Session {
	return &Session{logsDir: logsDir, ledger: ledger}
}

// Connect opens and verifies a connection, replacing any current one.
func (s *Session) Connect(creds Credentials) error {
	if creds.User == "" || creds.Password == "" || creds.Host == "" ||
		creds.Port == "" || creds.Name == "" {
		return errors.New("Required arguments for url: user, password, host, port and name not set.")
	}
	build, ok := dialects[strings.ToLower(creds.Dialect)]
	if !ok {
		return fmt.Errorf("Unsupported dialect: %s", creds.Dialect)
	}
	driverName, dsn := build(creds)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	if s.db != nil {
		s.Disconnect()
	}
	s.db = db
	s.creds = creds
	return nil
}

// Connected reports whether a database is attached.
func (s *Session) Connected() bool { return s.db != nil }

// SetID binds the session to its saved-credential row.
func (s *Session) SetID(id int64) { s.id = &id }

// ID returns the saved-credential id of the connected database.
func (s *Session) ID() (int64, error) {
	if s.db == nil || s.id == nil {
		return 0, errors.New("Not connected to a database")
	}
	return *s.id, nil
}

// Info returns the public session fields.
func (s *Session) Info() Info {
	return Info{
		ID:   s.id,
		Host: s.creds.Host,
		User: s.creds.User,
		Port: s.creds.Port,
		Name: s.creds.Name,
	}
}

// Dialect returns the connected dialect, or "unknown" while disconnected.
func (s *Session) Dialect() string {
	if s.creds.Dialect == "" {
		return "unknown"
	}
	return s.creds.Dialect
}

// Disconnect rolls back any open transaction, closes the connection, and
// clears the usage ledger for every database.
func (s *Session) Disconnect() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	s.pending = 0

	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.id = nil
	s.creds = Credentials{}

	if s.ledger != nil {
		if lerr := s.ledger.ResetAll(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}

// Clone opens an independent connection with the same credentials for use
// on another goroutine. The clone shares the id but carries no transaction
// and no ledger.
func (s *Session) Clone() (*Session, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	clone := New(s.logsDir, nil)
	if err := clone.Connect(s.creds); err != nil {
		return nil, err
	}
	clone.id = s.id
	return clone, nil
}

// Close releases the clone's connection. Unlike Disconnect it leaves the
// ledger alone.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Session) ensureTx() (*sql.Tx, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return nil, err
		}
		s.tx = tx
		s.pending = 0
	}
	return s.tx, nil
}

// Commit commits the open transaction, zeroes the pending counter, and
// settles the connected database's ledger. Without a connection only the
// local state is cleared.
func (s *Session) Commit() error {
	s.pending = 0
	if s.tx != nil {
		err := s.tx.Commit()
		s.tx = nil
		if err != nil {
			return err
		}
	}
	return s.resetLedger()
}

// Rollback discards the open transaction and settles the ledger the same
// way Commit does.
func (s *Session) Rollback() error {
	s.pending = 0
	if s.tx != nil {
		err := s.tx.Rollback()
		s.tx = nil
		if err != nil {
			return err
		}
	}
	return s.resetLedger()
}

func (s *Session) resetLedger() error {
	if s.ledger == nil || s.id == nil {
		return nil
	}
	return s.ledger.Reset(*s.id)
}

// Pending returns the number of packets inserted since the last commit or
// rollback.
func (s *Session) Pending() int { return s.pending }

// InsertPacket appends every entry of the packet inside the active
// transaction, starting one if needed, and returns the pending counter.
func (s *Session) InsertPacket(packet *populate.TablePacket) (int, error) {
	if len(packet.Columns) == 0 || len(packet.Entries) == 0 {
		return 0, errors.New("Missing columns and/or entries.")
	}
	tx, err := s.ensureTx()
	if err != nil {
		return 0, err
	}

	quoted := make([]string, len(packet.Columns))
	for i, c := range packet.Columns {
		quoted[i] = "`" + c + "`"
	}
	prefix := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES ",
		packet.Name, strings.Join(quoted, ", "))
	single := "(" + strings.Repeat("?, ", len(packet.Columns)-1) + "?)"

	placeholders := make([]string, len(packet.Entries))
	args := make([]any, 0, len(packet.Entries)*len(packet.Columns))
	for i, entry := range packet.Entries {
		placeholders[i] = single
		for _, v := range entry {
			if v == nil {
				args = append(args, nil)
			} else {
				args = append(args, *v)
			}
		}
	}

	if _, err := tx.Exec(prefix+strings.Join(placeholders, ", "), args...); err != nil {
		return 0, err
	}
	s.pending++

	if s.ledger != nil && s.id != nil {
		if err := s.ledger.AddRows(*s.id, packet.Name, len(packet.Entries)); err != nil {
			return 0, err
		}
	}
	return s.pending, nil
}

// sqlLiteral renders one value for an exported script. A nil or literal
// "null" value becomes the NULL keyword.
func sqlLiteral(v *string) string {
	if v == nil || strings.ToUpper(*v) == "NULL" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(*v, "'", `\'`) + "'"
}

// ExportSQL writes the packet as a standalone INSERT script.
func ExportSQL(packet *populate.TablePacket, path string) error {
	if len(packet.Columns) == 0 || len(packet.Entries) == 0 {
		return errors.New("Missing columns and/or entries.")
	}

	quoted := make([]string, len(packet.Columns))
	for i, c := range packet.Columns {
		quoted[i] = "`" + c + "`"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n-- Exported at %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "INSERT INTO `%s` (\n  %s\n) VALUES\n",
		packet.Name, strings.Join(quoted, ", "))

	for i, entry := range packet.Entries {
		literals := make([]string, len(entry))
		for j, v := range entry {
			literals[j] = sqlLiteral(v)
		}
		sep := ",\n"
		if i == len(packet.Entries)-1 {
			sep = ";"
		}
		fmt.Fprintf(&b, "  (%s)%s", strings.Join(literals, ", "), sep)
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// DB exposes the underlying pool for ad-hoc query execution.
func (s *Session) DB() (*sql.DB, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	return s.db, nil
}

// TableMetadata introspects one table of the connected schema.
func (s *Session) TableMetadata(name string) (*introspect.Table, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	return introspect.IntrospectTable(s.db, s.creds.Name, name)
}

// ColumnValues lists the non-null values stored in table.column.
func (s *Session) ColumnValues(table, column string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	return introspect.ColumnValues(s.db, table, column)
}

// Tables returns per-table row counts and FK fan-in.
func (s *Session) Tables() (map[string]introspect.TableInfo, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	return introspect.Tables(s.db, s.creds.Name)
}

// SortTables returns every table in dependency order, breaking FK cycles
// on the cheapest edge.
func (s *Session) SortTables() ([]string, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	names, err := introspect.ListTables(s.db, s.creds.Name)
	if err != nil {
		return nil, err
	}
	tables := make(map[string]*introspect.Table, len(names))
	for _, name := range names {
		t, err := introspect.IntrospectTable(s.db, s.creds.Name, name)
		if err != nil {
			return nil, err
		}
		tables[name] = t
	}
	order, _ := depgraph.Sort(names, tables)
	return order, nil
}

// DatabaseRows joins live COUNT(*) per table with the usage ledger.
func (s *Session) DatabaseRows() ([]TableRows, error) {
	if s.db == nil {
		return nil, errors.New("Not connected to a database")
	}
	names, err := introspect.ListTables(s.db, s.creds.Name)
	if err != nil {
		return nil, err
	}
	counts, err := introspect.RowCounts(s.db, names)
	if err != nil {
		return nil, err
	}

	pending := map[string]int64{}
	if s.ledger != nil && s.id != nil {
		pending, err = s.ledger.Rows(*s.id)
		if err != nil {
			return nil, err
		}
	}

	rows := make([]TableRows, 0, len(names))
	for _, name := range names {
		rows = append(rows, TableRows{
			TableName: name,
			TotalRows: counts[name],
			NewRows:   pending[name],
		})
	}
	return rows, nil
}

// SQLBanner returns the monitor greeting for the current dialect.
func (s *Session) SQLBanner() Banner {
	now := time.Now().Format("2006-01-02 15:04:05")
	dialect := s.Dialect()
	return Banner{
		Log: []string{
			`Welcome to the DataSmith monitor.  Commands end with ; or \g.`,
			fmt.Sprintf("Session started on %s via %s", now, runtime.GOOS),
			"Connection id: 420",
			fmt.Sprintf("Forge version: 1.0.0-alchemist (%s)", strings.ToUpper(dialect)),
			"",
			"Copyright (c) 2025, DataSmith Initiative.",
			" All bugs reserved.",
			"",
			`Type 'help;' or '\h' for help. Type 'clear;' to clear the screen.`,
			"",
			"Rows are always limited to 250 to prevent freezing or memory issues in UI.",
		},
		Prompt: dialect,
	}
}

func (s *Session) sqlLogPath() (string, error) {
	if s.db == nil || s.creds.Name == "" {
		return "", errors.New("Not connected to a database")
	}
	return filepath.Join(s.logsDir, s.creds.Name+".sql.log"), nil
}

// LogQuery appends one executed statement to the database's SQL log.
func (s *Session) LogQuery(stmt string) error {
	path, err := s.sqlLogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := time.Now().Format("2006-01-02 15:04:05,000") + " [INFO] " + stmt + "\n"
	_, err = f.WriteString(line)
	return err
}

// ReadLogs returns the trailing lines of the database's SQL log, stripped.
// A missing file reads as empty.
func (s *Session) ReadLogs(lines int) ([]string, error) {
	path, err := s.sqlLogPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) == 1 && all[0] == "" {
		return []string{}, nil
	}
	if lines > 0 && len(all) > lines {
		all = all[len(all)-lines:]
	}
	for i, l := range all {
		all[i] = strings.TrimSpace(l)
	}
	return all, nil
}

// ClearLogs truncates the database's SQL log, creating it when absent.
func (s *Session) ClearLogs() error {
	path, err := s.sqlLogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}
