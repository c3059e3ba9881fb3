// Package server speaks the line-delimited JSON command protocol: one
// request per stdin line, one response per stdout line. It owns the
// database session, the preference store, and the single background
// generation job.
package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/tomfevang/datasmith/internal/populate"
	"github.com/tomfevang/datasmith/internal/prefstore"
	"github.com/tomfevang/datasmith/internal/session"
)

const (
	// maxLineBytes bounds one request line; column specs for wide tables
	// stay far below this.
	maxLineBytes = 8 << 20

	defaultLogLines = 200
)

type handlerFunc func(body map[string]any) Response

// Server dispatches protocol commands against one session and one store.
// The loop is single-threaded; only generation jobs leave it.
type Server struct {
	sess     *session.Session
	store    *prefstore.Store
	pop      *populate.Populator
	log      *slog.Logger
	job      *genJob
	logLines int
	routes   map[string]handlerFunc
}

// New wires a server around the given session and preference store.
func New(sess *session.Session, store *prefstore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		sess:     sess,
		store:    store,
		pop:      populate.New(),
		log:      logger,
		logLines: defaultLogLines,
	}
	s.routes = map[string]handlerFunc{
		"ping":                  s.handlePing,
		"get_db_info":           s.handleDBInfo,
		"get_gen_methods":       s.handleGenMethods,
		"get_db_last_connected": s.handleLastConnected,
		"set_db_connect":        s.handleConnect,
		"set_db_reconnect":      s.handleReconnect,
		"get_pref_connections":  s.handlePrefConnections,
		"set_pref_delete":       s.handlePrefDelete,
		"set_db_disconnect":     s.handleDisconnect,
		"get_db_tables":         s.handleDBTables,
		"get_db_table":          s.handleDBTable,
		"get_gen_packets":       s.handleGenPackets,
		"get_gen_packet":        s.handleGenPacket,
		"clear_gen_packets":     s.handleClearGenPackets,
		"poll_gen_status":       s.handlePollGenStatus,
		"get_pref_spec":         s.handlePrefSpec,
		"get_sql_banner":        s.handleSQLBanner,
		"run_sql_query":         s.handleRunSQLQuery,
		"get_logs_read":         s.handleLogsRead,
		"set_logs_clear":        s.handleLogsClear,
		"set_db_insert":         s.handleDBInsert,
		"set_db_export":         s.handleDBExport,
		"set_db_commit":         s.handleCommit,
		"set_db_rollback":       s.handleRollback,
		"get_pref_rows":         s.handlePrefRows,
	}
	return s
}

// SetLogLines overrides the default SQL log tail length.
func (s *Server) SetLogLines(n int) {
	if n > 0 {
		s.logLines = n
	}
}

// Listen consumes requests from r until EOF or an explicit exit line,
// writing one JSON response per line to w.
func (s *Server) Listen(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	out := bufio.NewWriter(w)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			if err := enc.Encode(okResp("exiting...")); err != nil {
				return err
			}
			return out.Flush()
		}

		if err := enc.Encode(s.handleLine([]byte(line))); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) handleLine(line []byte) wireResponse {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Error("malformed request", "err", err)
		return wireResponse{Response: errResp(err.Error())}
	}
	req.Body, _ = normalize(req.Body).(map[string]any)

	s.log.Debug("request", "kind", req.Kind)
	return wireResponse{Response: s.dispatch(req), ID: req.ID}
}

func (s *Server) dispatch(req request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			stack := msg + "\n" + string(debug.Stack())
			s.log.Error("handler panic", "kind", req.Kind, "panic", msg)
			resp = Response{Status: "error", Error: &msg, Traceback: &stack}
		}
	}()

	handler, ok := s.routes[req.Kind]
	if !ok {
		return errResp("Unknown command: " + req.Kind)
	}
	return handler(req.Body)
}

// requireConnected rejects commands that need an attached database.
func (s *Server) requireConnected() *Response {
	if _, err := s.sess.ID(); err != nil {
		r := errResp("Request requires connection to a database.")
		return &r
	}
	return nil
}

// requireParams rejects requests whose body lacks any of the given keys.
func requireParams(body map[string]any, keys ...string) *Response {
	var absent []string
	for _, k := range keys {
		if _, ok := body[k]; !ok {
			absent = append(absent, k)
		}
	}
	if len(absent) == 0 {
		return nil
	}

	var msg string
	if len(absent) == 1 {
		msg = "Missing required parameter: " + absent[0]
	} else {
		msg = "Missing required parameters: " +
			strings.Join(absent[:len(absent)-1], ", ") + ", and " + absent[len(absent)-1]
	}
	r := errResp(msg)
	return &r
}
