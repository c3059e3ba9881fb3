package server

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/tomfevang/datasmith/internal/introspect"
	"github.com/tomfevang/datasmith/internal/populate"
	"github.com/tomfevang/datasmith/internal/prefstore"
	"github.com/tomfevang/datasmith/internal/session"
	"github.com/tomfevang/datasmith/internal/sqlrunner"
)

func (s *Server) handlePing(_ map[string]any) Response {
	return okResp("pong")
}

func (s *Server) handleDBInfo(_ map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	return okResp(s.sess.Info())
}

func (s *Server) handleGenMethods(_ map[string]any) Response {
	return okResp(s.pop.Methods())
}

func credsFromBody(body map[string]any) session.Credentials {
	return session.Credentials{
		Name:     asString(body["name"]),
		Host:     asString(body["host"]),
		Port:     asString(body["port"]),
		User:     asString(body["user"]),
		Password: asString(body["password"]),
		Dialect:  asString(body["dialect"]),
	}
}

func savedCreds(c *prefstore.Credentials) session.Credentials {
	return session.Credentials{
		Name:     c.Name,
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Dialect:  c.Dialect,
	}
}

// bind marks the session as the saved credential row and refreshes its
// last-connected stamp.
func (s *Server) bind(id int64) error {
	s.sess.SetID(id)
	return s.store.TouchLastConnected(id)
}

func (s *Server) handleConnect(body map[string]any) Response {
	if resp := requireParams(body, "host", "user", "port", "name", "password", "dialect"); resp != nil {
		return *resp
	}
	s.sess.Disconnect()

	creds := credsFromBody(body)
	saved, err := s.store.FindCred(creds.Name, creds.Host, creds.Port, creds.User, creds.Dialect)
	if err != nil {
		return errResp(err.Error())
	}
	if saved != nil {
		creds.Password = saved.Password
	}

	if err := s.sess.Connect(creds); err != nil {
		s.sess.Disconnect()
		return errResp(err.Error())
	}

	var id int64
	if saved == nil {
		id, err = s.store.InsertCred(prefstore.Credentials{
			Name:     creds.Name,
			Host:     creds.Host,
			Port:     creds.Port,
			User:     creds.User,
			Password: creds.Password,
			Dialect:  creds.Dialect,
		})
		if err != nil {
			return errResp(err.Error())
		}
	} else {
		id = saved.ID
	}

	if err := s.bind(id); err != nil {
		return errResp(err.Error())
	}
	s.log.Info("connected", "name", creds.Name, "host", creds.Host, "port", creds.Port)
	return okResp(s.sess.Info())
}

func (s *Server) handleReconnect(body map[string]any) Response {
	if resp := requireParams(body, "name", "host", "port", "user", "dialect"); resp != nil {
		return *resp
	}
	s.sess.Disconnect()

	c := credsFromBody(body)
	saved, err := s.store.FindCred(c.Name, c.Host, c.Port, c.User, c.Dialect)
	if err != nil {
		return errResp(err.Error())
	}
	if saved == nil {
		return errResp("Unknown database.")
	}

	if err := s.sess.Connect(savedCreds(saved)); err != nil {
		s.sess.Disconnect()
		return errResp(err.Error())
	}
	if err := s.bind(saved.ID); err != nil {
		return errResp(err.Error())
	}
	s.log.Info("reconnected", "name", saved.Name, "host", saved.Host)
	return okResp(s.sess.Info())
}

func (s *Server) handleLastConnected(_ map[string]any) Response {
	saved, err := s.store.LastConnected()
	if err != nil {
		return errResp(err.Error())
	}
	if saved == nil {
		return okResp(nil)
	}

	if err := s.sess.Connect(savedCreds(saved)); err != nil {
		s.sess.Disconnect()
		return errResp("Failed to connect to last connected database: " + err.Error())
	}
	if err := s.bind(saved.ID); err != nil {
		return errResp(err.Error())
	}
	return okResp(saved.Public())
}

func (s *Server) handlePrefConnections(_ map[string]any) Response {
	creds, err := s.store.ListCreds()
	if err != nil {
		return errResp(err.Error())
	}
	return okResp(creds)
}

func (s *Server) handlePrefDelete(body map[string]any) Response {
	if resp := requireParams(body, "name", "host", "port", "user"); resp != nil {
		return *resp
	}
	s.sess.Disconnect()
	if err := s.store.DeleteCred(
		asString(body["name"]), asString(body["host"]),
		asString(body["port"]), asString(body["user"]),
	); err != nil {
		return errResp(err.Error())
	}
	return okResp("Connection deleted successfully.")
}

func (s *Server) handleDisconnect(_ map[string]any) Response {
	s.sess.Disconnect()
	return okResp("Disconnected successfully.")
}

func (s *Server) handleDBTables(_ map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}

	var (
		infos map[string]introspect.TableInfo
		order []string
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		infos, err = s.sess.Tables()
		return err
	})
	g.Go(func() error {
		var err error
		order, err = s.sess.SortTables()
		return err
	})
	if err := g.Wait(); err != nil {
		return errResp(err.Error())
	}

	out := make([]introspect.TableInfo, 0, len(order))
	for _, name := range order {
		info, ok := infos[name]
		if !ok {
			info = introspect.TableInfo{Name: name}
		}
		out = append(out, info)
	}
	return okResp(out)
}

func (s *Server) handleDBTable(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "name"); resp != nil {
		return *resp
	}

	table, err := s.sess.TableMetadata(asString(body["name"]))
	if err != nil {
		return errResp(err.Error())
	}
	return okResp(table.Metadata())
}

func (s *Server) handleGenPackets(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "name", "no_of_entries", "columns"); resp != nil {
		return *resp
	}
	if s.job != nil && s.job.alive() {
		return errResp("Generation is already running.")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return errResp(err.Error())
	}
	var spec populate.TableSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return errResp(err.Error())
	}

	clone, err := s.sess.Clone()
	if err != nil {
		return errResp(err.Error())
	}

	s.job = s.startJob(clone, &spec)
	s.log.Info("generation job started", "job_id", s.job.id,
		"table", spec.Name, "entries", spec.NoOfEntries)

	return okResp(map[string]any{
		"status":   "pending",
		"message":  "Generation started.",
		"job_id":   s.job.id,
		"data":     nil,
		"progress": s.job.progress.Snapshot(),
	})
}

func (s *Server) handlePollGenStatus(body map[string]any) Response {
	if resp := requireParams(body, "job_id"); resp != nil {
		return *resp
	}
	if s.job == nil || asString(body["job_id"]) != s.job.id {
		return errResp("Invalid job.")
	}

	payload := map[string]any{
		"status":   "pending",
		"message":  "Generation is still in progress.",
		"job_id":   s.job.id,
		"data":     nil,
		"progress": s.job.progress.Snapshot(),
	}

	select {
	case res := <-s.job.result:
		if res.err != nil {
			return errResp("Error during generation: " + res.err.Error())
		}
		payload["status"] = "done"
		payload["message"] = "Generation completed successfully."
		payload["data"] = s.pop.Paginate(res.packet)
		payload["progress"] = s.job.progress.Snapshot()
		return okResp(payload)
	default:
		if s.job.alive() {
			return okResp(payload)
		}
		return errResp("No result. Process may not have started or crashed.")
	}
}

func (s *Server) handleGenPacket(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "packet_id"); resp != nil {
		return *resp
	}

	packet, err := s.pop.PacketPage(asString(body["packet_id"]), pageParam(body))
	if err != nil {
		return errResp(err.Error())
	}
	return okResp(packet)
}

func (s *Server) handleClearGenPackets(_ map[string]any) Response {
	if s.job != nil && s.job.alive() {
		s.job.cancel()
		<-s.job.done
		s.log.Info("generation job cleared", "job_id", s.job.id)
	}
	return okResp("Generation process cleared.")
}

func (s *Server) handlePrefSpec(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "table_name"); resp != nil {
		return *resp
	}

	id, err := s.sess.ID()
	if err != nil {
		return errResp(err.Error())
	}
	spec, err := s.store.GetSpec(id, asString(body["table_name"]))
	if err != nil {
		return errResp(err.Error())
	}
	if spec == nil {
		return okResp(nil)
	}
	return okResp(spec)
}

func (s *Server) handleSQLBanner(_ map[string]any) Response {
	return okResp(s.sess.SQLBanner())
}

func (s *Server) handleRunSQLQuery(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "sql"); resp != nil {
		return *resp
	}
	stmt := asString(body["sql"])

	clone, err := s.sess.Clone()
	if err != nil {
		return okResp([]string{"ERROR 8008 (4200): " + err.Error()})
	}
	defer clone.Close()

	db, err := clone.DB()
	if err != nil {
		return okResp([]string{"ERROR 8008 (4200): " + err.Error()})
	}

	if err := s.sess.LogQuery(stmt); err != nil {
		s.log.Warn("appending sql log failed", "err", err)
	}
	return okResp(sqlrunner.Run(context.Background(), db, stmt))
}

func (s *Server) handleLogsRead(body map[string]any) Response {
	lines := s.logLines
	if n, ok := intParam(body, "lines"); ok {
		lines = n
	}

	logs, err := s.sess.ReadLogs(lines)
	if err != nil {
		return errResp("Failed to retrieve logs: " + err.Error())
	}
	return okResp(logs)
}

func (s *Server) handleLogsClear(_ map[string]any) Response {
	if err := s.sess.ClearLogs(); err != nil {
		return errResp("Failed to clear logs: " + err.Error())
	}
	return okResp([]string{})
}

func pageParam(body map[string]any) *int {
	if n, ok := intParam(body, "page"); ok {
		return &n
	}
	return nil
}

func (s *Server) handleDBInsert(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "packet_id"); resp != nil {
		return *resp
	}

	packet, err := s.pop.PacketPage(asString(body["packet_id"]), pageParam(body))
	if err != nil {
		return errResp("Error inserting packet: " + err.Error())
	}
	pending, err := s.sess.InsertPacket(packet)
	if err != nil {
		return errResp("Error inserting packet: " + err.Error())
	}
	return okResp(map[string]any{"pending_writes": pending})
}

func (s *Server) handleDBExport(body map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	if resp := requireParams(body, "path", "packet_id"); resp != nil {
		return *resp
	}
	path := asString(body["path"])

	packet, err := s.pop.PacketPage(asString(body["packet_id"]), nil)
	if err != nil {
		return errResp("Error exporting SQL packet: " + err.Error())
	}
	if err := session.ExportSQL(packet, path); err != nil {
		return errResp("Error exporting SQL packet: " + err.Error())
	}
	return okResp("SQL packet exported to " + path)
}

func (s *Server) handleCommit(_ map[string]any) Response {
	if err := s.sess.Commit(); err != nil {
		return errResp(err.Error())
	}
	return okResp("Committed all transactions successfully!")
}

func (s *Server) handleRollback(_ map[string]any) Response {
	if err := s.sess.Rollback(); err != nil {
		return errResp(err.Error())
	}
	return okResp("Rollbacked all transactions successfully!")
}

func (s *Server) handlePrefRows(_ map[string]any) Response {
	if resp := s.requireConnected(); resp != nil {
		return *resp
	}
	rows, err := s.sess.DatabaseRows()
	if err != nil {
		return errResp(err.Error())
	}
	return okResp(rows)
}
