// Package store mirrors logged records into SQLite so they can be queried
// across sources and sessions. The CSV files remain the primary output.
package store

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/luhtfiimanal/go-serial-logger/internal/monitoring"
	"github.com/luhtfiimanal/go-serial-logger/internal/record"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	*sql.DB
	path string
}

// Reading is one stored record.
type Reading struct {
	ID          int64
	SessionID   string
	Source      string
	Path        string
	DeviceTime  uint64
	ReceiptTime time.Time
	Value       string
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// StartSession registers a logging session on port and returns its id.
func (s *Store) StartSession(port string, startedAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.Exec(
		`INSERT INTO sessions (session_id, port, started_at) VALUES (?, ?, ?)`,
		id.String(), port, startedAt.UnixMilli(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// RecordReading stores rec for session.
func (s *Store) RecordReading(session uuid.UUID, rec record.Record, receivedAt time.Time) error {
	_, err := s.Exec(
		`INSERT INTO readings (session_id, source, path, device_time, receipt_time, value)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.String(), rec.Source, rec.Path, int64(rec.DeviceTime), receivedAt.UnixMilli(), rec.Value,
	)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	return nil
}

// Readings returns the stored readings for source and path in arrival order.
func (s *Store) Readings(source, path string) ([]Reading, error) {
	rows, err := s.Query(
		`SELECT reading_id, session_id, source, path, device_time, receipt_time, value
		 FROM readings WHERE source = ? AND path = ? ORDER BY reading_id`,
		source, path,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var deviceTime, receiptMS int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Source, &r.Path, &deviceTime, &receiptMS, &r.Value); err != nil {
			return nil, err
		}
		r.DeviceTime = uint64(deviceTime)
		r.ReceiptTime = time.UnixMilli(receiptMS)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// AttachAdminRoutes mounts a tailsql console and a backup download under
// /debug/ on mux.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.DB, &tailsql.DBOptions{
		Label: "Serial logger records",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(s.serveBackup))
	return nil
}

func (s *Store) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("seriallogger-backup-%d.db", time.Now().UnixNano()))
	if _, err := s.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("backup download: %v", err)
	}
}
