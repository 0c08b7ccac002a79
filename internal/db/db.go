// Package db stores recorded filter runs in SQLite.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
)

var logf = monitoring.Prefixed("db")

// connPragmas are applied to every pooled connection.
const connPragmas = "?_pragma=foreign_keys(1)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)"

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if needed) the database at path and migrates it to
// the latest schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+connPragmas)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Filter runs",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	// close the backup file after sending it
	// and remove it from the filesystem
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			logf("Failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		logf("Failed to write backup: %v", err)
	}
}
