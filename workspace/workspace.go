// Package workspace persists module graphs to a SQLite database and
// exports them as portable CBOR snapshots.
package workspace

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/avgusev/streamline-studio/graph"
)

// ErrGraphNotFound indicates the requested graph doesn't exist.
var ErrGraphNotFound = errors.New("graph not found")

// Workspace handles SQLite storage for named module graphs.
type Workspace struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the workspace database at dbPath.
func Open(dbPath string) (*Workspace, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS graphs (
		name TEXT PRIMARY KEY,
		data JSON NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Workspace{db: db}, nil
}

// Close closes the database connection.
func (w *Workspace) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// Save stores a graph snapshot under the given name, replacing any
// previous graph with that name.
func (w *Workspace) Save(name string, snap graph.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := sonic.Marshal(snap.Modules)
	if err != nil {
		return fmt.Errorf("serializing graph %s: %w", name, err)
	}

	_, err = w.db.Exec(`INSERT OR REPLACE INTO graphs (name, data) VALUES (?, json(?))`,
		name, string(data))
	if err != nil {
		return fmt.Errorf("saving graph %s: %w", name, err)
	}
	return nil
}

// Load retrieves the graph snapshot stored under the given name.
func (w *Workspace) Load(name string) (graph.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var data string
	err := w.db.QueryRow(`SELECT data FROM graphs WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return graph.Snapshot{}, ErrGraphNotFound
	}
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("loading graph %s: %w", name, err)
	}

	var modules []graph.Module
	if err := sonic.UnmarshalString(data, &modules); err != nil {
		return graph.Snapshot{}, fmt.Errorf("deserializing graph %s: %w", name, err)
	}
	return graph.Snapshot{Modules: modules}, nil
}

// List returns the names of all stored graphs in alphabetical order.
func (w *Workspace) List() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.Query(`SELECT name FROM graphs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the graph stored under the given name.
func (w *Workspace) Delete(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.db.Exec(`DELETE FROM graphs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting graph %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrGraphNotFound
	}
	return nil
}
