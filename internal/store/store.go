// Package store provides SQLite-backed persistence for boards and tasks.
// The store is the system of record: the engine reconciles in-memory state
// against it on load and writes terminal task state through to it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openvibe/vibeboard/pkg/models"
)

// DB wraps an SQLite database connection with board-store operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the board store location under the project directory.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".vibeboard", "boards.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		stmts   []string
	}{
		{
			version: 1,
			stmts: []string{
				`CREATE TABLE IF NOT EXISTS boards (
					id TEXT PRIMARY KEY,
					goal TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS tasks (
					id TEXT NOT NULL,
					board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
					title TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					actor_type TEXT NOT NULL,
					status TEXT NOT NULL,
					depends_on TEXT NOT NULL DEFAULT '[]',
					result TEXT NOT NULL DEFAULT '',
					error TEXT NOT NULL DEFAULT '',
					started_at DATETIME,
					completed_at DATETIME,
					PRIMARY KEY (board_id, id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_tasks_board_status ON tasks(board_id, status)`,
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SaveBoard upserts a board row and all of its tasks.
func (db *DB) SaveBoard(board *models.Board) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin save board: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO boards (id, goal, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET goal = excluded.goal
	`, board.ID, board.Goal, board.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save board %s: %w", board.ID, err)
	}
	for _, task := range board.Tasks {
		if err := saveTaskTx(tx, board.ID, task); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveTask upserts one task row.
func (db *DB) SaveTask(boardID string, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin save task: %w", err)
	}
	defer tx.Rollback()
	if err := saveTaskTx(tx, boardID, task); err != nil {
		return err
	}
	return tx.Commit()
}

func saveTaskTx(tx *sql.Tx, boardID string, task *models.Task) error {
	deps, err := json.Marshal(task.DependsOn)
	if err != nil {
		return fmt.Errorf("encode dependencies for %s: %w", task.ID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO tasks (id, board_id, title, description, actor_type, status, depends_on, result, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(board_id, id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			actor_type = excluded.actor_type,
			status = excluded.status,
			depends_on = excluded.depends_on,
			result = excluded.result,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, task.ID, boardID, task.Title, task.Description, string(task.ActorType),
		string(task.Status), string(deps), task.Result, task.Error,
		nullableTime(task.StartedAt), nullableTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// LoadBoard loads a board row, without its tasks.
func (db *DB) LoadBoard(boardID string) (*models.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow("SELECT id, goal, created_at FROM boards WHERE id = ?", boardID)
	var board models.Board
	if err := row.Scan(&board.ID, &board.Goal, &board.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("board %s not found", boardID)
		}
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}
	return &board, nil
}

// Boards returns all board ids, newest first.
func (db *DB) Boards() ([]*models.Board, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT id, goal, created_at FROM boards ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var boards []*models.Board
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.Goal, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, &b)
	}
	return boards, rows.Err()
}

// LoadTasks loads all tasks for a board.
func (db *DB) LoadTasks(boardID string) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, title, description, actor_type, status, depends_on, result, error, started_at, completed_at
		FROM tasks WHERE board_id = ?
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("load tasks for %s: %w", boardID, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var deps string
		var startedAt, completedAt sql.NullTime
		var actor, status string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &actor, &status, &deps, &t.Result, &t.Error, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ActorType = models.ActorType(actor)
		t.Status = models.TaskStatus(status)
		if err := json.Unmarshal([]byte(deps), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("decode dependencies for %s: %w", t.ID, err)
		}
		if startedAt.Valid {
			v := startedAt.Time
			t.StartedAt = &v
		}
		if completedAt.Valid {
			v := completedAt.Time
			t.CompletedAt = &v
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// StatusCounts returns the per-status tally for a board, the aggregate
// "N failed" signal the UI shows without opening each task.
func (db *DB) StatusCounts(boardID string) (models.StatusCounts, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT status, COUNT(*) FROM tasks WHERE board_id = ? GROUP BY status", boardID)
	if err != nil {
		return models.StatusCounts{}, fmt.Errorf("count tasks for %s: %w", boardID, err)
	}
	defer rows.Close()

	var c models.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.StatusCounts{}, fmt.Errorf("scan counts: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskStatusPending:
			c.Pending = n
		case models.TaskStatusInProgress:
			c.InProgress = n
		case models.TaskStatusCompleted:
			c.Completed = n
		case models.TaskStatusFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

// DeleteBoard removes a board and, via cascade, its tasks.
func (db *DB) DeleteBoard(boardID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec("DELETE FROM boards WHERE id = ?", boardID)
	if err != nil {
		return fmt.Errorf("delete board %s: %w", boardID, err)
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
