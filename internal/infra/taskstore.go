package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/studyfocus/focusmon/internal/domain"
)

const taskDBName = "tasks.db"

// EncryptedTaskStore implements domain.TaskStore using a SQLCipher
// encrypted SQLite database. Task text can contain anything the user
// types at the chat prompt, so it is not stored in the clear.
type EncryptedTaskStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedTaskStore opens (or creates) the encrypted task database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedTaskStore(dataDir string, key []byte) (*EncryptedTaskStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, taskDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open encrypted database: %w", err)
	}

	// Verify the key actually decrypts the file.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to encrypted database: %w", err)
	}

	store := &EncryptedTaskStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedTaskStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		done INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Add inserts a new task and returns it with its assigned ID.
func (s *EncryptedTaskStore) Add(text string) (domain.Task, error) {
	if text == "" {
		return domain.Task{}, fmt.Errorf("task text is empty")
	}
	now := time.Now().Unix()
	res, err := s.db.Exec(`INSERT INTO tasks (text, done, created_at) VALUES (?, 0, ?)`, text, now)
	if err != nil {
		return domain.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{ID: id, Text: text, CreatedAt: now}, nil
}

// List returns all tasks, oldest first.
func (s *EncryptedTaskStore) List() ([]domain.Task, error) {
	rows, err := s.db.Query(`SELECT id, text, done, created_at FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		var done int
		if err := rows.Scan(&t.ID, &t.Text, &done, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Done = done != 0
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Complete marks a task done.
func (s *EncryptedTaskStore) Complete(id int64) error {
	res, err := s.db.Exec(`UPDATE tasks SET done = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %d not found", id)
	}
	return nil
}

// Remove deletes a task.
func (s *EncryptedTaskStore) Remove(id int64) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %d not found", id)
	}
	return nil
}

// Close releases the database connection.
func (s *EncryptedTaskStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ domain.TaskStore = (*EncryptedTaskStore)(nil)
