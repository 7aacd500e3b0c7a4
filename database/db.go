package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/korjavin/leadbot/models"
)

// DB handles all database operations
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes tables
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	// User-level event log
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			event TEXT NOT NULL,
			payload TEXT NOT NULL,
			ts TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Pre-registration codes, one per user
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS prereg (
			user_id INTEGER PRIMARY KEY,
			code TEXT NOT NULL,
			tariff TEXT NOT NULL,
			valid_to TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Local copy of leads whose sheet append failed
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lead_backup (
			lead_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// LogEvent appends one user-level event to the log
func (db *DB) LogEvent(userID int64, event, payload string) error {
	_, err := db.conn.Exec(
		"INSERT INTO events (user_id, event, payload, ts) VALUES (?, ?, ?, ?)",
		userID, event, payload, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Prereg is one user's pre-registration: a price-lock code with an expiry
// and the user's position in the queue.
type Prereg struct {
	Code    string
	Tariff  string
	ValidTo time.Time
	Place   int
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// genCode generates a price-lock code like LOCK-7K2Q9X.
func genCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return "LOCK-" + string(buf), nil
}

// UpsertPrereg creates or refreshes the user's pre-registration. The code is
// regenerated on every call; the queue place is the count of users created
// no later than this one.
func (db *DB) UpsertPrereg(userID int64, tariff string) (*Prereg, error) {
	code, err := genCode(6)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}
	validTo := time.Now().AddDate(0, 6, 0)

	_, err = db.conn.Exec(`
		INSERT INTO prereg (user_id, code, tariff, valid_to, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET code=excluded.code, tariff=excluded.tariff, valid_to=excluded.valid_to
	`, userID, code, tariff, validTo.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}

	var place int
	err = db.conn.QueryRow(`
		SELECT COUNT(*) FROM prereg
		WHERE created_at <= (SELECT created_at FROM prereg WHERE user_id = ?)
	`, userID).Scan(&place)
	if err != nil {
		return nil, err
	}

	return &Prereg{Code: code, Tariff: tariff, ValidTo: validTo, Place: place}, nil
}

// GetPrereg returns the user's pre-registration, or nil if none exists
func (db *DB) GetPrereg(userID int64) (*Prereg, error) {
	var code, tariff, validToRaw string
	err := db.conn.QueryRow(
		"SELECT code, tariff, valid_to FROM prereg WHERE user_id = ?",
		userID,
	).Scan(&code, &tariff, &validToRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	validTo, err := time.Parse(time.RFC3339, validToRaw)
	if err != nil {
		return nil, fmt.Errorf("corrupt valid_to for user %d: %w", userID, err)
	}
	return &Prereg{Code: code, Tariff: tariff, ValidTo: validTo}, nil
}

// BackupLead stores a completed lead locally so it is not lost when the
// sheet append fails. Keyed by lead id, so a duplicate backup is a no-op.
func (db *DB) BackupLead(lead *models.Lead) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to encode lead %s: %w", lead.LeadID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO lead_backup (lead_id, user_id, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lead_id) DO NOTHING
	`, lead.LeadID, lead.UserID, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

// BackupCount returns the number of leads waiting in the local backup
func (db *DB) BackupCount() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM lead_backup").Scan(&n)
	return n, err
}
