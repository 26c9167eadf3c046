package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const createJournalTable = `CREATE TABLE IF NOT EXISTS rc4_journal (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	created_at DATETIME(6) NOT NULL,
	origin VARCHAR(16) NOT NULL,
	source VARCHAR(1024) NOT NULL,
	target VARCHAR(1024) NOT NULL,
	key_fingerprint CHAR(16) NOT NULL,
	length BIGINT NOT NULL,
	duration_ns BIGINT NOT NULL
)`

// MySQLJournal stores entries in the rc4_journal table
type MySQLJournal struct {
	db *sql.DB
}

// NormalizeDSN parses dsn and forces the options the journal relies on
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// OpenMySQLJournal connects and creates the table if needed
func OpenMySQLJournal(dsn string) (*MySQLJournal, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createJournalTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal table: %w", err)
	}
	return &MySQLJournal{db: db}, nil
}

func (j *MySQLJournal) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO rc4_journal (created_at, origin, source, target, key_fingerprint, length, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.Origin, e.Source, e.Target, e.KeyFingerprint, e.Length, int64(e.Duration))
	return err
}

func (j *MySQLJournal) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, created_at, origin, source, target, key_fingerprint, length, duration_ns
		FROM rc4_journal ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var dur int64
		if err := rows.Scan(&e.ID, &e.Time, &e.Origin, &e.Source, &e.Target, &e.KeyFingerprint, &e.Length, &dur); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(dur)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *MySQLJournal) Close() error {
	return j.db.Close()
}
