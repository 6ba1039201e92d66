package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"wei/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  stem TEXT NOT NULL UNIQUE,
  sourcePath TEXT NOT NULL,
  status TEXT NOT NULL,
  reason TEXT,
  style TEXT,
  supplier TEXT,
  agent TEXT,
  deliveryDate TEXT,
  docJson TEXT,
  taskCount INTEGER NOT NULL DEFAULT 0,
  retryCount INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_supplier ON documents(supplier);

CREATE TABLE IF NOT EXISTS mail_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// UpsertDocument writes the terminal state of one processed document,
// keyed by the file stem so re-runs overwrite earlier attempts.
func (d *DB) UpsertDocument(row internal.DocumentRow) error {
	_, err := d.conn.Exec(`
INSERT INTO documents (stem, sourcePath, status, reason, style, supplier, agent, deliveryDate, docJson, taskCount, retryCount)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(stem) DO UPDATE SET
  sourcePath=excluded.sourcePath,
  status=excluded.status,
  reason=excluded.reason,
  style=excluded.style,
  supplier=excluded.supplier,
  agent=excluded.agent,
  deliveryDate=excluded.deliveryDate,
  docJson=excluded.docJson,
  taskCount=excluded.taskCount,
  retryCount=excluded.retryCount,
  updatedAt=CURRENT_TIMESTAMP
`, row.Stem, row.SourcePath, row.Status, row.Reason, row.Style, row.Supplier, row.Agent, row.DeliveryDate, row.DocJSON, row.TaskCount, row.RetryCount)
	return err
}

func (d *DB) GetDocumentByStem(stem string) (*internal.DocumentRow, error) {
	var row internal.DocumentRow
	var reason, style, supplier, agent, deliveryDate, docJSON sql.NullString
	err := d.conn.QueryRow(`
SELECT id, stem, sourcePath, status, reason, style, supplier, agent, deliveryDate, docJson, taskCount, retryCount, updatedAt
FROM documents WHERE stem = ?
`, stem).Scan(
		&row.ID, &row.Stem, &row.SourcePath, &row.Status, &reason, &style, &supplier, &agent, &deliveryDate, &docJSON, &row.TaskCount, &row.RetryCount, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Reason = reason.String
	row.Style = style.String
	row.Supplier = supplier.String
	row.Agent = agent.String
	row.DeliveryDate = deliveryDate.String
	row.DocJSON = docJSON.String
	return &row, nil
}

func (d *DB) ListDocumentsByStatus(status string, limit int) ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT id, stem, sourcePath, status, reason, style, supplier, agent, deliveryDate, docJson, taskCount, retryCount, updatedAt
FROM documents WHERE status = ? ORDER BY updatedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var row internal.DocumentRow
		var reason, style, supplier, agent, deliveryDate, docJSON sql.NullString
		if err := rows.Scan(&row.ID, &row.Stem, &row.SourcePath, &row.Status, &reason, &style, &supplier, &agent, &deliveryDate, &docJSON, &row.TaskCount, &row.RetryCount, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Reason = reason.String
		row.Style = style.String
		row.Supplier = supplier.String
		row.Agent = agent.String
		row.DeliveryDate = deliveryDate.String
		row.DocJSON = docJSON.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) ListDocuments() ([]internal.DocumentRow, error) {
	rows, err := d.conn.Query(`
SELECT id, stem, sourcePath, status, reason, style, supplier, agent, deliveryDate, docJson, taskCount, retryCount, updatedAt
FROM documents ORDER BY id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var row internal.DocumentRow
		var reason, style, supplier, agent, deliveryDate, docJSON sql.NullString
		if err := rows.Scan(&row.ID, &row.Stem, &row.SourcePath, &row.Status, &reason, &style, &supplier, &agent, &deliveryDate, &docJSON, &row.TaskCount, &row.RetryCount, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Reason = reason.String
		row.Style = style.String
		row.Supplier = supplier.String
		row.Agent = agent.String
		row.DeliveryDate = deliveryDate.String
		row.DocJSON = docJSON.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(stem, status, reason string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, reason = ?, updatedAt = CURRENT_TIMESTAMP WHERE stem = ?`, status, reason, stem)
	return err
}

func (d *DB) UpsertMailMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) error {
	_, err := d.conn.Exec(`
INSERT INTO mail_messages (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	return err
}

func (d *DB) HasMailMessage(provider, messageID string) (bool, error) {
	var one int
	err := d.conn.QueryRow(`SELECT 1 FROM mail_messages WHERE provider = ? AND messageId = ?`, provider, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) InsertRun(traceID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, timingsJson, countsJson) VALUES (?, ?, ?)`, traceID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustDocumentByStem(stem string) (internal.DocumentRow, error) {
	row, err := d.GetDocumentByStem(stem)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, fmt.Errorf("document not found: stem=%s", stem)
	}
	return *row, nil
}
