package store

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Store represents the SQLite analysis archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveAnalysis archives an analysis. CreatedAt defaults to now and
// PayloadHash is always recomputed from Payload.
func (s *Store) SaveAnalysis(r *AnalysisRecord) error {
	return insertAnalysis(s.db, r)
}

// SaveAnalysisWithEvent archives an analysis together with its event in one
// transaction: either both rows are written or neither is. An event without
// an AnalysisID is tied to r.
func (s *Store) SaveAnalysisWithEvent(r *AnalysisRecord, e *Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAnalysis(tx, r); err != nil {
		return err
	}
	if e.AnalysisID == "" {
		e.AnalysisID = r.ID
	}
	if _, err := insertEvent(tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertAnalysis(ex execer, r *AnalysisRecord) error {
	if r.ID == "" {
		return fmt.Errorf("save analysis: missing id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.PayloadHash = sha256.Sum256(r.Payload)

	_, err := ex.Exec(`
		INSERT INTO analyses (id, created_at, filename, sha256, media_type, bytes, trust_score, label, provenance_state, payload, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt.UnixNano(), r.Filename, r.SHA256, r.MediaType, r.Bytes, r.TrustScore, r.Label, r.ProvenanceState, r.Payload, r.PayloadHash[:],
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

const analysisColumns = `id, created_at, filename, sha256, media_type, bytes, trust_score, label, provenance_state, payload, payload_hash`

// GetAnalysis retrieves an analysis by id.
func (s *Store) GetAnalysis(id string) (*AnalysisRecord, error) {
	row := s.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	r, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get analysis %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return r, nil
}

// ListAnalyses returns up to limit analyses, newest first. A limit of zero
// or less returns every row.
func (s *Store) ListAnalyses(limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT `+analysisColumns+`
		FROM analyses
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	return scanAnalyses(rows)
}

// FindBySHA256 returns every analysis of content with the given digest,
// newest first.
func (s *Store) FindBySHA256(digest string) ([]AnalysisRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE sha256 = ?
		ORDER BY created_at DESC, id ASC`, digest,
	)
	if err != nil {
		return nil, fmt.Errorf("query analyses by sha256: %w", err)
	}
	defer rows.Close()

	return scanAnalyses(rows)
}

// CountByLabel returns the number of archived analyses per label.
func (s *Store) CountByLabel() ([]LabelCount, error) {
	rows, err := s.db.Query(`SELECT label, COUNT(*) FROM analyses GROUP BY label ORDER BY label`)
	if err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	defer rows.Close()

	var counts []LabelCount
	for rows.Next() {
		var c LabelCount
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// InsertEvent inserts an audit event and returns its ID.
func (s *Store) InsertEvent(e *Event) (int64, error) {
	return insertEvent(s.db, e)
}

func insertEvent(ex execer, e *Event) (int64, error) {
	if e.TimestampNs == 0 {
		e.TimestampNs = time.Now().UnixNano()
	}
	result, err := ex.Exec(`
		INSERT INTO events (type, analysis_id, timestamp_ns, latency_ms, trust_score, provenance_state, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Type), e.AnalysisID, e.TimestampNs, e.LatencyMs, e.TrustScore, e.ProvenanceState, e.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

// ListEvents returns up to limit events, newest first.
func (s *Store) ListEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, type, COALESCE(analysis_id, ''), timestamp_ns, latency_ms, trust_score, COALESCE(provenance_state, ''), COALESCE(detail, '')
		FROM events
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType string
		var score sql.NullInt64
		if err := rows.Scan(&e.ID, &eventType, &e.AnalysisID, &e.TimestampNs, &e.LatencyMs, &score, &e.ProvenanceState, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(eventType)
		if score.Valid {
			v := int(score.Int64)
			e.TrustScore = &v
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*AnalysisRecord, error) {
	var r AnalysisRecord
	var createdNs int64
	var provenance sql.NullString
	var hash []byte

	if err := row.Scan(&r.ID, &createdNs, &r.Filename, &r.SHA256, &r.MediaType, &r.Bytes, &r.TrustScore, &r.Label, &provenance, &r.Payload, &hash); err != nil {
		return nil, err
	}

	r.CreatedAt = time.Unix(0, createdNs)
	r.ProvenanceState = provenance.String
	copy(r.PayloadHash[:], hash)
	return &r, nil
}

func scanAnalyses(rows *sql.Rows) ([]AnalysisRecord, error) {
	var records []AnalysisRecord
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return records, nil
}
