package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"tamid-harvester/lib/scrapers/tamid/posting"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

func OpenDB(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = database.Exec(Schema)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// Store archives the outcome of harvest runs. It is not a resume
// mechanism, every run writes its own rows keyed by run id.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

type RunParams struct {
	RunID     string
	Track     string
	StartID   int
	EndID     int
	StartedAt time.Time
}

func (s *Store) NoteRun(ctx context.Context, params RunParams) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, track, start_id, end_id, started_at, elapsed_seconds, valid_count)
		 VALUES (?, ?, ?, ?, ?, 0, 0)`,
		params.RunID,
		params.Track,
		params.StartID,
		params.EndID,
		params.StartedAt.Unix(),
	)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID string, elapsed time.Duration, validCount int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET elapsed_seconds = ?, valid_count = ? WHERE id = ?`,
		elapsed.Seconds(),
		validCount,
		runID,
	)
	return err
}

func (s *Store) NoteRecord(ctx context.Context, runID string, postingID int, rec posting.Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return err
	}
	name, _ := rec.Get("name")
	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO records (run_id, posting_id, name, fields_json)
		 VALUES (?, ?, ?, ?)`,
		runID,
		postingID,
		name,
		string(fields),
	)
	return err
}

type ArchivedRecord struct {
	PostingID int
	Name      string
	Fields    []posting.Field
}

// RunRecords returns the archived records of one run ordered by posting
// id.
func (s *Store) RunRecords(ctx context.Context, runID string) ([]ArchivedRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT posting_id, name, fields_json FROM records WHERE run_id = ? ORDER BY posting_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedRecord
	for rows.Next() {
		var rec ArchivedRecord
		var fields string
		err := rows.Scan(&rec.PostingID, &rec.Name, &fields)
		if err != nil {
			return nil, err
		}
		err = json.Unmarshal([]byte(fields), &rec.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
