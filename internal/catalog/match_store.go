package catalog

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/banshee-data/skyfit/internal/astrom"
)

// RunSummary describes one persisted solve run.
type RunSummary struct {
	RunID      string
	Degraded   bool
	MatchCount int64
	CreatedAt  string
}

// MatchStore persists denormalized match tables, one solve run per
// run id. The match_rows schema mirrors the table's column set; a
// consistency check rejects tables whose columns drifted from the
// migrated schema.
type MatchStore struct {
	db *sql.DB

	// Cached match_rows column set, populated on first use.
	schemaColumns []string
}

// NewMatchStore creates a MatchStore backed by the given database.
func NewMatchStore(db *sql.DB) *MatchStore {
	return &MatchStore{db: db}
}

// SaveRun records a solve run and its match table. The table's columns
// must match the migrated match_rows schema.
func (s *MatchStore) SaveRun(runID string, degraded bool, table *astrom.MatchTable) error {
	if runID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	if table == nil || len(table.Rows) == 0 {
		return astrom.ErrNoMatches
	}
	if err := s.checkSchema(table.Columns); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO solve_runs (run_id, degraded, match_count) VALUES (?, ?, ?)`,
		runID, degraded, len(table.Rows),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(table.Columns)+1), ", ")
	insertRow := fmt.Sprintf(
		`INSERT INTO match_rows (run_id, %s) VALUES (%s)`,
		strings.Join(table.Columns, ", "), placeholders,
	)
	stmt, err := tx.Prepare(insertRow)
	if err != nil {
		return fmt.Errorf("prepare match row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("match row %d has %d values for %d columns", i, len(row), len(table.Columns))
		}
		args := make([]interface{}, 0, len(row)+1)
		args = append(args, runID)
		for _, v := range row {
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert match row %d: %w", i, err)
		}
	}

	for key, value := range table.Meta {
		_, err := tx.Exec(
			`INSERT INTO solve_run_metadata (run_id, key, value) VALUES (?, ?, ?)`,
			runID, key, value,
		)
		if err != nil {
			return fmt.Errorf("insert run metadata %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run save: %w", err)
	}
	return nil
}

// LoadRun reads back the match table for a run, row order preserved.
func (s *MatchStore) LoadRun(runID string) (*astrom.MatchTable, error) {
	columns, err := s.matchColumns()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM match_rows WHERE run_id = ? ORDER BY rowid`,
		strings.Join(columns, ", "),
	)
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	defer rows.Close()

	table := &astrom.MatchTable{Columns: columns}
	scan := make([]interface{}, len(columns))
	for rows.Next() {
		row := make([]float64, len(columns))
		for i := range row {
			scan[i] = &row[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan match row: %w", err)
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run %s: %w", runID, err)
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("run %s has no match rows", runID)
	}

	meta, err := s.loadMeta(runID)
	if err != nil {
		return nil, err
	}
	table.Meta = meta

	return table, nil
}

// ListRuns returns all persisted runs, newest first.
func (s *MatchStore) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(
		`SELECT run_id, degraded, match_count, created_at FROM solve_runs ORDER BY created_at DESC, run_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Degraded, &r.MatchCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *MatchStore) loadMeta(runID string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT key, value FROM solve_run_metadata WHERE run_id = ?`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load run %s metadata: %w", runID, err)
	}
	defer rows.Close()

	var meta map[string]string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan run metadata: %w", err)
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// matchColumns returns the match_rows columns in schema order, minus
// the run_id key. Cached after the first read.
func (s *MatchStore) matchColumns() ([]string, error) {
	if s.schemaColumns != nil {
		return s.schemaColumns, nil
	}

	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('match_rows') ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("read match_rows schema: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan match_rows column: %w", err)
		}
		if name == "run_id" {
			continue
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("match_rows table missing; run migrations first")
	}

	s.schemaColumns = columns
	return columns, nil
}

func (s *MatchStore) checkSchema(columns []string) error {
	schema, err := s.matchColumns()
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(schema))
	for _, name := range schema {
		known[name] = true
	}
	for _, name := range columns {
		if !known[name] {
			return fmt.Errorf("match table column %q not in match_rows schema", name)
		}
	}
	if len(columns) != len(schema) {
		return fmt.Errorf("match table has %d columns, schema has %d", len(columns), len(schema))
	}
	return nil
}
