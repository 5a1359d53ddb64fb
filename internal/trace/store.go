package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradecraft-labs/execution-engine/internal/config"
	"github.com/tradecraft-labs/execution-engine/internal/enginerr"
	"github.com/tradecraft-labs/execution-engine/internal/portfolio"
	"github.com/tradecraft-labs/execution-engine/internal/twap"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_traces (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	ts       TEXT NOT NULL,
	equity   REAL NOT NULL,
	orders   INTEGER NOT NULL,
	payload  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_traces_ts ON decision_traces(ts);

CREATE TABLE IF NOT EXISTS slice_executions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id  TEXT NOT NULL,
	slice     INTEGER NOT NULL,
	status    TEXT NOT NULL,
	requested REAL NOT NULL,
	actual    REAL NOT NULL,
	price     REAL,
	units     REAL,
	reason    TEXT,
	ts        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slice_executions_order ON slice_executions(order_id);
`

// Store persists decision traces and child slice executions in SQLite,
// mirroring each decision trace to a pretty-printed JSON file for ad hoc
// inspection. Writes retry once after reopening the database; beyond
// that the error surfaces to the caller.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	dbPath   string
	traceDir string
}

// New opens (and if needed creates) the trace database and directory.
func New(cfg config.StoreConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, enginerr.NewPersistenceError("trace", "init", err)
		}
	}
	if cfg.TraceDir != "" {
		if err := os.MkdirAll(cfg.TraceDir, 0755); err != nil {
			return nil, enginerr.NewPersistenceError("trace", "init", err)
		}
	}

	db, err := open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:       db,
		dbPath:   cfg.DatabasePath,
		traceDir: cfg.TraceDir,
	}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, enginerr.NewPersistenceError("trace", "open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, enginerr.NewPersistenceError("trace", "schema", err)
	}
	return db, nil
}

// SaveDecisionTrace records one decision cycle. The SQLite row is the
// source of truth; the JSON mirror is best effort.
func (s *Store) SaveDecisionTrace(trace portfolio.DecisionTrace) error {
	payload, err := json.Marshal(trace)
	if err != nil {
		return enginerr.NewPersistenceError("trace", "marshal_trace", err)
	}

	s.mu.Lock()
	err = s.execWithRetry(
		`INSERT INTO decision_traces (trace_id, ts, equity, orders, payload) VALUES (?, ?, ?, ?, ?)`,
		trace.TraceID, trace.Timestamp.UTC().Format(time.RFC3339Nano), trace.Equity, len(trace.Orders), string(payload),
	)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.mirrorTrace(trace)
	return nil
}

// SaveSliceExecution records one TWAP child slice.
func (s *Store) SaveSliceExecution(orderID string, rec twap.SliceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.execWithRetry(
		`INSERT INTO slice_executions (order_id, slice, status, requested, actual, price, units, reason, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		orderID, rec.Slice, string(rec.Status), rec.Requested, rec.Actual,
		rec.Price, rec.Units, rec.Reason, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
}

// execWithRetry runs one write statement, reopening the database and
// retrying exactly once on failure. Caller holds the mutex.
func (s *Store) execWithRetry(query string, args ...interface{}) error {
	_, err := s.db.Exec(query, args...)
	if err == nil {
		return nil
	}

	db, openErr := open(s.dbPath)
	if openErr != nil {
		return enginerr.NewPersistenceError("trace", "reconnect", err)
	}
	s.db.Close()
	s.db = db

	if _, err := s.db.Exec(query, args...); err != nil {
		return enginerr.NewPersistenceError("trace", "write", err).WithRetryable(false)
	}
	return nil
}

// mirrorTrace writes the pretty-printed JSON copy via tmp-and-rename so
// readers never see a partial file. Failures are swallowed; SQLite
// already holds the record.
func (s *Store) mirrorTrace(trace portfolio.DecisionTrace) {
	if s.traceDir == "" {
		return
	}

	data, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return
	}

	final := filepath.Join(s.traceDir, fmt.Sprintf("trace_%s.json", trace.TraceID))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return
	}
	_ = os.Rename(tmp, final)
}

// SliceExecutions returns the recorded slices for a parent order in
// insertion order.
func (s *Store) SliceExecutions(orderID string) ([]twap.SliceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT slice, status, requested, actual, price, units, reason, ts
		 FROM slice_executions WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, enginerr.NewPersistenceError("trace", "query_slices", err)
	}
	defer rows.Close()

	var records []twap.SliceRecord
	for rows.Next() {
		var rec twap.SliceRecord
		var status, reason, ts string
		var price, units sql.NullFloat64
		if err := rows.Scan(&rec.Slice, &status, &rec.Requested, &rec.Actual, &price, &units, &reason, &ts); err != nil {
			return nil, enginerr.NewPersistenceError("trace", "scan_slice", err)
		}
		rec.Status = twap.SliceStatus(status)
		rec.Price = price.Float64
		rec.Units = units.Float64
		rec.Reason = reason
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Timestamp = parsed
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentTraces returns up to limit decision traces, newest first.
func (s *Store) RecentTraces(limit int) ([]portfolio.DecisionTrace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT payload FROM decision_traces ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, enginerr.NewPersistenceError("trace", "query_traces", err)
	}
	defer rows.Close()

	var traces []portfolio.DecisionTrace
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, enginerr.NewPersistenceError("trace", "scan_trace", err)
		}
		var trace portfolio.DecisionTrace
		if err := json.Unmarshal([]byte(payload), &trace); err != nil {
			continue
		}
		traces = append(traces, trace)
	}
	return traces, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
