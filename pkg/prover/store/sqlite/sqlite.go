package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/prover/pkg/prover/internalerr"
	"github.com/cognicore/prover/pkg/prover/kb"
	"github.com/cognicore/prover/pkg/prover/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// PRAGMAs are per connection; a single connection keeps them in force
	// and serializes writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize schema
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS knowledge_bases (
	name TEXT PRIMARY KEY,
	saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kb_facts (
	kb TEXT NOT NULL,
	id INTEGER NOT NULL,
	description TEXT NOT NULL,
	PRIMARY KEY(kb, id),
	FOREIGN KEY(kb) REFERENCES knowledge_bases(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS kb_rules (
	kb TEXT NOT NULL,
	id INTEGER NOT NULL,
	antecedents TEXT NOT NULL,
	consequent INTEGER NOT NULL,
	PRIMARY KEY(kb, id),
	FOREIGN KEY(kb) REFERENCES knowledge_bases(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kb TEXT,
	method TEXT,
	known TEXT,
	goal TEXT,
	proved INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	proof TEXT,
	elapsed_ns INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveKnowledgeBase replaces the knowledge base stored under name
func (s *sqliteStore) SaveKnowledgeBase(ctx context.Context, name string, k *kb.KnowledgeBase) error {
	if name == "" || k == nil {
		return fmt.Errorf("save knowledge base: %w", internalerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM kb_rules WHERE kb=?`,
		`DELETE FROM kb_facts WHERE kb=?`,
		`DELETE FROM knowledge_bases WHERE name=?`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO knowledge_bases (name, saved_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}

	facts, rules := store.Records(k)
	if err := insertFacts(ctx, tx, name, facts); err != nil {
		return err
	}
	if err := insertRules(ctx, tx, name, rules); err != nil {
		return err
	}

	return tx.Commit()
}

func insertFacts(ctx context.Context, tx *sql.Tx, name string, facts []kb.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kb_facts (kb, id, description) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, name, f.ID, f.Desc); err != nil {
			return err
		}
	}
	return nil
}

func insertRules(ctx context.Context, tx *sql.Tx, name string, rules []store.RuleRecord) error {
	if len(rules) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kb_rules (kb, id, antecedents, consequent) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rules {
		ants, err := json.Marshal(r.Antecedents)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, name, r.ID, string(ants), r.Consequent); err != nil {
			return err
		}
	}
	return nil
}

// LoadKnowledgeBase rebuilds the knowledge base stored under name
func (s *sqliteStore) LoadKnowledgeBase(ctx context.Context, name string) (*kb.KnowledgeBase, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM knowledge_bases WHERE name=?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("knowledge base %q: %w", name, internalerr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	facts, err := s.loadFacts(ctx, name)
	if err != nil {
		return nil, err
	}
	rules, err := s.loadRules(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.Rebuild(facts, rules)
}

func (s *sqliteStore) loadFacts(ctx context.Context, name string) ([]kb.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description FROM kb_facts WHERE kb=? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []kb.Fact
	for rows.Next() {
		var f kb.Fact
		if err := rows.Scan(&f.ID, &f.Desc); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *sqliteStore) loadRules(ctx context.Context, name string) ([]store.RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, antecedents, consequent FROM kb_rules WHERE kb=? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []store.RuleRecord
	for rows.Next() {
		var (
			r    store.RuleRecord
			ants string
		)
		if err := rows.Scan(&r.ID, &ants, &r.Consequent); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ants), &r.Antecedents); err != nil {
			return nil, fmt.Errorf("rule %d antecedents: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// KnowledgeBases lists stored knowledge base names
func (s *sqliteStore) KnowledgeBases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM knowledge_bases ORDER BY name`)
	if err != nil {
		return nil, err
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

// RecordRun inserts or replaces a run
func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id: %w", internalerr.ErrInvalidInput)
	}

	known, err := json.Marshal(r.Known)
	if err != nil {
		return err
	}
	goal, err := json.Marshal(r.Goal)
	if err != nil {
		return err
	}
	proof, err := json.Marshal(r.Proof)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, kb, method, known, goal, proved, depth, proof, elapsed_ns, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kb=excluded.kb,
	method=excluded.method,
	known=excluded.known,
	goal=excluded.goal,
	proved=excluded.proved,
	depth=excluded.depth,
	proof=excluded.proof,
	elapsed_ns=excluded.elapsed_ns,
	created_at=excluded.created_at;
`,
		r.ID,
		r.KB,
		r.Method,
		string(known),
		string(goal),
		boolToInt(r.Proved),
		r.Depth,
		string(proof),
		r.Elapsed.Nanoseconds(),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const runColumns = `id, kb, method, known, goal, proved, depth, proof, elapsed_ns, created_at`

// GetRun retrieves a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, fmt.Errorf("run %q: %w", id, internalerr.ErrNotFound)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first
func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	// ULIDs sort by creation time
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (store.Run, error) {
	var (
		r                  store.Run
		known, goal, proof string
		proved             int
		elapsed            int64
		created            string
	)
	if err := sc.Scan(&r.ID, &r.KB, &r.Method, &known, &goal, &proved, &r.Depth, &proof, &elapsed, &created); err != nil {
		return store.Run{}, err
	}

	if err := decodeStrings(known, &r.Known); err != nil {
		return store.Run{}, err
	}
	if err := decodeStrings(goal, &r.Goal); err != nil {
		return store.Run{}, err
	}
	if err := decodeStrings(proof, &r.Proof); err != nil {
		return store.Run{}, err
	}

	r.Proved = proved != 0
	r.Elapsed = time.Duration(elapsed)
	if parsed, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		r.CreatedAt = parsed
	}
	return r, nil
}

func decodeStrings(raw string, out *[]string) error {
	if raw == "" || raw == "null" {
		*out = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
