package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

// Logical document names. Each is a whole JSON document loaded and saved
// as a unit; a missing or corrupt body always falls back to the typed
// default, never an error.
const (
	DocState         = "state"
	DocApproaches    = "approaches"
	DocRelationships = "relationships"
	DocIdentities    = "identities"
	DocClaims        = "claims"
	DocLearnings     = "learnings"
	DocChanges       = "changes"
)

type Store struct{ db *sql.DB }

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS documents (
	name TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS action_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	detail TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS run_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_type TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NOT NULL,
	summary TEXT
);
`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// loadDoc unmarshals the stored body for name over def. def must already
// hold the compiled-in default value, so fields absent from the stored
// document keep their defaults (shallow merge) and a corrupt body leaves
// def untouched.
func (s *Store) loadDoc(ctx context.Context, name string, def any) {
	var body string
	row := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, name)
	if err := row.Scan(&body); err != nil {
		return
	}
	_ = json.Unmarshal([]byte(body), def)
}

func (s *Store) saveDoc(ctx context.Context, name string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (name, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at
	`, name, string(body), time.Now())
	return err
}

func (s *Store) LoadState(ctx context.Context) *models.State {
	st := models.DefaultState()
	s.loadDoc(ctx, DocState, st)
	if st.Contacts == nil {
		st.Contacts = map[string]*models.Contact{}
	}
	if st.Leads == nil {
		st.Leads = map[string]*models.Lead{}
	}
	return st
}

func (s *Store) SaveState(ctx context.Context, st *models.State) error {
	return s.saveDoc(ctx, DocState, st)
}

func (s *Store) LoadApproaches(ctx context.Context) *models.ApproachesDoc {
	doc := models.DefaultApproaches()
	s.loadDoc(ctx, DocApproaches, doc)
	if doc.Approaches == nil {
		doc.Approaches = map[string]*models.Approach{}
	}
	if doc.Retired == nil {
		doc.Retired = map[string]*models.Approach{}
	}
	return doc
}

func (s *Store) SaveApproaches(ctx context.Context, doc *models.ApproachesDoc) error {
	doc.LastUpdated = time.Now()
	return s.saveDoc(ctx, DocApproaches, doc)
}

func (s *Store) LoadRelationships(ctx context.Context) *models.RelationshipsDoc {
	doc := models.DefaultRelationships()
	s.loadDoc(ctx, DocRelationships, doc)
	if doc.Relationships == nil {
		doc.Relationships = map[string]*models.Relationship{}
	}
	return doc
}

func (s *Store) SaveRelationships(ctx context.Context, doc *models.RelationshipsDoc) error {
	return s.saveDoc(ctx, DocRelationships, doc)
}

func (s *Store) LoadIdentities(ctx context.Context) *models.IdentitiesDoc {
	doc := models.DefaultIdentities()
	s.loadDoc(ctx, DocIdentities, doc)
	if doc.Links == nil {
		doc.Links = map[string]*models.IdentityLink{}
	}
	return doc
}

func (s *Store) SaveIdentities(ctx context.Context, doc *models.IdentitiesDoc) error {
	return s.saveDoc(ctx, DocIdentities, doc)
}

func (s *Store) LoadClaims(ctx context.Context) *models.ClaimsDoc {
	doc := models.DefaultClaims()
	s.loadDoc(ctx, DocClaims, doc)
	return doc
}

func (s *Store) SaveClaims(ctx context.Context, doc *models.ClaimsDoc) error {
	return s.saveDoc(ctx, DocClaims, doc)
}

func (s *Store) LoadLearnings(ctx context.Context) *models.LearningsDoc {
	doc := models.DefaultLearnings()
	s.loadDoc(ctx, DocLearnings, doc)
	return doc
}

func (s *Store) SaveLearnings(ctx context.Context, doc *models.LearningsDoc) error {
	return s.saveDoc(ctx, DocLearnings, doc)
}

func (s *Store) LoadChanges(ctx context.Context) *models.ChangesDoc {
	doc := models.DefaultChanges()
	s.loadDoc(ctx, DocChanges, doc)
	return doc
}

func (s *Store) SaveChanges(ctx context.Context, doc *models.ChangesDoc) error {
	return s.saveDoc(ctx, DocChanges, doc)
}

// LogAction appends to the action log and trims it to keep rows.
func (s *Store) LogAction(ctx context.Context, typ, detail string, keep int) {
	if len(detail) > 500 {
		detail = detail[:500]
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO action_log (type, detail, created_at) VALUES (?, ?, ?)`,
		typ, detail, time.Now()); err != nil {
		return
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM action_log WHERE id NOT IN (
		SELECT id FROM action_log ORDER BY id DESC LIMIT ?)`, keep)
}

type ActionEntry struct {
	Type      string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) RecentActions(ctx context.Context, typ string, limit int) ([]ActionEntry, error) {
	var rows *sql.Rows
	var err error
	if typ != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT type, detail, created_at FROM action_log WHERE type = ? ORDER BY id DESC LIMIT ?`, typ, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT type, detail, created_at FROM action_log ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActionEntry
	for rows.Next() {
		var e ActionEntry
		if err := rows.Scan(&e.Type, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) LogRun(ctx context.Context, runType string, started, ended time.Time, summary string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO run_log (run_type, started_at, ended_at, summary) VALUES (?, ?, ?, ?)`,
		runType, started, ended, summary)
	return err
}
