package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/logger"
	"github.com/mager/cochlea/version"
	_ "modernc.org/sqlite"
)

const legacySchema = `
CREATE TABLE projects (id TEXT PRIMARY KEY, genre TEXT);
CREATE TABLE project_versions (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	audio_url TEXT,
	audio_path TEXT,
	version_name TEXT,
	mix_type TEXT,
	lufs REAL,
	overall_score REAL,
	analyzer_json TEXT,
	analyzer_key TEXT
);
INSERT INTO projects (id, genre) VALUES ('p-1', 'Minimal Deep Tech');
INSERT INTO project_versions (id, project_id, audio_path, version_name, mix_type)
	VALUES ('v-1', 'p-1', 'p-1/master.wav', 'Master 1', 'master');
`

func newTestStore(t *testing.T, schema string) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewSQLStore(db, SQLite)
}

type countingUpdater struct {
	next  Updater
	calls []version.Row
}

func (c *countingUpdater) UpdateVersion(ctx context.Context, id string, row version.Row) (version.Row, error) {
	c.calls = append(c.calls, row)
	return c.next.UpdateVersion(ctx, id, row)
}

func TestGetVersionAndProject(t *testing.T) {
	s := newTestStore(t, legacySchema)
	ctx := context.Background()

	v, err := s.GetVersion(ctx, "v-1")
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if v.ProjectID != "p-1" || v.MixType != "master" || v.AudioURL != "" {
		t.Errorf("version = %+v", v)
	}

	p, err := s.GetProject(ctx, v.ProjectID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.Genre != "Minimal Deep Tech" {
		t.Errorf("genre = %q", p.Genre)
	}

	if _, err := s.GetVersion(ctx, "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestUpdateVersionUnknownColumn(t *testing.T) {
	s := newTestStore(t, legacySchema)

	_, err := s.UpdateVersion(context.Background(), "v-1", version.Row{"arrays_blob_path": "a/arrays.json", "lufs": -8.0})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}
	if !schemaErr.Missing("arrays_blob_path") {
		t.Errorf("missing = %v", schemaErr.MissingColumns)
	}
}

func TestReconcilerDropsArraysGroupOnce(t *testing.T) {
	s := newTestStore(t, legacySchema)
	log, logs := logger.NewTestLogger()
	counter := &countingUpdater{next: s}
	r := NewReconciler(log, counter, OptionalGroups)

	row := version.Row{
		"lufs":                   -8.25,
		"overall_score":          72.5,
		"analyzer_key":           "A minor",
		"analyzer_json":          map[string]any{"version_id": "v-1"},
		"arrays_blob_path":       "analyzer/p-1/v-1/arrays.json",
		"arrays_blob_size_bytes": int64(4096),
		"analyzer_arrays":        map[string]any{"bpm": 124.0},
	}

	out, err := r.Persist(context.Background(), "v-1", row)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(counter.calls) != 2 {
		t.Fatalf("attempts = %d, want 2", len(counter.calls))
	}
	for _, c := range []string{"arrays_blob_path", "arrays_blob_size_bytes", "analyzer_arrays"} {
		if _, ok := counter.calls[1][c]; ok {
			t.Errorf("retry still carries %s", c)
		}
	}
	if out["analyzer_key"] != "A minor" {
		t.Errorf("analyzer_key = %v", out["analyzer_key"])
	}
	if out["lufs"] != -8.25 {
		t.Errorf("lufs = %v", out["lufs"])
	}
	aj, ok := out["analyzer_json"].(map[string]any)
	if !ok || aj["version_id"] != "v-1" {
		t.Errorf("analyzer_json = %#v", out["analyzer_json"])
	}

	entries := logs.FilterMessage("Dropping optional column group and retrying").All()
	if len(entries) != 1 {
		t.Fatalf("degradation logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["group"]; got != "arrays" {
		t.Errorf("logged group = %v", got)
	}
}

func TestReconcilerDropsBothGroups(t *testing.T) {
	schema := `
CREATE TABLE project_versions (id TEXT PRIMARY KEY, lufs REAL);
INSERT INTO project_versions (id) VALUES ('v-1');
`
	s := newTestStore(t, schema)
	log, _ := logger.NewTestLogger()
	counter := &countingUpdater{next: s}
	r := NewReconciler(log, counter, OptionalGroups)

	row := version.Row{"lufs": -9.0, "analyzer_key": "C", "arrays_blob_path": "x/arrays.json"}
	if _, err := r.Persist(context.Background(), "v-1", row); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(counter.calls) != 3 {
		t.Errorf("attempts = %d, want 3", len(counter.calls))
	}
}

func TestReconcilerUnknownColumnIsFatal(t *testing.T) {
	s := newTestStore(t, legacySchema)
	log, _ := logger.NewTestLogger()
	counter := &countingUpdater{next: s}
	r := NewReconciler(log, counter, OptionalGroups)

	_, err := r.Persist(context.Background(), "v-1", version.Row{"tonality": 80.0})
	if !apperr.Is(err, apperr.Schema) {
		t.Errorf("err = %v, want schema error", err)
	}
	if len(counter.calls) != 1 {
		t.Errorf("attempts = %d, want 1", len(counter.calls))
	}
}

type failingUpdater struct{ err error }

func (f failingUpdater) UpdateVersion(context.Context, string, version.Row) (version.Row, error) {
	return nil, f.err
}

func TestReconcilerOtherErrorIsPersistence(t *testing.T) {
	log, _ := logger.NewTestLogger()
	r := NewReconciler(log, failingUpdater{err: errors.New("connection refused")}, OptionalGroups)

	_, err := r.Persist(context.Background(), "v-1", version.Row{"lufs": -8.0})
	if !apperr.Is(err, apperr.Persistence) {
		t.Errorf("err = %v, want persistence error", err)
	}
}

func TestClassifyPostgresError(t *testing.T) {
	pqErr := &pq.Error{
		Code:    "42703",
		Message: `column "arrays_blob_path" of relation "project_versions" does not exist`,
	}

	var schemaErr *SchemaError
	if !errors.As(classify("project_versions", pqErr), &schemaErr) {
		t.Fatal("undefined column should classify as a schema error")
	}
	if len(schemaErr.MissingColumns) != 1 || !schemaErr.Missing("arrays_blob_path") {
		t.Errorf("missing = %v", schemaErr.MissingColumns)
	}

	other := &pq.Error{Code: "23505", Message: "duplicate key"}
	if _, ok := classify("project_versions", other).(*SchemaError); ok {
		t.Error("other SQLSTATE codes should pass through")
	}
	if err := classify("project_versions", errors.New("plain")); err.Error() != "plain" {
		t.Errorf("plain error changed: %v", err)
	}
}

func TestStoredArraysMissingColumn(t *testing.T) {
	s := newTestStore(t, legacySchema)

	arrays, err := s.StoredArrays(context.Background(), "v-1")
	if err != nil {
		t.Fatalf("StoredArrays: %v", err)
	}
	if arrays != nil {
		t.Errorf("arrays = %v, want nil", arrays)
	}
	p, err := s.ArraysPath(context.Background(), "v-1")
	if err != nil || p != "" {
		t.Errorf("ArraysPath = %q, %v", p, err)
	}
}
