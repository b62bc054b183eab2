// Package store reads and writes project versions in a relational
// database and degrades writes gracefully when optional columns are missing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/version"
	"golang.org/x/exp/maps"
)

const projectsTable = "projects"

// Dialect selects placeholder syntax.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) Dialect {
	if driver == "sqlite" {
		return SQLite
	}
	return Postgres
}

// jsonColumns hold JSON documents and are decoded on read.
var jsonColumns = map[string]bool{
	"analyzer_json":         true,
	"analyzer_reference_ai": true,
	"analyzer_mix_v1":       true,
	"analyzer_arrays":       true,
	"feedback":              true,
	"fix_suggestions":       true,
}

// SQLStore is a database/sql backed version store.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// ProvideStore provides the version store for the configured driver.
func ProvideStore(db *sql.DB, cfg config.Config) *SQLStore {
	return NewSQLStore(db, DialectFor(cfg.DatabaseDriver))
}

var Options = ProvideStore

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

func (s *SQLStore) GetVersion(ctx context.Context, id string) (version.Version, error) {
	q := fmt.Sprintf(
		`SELECT id, project_id, audio_url, audio_path, version_name, mix_type FROM %s WHERE id = %s`,
		quoteIdent(version.Table), s.placeholder(1),
	)

	var v version.Version
	var projectID, audioURL, audioPath, name, mixType sql.NullString
	err := s.db.QueryRowContext(ctx, q, id).Scan(&v.ID, &projectID, &audioURL, &audioPath, &name, &mixType)
	if errors.Is(err, sql.ErrNoRows) {
		return v, apperr.New(apperr.NotFound, "store.version", "version not found")
	}
	if err != nil {
		return v, wrapRead(version.Table, err)
	}
	v.ProjectID = projectID.String
	v.AudioURL = audioURL.String
	v.AudioPath = audioPath.String
	v.Name = name.String
	v.MixType = mixType.String
	return v, nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (version.Project, error) {
	q := fmt.Sprintf(`SELECT id, genre FROM %s WHERE id = %s`, quoteIdent(projectsTable), s.placeholder(1))

	var p version.Project
	var genre sql.NullString
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &genre)
	if errors.Is(err, sql.ErrNoRows) {
		return p, apperr.New(apperr.NotFound, "store.project", "project not found")
	}
	if err != nil {
		return p, wrapRead(projectsTable, err)
	}
	p.Genre = genre.String
	return p, nil
}

// ArraysPath returns the stored arrays blob path of a version, or "" when
// the version has none or the column does not exist.
func (s *SQLStore) ArraysPath(ctx context.Context, id string) (string, error) {
	var p sql.NullString
	err := s.selectColumn(ctx, id, "arrays_blob_path", &p)
	if err != nil {
		return "", err
	}
	return p.String, nil
}

// StoredArrays returns the arrays view persisted on the row, or nil when
// it is empty or the column does not exist.
func (s *SQLStore) StoredArrays(ctx context.Context, id string) (map[string]any, error) {
	var raw any
	if err := s.selectColumn(ctx, id, "analyzer_arrays", &raw); err != nil {
		return nil, err
	}
	v := decodeValue("analyzer_arrays", raw)
	m, _ := v.(map[string]any)
	return m, nil
}

func (s *SQLStore) selectColumn(ctx context.Context, id, col string, dest any) error {
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = %s`, quoteIdent(col), quoteIdent(version.Table), s.placeholder(1))
	err := s.db.QueryRowContext(ctx, q, id).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.NotFound, "store.version", "version not found")
	}
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(classify(version.Table, err), &schemaErr) {
			return nil
		}
		return wrapRead(version.Table, err)
	}
	return nil
}

// UpdateVersion writes row to the version and returns the updated row.
// Unknown columns surface as *SchemaError.
func (s *SQLStore) UpdateVersion(ctx context.Context, id string, row version.Row) (version.Row, error) {
	if len(row) == 0 {
		return nil, apperr.New(apperr.Validation, "store.update", "empty row")
	}

	cols := maps.Keys(row)
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", quoteIdent(c), s.placeholder(i+1))
		v, err := encodeValue(row[c])
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %s: %w", c, err)
		}
		args = append(args, v)
	}
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE %s SET %s WHERE id = %s RETURNING *`,
		quoteIdent(version.Table), strings.Join(sets, ", "), s.placeholder(len(cols)+1))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(version.Table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classify(version.Table, err)
		}
		return nil, apperr.New(apperr.NotFound, "store.update", "version not found")
	}
	out, err := scanRow(rows)
	if err != nil {
		return nil, err
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows) (version.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(version.Row, len(cols))
	for i, c := range cols {
		out[c] = decodeValue(c, vals[i])
	}
	return out, nil
}

// encodeValue stores objects and arrays as JSON text.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct, reflect.Array:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

func decodeValue(col string, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	s, ok := v.(string)
	if !ok || !jsonColumns[col] {
		return v
	}
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(t), &out); err != nil {
		return v
	}
	return out
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func wrapRead(table string, err error) error {
	err = classify(table, err)
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return apperr.Wrap(apperr.Schema, "store.read", err)
	}
	return apperr.Wrap(apperr.Persistence, "store.read", err)
}
