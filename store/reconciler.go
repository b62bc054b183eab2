package store

import (
	"context"
	"errors"
	"sort"

	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/version"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// Updater writes a row to a version.
type Updater interface {
	UpdateVersion(ctx context.Context, id string, row version.Row) (version.Row, error)
}

// ColumnGroup is a set of optional columns dropped together when the
// store does not have them.
type ColumnGroup struct {
	Name    string
	Columns []string
}

// OptionalGroups are the column groups older schemas may lack.
var OptionalGroups = []ColumnGroup{
	{Name: "arrays", Columns: []string{"arrays_blob_path", "arrays_blob_size_bytes", "analyzer_arrays"}},
	{Name: "analyzer_key", Columns: []string{"analyzer_key"}},
}

// Reconciler persists version rows, dropping optional column groups the
// store rejects. Each group is dropped at most once.
type Reconciler struct {
	log     *zap.SugaredLogger
	updater Updater
	groups  []ColumnGroup
}

func NewReconciler(logger *zap.SugaredLogger, updater Updater, groups []ColumnGroup) *Reconciler {
	return &Reconciler{log: logger, updater: updater, groups: groups}
}

// ProvideReconciler wires the reconciler to the SQL store.
func ProvideReconciler(logger *zap.SugaredLogger, s *SQLStore) *Reconciler {
	return NewReconciler(logger, s, OptionalGroups)
}

// Persist writes row. On a schema error it drops every not yet dropped
// group that intersects the missing columns and retries. Missing columns
// outside the optional groups are fatal.
func (r *Reconciler) Persist(ctx context.Context, id string, row version.Row) (version.Row, error) {
	dropped := map[string]bool{}
	payload := row

	for attempt := 0; attempt <= len(r.groups); attempt++ {
		out, err := r.updater.UpdateVersion(ctx, id, payload)
		if err == nil {
			return out, nil
		}

		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			if apperr.KindOf(err) != apperr.Internal {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.Persistence, "persist", err)
		}

		var drop []ColumnGroup
		for _, g := range r.groups {
			if dropped[g.Name] {
				continue
			}
			for _, c := range g.Columns {
				if schemaErr.Missing(c) {
					drop = append(drop, g)
					break
				}
			}
		}
		if len(drop) == 0 {
			r.log.Errorw("Store rejected columns outside optional groups",
				"versionId", id,
				"missing", sortedKeys(schemaErr.MissingColumns),
			)
			return nil, apperr.Wrap(apperr.Schema, "persist", err)
		}

		for _, g := range drop {
			dropped[g.Name] = true
			payload = payload.Without(g.Columns...)
			r.log.Warnw("Dropping optional column group and retrying",
				"versionId", id,
				"group", g.Name,
				"columns", g.Columns,
				"missing", sortedKeys(schemaErr.MissingColumns),
			)
		}
	}
	return nil, apperr.New(apperr.Persistence, "persist", "retries exhausted")
}

func sortedKeys(m map[string]struct{}) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}
