package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/exp/maps"
	"modernc.org/sqlite"
)

// SchemaError reports columns the store does not have.
type SchemaError struct {
	Table          string
	MissingColumns map[string]struct{}
	Err            error
}

func (e *SchemaError) Error() string {
	cols := maps.Keys(e.MissingColumns)
	sort.Strings(cols)
	return fmt.Sprintf("table %s is missing columns [%s]", e.Table, strings.Join(cols, ", "))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Missing reports whether col is among the missing columns.
func (e *SchemaError) Missing(col string) bool {
	_, ok := e.MissingColumns[col]
	return ok
}

// pq reports undefined columns with SQLSTATE 42703.
const pqUndefinedColumn = "42703"

var columnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`column "([^"]+)"`),
	regexp.MustCompile(`no such column: "?([A-Za-z0-9_.]+)"?`),
	regexp.MustCompile(`has no column named "?([A-Za-z0-9_]+)"?`),
}

// classify turns driver errors about unknown columns into *SchemaError.
// Other errors are returned unchanged.
func classify(table string, err error) error {
	if err == nil {
		return nil
	}

	var msg string
	var pqErr *pq.Error
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &pqErr):
		if pqErr.Code != pqUndefinedColumn {
			return err
		}
		msg = pqErr.Message
	case errors.As(err, &liteErr):
		msg = liteErr.Error()
	default:
		return err
	}

	missing := map[string]struct{}{}
	for _, re := range columnPatterns {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			col := m[1]
			if i := strings.LastIndex(col, "."); i >= 0 {
				col = col[i+1:]
			}
			missing[col] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return err
	}
	return &SchemaError{Table: table, MissingColumns: missing, Err: err}
}
