package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/models"
)

// Times are stored as RFC 3339 text with nanoseconds in UTC.
const timeLayout = time.RFC3339Nano

// table maps one entity kind to its columns. cols excludes id.
type table struct {
	name   string
	cols   []string
	values func(e models.Entity) []any
	scan   func(row scanner) (models.Entity, error)
}

type scanner interface {
	Scan(dest ...any) error
}

var tables = map[models.Kind]*table{
	models.KindCompany: {
		name: "companies",
		cols: []string{"name", "industry", "country", "created_at", "updated_at"},
		values: func(e models.Entity) []any {
			c := e.(*models.Company)
			return []any{c.Name, c.Industry, c.Country, formatTime(c.CreatedAt), formatTime(c.UpdatedAt)}
		},
		scan: func(row scanner) (models.Entity, error) {
			var (
				c        models.Company
				cat, uat string
			)
			if err := row.Scan(&c.ID, &c.Name, &c.Industry, &c.Country, &cat, &uat); err != nil {
				return nil, err
			}
			return &c, parseTimes(&c.Timestamps, cat, uat)
		},
	},
	models.KindEmployee: {
		name: "employees",
		cols: []string{"company_id", "first_name", "last_name", "email", "position", "hired_at", "active", "created_at", "updated_at"},
		values: func(e models.Entity) []any {
			m := e.(*models.Employee)
			return []any{m.CompanyID, m.FirstName, m.LastName, m.Email, m.Position,
				formatTime(m.HiredAt), m.Active, formatTime(m.CreatedAt), formatTime(m.UpdatedAt)}
		},
		scan: func(row scanner) (models.Entity, error) {
			var (
				m             models.Employee
				hat, cat, uat string
			)
			if err := row.Scan(&m.ID, &m.CompanyID, &m.FirstName, &m.LastName, &m.Email, &m.Position,
				&hat, &m.Active, &cat, &uat); err != nil {
				return nil, err
			}
			hired, err := parseTime(hat)
			if err != nil {
				return nil, err
			}
			m.HiredAt = hired
			return &m, parseTimes(&m.Timestamps, cat, uat)
		},
	},
	models.KindDocument: {
		name: "documents",
		cols: []string{"company_id", "employee_id", "title", "object_key", "content_type", "size_bytes", "created_at", "updated_at"},
		values: func(e models.Entity) []any {
			d := e.(*models.Document)
			return []any{d.CompanyID, d.EmployeeID, d.Title, d.ObjectKey, d.ContentType, d.SizeBytes,
				formatTime(d.CreatedAt), formatTime(d.UpdatedAt)}
		},
		scan: func(row scanner) (models.Entity, error) {
			var (
				d        models.Document
				cat, uat string
			)
			if err := row.Scan(&d.ID, &d.CompanyID, &d.EmployeeID, &d.Title, &d.ObjectKey, &d.ContentType,
				&d.SizeBytes, &cat, &uat); err != nil {
				return nil, err
			}
			return &d, parseTimes(&d.Timestamps, cat, uat)
		},
	},
}

func tableFor(kind models.Kind) (*table, error) {
	t, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", constants.ErrUnknownKind, kind)
	}
	return t, nil
}

func (t *table) selectCols() string {
	return "id, " + strings.Join(t.cols, ", ")
}

func (t *table) insertSQL(withID bool) string {
	cols := t.cols
	if withID {
		cols = append([]string{"id"}, cols...)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), marks)
}

// updateSQL leaves created_at alone.
func (t *table) updateSQL() (string, []int) {
	sets := make([]string, 0, len(t.cols))
	keep := make([]int, 0, len(t.cols))
	for i, c := range t.cols {
		if c == "created_at" {
			continue
		}
		sets = append(sets, c+" = ?")
		keep = append(keep, i)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.name, strings.Join(sets, ", ")), keep
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseTimes(ts *models.Timestamps, created, updated string) error {
	var err error
	if ts.CreatedAt, err = parseTime(created); err != nil {
		return err
	}
	ts.UpdatedAt, err = parseTime(updated)
	return err
}

var _ scanner = (*sql.Row)(nil)
