package db

import (
	"fmt"
	"strings"
)

// ListQuery builds the filtered count and page queries of a list endpoint.
// Clauses use "$?" for their single placeholder; numbering is assigned as
// clauses are added.
type ListQuery struct {
	from    string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

// NewListQuery starts a query over from, which may be a join expression.
func NewListQuery(from, cols string) *ListQuery {
	return &ListQuery{from: from, cols: cols}
}

// Where adds clause with arg bound to its "$?" placeholder.
func (q *ListQuery) Where(clause string, arg interface{}) *ListQuery {
	q.args = append(q.args, arg)
	q.where = append(q.where, strings.ReplaceAll(clause, "$?", fmt.Sprintf("$%d", len(q.args))))
	return q
}

// Raw adds a clause without arguments.
func (q *ListQuery) Raw(clause string) *ListQuery {
	q.where = append(q.where, clause)
	return q
}

func (q *ListQuery) Eq(col string, v interface{}) *ListQuery {
	return q.Where(col+" = $?", v)
}

// Contains matches term case-insensitively as a substring of any of cols.
func (q *ListQuery) Contains(term string, cols ...string) *ListQuery {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " ILIKE $?"
	}
	return q.Where("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(term)+"%")
}

func (q *ListQuery) OrderBy(orderBy string) *ListQuery {
	q.orderBy = orderBy
	return q
}

func (q *ListQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *ListQuery) CountSQL() string {
	return "SELECT COUNT(*) FROM " + q.from + q.whereSQL()
}

func (q *ListQuery) Args() []interface{} { return q.args }

// PageSQL returns the data query with ORDER BY and LIMIT/OFFSET appended.
func (q *ListQuery) PageSQL() string {
	sql := "SELECT " + q.cols + " FROM " + q.from + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(q.args)+1, len(q.args)+2)
}

func (q *ListQuery) PageArgs(skip, limit int) []interface{} {
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, skip)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
