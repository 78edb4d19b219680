package pgstore

import (
	"fmt"
	"strings"

	"github.com/emergent-company/graphmerge/internal/store"
	"github.com/emergent-company/graphmerge/pkg/rdf"
)

// DefaultTable is the statements table created by the migrations.
const DefaultTable = "kb.statements"

// Compiler turns store queries into parameterized SQL over the statements
// table. Every pattern becomes one self-joined alias. All values are passed
// as parameters and every query carries a total ORDER BY.
type Compiler struct {
	Table string
}

// NewCompiler returns a compiler for DefaultTable.
func NewCompiler() *Compiler {
	return &Compiler{Table: DefaultTable}
}

// Compiled is a ready-to-run statement. Columns lists the output variables in
// SQL column order; every variable except the count occupies four SQL
// columns (value, kind, datatype, lang).
type Compiled struct {
	SQL     string
	Args    []any
	Columns []string
	CountAs string
}

type column struct {
	value, kind, datatype, lang string
	object                      bool
}

func positionColumn(alias, position string) column {
	switch position {
	case "subject":
		return column{value: alias + ".subject", kind: alias + ".subject_kind", datatype: "''", lang: "''"}
	case "predicate":
		return column{value: alias + ".predicate", kind: "'iri'", datatype: "''", lang: "''"}
	case "context":
		return column{value: alias + ".context", kind: alias + ".context_kind", datatype: "''", lang: "''"}
	default:
		return column{value: alias + ".object", kind: alias + ".object_kind", datatype: alias + ".datatype", lang: alias + ".lang", object: true}
	}
}

type builder struct {
	where []string
	args  []any
	vars  map[string]column
}

func (b *builder) cond(sql string, args ...any) {
	b.where = append(b.where, sql)
	b.args = append(b.args, args...)
}

func (b *builder) constant(col column, t rdf.Term) {
	b.cond(col.value+" = ?", t.Value)
	if col.kind != "'iri'" {
		b.cond(col.kind+" = ?", kindOf(t))
	}
	if col.object {
		b.cond(col.datatype+" = ?", t.Datatype)
		b.cond(col.lang+" = ?", t.Lang)
	}
}

func (b *builder) variable(name string, col column) {
	prev, ok := b.vars[name]
	if !ok {
		b.vars[name] = col
		return
	}
	b.cond(col.value + " = " + prev.value)
	b.cond(col.kind + " = " + prev.kind)
	if col.object && prev.object {
		b.cond(col.datatype + " = " + prev.datatype)
		b.cond(col.lang + " = " + prev.lang)
	}
}

func (b *builder) node(n store.Node, col column) {
	if n.IsVar() {
		b.variable(n.Var, col)
		return
	}
	b.constant(col, n.Term)
}

// Compile builds SQL for q scoped to tenant.
func (c *Compiler) Compile(tenant string, q store.Query) (*Compiled, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b := &builder{vars: make(map[string]column)}
	from := make([]string, 0, len(q.Where))
	for i, p := range q.Where {
		alias := fmt.Sprintf("t%d", i)
		from = append(from, c.Table+" AS "+alias)
		b.cond(alias+".tenant = ?", tenant)

		switch {
		case p.Context.IsVar():
			b.variable(p.Context.Var, positionColumn(alias, "context"))
		case p.Context.Term.IsZero():
			b.cond(alias + ".context = ''")
		default:
			b.constant(positionColumn(alias, "context"), p.Context.Term)
		}
		b.node(p.Subject, positionColumn(alias, "subject"))
		b.node(p.Predicate, positionColumn(alias, "predicate"))
		b.node(p.Object, positionColumn(alias, "object"))
	}

	for _, f := range q.Filters {
		col := b.vars[f.Var]
		switch f.Op {
		case store.FilterEqual:
			b.cond(termEquals(col), f.Value.Value, kindOf(f.Value), f.Value.Datatype, f.Value.Lang)
		case store.FilterNotEqual:
			b.cond("NOT "+termEquals(col), f.Value.Value, kindOf(f.Value), f.Value.Datatype, f.Value.Lang)
		case store.FilterStrEqual:
			b.cond(col.value+" = ?", f.Value.Value)
		case store.FilterIsIRI:
			b.cond(col.kind + " = 'iri'")
		}
	}

	cols := q.Columns()
	var selects []string
	for _, name := range cols {
		if name == q.CountAs {
			selects = append(selects, fmt.Sprintf(`COUNT(*) AS "%s"`, name))
			continue
		}
		col := b.vars[name]
		selects = append(selects,
			fmt.Sprintf(`%s COLLATE "C" AS "%s__value"`, col.value, name),
			fmt.Sprintf(`%s AS "%s__kind"`, col.kind, name),
			fmt.Sprintf(`%s AS "%s__datatype"`, col.datatype, name),
			fmt.Sprintf(`%s AS "%s__lang"`, col.lang, name),
		)
	}
	if len(selects) == 0 {
		selects = []string{`1 AS "_"`}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if q.Distinct && !q.Grouped() {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(strings.Join(from, ", "))
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(b.where, " AND "))

	args := b.args
	if len(q.GroupBy) > 0 {
		var groups []string
		for _, g := range q.GroupBy {
			col := b.vars[g]
			for _, expr := range []string{col.value, col.kind, col.datatype, col.lang} {
				// Postgres rejects literal constants in GROUP BY.
				if !strings.HasPrefix(expr, "'") {
					groups = append(groups, expr)
				}
			}
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}
	if q.HavingCountAbove > 0 {
		sb.WriteString(" HAVING COUNT(*) > ?")
		args = append(args, q.HavingCountAbove)
	}

	var order []string
	for _, name := range append(append([]string(nil), q.OrderBy...), cols...) {
		if name == q.CountAs {
			order = append(order, fmt.Sprintf(`"%s"`, name))
			continue
		}
		order = append(order,
			fmt.Sprintf(`"%s__value"`, name),
			fmt.Sprintf(`"%s__kind"`, name),
			fmt.Sprintf(`"%s__datatype"`, name),
			fmt.Sprintf(`"%s__lang"`, name),
		)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	if len(cols) == 0 {
		cols = nil
	}
	return &Compiled{SQL: sb.String(), Args: args, Columns: cols, CountAs: q.CountAs}, nil
}

func termEquals(col column) string {
	return fmt.Sprintf("(%s = ? AND %s = ? AND %s = ? AND %s = ?)", col.value, col.kind, col.datatype, col.lang)
}

func kindOf(t rdf.Term) string {
	if t.IsZero() {
		return ""
	}
	return t.Kind.String()
}
