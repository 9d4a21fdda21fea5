package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/gnemet/viewsets/field"
)

// Dialect renders the database specific parts of a query.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker of the n-th argument (1-based).
	Placeholder(n int) string
	Quote(ident string) string
	// Match renders a pattern match of expr against the bound pattern ph.
	Match(expr, ph string, insensitive bool) string
	// Pattern builds the bound pattern for Match. prefix and suffix add
	// wildcards before and after the escaped value.
	Pattern(value string, prefix, suffix, insensitive bool) string
	// Transform renders a lookup transform over expr. It returns "" for
	// transforms the dialect cannot express.
	Transform(op, expr string) string
	// TransformValue converts a value compared against the output of
	// transform op.
	TransformValue(op string, v any) any
	// Aggregate renders a over expr. sqrt reports that the scanned value
	// still needs a square root.
	Aggregate(a field.Aggregate, expr string) (sql string, sqrt bool)
	// Returning reports whether INSERT ... RETURNING is supported.
	Returning() bool
}

// DialectFor returns the dialect registered for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(value string, prefix, suffix bool) string {
	p := likeEscaper.Replace(value)
	if prefix {
		p = "%" + p
	}
	if suffix {
		p += "%"
	}
	return p
}

func quoteDouble(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func aggregate(a field.Aggregate, expr string) string {
	switch a {
	case field.AggCount:
		return "COUNT(" + expr + ")"
	case field.AggAvg:
		return "AVG(" + expr + ")"
	case field.AggSum:
		return "SUM(" + expr + ")"
	case field.AggMin:
		return "MIN(" + expr + ")"
	case field.AggMax:
		return "MAX(" + expr + ")"
	case field.AggVariance:
		return "VAR_POP(" + expr + ")"
	case field.AggStdDev:
		return "STDDEV_POP(" + expr + ")"
	}
	return ""
}

// Postgres is the dialect of github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string              { return "postgres" }
func (Postgres) Placeholder(n int) string  { return fmt.Sprintf("$%d", n) }
func (Postgres) Quote(ident string) string { return quoteDouble(ident) }
func (Postgres) Returning() bool           { return true }

func (Postgres) Match(expr, ph string, insensitive bool) string {
	if insensitive {
		return expr + " ILIKE " + ph + ` ESCAPE '\'`
	}
	return expr + " LIKE " + ph + ` ESCAPE '\'`
}

func (Postgres) Pattern(value string, prefix, suffix, _ bool) string {
	return likePattern(value, prefix, suffix)
}

func (Postgres) Transform(op, x string) string {
	switch op {
	case "lower":
		return "LOWER(" + x + ")"
	case "length":
		return "CHAR_LENGTH(" + x + ")"
	case "round":
		return "ROUND(" + x + ")::bigint"
	case "year", "quarter", "month", "week", "day", "hour", "minute":
		return fmt.Sprintf("EXTRACT(%s FROM %s)::integer", strings.ToUpper(op), x)
	case "second":
		return fmt.Sprintf("FLOOR(EXTRACT(SECOND FROM %s))::integer", x)
	case "week_day":
		return fmt.Sprintf("(EXTRACT(DOW FROM %s)::integer + 1)", x)
	case "iso_week_day":
		return fmt.Sprintf("EXTRACT(ISODOW FROM %s)::integer", x)
	case "date":
		return x + "::date"
	case "time":
		return x + "::time"
	case "trunc_year", "trunc_quarter", "trunc_month", "trunc_week", "trunc_day",
		"trunc_hour", "trunc_minute", "trunc_second":
		return fmt.Sprintf("date_trunc('%s', %s)", strings.TrimPrefix(op, "trunc_"), x)
	}
	return ""
}

func (Postgres) TransformValue(_ string, v any) any { return v }

func (Postgres) Aggregate(a field.Aggregate, expr string) (string, bool) {
	return aggregate(a, expr), false
}

// SQLite is the dialect of modernc.org/sqlite. Case sensitive matches use
// GLOB since LIKE ignores ASCII case.
type SQLite struct{}

func (SQLite) Name() string              { return "sqlite" }
func (SQLite) Placeholder(int) string    { return "?" }
func (SQLite) Quote(ident string) string { return quoteDouble(ident) }
func (SQLite) Returning() bool           { return false }

func (SQLite) Match(expr, ph string, insensitive bool) string {
	if insensitive {
		return expr + " LIKE " + ph + ` ESCAPE '\'`
	}
	return expr + " GLOB " + ph
}

var globEscaper = strings.NewReplacer(`*`, `[*]`, `?`, `[?]`, `[`, `[[]`)

func (SQLite) Pattern(value string, prefix, suffix, insensitive bool) string {
	if insensitive {
		return likePattern(value, prefix, suffix)
	}
	p := globEscaper.Replace(value)
	if prefix {
		p = "*" + p
	}
	if suffix {
		p += "*"
	}
	return p
}

func (SQLite) Transform(op, x string) string {
	part := func(f string) string {
		return fmt.Sprintf("CAST(strftime('%s', %s) AS INTEGER)", f, x)
	}
	switch op {
	case "lower":
		return "LOWER(" + x + ")"
	case "length":
		return "LENGTH(" + x + ")"
	case "round":
		return "CAST(ROUND(" + x + ") AS INTEGER)"
	case "year":
		return part("%Y")
	case "quarter":
		return "((" + part("%m") + " + 2) / 3)"
	case "month":
		return part("%m")
	case "week":
		return part("%V")
	case "day":
		return part("%d")
	case "week_day":
		return "(" + part("%w") + " + 1)"
	case "iso_week_day":
		return "(((" + part("%w") + " + 6) % 7) + 1)"
	case "hour":
		return part("%H")
	case "minute":
		return part("%M")
	case "second":
		return part("%S")
	case "date":
		return "date(" + x + ")"
	case "time":
		return "time(" + x + ")"
	case "trunc_year":
		return fmt.Sprintf("strftime('%%Y-01-01 00:00:00', %s)", x)
	case "trunc_quarter":
		return fmt.Sprintf("printf('%%s-%%02d-01 00:00:00', strftime('%%Y', %s), ((%s - 1) / 3) * 3 + 1)", x, part("%m"))
	case "trunc_month":
		return fmt.Sprintf("strftime('%%Y-%%m-01 00:00:00', %s)", x)
	case "trunc_week":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d 00:00:00', %s, '-' || ((%s + 6) %% 7) || ' days')", x, part("%w"))
	case "trunc_day":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d 00:00:00', %s)", x)
	case "trunc_hour":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:00:00', %s)", x)
	case "trunc_minute":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:00', %s)", x)
	case "trunc_second":
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%S', %s)", x)
	}
	return ""
}

// TransformValue formats times the way the date and strftime transforms
// print them, since SQLite compares them as text.
func (SQLite) TransformValue(op string, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch {
	case op == "date":
		return t.UTC().Format(time.DateOnly)
	case strings.HasPrefix(op, "trunc_"):
		return t.UTC().Format(time.DateTime)
	}
	return v
}

func (SQLite) Aggregate(a field.Aggregate, expr string) (string, bool) {
	switch a {
	case field.AggVariance, field.AggStdDev:
		v := fmt.Sprintf("(AVG((%[1]s) * (%[1]s)) - AVG(%[1]s) * AVG(%[1]s))", expr)
		return v, a == field.AggStdDev
	}
	return aggregate(a, expr), false
}

// MySQL is the dialect of github.com/go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string             { return "mysql" }
func (MySQL) Placeholder(int) string   { return "?" }
func (MySQL) Returning() bool          { return false }
func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Match(expr, ph string, insensitive bool) string {
	if insensitive {
		return "LOWER(" + expr + ") LIKE LOWER(" + ph + `) ESCAPE '\\'`
	}
	return "CAST(" + expr + " AS BINARY) LIKE " + ph + ` ESCAPE '\\'`
}

func (MySQL) Pattern(value string, prefix, suffix, _ bool) string {
	return likePattern(value, prefix, suffix)
}

func (MySQL) Transform(op, x string) string {
	switch op {
	case "lower":
		return "LOWER(" + x + ")"
	case "length":
		return "CHAR_LENGTH(" + x + ")"
	case "round":
		return "CAST(ROUND(" + x + ") AS SIGNED)"
	case "year":
		return "YEAR(" + x + ")"
	case "quarter":
		return "QUARTER(" + x + ")"
	case "month":
		return "MONTH(" + x + ")"
	case "week":
		return "WEEK(" + x + ", 3)"
	case "day":
		return "DAYOFMONTH(" + x + ")"
	case "week_day":
		return "DAYOFWEEK(" + x + ")"
	case "iso_week_day":
		return "(WEEKDAY(" + x + ") + 1)"
	case "hour":
		return "HOUR(" + x + ")"
	case "minute":
		return "MINUTE(" + x + ")"
	case "second":
		return "SECOND(" + x + ")"
	case "date", "trunc_day":
		return "DATE(" + x + ")"
	case "time":
		return "TIME(" + x + ")"
	case "trunc_year":
		return "MAKEDATE(YEAR(" + x + "), 1)"
	case "trunc_quarter":
		return "(MAKEDATE(YEAR(" + x + "), 1) + INTERVAL QUARTER(" + x + ") - 1 QUARTER)"
	case "trunc_month":
		return "(MAKEDATE(YEAR(" + x + "), 1) + INTERVAL MONTH(" + x + ") - 1 MONTH)"
	case "trunc_week":
		return "(DATE(" + x + ") - INTERVAL WEEKDAY(" + x + ") DAY)"
	case "trunc_hour":
		return "CAST(DATE_FORMAT(" + x + ", '%Y-%m-%d %H:00:00') AS DATETIME)"
	case "trunc_minute":
		return "CAST(DATE_FORMAT(" + x + ", '%Y-%m-%d %H:%i:00') AS DATETIME)"
	case "trunc_second":
		return "CAST(DATE_FORMAT(" + x + ", '%Y-%m-%d %H:%i:%s') AS DATETIME)"
	}
	return ""
}

func (MySQL) TransformValue(_ string, v any) any { return v }

func (MySQL) Aggregate(a field.Aggregate, expr string) (string, bool) {
	return aggregate(a, expr), false
}
