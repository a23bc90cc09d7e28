package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"recipebook/executor"

	"go.uber.org/zap"
)

// RuleClass selects how a seed rule decides a record already exists.
type RuleClass string

const (
	// ClassUpsert inserts and, on a natural-key conflict, overwrites only the
	// Mutable columns (or does nothing when there are none).
	ClassUpsert RuleClass = "upsert"
	// ClassGuarded inserts only when no row with the same Key exists; nothing
	// is ever overwritten.
	ClassGuarded RuleClass = "guarded"
	// ClassDependent is ClassGuarded for a child row whose parents are
	// resolved by natural key when the statement runs. A missing parent
	// makes the rule insert nothing.
	ClassDependent RuleClass = "dependent"
)

var ErrInvalidRule = errors.New("invalid seed rule")

// A Field is one column of a seed record. Value is a string, int, float64,
// bool or Lookup.
type Field struct {
	Column string
	Value  any
}

// F is shorthand for a Field.
func F(column string, value any) Field {
	return Field{Column: column, Value: value}
}

// A Lookup resolves the id of a parent row by its natural key at statement
// time. Match values may themselves be Lookups.
type Lookup struct {
	Table    string
	Match    []Field
	Optional bool
}

// Required resolves a parent that must exist for the record to be inserted.
func Required(table string, match ...Field) Lookup {
	return Lookup{Table: table, Match: match}
}

// Optional resolves a parent that becomes NULL when absent.
func Optional(table string, match ...Field) Lookup {
	return Lookup{Table: table, Match: match, Optional: true}
}

// A Rule describes one seed record and how its existence is detected.
type Rule struct {
	Name    string
	Class   RuleClass
	Table   string
	Fields  []Field
	Key     []string
	Mutable []string
}

func (r Rule) field(column string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

func (r Rule) requiredParents() int {
	n := 0
	for _, f := range r.Fields {
		if l, ok := f.Value.(Lookup); ok && !l.Optional {
			n++
		}
	}
	return n
}

// Validate checks the rule is well formed for its class.
func (r Rule) Validate() error {
	if r.Table == "" || len(r.Fields) == 0 {
		return fmt.Errorf("%w %q: table and fields are required", ErrInvalidRule, r.Name)
	}
	if len(r.Key) == 0 {
		return fmt.Errorf("%w %q: no natural key", ErrInvalidRule, r.Name)
	}
	for _, k := range r.Key {
		f, ok := r.field(k)
		if !ok {
			return fmt.Errorf("%w %q: key column %s has no value", ErrInvalidRule, r.Name, k)
		}
		if l, ok := f.Value.(Lookup); ok && l.Optional {
			return fmt.Errorf("%w %q: key column %s cannot be an optional lookup", ErrInvalidRule, r.Name, k)
		}
	}
	switch r.Class {
	case ClassUpsert:
		if r.requiredParents() > 0 {
			return fmt.Errorf("%w %q: upsert rules cannot require parents", ErrInvalidRule, r.Name)
		}
		for _, m := range r.Mutable {
			if _, ok := r.field(m); !ok {
				return fmt.Errorf("%w %q: mutable column %s has no value", ErrInvalidRule, r.Name, m)
			}
		}
	case ClassGuarded:
	case ClassDependent:
		if r.requiredParents() == 0 {
			return fmt.Errorf("%w %q: dependent rules need a required parent", ErrInvalidRule, r.Name)
		}
	default:
		return fmt.Errorf("%w %q: unknown class %q", ErrInvalidRule, r.Name, r.Class)
	}
	return nil
}

// Render returns the single statement that reconciles the rule.
func (r Rule) Render(d Dialect) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	rr := &renderer{d: d}
	if r.Class == ClassUpsert {
		return rr.upsert(r)
	}
	return rr.guardedInsert(r)
}

type renderer struct {
	d     Dialect
	alias int
}

func (rr *renderer) next(prefix string) string {
	a := prefix + strconv.Itoa(rr.alias)
	rr.alias++
	return a
}

func (rr *renderer) literal(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return rr.d.Quote(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case Lookup:
		return rr.scalar(v)
	}
	return "", fmt.Errorf("%w: unsupported value type %T", ErrInvalidRule, v)
}

// scalar renders l as a subquery yielding the parent id or NULL.
func (rr *renderer) scalar(l Lookup) (string, error) {
	a := rr.next("s")
	conds, err := rr.conditions(a, l.Match)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(SELECT %s.id FROM %s %s WHERE %s ORDER BY %s.id LIMIT 1)",
		a, l.Table, a, strings.Join(conds, " AND "), a), nil
}

func (rr *renderer) conditions(alias string, match []Field) ([]string, error) {
	if len(match) == 0 {
		return nil, fmt.Errorf("%w: lookup without natural key", ErrInvalidRule)
	}
	conds := make([]string, 0, len(match))
	for _, m := range match {
		v, err := rr.literal(m.Value)
		if err != nil {
			return nil, err
		}
		conds = append(conds, fmt.Sprintf("%s.%s = %s", alias, m.Column, v))
	}
	return conds, nil
}

func columns(fields []Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return strings.Join(cols, ", ")
}

func (rr *renderer) upsert(r Rule) (string, error) {
	values := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		v, err := rr.literal(f.Value)
		if err != nil {
			return "", err
		}
		values[i] = v
	}

	action := "DO NOTHING"
	if len(r.Mutable) > 0 {
		sets := make([]string, len(r.Mutable))
		for i, m := range r.Mutable {
			sets[i] = fmt.Sprintf("%s = excluded.%s", m, m)
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		r.Table, columns(r.Fields), strings.Join(values, ", "), strings.Join(r.Key, ", "), action), nil
}

// guardedInsert renders INSERT ... SELECT where required parents join in the
// FROM clause and a NOT EXISTS on the natural key skips existing rows.
func (rr *renderer) guardedInsert(r Rule) (string, error) {
	var (
		from  []string
		where []string
		exprs = make(map[string]string, len(r.Fields))
		sel   = make([]string, len(r.Fields))
	)

	for i, f := range r.Fields {
		var expr string
		if l, ok := f.Value.(Lookup); ok && !l.Optional {
			a := rr.next("p")
			conds, err := rr.conditions(a, l.Match)
			if err != nil {
				return "", err
			}
			from = append(from, fmt.Sprintf("%s %s", l.Table, a))
			where = append(where, conds...)
			expr = a + ".id"
		} else {
			v, err := rr.literal(f.Value)
			if err != nil {
				return "", err
			}
			expr = v
		}
		sel[i] = expr
		exprs[f.Column] = expr
	}

	guard := make([]string, len(r.Key))
	for i, k := range r.Key {
		guard[i] = fmt.Sprintf("x.%s = %s", k, exprs[k])
	}
	where = append(where, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s x WHERE %s)", r.Table, strings.Join(guard, " AND ")))

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)\nSELECT %s", r.Table, columns(r.Fields), strings.Join(sel, ", "))
	if len(from) > 0 {
		fmt.Fprintf(&b, "\nFROM %s", strings.Join(from, ", "))
	}
	fmt.Fprintf(&b, "\nWHERE %s", strings.Join(where, "\n  AND "))
	return b.String(), nil
}

// Reconciler converges the store to a fixed list of seed rules.
type Reconciler struct {
	dialect Dialect
	rules   []Rule
	logger  *zap.SugaredLogger
}

// NewReconciler creates a Reconciler that applies rules in the given order.
func NewReconciler(d Dialect, rules []Rule, logger *zap.SugaredLogger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reconciler{dialect: d, rules: rules, logger: logger}
}

// Statements renders every rule. A malformed rule fails the whole plan.
func (r *Reconciler) Statements() ([]string, error) {
	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		stmt, err := rule.Render(r.dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// Reconcile issues one statement per rule in order and stops at the first
// failure. Rules whose record exists, or whose required parent does not,
// insert nothing.
func (r *Reconciler) Reconcile(ctx context.Context, exec executor.Executor) error {
	stmts, err := r.Statements()
	if err != nil {
		return fmt.Errorf("render seed rules: %w", err)
	}
	for i, stmt := range stmts {
		rule := r.rules[i]
		if err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("seed %s (%s): %w", rule.Name, rule.Class, err)
		}
		r.logger.Debugw("seed rule reconciled", "rule", rule.Name, "class", rule.Class, "table", rule.Table)
	}
	r.logger.Infow("seed data reconciled", "rules", len(stmts))
	return nil
}
