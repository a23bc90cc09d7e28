package db

import (
	"context"
	"fmt"
	"strings"

	"recipebook/executor"

	"go.uber.org/zap"
)

type ObjectKind string

const (
	KindTable ObjectKind = "table"
	KindIndex ObjectKind = "index"
	KindView  ObjectKind = "view"
)

// A SchemaObject is one named relation, index or view of the target schema.
type SchemaObject struct {
	Kind ObjectKind
	Name string
	// Owner is the table an index belongs to.
	Owner string
	// DependsOn lists the tables that must exist before this object.
	DependsOn []string
	render    func(d Dialect) []string
}

// Statements renders the guarded statements that ensure the object exists.
func (o SchemaObject) Statements(d Dialect) []string {
	return o.render(d)
}

func table(name string, deps []string, columns ...string) SchemaObject {
	return SchemaObject{
		Kind:      KindTable,
		Name:      name,
		DependsOn: deps,
		render: func(d Dialect) []string {
			cols := make([]string, len(columns))
			for i, c := range columns {
				cols[i] = "    " + expandColumn(d, c)
			}
			return []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", name, strings.Join(cols, ",\n"))}
		},
	}
}

func index(name, owner string, unique bool, columns ...string) SchemaObject {
	return SchemaObject{
		Kind:      KindIndex,
		Name:      name,
		Owner:     owner,
		DependsOn: []string{owner},
		render: func(Dialect) []string {
			kw := "INDEX"
			if unique {
				kw = "UNIQUE INDEX"
			}
			return []string{fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kw, name, owner, strings.Join(columns, ", "))}
		},
	}
}

func view(name string, deps []string, body string) SchemaObject {
	return SchemaObject{
		Kind:      KindView,
		Name:      name,
		DependsOn: deps,
		render: func(d Dialect) []string {
			return d.ReplaceView(name, strings.TrimSpace(body))
		},
	}
}

// expandColumn substitutes the dialect's types for the {id}, {ref} and {ts} placeholders.
func expandColumn(d Dialect, col string) string {
	return strings.NewReplacer(
		"{id}", d.IDColumn(),
		"{ref}", d.RefType(),
		"{ts}", d.Timestamp(),
	).Replace(col)
}

// Schema returns the target schema in dependency order: every table follows
// the tables it references, every index follows its table, and the view
// comes last.
func Schema() []SchemaObject {
	return []SchemaObject{
		table("account", nil,
			"id {id}",
			"email TEXT NOT NULL UNIQUE",
			"display_name TEXT NOT NULL",
			"created_at {ts}",
			"updated_at {ts}",
		),
		table("recipe", []string{"account"},
			"id {id}",
			"account_id {ref} REFERENCES account(id) ON DELETE SET NULL",
			"title TEXT NOT NULL",
			"description TEXT",
			"servings INTEGER",
			"prep_minutes INTEGER",
			"cook_minutes INTEGER",
			"created_at {ts}",
			"updated_at {ts}",
		),
		index("idx_recipe_account_id", "recipe", false, "account_id"),
		index("idx_recipe_title", "recipe", false, "title"),
		table("ingredient_line", []string{"recipe"},
			"id {id}",
			"recipe_id {ref} NOT NULL REFERENCES recipe(id) ON DELETE CASCADE",
			"position INTEGER NOT NULL",
			"name TEXT NOT NULL",
			"quantity NUMERIC(10,2)",
			"unit TEXT",
		),
		index("idx_ingredient_line_recipe_id", "ingredient_line", false, "recipe_id", "position"),
		table("step", []string{"recipe"},
			"id {id}",
			"recipe_id {ref} NOT NULL REFERENCES recipe(id) ON DELETE CASCADE",
			"step_number INTEGER NOT NULL",
			"instruction TEXT NOT NULL",
			"UNIQUE (recipe_id, step_number)",
		),
		table("tag", nil,
			"id {id}",
			"name TEXT NOT NULL UNIQUE",
		),
		table("recipe_tag", []string{"recipe", "tag"},
			"recipe_id {ref} NOT NULL REFERENCES recipe(id) ON DELETE CASCADE",
			"tag_id {ref} NOT NULL REFERENCES tag(id) ON DELETE CASCADE",
			"PRIMARY KEY (recipe_id, tag_id)",
		),
		index("idx_recipe_tag_tag_id", "recipe_tag", false, "tag_id"),
		table("favorite", []string{"account", "recipe"},
			"account_id {ref} NOT NULL REFERENCES account(id) ON DELETE CASCADE",
			"recipe_id {ref} NOT NULL REFERENCES recipe(id) ON DELETE CASCADE",
			"created_at {ts}",
			"PRIMARY KEY (account_id, recipe_id)",
		),
		index("idx_favorite_recipe_id", "favorite", false, "recipe_id"),
		table("shopping_list", []string{"account"},
			"id {id}",
			"account_id {ref} NOT NULL REFERENCES account(id) ON DELETE CASCADE",
			"name TEXT NOT NULL",
			"created_at {ts}",
			"updated_at {ts}",
		),
		index("idx_shopping_list_account_id", "shopping_list", false, "account_id"),
		table("shopping_list_item", []string{"shopping_list", "recipe"},
			"id {id}",
			"shopping_list_id {ref} NOT NULL REFERENCES shopping_list(id) ON DELETE CASCADE",
			"position INTEGER NOT NULL",
			"name TEXT NOT NULL",
			"quantity NUMERIC(10,2)",
			"unit TEXT",
			"checked BOOLEAN NOT NULL DEFAULT FALSE",
			"source_recipe_id {ref} REFERENCES recipe(id) ON DELETE SET NULL",
			"created_at {ts}",
			"updated_at {ts}",
		),
		index("idx_shopping_list_item_list_id", "shopping_list_item", false, "shopping_list_id", "position"),
		index("idx_shopping_list_item_source_recipe_id", "shopping_list_item", false, "source_recipe_id"),
		view("recipe_summary", []string{"recipe", "account", "ingredient_line", "step"}, recipeSummaryView),
	}
}

const recipeSummaryView = `
SELECT
    r.id AS recipe_id,
    r.title,
    r.description,
    r.servings,
    r.prep_minutes,
    r.cook_minutes,
    a.id AS author_id,
    a.display_name AS author_name,
    (SELECT COUNT(*) FROM ingredient_line il WHERE il.recipe_id = r.id) AS ingredient_count,
    (SELECT COUNT(*) FROM step s WHERE s.recipe_id = r.id) AS step_count,
    r.created_at
FROM recipe r
LEFT JOIN account a ON a.id = r.account_id
`

// Materializer converges the store to the target schema.
type Materializer struct {
	dialect Dialect
	objects []SchemaObject
	logger  *zap.SugaredLogger
}

// NewMaterializer creates a Materializer for the default schema.
func NewMaterializer(d Dialect, logger *zap.SugaredLogger) *Materializer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Materializer{dialect: d, objects: Schema(), logger: logger}
}

// Statements returns every statement Materialize would issue, in order.
func (m *Materializer) Statements() []string {
	var out []string
	for _, o := range m.objects {
		out = append(out, o.Statements(m.dialect)...)
	}
	return out
}

// Materialize issues the guarded statement(s) for every schema object in
// order and stops at the first failure. Re-running it against a converged
// store changes nothing.
func (m *Materializer) Materialize(ctx context.Context, exec executor.Executor) error {
	for _, o := range m.objects {
		for _, stmt := range o.Statements(m.dialect) {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("materialize %s %s: %w", o.Kind, o.Name, err)
			}
		}
		m.logger.Debugw("schema object ensured", "kind", o.Kind, "name", o.Name)
	}
	m.logger.Infow("schema materialized", "objects", len(m.objects), "dialect", m.dialect.Name())
	return nil
}
