package db

import (
	"context"
	"testing"

	"recipebook/executor"
	"recipebook/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRuleRender(t *testing.T) {
	t.Run("upsert overwrites mutable columns", func(t *testing.T) {
		r := Rule{
			Name:    "account alice",
			Class:   ClassUpsert,
			Table:   "account",
			Fields:  []Field{F("email", "alice@example.com"), F("display_name", "Alice Martin")},
			Key:     []string{"email"},
			Mutable: []string{"display_name"},
		}
		stmt, err := r.Render(sqliteDialect{})
		require.NoError(t, err)
		assert.Equal(t,
			"INSERT INTO account (email, display_name) VALUES ('alice@example.com', 'Alice Martin') "+
				"ON CONFLICT (email) DO UPDATE SET display_name = excluded.display_name",
			stmt)
	})

	t.Run("upsert without mutable columns does nothing on conflict", func(t *testing.T) {
		r := Rule{Name: "tag quick", Class: ClassUpsert, Table: "tag", Fields: []Field{F("name", "quick")}, Key: []string{"name"}}
		stmt, err := r.Render(postgresDialect{})
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO tag (name) VALUES ('quick') ON CONFLICT (name) DO NOTHING", stmt)
	})

	t.Run("dependent joins the parent and guards the natural key", func(t *testing.T) {
		r := Rule{
			Name:   "step 1 of Toast",
			Class:  ClassDependent,
			Table:  "step",
			Fields: []Field{F("recipe_id", recipeRef("Toast")), F("step_number", 1), F("instruction", "Slice bread")},
			Key:    []string{"recipe_id", "step_number"},
		}
		stmt, err := r.Render(sqliteDialect{})
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO step (recipe_id, step_number, instruction)\n"+
			"SELECT p0.id, 1, 'Slice bread'\n"+
			"FROM recipe p0\n"+
			"WHERE p0.title = 'Toast'\n"+
			"  AND NOT EXISTS (SELECT 1 FROM step x WHERE x.recipe_id = p0.id AND x.step_number = 1)",
			stmt)
	})

	t.Run("guarded insert without parents has no FROM clause", func(t *testing.T) {
		r := Rule{
			Name:   "recipe Toast",
			Class:  ClassGuarded,
			Table:  "recipe",
			Fields: []Field{F("title", "Toast"), F("account_id", Optional("account", F("email", "a@example.com")))},
			Key:    []string{"title"},
		}
		stmt, err := r.Render(sqliteDialect{})
		require.NoError(t, err)
		assert.NotContains(t, stmt, "FROM recipe p")
		assert.Contains(t, stmt, "SELECT 'Toast', (SELECT s0.id FROM account s0 WHERE s0.email = 'a@example.com' ORDER BY s0.id LIMIT 1)")
		assert.Contains(t, stmt, "NOT EXISTS (SELECT 1 FROM recipe x WHERE x.title = 'Toast')")
	})

	t.Run("lookups nest", func(t *testing.T) {
		list := Required("shopping_list", F("name", "Weekly Groceries"), F("account_id", accountRef("bob@example.com")))
		r := Rule{
			Name:   "item 1",
			Class:  ClassDependent,
			Table:  "shopping_list_item",
			Fields: []Field{F("shopping_list_id", list), F("position", 1), F("name", "spaghetti"), F("quantity", 0.5), F("checked", true)},
			Key:    []string{"shopping_list_id", "position"},
		}
		stmt, err := r.Render(postgresDialect{})
		require.NoError(t, err)
		assert.Contains(t, stmt, "FROM shopping_list p0")
		assert.Contains(t, stmt, "p0.account_id = (SELECT s1.id FROM account s1 WHERE s1.email = 'bob@example.com' ORDER BY s1.id LIMIT 1)")
		assert.Contains(t, stmt, "SELECT p0.id, 1, 'spaghetti', 0.5, TRUE")
		assert.NotContains(t, stmt, "NULL")
	})

	t.Run("quotes literals per dialect", func(t *testing.T) {
		r := Rule{Name: "tag", Class: ClassUpsert, Table: "tag", Fields: []Field{F("name", "chef's choice")}, Key: []string{"name"}}
		for _, d := range []Dialect{sqliteDialect{}, postgresDialect{}} {
			stmt, err := r.Render(d)
			require.NoError(t, err)
			assert.Contains(t, stmt, "VALUES ('chef''s choice')", d.Name())
		}
	})
}

func TestRuleValidate(t *testing.T) {
	base := func() Rule {
		return Rule{
			Name:   "step",
			Class:  ClassDependent,
			Table:  "step",
			Fields: []Field{F("recipe_id", recipeRef("Toast")), F("step_number", 1), F("instruction", "x")},
			Key:    []string{"recipe_id", "step_number"},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(r *Rule)
	}{
		{"no table", func(r *Rule) { r.Table = "" }},
		{"no natural key", func(r *Rule) { r.Key = nil }},
		{"key without value", func(r *Rule) { r.Key = []string{"recipe_id", "position"} }},
		{"optional key", func(r *Rule) { r.Fields[0] = F("recipe_id", Optional("recipe", F("title", "Toast"))) }},
		{"dependent without required parent", func(r *Rule) {
			r.Fields[0] = F("recipe_id", 7)
		}},
		{"upsert with required parent", func(r *Rule) { r.Class = ClassUpsert }},
		{"mutable column without value", func(r *Rule) {
			r.Class = ClassUpsert
			r.Fields[0] = F("recipe_id", 7)
			r.Mutable = []string{"position"}
		}},
		{"unknown class", func(r *Rule) { r.Class = "merge" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
		})
	}

	t.Run("unsupported value type fails to render", func(t *testing.T) {
		r := base()
		r.Fields[2] = F("instruction", []byte("x"))
		_, err := r.Render(sqliteDialect{})
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestDefaultSeedSetRules(t *testing.T) {
	seed := DefaultSeedSet()
	require.NoError(t, seed.Validate())

	rules := seed.Rules()
	for _, r := range rules {
		assert.NoError(t, r.Validate(), r.Name)
	}

	// Parents always precede their children.
	order := map[string]int{}
	for i, r := range rules {
		if _, ok := order[r.Table]; !ok {
			order[r.Table] = i
		}
	}
	assert.Less(t, order["account"], order["recipe"])
	assert.Less(t, order["tag"], order["recipe_tag"])
	assert.Less(t, order["recipe"], order["ingredient_line"])
	assert.Less(t, order["shopping_list"], order["shopping_list_item"])
	assert.Less(t, order["recipe"], order["favorite"])
}

// materializedDB returns a database with the schema but no seed data.
func materializedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := setupTestDB(t)
	require.NoError(t, NewMaterializer(sqliteDialect{}, nil).Materialize(context.Background(), executor.NewGorm(db)))
	return db
}

func reconcile(t *testing.T, db *gorm.DB, rules ...Rule) {
	t.Helper()
	require.NoError(t, NewReconciler(sqliteDialect{}, rules, nil).Reconcile(context.Background(), executor.NewGorm(db)))
}

func TestReconcile(t *testing.T) {
	t.Run("missing required parent inserts nothing", func(t *testing.T) {
		db := materializedDB(t)
		orphans := SeedSet{
			Recipes:   []RecipeSeed{{Title: "Toast", Steps: []string{"Slice bread"}}},
			Favorites: []FavoriteSeed{{Account: "ghost@example.com", Recipe: "Toast"}},
		}
		step := orphans.Rules()[1]
		require.Equal(t, "step", step.Table)

		reconcile(t, db, step)
		assert.Zero(t, countRows(t, db, "step"))

		reconcile(t, db, orphans.Rules()...)
		assert.EqualValues(t, 1, countRows(t, db, "recipe"))
		assert.EqualValues(t, 1, countRows(t, db, "step"))
		assert.Zero(t, countRows(t, db, "favorite"))
	})

	t.Run("missing optional author leaves the reference empty", func(t *testing.T) {
		db := materializedDB(t)
		seed := SeedSet{Recipes: []RecipeSeed{{Title: "Toast", Author: "ghost@example.com"}}}
		reconcile(t, db, seed.Rules()...)

		var r model.Recipe
		require.NoError(t, db.Where("title = ?", "Toast").First(&r).Error)
		assert.Nil(t, r.AccountID)
	})

	t.Run("upsert updates in place", func(t *testing.T) {
		db := setupTestDB(t)
		bootstrapTestDB(t, db)
		store := NewSQLStore(db)
		before, err := store.GetAccountByEmail("alice@example.com")
		require.NoError(t, err)

		seed := SeedSet{Accounts: []AccountSeed{{Email: "alice@example.com", DisplayName: "Alice M."}}}
		reconcile(t, db, seed.Rules()...)

		after, err := store.GetAccountByEmail("alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Alice M.", after.DisplayName)
		assert.Equal(t, before.ID, after.ID)
		assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
		assert.EqualValues(t, 2, countRows(t, db, "account"))
	})

	t.Run("repeated tags are never duplicated", func(t *testing.T) {
		db := materializedDB(t)
		seed := SeedSet{Tags: []string{"quick", "quick"}}
		reconcile(t, db, seed.Rules()...)
		reconcile(t, db, seed.Rules()...)
		assert.EqualValues(t, 1, countRows(t, db, "tag"))
	})

	t.Run("guarded records are never overwritten", func(t *testing.T) {
		db := setupTestDB(t)
		bootstrapTestDB(t, db)

		seed := SeedSet{Recipes: []RecipeSeed{{Title: "Classic Pancakes", Description: "Changed", Servings: 12}}}
		reconcile(t, db, seed.Rules()...)

		r, err := NewSQLStore(db).GetRecipeByTitle("Classic Pancakes")
		require.NoError(t, err)
		require.NotNil(t, r.Description)
		assert.Equal(t, "Fluffy buttermilk pancakes for a slow weekend morning.", *r.Description)
		require.NotNil(t, r.Servings)
		assert.Equal(t, 4, *r.Servings)
		assert.EqualValues(t, 3, countRows(t, db, "recipe"))
	})

	t.Run("stops at the first failing rule", func(t *testing.T) {
		exec := &scriptedExecutor{failAt: 2}
		err := NewReconciler(sqliteDialect{}, DefaultSeedSet().Rules(), nil).Reconcile(context.Background(), exec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed account bob@example.com (upsert)")
		assert.Len(t, exec.stmts, 2)
	})

	t.Run("malformed rules fail before any statement", func(t *testing.T) {
		exec := &scriptedExecutor{}
		rules := []Rule{DefaultSeedSet().Rules()[0], {Name: "broken", Class: ClassGuarded, Table: "tag"}}
		err := NewReconciler(sqliteDialect{}, rules, nil).Reconcile(context.Background(), exec)
		assert.ErrorIs(t, err, ErrInvalidRule)
		assert.Empty(t, exec.stmts)
	})
}
