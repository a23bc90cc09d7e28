package db

import (
	"fmt"
	"strings"
)

// SeedSet is the desired seed content. Rules compiles it into seed rules.
type SeedSet struct {
	Accounts      []AccountSeed      `yaml:"accounts"`
	Tags          []string           `yaml:"tags"`
	Recipes       []RecipeSeed       `yaml:"recipes"`
	ShoppingLists []ShoppingListSeed `yaml:"shopping_lists"`
	Favorites     []FavoriteSeed     `yaml:"favorites"`
}

type AccountSeed struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
}

// RecipeSeed positions ingredients and numbers steps by their order, starting at 1.
type RecipeSeed struct {
	Title       string           `yaml:"title"`
	Author      string           `yaml:"author"` // account email
	Description string           `yaml:"description"`
	Servings    int              `yaml:"servings"`
	PrepMinutes int              `yaml:"prep_minutes"`
	CookMinutes int              `yaml:"cook_minutes"`
	Ingredients []IngredientSeed `yaml:"ingredients"`
	Steps       []string         `yaml:"steps"`
	Tags        []string         `yaml:"tags"`
}

type IngredientSeed struct {
	Name     string  `yaml:"name"`
	Quantity float64 `yaml:"quantity"`
	Unit     string  `yaml:"unit"`
}

type ShoppingListSeed struct {
	Owner string             `yaml:"owner"` // account email
	Name  string             `yaml:"name"`
	Items []ShoppingItemSeed `yaml:"items"`
}

type ShoppingItemSeed struct {
	Name         string  `yaml:"name"`
	Quantity     float64 `yaml:"quantity"`
	Unit         string  `yaml:"unit"`
	Checked      bool    `yaml:"checked"`
	SourceRecipe string  `yaml:"source_recipe"` // recipe title
}

type FavoriteSeed struct {
	Account string `yaml:"account"` // account email
	Recipe  string `yaml:"recipe"`  // recipe title
}

// Validate rejects seed content that cannot describe a record exactly once.
func (s SeedSet) Validate() error {
	var problems []string
	seen := map[string]bool{}
	for i, a := range s.Accounts {
		switch {
		case a.Email == "":
			problems = append(problems, fmt.Sprintf("accounts[%d]: email is required", i))
		case seen["account:"+a.Email]:
			problems = append(problems, fmt.Sprintf("accounts[%d]: duplicate email %s", i, a.Email))
		}
		if a.DisplayName == "" {
			problems = append(problems, fmt.Sprintf("accounts[%d]: display_name is required", i))
		}
		seen["account:"+a.Email] = true
	}
	for i, t := range s.Tags {
		if strings.TrimSpace(t) == "" {
			problems = append(problems, fmt.Sprintf("tags[%d]: name is required", i))
		}
	}
	for i, r := range s.Recipes {
		switch {
		case r.Title == "":
			problems = append(problems, fmt.Sprintf("recipes[%d]: title is required", i))
		case seen["recipe:"+r.Title]:
			problems = append(problems, fmt.Sprintf("recipes[%d]: duplicate title %q", i, r.Title))
		}
		seen["recipe:"+r.Title] = true
		for j, in := range r.Ingredients {
			if in.Name == "" {
				problems = append(problems, fmt.Sprintf("recipes[%d].ingredients[%d]: name is required", i, j))
			}
		}
	}
	for i, l := range s.ShoppingLists {
		key := "list:" + l.Owner + "/" + l.Name
		switch {
		case l.Owner == "" || l.Name == "":
			problems = append(problems, fmt.Sprintf("shopping_lists[%d]: owner and name are required", i))
		case seen[key]:
			problems = append(problems, fmt.Sprintf("shopping_lists[%d]: duplicate list %q for %s", i, l.Name, l.Owner))
		}
		seen[key] = true
	}
	for i, f := range s.Favorites {
		if f.Account == "" || f.Recipe == "" {
			problems = append(problems, fmt.Sprintf("favorites[%d]: account and recipe are required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w:\n%s", ErrInvalidSeedSet, strings.Join(problems, "\n"))
	}
	return nil
}

func recipeRef(title string) Lookup  { return Required("recipe", F("title", title)) }
func accountRef(email string) Lookup { return Required("account", F("email", email)) }

// Rules compiles the seed set in dependency order: accounts and tags, then
// recipes, then each recipe's ingredients, steps and tag links, then
// shopping lists, their items, and finally favorites.
func (s SeedSet) Rules() []Rule {
	var rules []Rule

	for _, a := range s.Accounts {
		rules = append(rules, Rule{
			Name:    "account " + a.Email,
			Class:   ClassUpsert,
			Table:   "account",
			Fields:  []Field{F("email", a.Email), F("display_name", a.DisplayName)},
			Key:     []string{"email"},
			Mutable: []string{"display_name"},
		})
	}
	for _, t := range s.Tags {
		rules = append(rules, Rule{
			Name:   "tag " + t,
			Class:  ClassUpsert,
			Table:  "tag",
			Fields: []Field{F("name", t)},
			Key:    []string{"name"},
		})
	}

	for _, r := range s.Recipes {
		fields := []Field{F("title", r.Title)}
		if r.Description != "" {
			fields = append(fields, F("description", r.Description))
		}
		if r.Servings > 0 {
			fields = append(fields, F("servings", r.Servings))
		}
		if r.PrepMinutes > 0 {
			fields = append(fields, F("prep_minutes", r.PrepMinutes))
		}
		if r.CookMinutes > 0 {
			fields = append(fields, F("cook_minutes", r.CookMinutes))
		}
		if r.Author != "" {
			fields = append(fields, F("account_id", Optional("account", F("email", r.Author))))
		}
		rules = append(rules, Rule{
			Name:   "recipe " + r.Title,
			Class:  ClassGuarded,
			Table:  "recipe",
			Fields: fields,
			Key:    []string{"title"},
		})
	}

	for _, r := range s.Recipes {
		for i, in := range r.Ingredients {
			fields := []Field{
				F("recipe_id", recipeRef(r.Title)),
				F("position", i+1),
				F("name", in.Name),
			}
			fields = appendAmount(fields, in.Quantity, in.Unit)
			rules = append(rules, Rule{
				Name:   fmt.Sprintf("ingredient %d of %s", i+1, r.Title),
				Class:  ClassDependent,
				Table:  "ingredient_line",
				Fields: fields,
				Key:    []string{"recipe_id", "position"},
			})
		}
		for i, instruction := range r.Steps {
			rules = append(rules, Rule{
				Name:  fmt.Sprintf("step %d of %s", i+1, r.Title),
				Class: ClassDependent,
				Table: "step",
				Fields: []Field{
					F("recipe_id", recipeRef(r.Title)),
					F("step_number", i+1),
					F("instruction", instruction),
				},
				Key: []string{"recipe_id", "step_number"},
			})
		}
		for _, tag := range r.Tags {
			rules = append(rules, Rule{
				Name:  fmt.Sprintf("tag %s on %s", tag, r.Title),
				Class: ClassDependent,
				Table: "recipe_tag",
				Fields: []Field{
					F("recipe_id", recipeRef(r.Title)),
					F("tag_id", Required("tag", F("name", tag))),
				},
				Key: []string{"recipe_id", "tag_id"},
			})
		}
	}

	for _, l := range s.ShoppingLists {
		rules = append(rules, Rule{
			Name:   fmt.Sprintf("shopping list %s of %s", l.Name, l.Owner),
			Class:  ClassGuarded,
			Table:  "shopping_list",
			Fields: []Field{F("account_id", accountRef(l.Owner)), F("name", l.Name)},
			Key:    []string{"account_id", "name"},
		})
	}
	for _, l := range s.ShoppingLists {
		list := Required("shopping_list", F("name", l.Name), F("account_id", accountRef(l.Owner)))
		for i, it := range l.Items {
			fields := []Field{
				F("shopping_list_id", list),
				F("position", i+1),
				F("name", it.Name),
			}
			fields = appendAmount(fields, it.Quantity, it.Unit)
			if it.Checked {
				fields = append(fields, F("checked", true))
			}
			if it.SourceRecipe != "" {
				fields = append(fields, F("source_recipe_id", Optional("recipe", F("title", it.SourceRecipe))))
			}
			rules = append(rules, Rule{
				Name:   fmt.Sprintf("item %d of %s/%s", i+1, l.Owner, l.Name),
				Class:  ClassDependent,
				Table:  "shopping_list_item",
				Fields: fields,
				Key:    []string{"shopping_list_id", "position"},
			})
		}
	}

	for _, f := range s.Favorites {
		rules = append(rules, Rule{
			Name:  fmt.Sprintf("favorite %s of %s", f.Recipe, f.Account),
			Class: ClassDependent,
			Table: "favorite",
			Fields: []Field{
				F("account_id", accountRef(f.Account)),
				F("recipe_id", recipeRef(f.Recipe)),
			},
			Key: []string{"account_id", "recipe_id"},
		})
	}

	return rules
}

func appendAmount(fields []Field, quantity float64, unit string) []Field {
	if quantity > 0 {
		fields = append(fields, F("quantity", quantity))
	}
	if unit != "" {
		fields = append(fields, F("unit", unit))
	}
	return fields
}

// DefaultSeedSet is the demonstration content loaded by a plain bootstrap.
func DefaultSeedSet() SeedSet {
	return SeedSet{
		Accounts: []AccountSeed{
			{Email: "alice@example.com", DisplayName: "Alice Martin"},
			{Email: "bob@example.com", DisplayName: "Bob Chen"},
		},
		Tags: []string{"breakfast", "vegetarian", "quick", "dinner", "italian"},
		Recipes: []RecipeSeed{
			{
				Title:       "Classic Pancakes",
				Author:      "alice@example.com",
				Description: "Fluffy buttermilk pancakes for a slow weekend morning.",
				Servings:    4,
				PrepMinutes: 10,
				CookMinutes: 15,
				Ingredients: []IngredientSeed{
					{Name: "all-purpose flour", Quantity: 200, Unit: "g"},
					{Name: "buttermilk", Quantity: 300, Unit: "ml"},
					{Name: "egg", Quantity: 1},
					{Name: "sugar", Quantity: 2, Unit: "tbsp"},
					{Name: "baking powder", Quantity: 2, Unit: "tsp"},
					{Name: "butter", Quantity: 30, Unit: "g"},
				},
				Steps: []string{
					"Whisk the flour, sugar and baking powder together in a large bowl.",
					"Beat the egg into the buttermilk with the melted butter.",
					"Fold the wet ingredients into the dry ones until just combined.",
					"Cook ladlefuls on a hot buttered pan until bubbles form, then flip.",
				},
				Tags: []string{"breakfast", "vegetarian", "quick"},
			},
			{
				Title:       "Tomato Basil Pasta",
				Author:      "alice@example.com",
				Description: "A weeknight pasta with a fresh tomato and basil sauce.",
				Servings:    2,
				PrepMinutes: 10,
				CookMinutes: 20,
				Ingredients: []IngredientSeed{
					{Name: "spaghetti", Quantity: 250, Unit: "g"},
					{Name: "cherry tomatoes", Quantity: 400, Unit: "g"},
					{Name: "garlic cloves", Quantity: 3},
					{Name: "olive oil", Quantity: 3, Unit: "tbsp"},
					{Name: "fresh basil", Unit: "handful"},
				},
				Steps: []string{
					"Boil the spaghetti in salted water until al dente.",
					"Soften the sliced garlic in olive oil, then add the halved tomatoes.",
					"Simmer until the tomatoes collapse into a sauce.",
					"Toss the pasta with the sauce and torn basil.",
				},
				Tags: []string{"dinner", "vegetarian", "italian"},
			},
			{
				Title:       "Vegetable Stir Fry",
				Author:      "bob@example.com",
				Description: "Crisp vegetables in a quick soy and ginger glaze.",
				Servings:    2,
				PrepMinutes: 15,
				CookMinutes: 10,
				Ingredients: []IngredientSeed{
					{Name: "broccoli", Quantity: 1, Unit: "head"},
					{Name: "red bell pepper", Quantity: 1},
					{Name: "carrot", Quantity: 2},
					{Name: "soy sauce", Quantity: 3, Unit: "tbsp"},
					{Name: "fresh ginger", Quantity: 1, Unit: "tbsp"},
				},
				Steps: []string{
					"Cut all the vegetables into bite-sized pieces.",
					"Stir fry the carrot and broccoli in a very hot wok for three minutes.",
					"Add the pepper, ginger and soy sauce and toss until glossy.",
				},
				Tags: []string{"dinner", "vegetarian", "quick"},
			},
		},
		ShoppingLists: []ShoppingListSeed{
			{
				Owner: "bob@example.com",
				Name:  "Weekly Groceries",
				Items: []ShoppingItemSeed{
					{Name: "spaghetti", Quantity: 250, Unit: "g", SourceRecipe: "Tomato Basil Pasta"},
					{Name: "cherry tomatoes", Quantity: 400, Unit: "g", SourceRecipe: "Tomato Basil Pasta"},
					{Name: "buttermilk", Quantity: 300, Unit: "ml", SourceRecipe: "Classic Pancakes"},
					{Name: "coffee beans", Quantity: 1, Unit: "bag", Checked: true},
				},
			},
		},
		Favorites: []FavoriteSeed{
			{Account: "alice@example.com", Recipe: "Vegetable Stir Fry"},
			{Account: "bob@example.com", Recipe: "Classic Pancakes"},
		},
	}
}
