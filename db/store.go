package db

import (
	"context"
	"errors"

	"recipebook/model"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrRecipeNotFound  = errors.New("recipe not found")
)

// Relations lists every table of the schema in creation order.
var Relations = []string{
	"account",
	"recipe",
	"ingredient_line",
	"step",
	"tag",
	"recipe_tag",
	"favorite",
	"shopping_list",
	"shopping_list_item",
}

// Store reads back what a bootstrap produced.
type Store interface {
	Ping(ctx context.Context) error
	CountRows(table string) (int64, error)
	GetAccountByEmail(email string) (*model.Account, error)
	GetRecipeByTitle(title string) (*model.Recipe, error)
	ListRecipeSummaries() ([]model.RecipeSummary, error)
	GetShoppingList(ownerEmail, name string) (*model.ShoppingList, error)
	ListFavoriteRecipes(email string) ([]model.Recipe, error)
}
