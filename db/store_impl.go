package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"recipebook/model"

	"gorm.io/gorm"
)

type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Ping verifies the underlying database connection is healthy.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// CountRows returns the number of rows in one of the schema's relations.
func (s *SQLStore) CountRows(table string) (int64, error) {
	if !slices.Contains(Relations, table) {
		return 0, fmt.Errorf("unknown relation %q", table)
	}
	var n int64
	err := s.db.Table(table).Count(&n).Error
	return n, err
}

// GetAccountByEmail returns the account registered under email
func (s *SQLStore) GetAccountByEmail(email string) (*model.Account, error) {
	var a model.Account
	err := s.db.Where("email = ?", email).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetRecipeByTitle returns the recipe with its author, ordered ingredients,
// ordered steps and tags.
func (s *SQLStore) GetRecipeByTitle(title string) (*model.Recipe, error) {
	var r model.Recipe
	err := s.db.
		Preload("Account").
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number") }).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		Where("title = ?", title).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecipeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecipeSummaries reads the recipe_summary view ordered by title.
func (s *SQLStore) ListRecipeSummaries() ([]model.RecipeSummary, error) {
	var out []model.RecipeSummary
	err := s.db.
		Select("recipe_id", "title", "description", "servings", "prep_minutes", "cook_minutes",
			"author_id", "author_name", "ingredient_count", "step_count").
		Order("title").
		Find(&out).Error
	return out, err
}

// GetShoppingList returns the named list of the account with its items in position order.
func (s *SQLStore) GetShoppingList(ownerEmail, name string) (*model.ShoppingList, error) {
	owner, err := s.GetAccountByEmail(ownerEmail)
	if err != nil {
		return nil, err
	}
	var l model.ShoppingList
	err = s.db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Where("account_id = ? AND name = ?", owner.ID, name).
		First(&l).Error
	if err != nil {
		return nil, fmt.Errorf("shopping list %q of %s: %w", name, ownerEmail, err)
	}
	return &l, nil
}

// ListFavoriteRecipes returns the recipes the account marked as favorite.
func (s *SQLStore) ListFavoriteRecipes(email string) ([]model.Recipe, error) {
	var recipes []model.Recipe
	err := s.db.
		Joins("JOIN favorite f ON f.recipe_id = recipe.id").
		Joins("JOIN account a ON a.id = f.account_id").
		Where("a.email = ?", email).
		Order("recipe.title").
		Find(&recipes).Error
	return recipes, err
}
