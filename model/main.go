package model

import (
	"time"
)

// An Account is a registered user, identified by email.
type Account struct {
	ID          uint `gorm:"primaryKey"`
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Account) TableName() string { return "account" }

// A Recipe may outlive its author: AccountID is nulled when the account is deleted.
type Recipe struct {
	ID          uint `gorm:"primaryKey"`
	AccountID   *uint
	Account     *Account `gorm:"foreignKey:AccountID"`
	Title       string
	Description *string
	Servings    *int
	PrepMinutes *int
	CookMinutes *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Ingredients []IngredientLine `gorm:"foreignKey:RecipeID"`
	Steps       []Step           `gorm:"foreignKey:RecipeID"`
	Tags        []Tag            `gorm:"many2many:recipe_tag;joinForeignKey:RecipeID;joinReferences:TagID"`
}

func (Recipe) TableName() string { return "recipe" }

type IngredientLine struct {
	ID       uint `gorm:"primaryKey"`
	RecipeID uint
	Position int
	Name     string
	Quantity *float64
	Unit     *string
}

func (IngredientLine) TableName() string { return "ingredient_line" }

type Step struct {
	ID          uint `gorm:"primaryKey"`
	RecipeID    uint
	StepNumber  int
	Instruction string
}

func (Step) TableName() string { return "step" }

type Tag struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func (Tag) TableName() string { return "tag" }

type RecipeTag struct {
	RecipeID uint `gorm:"primaryKey"`
	TagID    uint `gorm:"primaryKey"`
}

func (RecipeTag) TableName() string { return "recipe_tag" }

type Favorite struct {
	AccountID uint `gorm:"primaryKey"`
	RecipeID  uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (Favorite) TableName() string { return "favorite" }

// A ShoppingList belongs to exactly one Account and is deleted with it.
type ShoppingList struct {
	ID        uint `gorm:"primaryKey"`
	AccountID uint
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []ShoppingListItem `gorm:"foreignKey:ShoppingListID"`
}

func (ShoppingList) TableName() string { return "shopping_list" }

type ShoppingListItem struct {
	ID             uint `gorm:"primaryKey"`
	ShoppingListID uint
	Position       int
	Name           string
	Quantity       *float64
	Unit           *string
	Checked        bool
	SourceRecipeID *uint // nulled when the source recipe is deleted
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ShoppingListItem) TableName() string { return "shopping_list_item" }

// RecipeSummary is a row of the recipe_summary view. The store computes it on
// every read; it is never written.
type RecipeSummary struct {
	RecipeID        uint
	Title           string
	Description     *string
	Servings        *int
	PrepMinutes     *int
	CookMinutes     *int
	AuthorID        *uint
	AuthorName      *string
	IngredientCount int64
	StepCount       int64
}

func (RecipeSummary) TableName() string { return "recipe_summary" }

// TotalMinutes returns prep plus cook time, treating unknown parts as zero.
func (s RecipeSummary) TotalMinutes() int {
	total := 0
	if s.PrepMinutes != nil {
		total += *s.PrepMinutes
	}
	if s.CookMinutes != nil {
		total += *s.CookMinutes
	}
	return total
}
