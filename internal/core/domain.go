package core

import (
	"errors"
	"strings"
	"time"
)

// Transaction sources.
const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

type (
	Source string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is a single spending record. CategoryID is the human label
	// used for training; PredictedCategory/PredictedProba hold the last
	// classifier suggestion and are informational only.
	Transaction struct {
		ID                string
		UserID            string
		Date              Date
		Description       string
		Amount            Money
		Merchant          string
		CategoryID        *string
		PredictedCategory *string
		PredictedProba    *float64
		Source            Source
		CreatedAt         time.Time
	}

	Category struct {
		ID        string
		Name      string
		CreatedAt time.Time
	}

	// TransactionUpdate carries a partial update. Nil fields are left
	// untouched; ClearCategory removes the label even though CategoryID is nil.
	TransactionUpdate struct {
		Date              *Date
		Description       *string
		Amount            *Money
		Merchant          *string
		CategoryID        *string
		ClearCategory     bool
		PredictedCategory *string
		PredictedProba    *float64
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category name")
	ErrEmptyUpdate      = errors.New("no fields to update")

	ErrNotFound       = errors.New("not found")
	ErrCategoryExists = errors.New("category already exists")
	ErrCategoryInUse  = errors.New("category in use")
)

// DefaultCategories are seeded by name into the category directory.
var DefaultCategories = []string{"Food", "Transport", "Bills", "Entertainment", "Groceries", "Other"}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// IsLabeled reports whether a human assigned a category.
func (t Transaction) IsLabeled() bool {
	return t.CategoryID != nil && *t.CategoryID != ""
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if len(t.Merchant) > 200 {
		return errors.New("merchant too long (max 200 characters)")
	}
	return nil
}

// IsEmpty reports whether the update would change nothing.
func (u TransactionUpdate) IsEmpty() bool {
	return u.Date == nil && u.Description == nil && u.Amount == nil && u.Merchant == nil &&
		u.CategoryID == nil && !u.ClearCategory && u.PredictedCategory == nil && u.PredictedProba == nil
}

// Apply returns a copy of t with the present fields overwritten.
func (u TransactionUpdate) Apply(t Transaction) Transaction {
	if u.Date != nil {
		t.Date = *u.Date
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Amount != nil {
		t.Amount = *u.Amount
	}
	if u.Merchant != nil {
		t.Merchant = *u.Merchant
	}
	if u.ClearCategory {
		t.CategoryID = nil
	}
	if u.CategoryID != nil {
		id := *u.CategoryID
		t.CategoryID = &id
	}
	if u.PredictedCategory != nil {
		v := *u.PredictedCategory
		t.PredictedCategory = &v
	}
	if u.PredictedProba != nil {
		v := *u.PredictedProba
		t.PredictedProba = &v
	}
	return t
}

// NormalizeCategoryName trims a category name and rejects blanks.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyCategory
	}
	if len(name) > 100 {
		return "", errors.New("category name too long (max 100 characters)")
	}
	return name, nil
}
