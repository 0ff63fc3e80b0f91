// Package ports declares the persistence interfaces the classifier and the
// operator tooling depend on. SQLite and in-memory backends implement them.
package ports

import (
	"context"
	"strings"

	"spendwise/internal/core"
)

type (
	// LabeledTransactionFinder returns every transaction carrying a human label.
	LabeledTransactionFinder interface {
		FindLabeled(ctx context.Context) ([]core.Transaction, error)
	}

	// CategoryDirectory lists the known categories.
	CategoryDirectory interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	TransactionStore interface {
		LabeledTransactionFinder
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, f TransactionFilter) (TransactionPage, error)
		UpdateTransaction(ctx context.Context, id string, u core.TransactionUpdate) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		// ListUnlabeled returns the newest unlabeled transactions, optionally
		// filtered by a case-insensitive search on description and merchant.
		ListUnlabeled(ctx context.Context, query string, limit int) ([]core.Transaction, error)
	}

	CategoryStore interface {
		CategoryDirectory
		CreateCategory(ctx context.Context, name string) (core.Category, error)
		// FindCategoryByName matches case-insensitively.
		FindCategoryByName(ctx context.Context, name string) (core.Category, error)
		// DeleteCategory fails with core.ErrCategoryInUse when transactions
		// reference it, unless force is set, in which case they are detached.
		DeleteCategory(ctx context.Context, id string, force bool) (detached int, err error)
		CategoryUsage(ctx context.Context) ([]CategoryCount, error)
		// SeedDefaultCategories inserts each of core.DefaultCategories missing by
		// name and returns how many were added.
		SeedDefaultCategories(ctx context.Context) (inserted int, err error)
	}

	// Repository is a complete data backend.
	Repository interface {
		TransactionStore
		CategoryStore
		Ping(ctx context.Context) error
		Close() error
	}
)

// CategoryCount pairs a category with the number of transactions labeled with it.
type CategoryCount struct {
	Category core.Category
	Count    int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

// Sortable transaction fields.
var sortFields = map[string]bool{"created_at": true, "date": true, "amount": true}

// TransactionFilter selects a page of transactions. Zero values mean "no filter".
type TransactionFilter struct {
	From       *core.Date
	To         *core.Date
	CategoryID string
	Query      string
	Page       int
	Limit      int
	// Sort is a field name; a leading "-" sorts descending.
	Sort string
}

// Normalize clamps paging and falls back to "-created_at" for unknown sorts.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if field, _ := f.SortField(); !sortFields[field] {
		f.Sort = "-created_at"
	}
	f.Query = strings.TrimSpace(f.Query)
	return f
}

// SortField splits Sort into a field name and direction.
func (f TransactionFilter) SortField() (field string, desc bool) {
	if strings.HasPrefix(f.Sort, "-") {
		return f.Sort[1:], true
	}
	return f.Sort, false
}

// Offset is the number of rows skipped before the page.
func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type TransactionPage struct {
	Items   []core.Transaction
	Page    int
	Limit   int
	Total   int
	HasNext bool
}
