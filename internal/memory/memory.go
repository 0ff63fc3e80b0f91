// Package memory is an in-process data backend for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

type Store struct {
	mu    sync.RWMutex
	cats  []core.Category
	items []core.Transaction
}

var _ ports.Repository = (*Store)(nil)

// New creates a store with the given category names. Blanks and
// case-insensitive duplicates are dropped.
func New(categories []string) *Store {
	s := &Store{}
	now := time.Now().UTC()
	for _, name := range dedupe(categories) {
		s.cats = append(s.cats, core.Category{ID: uuid.NewString(), Name: name, CreatedAt: now})
	}
	return s
}

// NewFromFiles seeds categories from base/seed_categories.txt, falling back
// to core.DefaultCategories when the file is missing or empty.
func NewFromFiles(base string) *Store {
	cats := readLines(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = core.DefaultCategories
	}
	return New(cats)
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Source == "" {
		t.Source = core.SourceManual
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.items {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListTransactions(_ context.Context, f ports.TransactionFilter) (ports.TransactionPage, error) {
	f = f.Normalize()
	s.mu.RLock()
	matched := lo.Filter(s.items, func(t core.Transaction, _ int) bool {
		if f.CategoryID != "" && (t.CategoryID == nil || *t.CategoryID != f.CategoryID) {
			return false
		}
		if f.From != nil && t.Date.Before(f.From.Time) {
			return false
		}
		if f.To != nil && t.Date.After(f.To.Time) {
			return false
		}
		return matchesQuery(t, f.Query)
	})
	s.mu.RUnlock()

	field, desc := f.SortField()
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, greater bool
		switch field {
		case "date":
			less, greater = a.Date.Before(b.Date.Time), a.Date.After(b.Date.Time)
		case "amount":
			less, greater = a.Amount.Cents < b.Amount.Cents, a.Amount.Cents > b.Amount.Cents
		default:
			less, greater = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
		}
		if desc {
			return greater
		}
		return less
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return ports.TransactionPage{
		Items:   matched[start:end],
		Page:    f.Page,
		Limit:   f.Limit,
		Total:   total,
		HasNext: end < total,
	}, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, u core.TransactionUpdate) (core.Transaction, error) {
	if u.IsEmpty() {
		return core.Transaction{}, core.ErrEmptyUpdate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(s.items, func(t core.Transaction) bool { return t.ID == id })
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	updated := u.Apply(s.items[idx])
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.items[idx] = updated
	return updated, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(s.items, func(t core.Transaction) bool { return t.ID == id })
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return nil
}

func (s *Store) FindLabeled(context.Context) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(s.items, func(t core.Transaction, _ int) bool { return t.IsLabeled() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListUnlabeled(_ context.Context, query string, limit int) ([]core.Transaction, error) {
	if limit < 1 || limit > ports.MaxPageLimit {
		limit = ports.MaxPageLimit
	}
	query = strings.TrimSpace(query)
	s.mu.RLock()
	out := lo.Filter(s.items, func(t core.Transaction, _ int) bool {
		return !t.IsLabeled() && matchesQuery(t, query)
	})
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.RLock()
	out := append([]core.Category(nil), s.cats...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findByName(name); ok {
		return core.Category{}, fmt.Errorf("%q: %w", name, core.ErrCategoryExists)
	}
	c := core.Category{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	s.cats = append(s.cats, c)
	return c, nil
}

func (s *Store) FindCategoryByName(_ context.Context, name string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.findByName(strings.TrimSpace(name)); ok {
		return c, nil
	}
	return core.Category{}, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
}

func (s *Store) DeleteCategory(_ context.Context, id string, force bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(s.cats, func(c core.Category) bool { return c.ID == id })
	if !ok {
		return 0, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	used := lo.CountBy(s.items, func(t core.Transaction) bool { return t.CategoryID != nil && *t.CategoryID == id })
	if used > 0 && !force {
		return 0, fmt.Errorf("category in use by %d transactions: %w", used, core.ErrCategoryInUse)
	}
	for i := range s.items {
		if s.items[i].CategoryID != nil && *s.items[i].CategoryID == id {
			s.items[i].CategoryID = nil
		}
	}
	s.cats = append(s.cats[:idx], s.cats[idx+1:]...)
	return used, nil
}

func (s *Store) CategoryUsage(ctx context.Context) ([]ports.CategoryCount, error) {
	cats, _ := s.ListCategories(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := lo.CountValuesBy(
		lo.Filter(s.items, func(t core.Transaction, _ int) bool { return t.IsLabeled() }),
		func(t core.Transaction) string { return *t.CategoryID },
	)
	return lo.Map(cats, func(c core.Category, _ int) ports.CategoryCount {
		return ports.CategoryCount{Category: c, Count: counts[c.ID]}
	}), nil
}

func (s *Store) SeedDefaultCategories(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, name := range core.DefaultCategories {
		if _, ok := s.findByName(name); ok {
			continue
		}
		s.cats = append(s.cats, core.Category{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()})
		inserted++
	}
	return inserted, nil
}

func (s *Store) findByName(name string) (core.Category, bool) {
	return lo.Find(s.cats, func(c core.Category) bool { return strings.EqualFold(c.Name, name) })
}

func matchesQuery(t core.Transaction, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(t.Description), q) ||
		strings.Contains(strings.ToLower(t.Merchant), q)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe keeps input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
