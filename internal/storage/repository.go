package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/ports"

	_ "modernc.org/sqlite"
)

// fixed-width UTC timestamps sort lexicographically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sortColumns = map[string]string{
	"created_at": "created_at",
	"date":       "date",
	"amount":     "amount_cents",
}

const transactionColumns = `id, user_id, date, description, amount_cents, merchant,
	category_id, predicted_category, predicted_proba, source, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateTransaction assigns an id and creation time when missing.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
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

	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Date.String(), t.Description, t.Amount.Cents, t.Merchant,
		nullString(t.CategoryID), nullString(t.PredictedCategory), nullFloat(t.PredictedProba),
		string(t.Source), t.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"amount_cents", t.Amount.Cents,
		"labeled", t.IsLabeled())
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f ports.TransactionFilter) (ports.TransactionPage, error) {
	f = f.Normalize()

	var (
		where []string
		args  []any
	)
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.From != nil {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Query != "" {
		where = append(where, `(LOWER(description) LIKE ? ESCAPE '\' OR LOWER(merchant) LIKE ? ESCAPE '\')`)
		pattern := likePattern(f.Query)
		args = append(args, pattern, pattern)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+clause, args...).Scan(&total); err != nil {
		return ports.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}

	field, desc := f.SortField()
	order := sortColumns[field] + " ASC"
	if desc {
		order = sortColumns[field] + " DESC"
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions` + clause +
		` ORDER BY ` + order + `, id ASC LIMIT ? OFFSET ?`
	items, err := r.queryTransactions(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return ports.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}

	return ports.TransactionPage{
		Items:   items,
		Page:    f.Page,
		Limit:   f.Limit,
		Total:   total,
		HasNext: f.Offset()+len(items) < total,
	}, nil
}

// UpdateTransaction writes only the fields present in u.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, id string, u core.TransactionUpdate) (core.Transaction, error) {
	if u.IsEmpty() {
		return core.Transaction{}, core.ErrEmptyUpdate
	}

	var (
		sets []string
		args []any
	)
	if u.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, u.Date.String())
	}
	if u.Description != nil {
		if strings.TrimSpace(*u.Description) == "" {
			return core.Transaction{}, core.ErrEmptyDescription
		}
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, u.Amount.Cents)
	}
	if u.Merchant != nil {
		sets = append(sets, "merchant = ?")
		args = append(args, *u.Merchant)
	}
	switch {
	case u.CategoryID != nil:
		sets = append(sets, "category_id = ?")
		args = append(args, *u.CategoryID)
	case u.ClearCategory:
		sets = append(sets, "category_id = NULL")
	}
	if u.PredictedCategory != nil {
		sets = append(sets, "predicted_category = ?")
		args = append(args, *u.PredictedCategory)
	}
	if u.PredictedProba != nil {
		sets = append(sets, "predicted_proba = ?")
		args = append(args, *u.PredictedProba)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		append(args, id)...)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return r.GetTransaction(ctx, id)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) FindLabeled(ctx context.Context) ([]core.Transaction, error) {
	items, err := r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE category_id IS NOT NULL AND category_id != ''
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("find labeled transactions: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) ListUnlabeled(ctx context.Context, query string, limit int) ([]core.Transaction, error) {
	if limit < 1 || limit > ports.MaxPageLimit {
		limit = ports.MaxPageLimit
	}
	sqlQuery := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (category_id IS NULL OR category_id = '')`
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		sqlQuery += ` AND (LOWER(description) LIKE ? ESCAPE '\' OR LOWER(merchant) LIKE ? ESCAPE '\')`
		pattern := likePattern(q)
		args = append(args, pattern, pattern)
	}
	sqlQuery += ` ORDER BY created_at DESC, id ASC LIMIT ?`
	items, err := r.queryTransactions(ctx, sqlQuery, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("list unlabeled transactions: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return core.Category{}, err
	}
	if _, err := r.FindCategoryByName(ctx, name); err == nil {
		return core.Category{}, fmt.Errorf("%q: %w", name, core.ErrCategoryExists)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, err
	}

	c := core.Category{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	_, err = r.db.ExecContext(ctx, `INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, c.CreatedAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return core.Category{}, fmt.Errorf("%q: %w", name, core.ErrCategoryExists)
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}

	slog.InfoContext(ctx, "Category created", "id", c.ID, "name", c.Name)
	return c, nil
}

func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, name string) (core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM categories WHERE name = ? COLLATE NOCASE ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name))
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("find category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string, force bool) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check category: %w", err)
	}
	if exists == 0 {
		return 0, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}

	var used int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = ?`, id).Scan(&used); err != nil {
		return 0, fmt.Errorf("count category usage: %w", err)
	}
	if used > 0 && !force {
		return 0, fmt.Errorf("category in use by %d transactions: %w", used, core.ErrCategoryInUse)
	}
	if used > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE transactions SET category_id = NULL WHERE category_id = ?`, id); err != nil {
			return 0, fmt.Errorf("detach transactions: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Category deleted", "id", id, "detached", used)
	return used, nil
}

func (r *SQLiteRepository) CategoryUsage(ctx context.Context) ([]ports.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT c.id, c.name, c.created_at, COUNT(t.id)
		FROM categories c LEFT JOIN transactions t ON t.category_id = c.id
		GROUP BY c.id, c.name, c.created_at
		ORDER BY c.name COLLATE NOCASE, c.id`)
	if err != nil {
		return nil, fmt.Errorf("category usage: %w", err)
	}
	defer rows.Close()

	var out []ports.CategoryCount
	for rows.Next() {
		var (
			cc      ports.CategoryCount
			created string
		)
		if err := rows.Scan(&cc.Category.ID, &cc.Category.Name, &created, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan category usage: %w", err)
		}
		cc.Category.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, cc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SeedDefaultCategories(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(timeLayout)
	inserted := 0
	for _, name := range core.DefaultCategories {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, created_at)
			SELECT ?, ?, ?
			WHERE NOT EXISTS (SELECT 1 FROM categories WHERE name = ? COLLATE NOCASE)`,
			uuid.NewString(), name, now, name)
		if err != nil {
			return 0, fmt.Errorf("seed category %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	if inserted > 0 {
		slog.InfoContext(ctx, "Seeded default categories", "count", inserted)
	}
	return inserted, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                  core.Transaction
		date, created, src string
		category, predCat  sql.NullString
		predProba          sql.NullFloat64
	)
	if err := s.Scan(&t.ID, &t.UserID, &date, &t.Description, &t.Amount.Cents, &t.Merchant,
		&category, &predCat, &predProba, &src, &created); err != nil {
		return core.Transaction{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	t.Date = d
	t.Source = core.Source(src)
	if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if predCat.Valid {
		t.PredictedCategory = &predCat.String
	}
	if predProba.Valid {
		t.PredictedProba = &predProba.Float64
	}
	return t, nil
}

func scanCategory(s scanner) (core.Category, error) {
	var (
		c       core.Category
		created string
	)
	if err := s.Scan(&c.ID, &c.Name, &created); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func likePattern(q string) string {
	q = strings.ToLower(q)
	q = strings.ReplaceAll(q, `\`, `\\`)
	q = strings.ReplaceAll(q, "%", `\%`)
	q = strings.ReplaceAll(q, "_", `\_`)
	return "%" + q + "%"
}
