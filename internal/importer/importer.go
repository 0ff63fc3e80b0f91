// Package importer loads transactions from CSV exports into a data backend.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

// Row is one CSV record. Headers are matched case-insensitively.
type Row struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Merchant    string `csv:"merchant"`
	Category    string `csv:"category"`
}

var requiredColumns = []string{"date", "description", "amount"}

var ErrMissingColumns = errors.New("missing required CSV columns")

type Options struct {
	// Delimiter defaults to ','.
	Delimiter rune
	UserID    string
	// DryRun validates and resolves rows without writing anything.
	DryRun bool
}

// RowError describes a record that was skipped. Line is the 1-based record
// number, header included; blank lines are not counted.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type Result struct {
	Rows              int
	Imported          int
	Labeled           int
	CreatedCategories []string
	Skipped           []RowError
}

type Importer struct {
	transactions ports.TransactionStore
	categories   ports.CategoryStore
	logger       *slog.Logger
}

func New(transactions ports.TransactionStore, categories ports.CategoryStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{transactions: transactions, categories: categories, logger: logger}
}

// Import reads every record from r. Bad records are skipped and reported in
// Result.Skipped; only reader, header or storage failures abort the import.
func (im *Importer) Import(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	rows, err := parse(r, opts.Delimiter)
	if err != nil {
		return Result{}, err
	}
	im.logger.InfoContext(ctx, "Read CSV rows", "count", len(rows))

	res := Result{Rows: len(rows)}
	resolver := newCategoryResolver(im.categories, opts.DryRun)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := i + 2

		tx, err := row.toTransaction()
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
			im.logger.WarnContext(ctx, "Skipping CSV row", "line", line, "error", err)
			continue
		}
		tx.UserID = opts.UserID

		if name := strings.TrimSpace(row.Category); name != "" {
			id, created, err := resolver.resolve(ctx, name)
			if err != nil {
				if errors.Is(err, errInvalidCategory) {
					res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
					continue
				}
				return res, fmt.Errorf("line %d: resolve category %q: %w", line, name, err)
			}
			if created != "" {
				res.CreatedCategories = append(res.CreatedCategories, created)
			}
			tx.CategoryID = &id
		}

		if !opts.DryRun {
			if _, err := im.transactions.CreateTransaction(ctx, tx); err != nil {
				if isValidationError(err) {
					res.Skipped = append(res.Skipped, RowError{Line: line, Err: err})
					continue
				}
				return res, fmt.Errorf("line %d: store transaction: %w", line, err)
			}
		}
		res.Imported++
		if tx.CategoryID != nil {
			res.Labeled++
		}
	}

	im.logger.InfoContext(ctx, "CSV import finished",
		"rows", res.Rows,
		"imported", res.Imported,
		"labeled", res.Labeled,
		"skipped", len(res.Skipped),
		"created_categories", len(res.CreatedCategories),
		"dry_run", opts.DryRun)
	return res, nil
}

func parse(r io.Reader, delimiter rune) ([]Row, error) {
	reader := csv.NewReader(r)
	if delimiter != 0 {
		reader.Comma = delimiter
	}
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrMissingColumns)
	}

	header := lo.Map(records[0], func(h string, _ int) string {
		return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	})
	if missing := lo.Without(requiredColumns, header...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	records[0] = header

	var rows []Row
	if err := gocsv.UnmarshalCSV(&recordReader{records: records}, &rows); err != nil {
		return nil, fmt.Errorf("decode CSV: %w", err)
	}
	return rows, nil
}

// recordReader replays already-read records to gocsv.
type recordReader struct {
	records [][]string
	next    int
}

func (r *recordReader) Read() ([]string, error) {
	if r.next >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.next]
	r.next++
	return rec, nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	rest := r.records[r.next:]
	r.next = len(r.records)
	return rest, nil
}

func (row Row) toTransaction() (core.Transaction, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("invalid date %q: %w", row.Date, err)
	}
	amount, err := core.ParseAmount(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("invalid amount %q: %w", row.Amount, err)
	}
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}
	return core.Transaction{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Merchant:    strings.TrimSpace(row.Merchant),
		Source:      core.SourceImport,
	}, nil
}

func isValidationError(err error) bool {
	for _, target := range []error{core.ErrEmptyDescription, core.ErrInvalidAmount, core.ErrInvalidDay, core.ErrInvalidMonth} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
