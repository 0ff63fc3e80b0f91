package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"spendwise/internal/core"
	"spendwise/internal/ports"
)

const defaultUnlabeledLimit = 50

func transactionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List and delete transactions",
	}
	cmd.AddCommand(listTransactionsCmd(a), deleteTransactionCmd(a))
	return cmd
}

func listTransactionsCmd(a *app) *cobra.Command {
	var (
		from, to, category, query, sort string
		page, limit                     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first by default",
		Long: `List one page of transactions.

--from and --to bound the date (YYYY-MM-DD, inclusive). --category takes a
category name or id. --q searches description and merchant. --sort accepts
created_at, date or amount, with a leading "-" for descending order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit < 1 || limit > ports.MaxPageLimit {
				return fmt.Errorf("--limit must be between 1 and %d, got %d", ports.MaxPageLimit, limit)
			}
			if page < 1 {
				return fmt.Errorf("--page must be positive, got %d", page)
			}

			f := ports.TransactionFilter{Query: query, Page: page, Limit: limit, Sort: sort}
			var err error
			if f.From, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if f.To, err = parseDateFlag("to", to); err != nil {
				return err
			}
			if category != "" {
				c, err := resolveCategory(ctx, a.rt.Repository, category)
				if err != nil {
					return err
				}
				f.CategoryID = c.ID
			}

			res, err := a.rt.Repository.ListTransactions(ctx, f)
			if err != nil {
				return fmt.Errorf("list transactions: %w", err)
			}
			names, err := categoryNames(ctx, a.rt.Repository)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := writeTransactions(out, res.Items, names); err != nil {
				return err
			}
			fmt.Fprintf(out, "Page %d, %d of %d transactions", res.Page, len(res.Items), res.Total)
			if res.HasNext {
				fmt.Fprint(out, ", more with --page ", res.Page+1)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "earliest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "latest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&category, "category", "", "category name or id")
	cmd.Flags().StringVar(&query, "q", "", "case-insensitive search on description and merchant")
	cmd.Flags().StringVar(&sort, "sort", "-created_at", "sort field, prefix with - for descending")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", ports.DefaultPageLimit, "page size")
	return cmd
}

func deleteTransactionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <transaction-id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.rt.Repository.DeleteTransaction(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete transaction: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %s\n", args[0])
			return nil
		},
	}
}

func unlabeledCmd(a *app) *cobra.Command {
	var (
		query string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "unlabeled",
		Short: "Show the newest transactions still waiting for a label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if limit < 1 || limit > ports.MaxPageLimit {
				return fmt.Errorf("--limit must be between 1 and %d, got %d", ports.MaxPageLimit, limit)
			}
			items, err := a.rt.Repository.ListUnlabeled(ctx, query, limit)
			if err != nil {
				return fmt.Errorf("list unlabeled transactions: %w", err)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No unlabeled transactions")
				return nil
			}
			names, err := categoryNames(ctx, a.rt.Repository)
			if err != nil {
				return err
			}
			return writeTransactions(cmd.OutOrStdout(), items, names)
		},
	}

	cmd.Flags().StringVar(&query, "q", "", "case-insensitive search on description and merchant")
	cmd.Flags().IntVar(&limit, "limit", defaultUnlabeledLimit, "maximum number of transactions")
	return cmd
}

func labelCmd(a *app) *cobra.Command {
	var clearLabel bool

	cmd := &cobra.Command{
		Use:   "label <transaction-id> [category]",
		Short: "Set or clear the category of a transaction",
		Long: `Assign a category, by name or id, to a transaction. Labeled transactions
are what the classifier trains on. --clear removes the label instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if clearLabel == (len(args) == 2) {
				return errors.New("give either a category or --clear")
			}

			update := core.TransactionUpdate{ClearCategory: clearLabel}
			label := "(none)"
			if !clearLabel {
				c, err := resolveCategory(ctx, a.rt.Repository, args[1])
				if err != nil {
					return err
				}
				update.CategoryID = &c.ID
				label = c.Name
			}

			if _, err := a.rt.Repository.UpdateTransaction(ctx, args[0], update); err != nil {
				return fmt.Errorf("label transaction: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Labeled %s as %s\n", args[0], label)
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearLabel, "clear", false, "remove the label")
	return cmd
}

// resolveCategory finds a category by name, case-insensitively, or by id.
func resolveCategory(ctx context.Context, cats ports.CategoryStore, ref string) (core.Category, error) {
	c, err := cats.FindCategoryByName(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Category{}, fmt.Errorf("find category: %w", err)
	}
	all, err := cats.ListCategories(ctx)
	if err != nil {
		return core.Category{}, fmt.Errorf("list categories: %w", err)
	}
	if c, ok := lo.Find(all, func(c core.Category) bool { return c.ID == ref }); ok {
		return c, nil
	}
	return core.Category{}, fmt.Errorf("unknown category %q", ref)
}

func categoryNames(ctx context.Context, cats ports.CategoryDirectory) (map[string]string, error) {
	all, err := cats.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return lo.SliceToMap(all, func(c core.Category) (string, string) { return c.ID, c.Name }), nil
}

func parseDateFlag(name, value string) (*core.Date, error) {
	if value == "" {
		return nil, nil
	}
	d, err := core.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s must be YYYY-MM-DD, got %q", name, value)
	}
	return &d, nil
}

func writeTransactions(out io.Writer, items []core.Transaction, names map[string]string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tAMOUNT\tDESCRIPTION\tMERCHANT\tCATEGORY\tSUGGESTED")
	for _, t := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, t.Amount, t.Description, t.Merchant,
			categoryLabel(t.CategoryID, names), suggestionLabel(t, names))
	}
	return w.Flush()
}

func categoryLabel(id *string, names map[string]string) string {
	if id == nil || *id == "" {
		return "-"
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return "(deleted:" + *id + ")"
}

// suggestionLabel shows a stored prediction, which holds a category id or,
// for rule suggestions without a directory entry, a category name.
func suggestionLabel(t core.Transaction, names map[string]string) string {
	if t.PredictedCategory == nil {
		return "-"
	}
	name := *t.PredictedCategory
	if n, ok := names[name]; ok {
		name = n
	}
	if t.PredictedProba == nil {
		return name
	}
	return name + " (" + strconv.FormatFloat(*t.PredictedProba, 'f', 2, 64) + ")"
}
