package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spendwise/internal/core"
)

func seedCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-categories",
		Short: "Add any default categories that are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.rt.Repository.SeedDefaultCategories(cmd.Context())
			if err != nil {
				return fmt.Errorf("seed categories: %w", err)
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "All default categories present, nothing seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d categories\n", n)
			return nil
		},
	}
}

func categoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories with the number of labeled transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			usage, err := a.rt.Repository.CategoryUsage(cmd.Context())
			if err != nil {
				return fmt.Errorf("list categories: %w", err)
			}
			if len(usage) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories. Run 'spendctl seed-categories' or import labeled data.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTRANSACTIONS")
			for _, u := range usage {
				fmt.Fprintf(w, "%s\t%s\t%d\n", u.Category.ID, u.Category.Name, u.Count)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(deleteCategoryCmd(a))
	return cmd
}

func deleteCategoryCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <category>",
		Short: "Delete a category by name or id",
		Long: `Delete a category. A category that still labels transactions is kept
unless --force is given, in which case those transactions become unlabeled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := resolveCategory(ctx, a.rt.Repository, args[0])
			if err != nil {
				return err
			}
			detached, err := a.rt.Repository.DeleteCategory(ctx, c.ID, force)
			if errors.Is(err, core.ErrCategoryInUse) {
				return fmt.Errorf("category %q still labels transactions, use --force to unlabel them", c.Name)
			}
			if err != nil {
				return fmt.Errorf("delete category: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %q (%d transactions unlabeled)\n", c.Name, detached)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "unlabel transactions that use the category")
	return cmd
}
