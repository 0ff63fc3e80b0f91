package main

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"spendwise/internal/amqp"
	"spendwise/internal/importer"
)

func importCmd(a *app) *cobra.Command {
	var (
		publish   bool
		dryRun    bool
		delimiter string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import transactions from a CSV file",
		Long: `Import transactions from a CSV file with the columns
date, description, amount, merchant and category.

date must be YYYY-MM-DD. amount accepts dot or comma decimals. A non-empty
category labels the transaction; unknown categories are created. Rows that
fail validation are skipped and reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			delim, size := utf8.DecodeRuneInString(delimiter)
			if size == 0 || size != len(delimiter) {
				return fmt.Errorf("delimiter must be a single character, got %q", delimiter)
			}
			if publish && a.cfg.AMQPURL == "" {
				return errors.New("--publish needs AMQP_URL to be set")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open CSV: %w", err)
			}
			defer f.Close()

			im := importer.New(a.rt.Repository, a.rt.Repository, a.logger.Logger)
			res, err := im.Import(ctx, f, importer.Options{Delimiter: delim, UserID: userID, DryRun: dryRun})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			prefix := ""
			if dryRun {
				prefix = "[dry run] "
			}
			fmt.Fprintf(out, "%sImported %d of %d rows (%d labeled)\n", prefix, res.Imported, res.Rows, res.Labeled)
			for _, name := range res.CreatedCategories {
				fmt.Fprintf(out, "%sCreated category %q\n", prefix, name)
			}
			for _, skipped := range res.Skipped {
				fmt.Fprintf(out, "Skipped %v\n", skipped)
			}

			if !publish || dryRun || res.Labeled == 0 {
				return nil
			}
			client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect to AMQP: %w", err)
			}
			defer client.Close()
			if err := client.PublishRetrainRequest(ctx, "import", "spendctl"); err != nil {
				return fmt.Errorf("publish retrain request: %w", err)
			}
			fmt.Fprintln(out, "Retrain requested")
			return nil
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "request a retrain over AMQP after importing labeled rows")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing anything")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "field delimiter")
	cmd.Flags().StringVar(&userID, "user", "", "user id stored on imported transactions")
	return cmd
}
