package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spendwise/internal/classifier"
	"spendwise/internal/core"
)

func retrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Train a new model from all labeled transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.rt.Models.Retrain(cmd.Context())
			if err != nil {
				var insufficient *classifier.InsufficientDataError
				if errors.As(err, &insufficient) {
					return fmt.Errorf("cannot train yet: %s", insufficient.Error())
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trained on %d rows, %d classes\n", res.TrainedOnRows, len(res.Classes))
			if res.Accuracy != nil {
				fmt.Fprintf(out, "Hold-out accuracy: %.3f\n", *res.Accuracy)
			} else {
				fmt.Fprintln(out, "Hold-out accuracy: n/a")
			}
			return nil
		},
	}
}

func metricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show whether a model is available and how many categories it knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd, a.rt.Models.Metrics(cmd.Context()))
		},
	}
}

func predictCmd(a *app) *cobra.Command {
	var description, merchant string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Suggest a category for one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := core.ClassificationInput{Description: description}
			if cmd.Flags().Changed("merchant") {
				in.Merchant = &merchant
			}
			preds, err := a.rt.Models.Predict(cmd.Context(), []core.ClassificationInput{in})
			if err != nil {
				return err
			}
			return printJSON(cmd, preds[0])
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "transaction description")
	cmd.Flags().StringVar(&merchant, "merchant", "", "merchant name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func predictUnlabeledCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "predict-unlabeled",
		Short: "Store suggestions on the newest unlabeled transactions",
		Long: `Run the classifier over the newest unlabeled transactions and store the
suggested category and its confidence on each. Labels are not changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			n, err := a.rt.Models.AnnotateUnlabeled(cmd.Context(), a.rt.Repository, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Annotated %d transactions\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "maximum number of transactions to annotate")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(b)))
	return err
}
