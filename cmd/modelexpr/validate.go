package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/micss-lab/modelexpr/internal/script"
	"github.com/micss-lab/modelexpr/internal/validation"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

func newCheckCmd() *cobra.Command {
	var suitePath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Syntax-probe every constraint in a suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			suite, err := validation.LoadSuite(suitePath)
			if err != nil {
				return err
			}

			validator, err := script.NewValidator(slog.Default())
			if err != nil {
				return err
			}

			failed := 0
			for i := range suite.Constraints {
				c := &suite.Constraints[i]
				result := validator.ValidateSyntax(c.Language, c.Expression)
				if result.Valid {
					fmt.Fprintf(cmd.OutOrStdout(), "ok    %s\n", c.Name)
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "error %s\n", c.Name)
				for _, issue := range result.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "      %s\n", issue)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d constraint(s) failed the syntax probe", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&suitePath, "suite", "s", "", "constraint suite YAML file")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var (
		modelPath     string
		metamodelPath string
		suitePath     string
		asJSON        bool
		concurrency   int
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a model against a constraint suite",
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := loadModel(modelPath)
			if err != nil {
				return err
			}
			metamodel, err := loadMetamodel(metamodelPath)
			if err != nil {
				return err
			}
			suite, err := validation.LoadSuite(suitePath)
			if err != nil {
				return err
			}

			validator, err := script.NewValidator(slog.Default(), script.WithTimeout(timeout))
			if err != nil {
				return err
			}

			report := validation.ValidateSuite(suite.Constraints, metamodel, validator)
			runner := script.NewRunner(validator, slog.Default(), concurrency)
			report.Merge(runner.Run(cmd.Context(), model, metamodel, suite.Constraints))

			if asJSON {
				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				printReport(cmd, report)
			}

			if !report.Valid() {
				return fmt.Errorf("validation failed: %s", report.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model JSON file")
	cmd.Flags().StringVar(&metamodelPath, "metamodel", "", "metamodel JSON file")
	cmd.Flags().StringVarP(&suitePath, "suite", "s", "", "constraint suite YAML file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel element validations")
	cmd.Flags().DurationVar(&timeout, "timeout", script.DefaultTimeout, "per-constraint evaluation timeout")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("metamodel")
	_ = cmd.MarkFlagRequired("suite")
	return cmd
}

func printReport(cmd *cobra.Command, report *schema.ValidationReport) {
	for _, iss := range report.Issues {
		target := iss.ElementID
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-7s %-20s %s\n", iss.Severity, target, iss.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
}
