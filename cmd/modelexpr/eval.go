package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/micss-lab/modelexpr/internal/expression"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <expression>",
		Short: "Parse an expression and print its canonical form and AST",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			parser := expression.NewParser(slog.Default())
			expr := parser.Parse(input, nil)
			if expr == nil {
				return fmt.Errorf("nothing to parse")
			}

			fmt.Fprintln(cmd.OutOrStdout(), expression.Serialize(expr))

			ast, err := json.MarshalIndent(expr, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(ast))
			return nil
		},
	}
}

func newEvalCmd() *cobra.Command {
	var contextPath string

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression against an evaluation context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")

			evalCtx := &schema.EvaluationContext{}
			if contextPath != "" {
				if err := loadJSON(contextPath, evalCtx); err != nil {
					return err
				}
			}

			parser := expression.NewParser(slog.Default())
			expr := parser.Parse(input, nil)
			if expr == nil {
				return fmt.Errorf("nothing to evaluate")
			}

			evaluator := expression.NewEvaluator(nil, slog.Default())
			result := evaluator.Evaluate(expr, evalCtx)
			if result == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "null")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&contextPath, "context", "c", "", "evaluation context JSON file")
	return cmd
}
