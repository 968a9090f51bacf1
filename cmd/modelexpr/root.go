package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/micss-lab/modelexpr/internal/logging"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modelexpr",
		Short: "Rule expression evaluation and script constraint validation",
		Long: `modelexpr evaluates graph-transformation rule expressions and validates
model instances against script constraint suites.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(logLevel)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newParseCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newValidateCmd())
	return root
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(logging.NewCorrelationHandler(handler)))
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadModel(path string) (*schema.Model, error) {
	var m schema.Model
	if err := loadJSON(path, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadMetamodel(path string) (*schema.Metamodel, error) {
	var mm schema.Metamodel
	if err := loadJSON(path, &mm); err != nil {
		return nil, err
	}
	return &mm, nil
}
