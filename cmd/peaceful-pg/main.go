package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/config"
	"github.com/nnaka2992/peaceful-postgresql/internal/database"
	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
	"github.com/nnaka2992/peaceful-postgresql/internal/parser"
	"github.com/nnaka2992/peaceful-postgresql/internal/suggester"
)

// CLI configuration
var (
	version = "0.2.0"

	// Flags
	fileFlag         string
	outputFormat     string
	noColorFlag      bool
	noSuggestionFlag bool
	checkSizeFlag    bool
	failOnLargeFlag  bool
	configFlag       string
	debugFlag        bool

	// Loaded by the persistent pre-run hook
	cfg *config.Config
)

var (
	errNoInput      = errors.New("no SQL provided")
	errNoDatabase   = errors.New("database connection is not configured: set database.host, database.name and database.user")
	errSizeExceeded = errors.New("table size threshold exceeded")
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := buildCommand()
	cmd.SetArgs(args)
	defer logger.Close()

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return determineExitCode(err)
	}
	return 0
}

func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "peaceful-pg [SQL]",
		Short:             "PostgreSQL lock detector",
		Long:              "Reports the table-level locks SQL statements would take, without running them.",
		Version:           version,
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		RunE:              runAnalysis,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "config file (default: ./peaceful.yaml, then ~/.config/peaceful-pg/peaceful.yaml)")
	pf.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	pf.StringVarP(&outputFormat, "output", "o", "text", "output format: text, json, yaml")
	pf.BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	pf.BoolVar(&noSuggestionFlag, "no-suggestion", false, "disable safe migration suggestions")
	pf.BoolVar(&checkSizeFlag, "check-size", false, "probe the size of every locked table")
	pf.BoolVar(&failOnLargeFlag, "fail-on-large", false, "exit 3 when a probed table exceeds size.threshold")

	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "read SQL from file")

	cmd.AddCommand(buildMigrationsCommand(), buildSizesCommand())
	return cmd
}

// setup loads configuration and installs the logger before any command runs
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Log.Level
	if debugFlag {
		level = "debug"
	}
	if err := logger.Init(logger.Options{Level: level, File: cfg.Log.File, Stderr: cmd.ErrOrStderr()}); err != nil {
		return err
	}

	if noColorFlag {
		color.NoColor = true
	}

	switch outputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}
	return nil
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	sql, err := getSQLInput(cmd, args)
	if err != nil {
		return err
	}

	a, s, err := newAnalysis()
	if err != nil {
		return err
	}
	output := analyzeSQL(a, s, sql)

	exceeded := false
	if checkSizeFlag {
		if exceeded, err = attachSizes(cmd.Context(), []*Output{output}); err != nil {
			return err
		}
	}

	if err := writeOutputs(cmd.OutOrStdout(), []*Output{output}, false); err != nil {
		return err
	}
	return thresholdError(exceeded)
}

// newAnalysis builds the analyzer from config and the suggester unless
// suggestions are disabled
func newAnalysis() (analyzer.Analyzer, suggester.Suggester, error) {
	rules, err := cfg.Rules.Analyzer()
	if err != nil {
		return nil, nil, err
	}
	var s suggester.Suggester
	if !noSuggestionFlag {
		s = suggester.NewSuggester()
	}
	return analyzer.New(analyzer.WithRules(rules)), s, nil
}

// analyzeSQL parses and analyzes one SQL batch
func analyzeSQL(a analyzer.Analyzer, s suggester.Suggester, sql string) *Output {
	parsed := parser.NewParser().ParseSQL(sql)
	results := a.Analyze(parsed)
	logger.Debug("Analyzed SQL", "statements", len(results))
	return buildOutput(parsed, results, s)
}

// getSQLInput retrieves SQL from command args, file, or stdin
func getSQLInput(cmd *cobra.Command, args []string) (string, error) {
	// Priority: file flag > command args > stdin
	if fileFlag != "" {
		content, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(content), nil
	}

	if len(args) > 0 {
		return args[0], nil
	}

	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(content), nil
	}

	_ = cmd.Usage()
	return "", errNoInput
}

func connectionConfig() *database.ConnectionConfig {
	return &database.ConnectionConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		ApplicationName: cfg.Database.ApplicationName,
	}
}

func thresholdError(exceeded bool) error {
	if exceeded && failOnLargeFlag {
		return errSizeExceeded
	}
	return nil
}

func determineExitCode(err error) int {
	switch {
	case errors.Is(err, errNoInput):
		return 2
	case errors.Is(err, errSizeExceeded):
		return 3
	default:
		return 1
	}
}
