package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/peaceful-postgresql/internal/analyzer"
	"github.com/nnaka2992/peaceful-postgresql/internal/metadata"
	"github.com/nnaka2992/peaceful-postgresql/internal/parser"
	"github.com/nnaka2992/peaceful-postgresql/internal/suggester"
)

const noLock = "None"

var (
	criticalFormat = color.New(color.FgHiRed).SprintFunc()
	warningFormat  = color.New(color.FgHiYellow).SprintFunc()
	infoFormat     = color.New(color.FgCyan).SprintFunc()
	goodFormat     = color.New(color.FgGreen).SprintFunc()
	mutedFormat    = color.New(color.FgHiBlack).SprintFunc()
	boldFormat     = color.New(color.Bold).SprintFunc()
)

// Output structures for JSON/YAML

type Output struct {
	Migration string            `json:"migration,omitempty" yaml:"migration,omitempty"`
	Summary   OutputSummary     `json:"summary" yaml:"summary"`
	Locks     map[string]string `json:"locks" yaml:"locks"`
	Results   []OutputResult    `json:"results" yaml:"results"`
	Sizes     []TableSize       `json:"sizes,omitempty" yaml:"sizes,omitempty"`
}

type OutputSummary struct {
	TotalStatements int `json:"total_statements" yaml:"total_statements"`
	// ByLock counts statements by the strongest lock they take
	ByLock map[string]int `json:"by_lock" yaml:"by_lock"`
}

type OutputResult struct {
	Index      int               `json:"index" yaml:"index"`
	SQL        string            `json:"sql" yaml:"sql"`
	LineNumber int               `json:"line_number" yaml:"line_number"`
	Operation  string            `json:"operation" yaml:"operation"`
	LockType   string            `json:"lock_type" yaml:"lock_type"`
	Tables     []TableLock       `json:"tables" yaml:"tables"`
	Suggestion *OutputSuggestion `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

type OutputSuggestion struct {
	Partial bool         `json:"partial,omitempty" yaml:"partial,omitempty"`
	Steps   []OutputStep `json:"steps" yaml:"steps"`
}

type OutputStep struct {
	Description         string `json:"description" yaml:"description"`
	CanRunInTransaction bool   `json:"can_run_in_transaction" yaml:"can_run_in_transaction"`
	Output              string `json:"output" yaml:"output"`
}

type TableLock struct {
	Name     string `json:"name" yaml:"name"`
	LockType string `json:"lock_type" yaml:"lock_type"`
}

type TableSize struct {
	Name    string `json:"name" yaml:"name"`
	Bytes   int64  `json:"bytes" yaml:"bytes"`
	Size    string `json:"size" yaml:"size"`
	Exceeds bool   `json:"exceeds_threshold" yaml:"exceeds_threshold"`
}

// buildOutput creates the structured output for one analyzed batch
func buildOutput(parsed *parser.ParseResult, results []*analyzer.Result, s suggester.Suggester) *Output {
	output := &Output{
		Summary: OutputSummary{
			TotalStatements: len(results),
			ByLock:          make(map[string]int),
		},
		Locks:   analyzer.Summarize(results).Strings(),
		Results: make([]OutputResult, 0, len(results)),
	}

	for i, result := range results {
		var tokens []parser.Token
		if i < len(parsed.Statements) {
			tokens = parsed.Statements[i].Tokens
		}
		r := buildOutputResult(i, result, tokens, s)
		output.Summary.ByLock[firstNonEmpty(r.LockType, noLock)]++
		output.Results = append(output.Results, r)
	}
	return output
}

// buildOutputResult creates a single output result
func buildOutputResult(index int, result *analyzer.Result, tokens []parser.Token, s suggester.Suggester) OutputResult {
	md := metadata.NewExtractor().Extract(tokens, result.Operation())
	operation := metadata.RefineOperation(result.Operation(), md)

	r := OutputResult{
		Index:      index,
		SQL:        result.SQL,
		LineNumber: result.LineNumber,
		Operation:  operation,
		Tables:     make([]TableLock, 0, len(result.TargetLocks())),
	}
	lock, hasLock := result.StrongestLock()
	if hasLock {
		r.LockType = lock.String()
	}
	for _, tl := range result.TargetLocks() {
		r.Tables = append(r.Tables, TableLock{Name: tl.Name, LockType: tl.Lock.String()})
	}

	// Only ACCESS EXCLUSIVE operations get safer alternatives
	if hasLock && lock == analyzer.AccessExclusive && s != nil && s.HasSuggestion(operation) {
		if suggestion, err := s.GetSuggestion(operation, suggester.OperationMetadata(md)); err == nil {
			r.Suggestion = convertSuggestion(suggestion)
		}
	}
	return r
}

func convertSuggestion(suggestion *suggester.Suggestion) *OutputSuggestion {
	if suggestion == nil {
		return nil
	}

	out := &OutputSuggestion{
		Partial: suggestion.IsPartial,
		Steps:   make([]OutputStep, 0, len(suggestion.Steps)),
	}
	for _, step := range suggestion.Steps {
		out.Steps = append(out.Steps, OutputStep{
			Description:         step.Description,
			CanRunInTransaction: step.CanRunInTransaction,
			Output:              firstNonEmpty(step.SQL, step.Command, step.Notes),
		})
	}
	return out
}

// writeOutputs renders outputs in the selected format. list selects a JSON
// or YAML array even for a single output.
func writeOutputs(w io.Writer, outputs []*Output, list bool) error {
	var v any = outputs
	if !list && len(outputs) == 1 {
		v = outputs[0]
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return encoder.Close()
	default:
		for i, o := range outputs {
			if i > 0 {
				fmt.Fprintln(w)
			}
			outputText(w, o)
		}
	}
	return nil
}

// outputText formats one output as human-readable text
func outputText(w io.Writer, o *Output) {
	if o.Migration != "" {
		fmt.Fprintf(w, "%s %s\n", boldFormat("Migration:"), o.Migration)
	}

	for _, r := range o.Results {
		label := firstNonEmpty(r.LockType, noLock)
		fmt.Fprintf(w, "[%s] %s\n", lockFormat(label)(label), r.SQL)
		for _, t := range r.Tables {
			fmt.Fprintf(w, "  %s: %s\n", t.Name, lockFormat(t.LockType)(t.LockType))
		}
		if r.Suggestion != nil {
			printSuggestion(w, r.Suggestion)
		}
	}

	fmt.Fprintf(w, "\nSummary: %d statements analyzed\n", o.Summary.TotalStatements)
	if len(o.Locks) > 0 {
		fmt.Fprintln(w, "Locks:")
		for _, name := range slices.Sorted(maps.Keys(o.Locks)) {
			fmt.Fprintf(w, "  %s: %s\n", name, lockFormat(o.Locks[name])(o.Locks[name]))
		}
	}
	if len(o.Sizes) > 0 {
		fmt.Fprintln(w, "Sizes:")
		printSizes(w, o.Sizes)
	}
}

func printSuggestion(w io.Writer, suggestion *OutputSuggestion) {
	header := "Suggestion for safe migration:"
	if suggestion.Partial {
		header = "Partial suggestion for safe migration:"
	}
	fmt.Fprintln(w, goodFormat(header))
	for _, step := range suggestion.Steps {
		fmt.Fprintf(w, "  Step: %s\n", step.Description)
		if step.CanRunInTransaction {
			fmt.Fprintln(w, "    Can run in transaction: Yes")
		} else {
			fmt.Fprintln(w, "    Can run in transaction: No")
		}
		printIndented(w, "    Output:", step.Output)
	}
}

// lockFormat colors a lock label by how much traffic it blocks
func lockFormat(label string) func(a ...interface{}) string {
	lock, err := analyzer.ParseLockType(label)
	if err != nil {
		return mutedFormat
	}
	switch lock {
	case analyzer.AccessExclusive:
		return criticalFormat
	case analyzer.Share, analyzer.ShareUpdateExclusive:
		return warningFormat
	case analyzer.RowExclusive:
		return infoFormat
	default:
		return goodFormat
	}
}

// printIndented prints a header followed by content with proper indentation
func printIndented(w io.Writer, header, content string) {
	fmt.Fprintln(w, header)
	for _, line := range strings.Split(content, "\n") {
		if line != "" {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
