package suggester

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed suggestions.yaml
var suggestionsYAML []byte

// Suggester provides safer alternatives for operations that take
// ACCESS EXCLUSIVE locks
type Suggester interface {
	// HasSuggestion checks if a suggestion exists for the given operation
	HasSuggestion(operation string) bool

	// GetSuggestion returns a safe migration suggestion for the given operation
	GetSuggestion(operation string, metadata OperationMetadata) (*Suggestion, error)
}

// OperationMetadata is a flexible map for template data
type OperationMetadata map[string]interface{}

// Suggestion represents a safe migration suggestion
type Suggestion struct {
	Operation   string // Operation name (for tests)
	Category    string // Category (for tests)
	Description string
	Steps       []Step
	IsPartial   bool // True if this is only a partial alternative
}

// Step represents a single step in a migration suggestion
type Step struct {
	Description         string
	CanRunInTransaction bool
	Type                string // "sql", "command", "procedural"
	SQL                 string // SQL to execute
	Command             string // External command to run
	Notes               string // Procedural instructions
	SQLTemplate         string // Original template (for tests)
	CommandTemplate     string // Original template (for tests)
}

// ErrNoSuggestion is returned when no suggestion exists for an operation
var ErrNoSuggestion = fmt.Errorf("no suggestion available for this operation")

// yamlRoot represents the root structure of suggestions.yaml
type yamlRoot struct {
	OperationsWithAlternatives []operationDef `yaml:"operations_with_alternatives"`
}

// operationDef represents a single operation definition
type operationDef struct {
	Operation   string `yaml:"operation"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	IsPartial   bool   `yaml:"partial_alternative,omitempty"`
	Steps       []struct {
		Type                string `yaml:"type"`
		Description         string `yaml:"description"`
		SQL                 string `yaml:"sql,omitempty"`
		SQLTemplate         string `yaml:"sql_template,omitempty"`
		Command             string `yaml:"command,omitempty"`
		CommandTemplate     string `yaml:"command_template,omitempty"`
		Notes               string `yaml:"notes,omitempty"`
		CanRunInTransaction bool   `yaml:"can_run_in_transaction"`
	} `yaml:"steps"`
}

// operations holds all parsed operations from YAML, keyed by operation name
var operations map[string]operationDef

func init() {
	// Parse suggestions.yaml at startup
	var root yamlRoot
	if err := yaml.Unmarshal(suggestionsYAML, &root); err != nil {
		panic(fmt.Sprintf("failed to parse suggestions.yaml: %v", err))
	}

	// Build operations map
	operations = make(map[string]operationDef)
	for _, op := range root.OperationsWithAlternatives {
		operations[op.Operation] = op
	}
}

// suggester implements the Suggester interface
type suggester struct{}

// NewSuggester creates a new suggester instance
func NewSuggester() Suggester {
	return &suggester{}
}

// GetSuggestion returns a safe migration suggestion for the given operation
func (s *suggester) GetSuggestion(operation string, metadata OperationMetadata) (*Suggestion, error) {
	def, exists := operations[operation]
	if !exists {
		return nil, ErrNoSuggestion
	}

	// Missing identifiers would render invalid SQL
	if err := s.validateCriticalFields(operation, metadata); err != nil {
		return nil, err
	}

	suggestion := &Suggestion{
		Operation:   operation,
		Category:    def.Category,
		Description: def.Description,
		IsPartial:   def.IsPartial,
		Steps:       make([]Step, 0, len(def.Steps)),
	}

	for _, stepDef := range def.Steps {
		step := Step{
			Description:         stepDef.Description,
			CanRunInTransaction: stepDef.CanRunInTransaction,
			Type:                stepDef.Type,
		}

		var content string
		switch stepDef.Type {
		case "sql":
			step.SQLTemplate = firstNonEmpty(stepDef.SQLTemplate, stepDef.SQL)
			content = step.SQLTemplate
		case "command", "external":
			step.CommandTemplate = firstNonEmpty(stepDef.CommandTemplate, stepDef.Command)
			content = step.CommandTemplate
		case "procedural":
			content = stepDef.Notes
		}

		rendered, err := s.substituteTemplate(content, metadata)
		if err != nil {
			return nil, fmt.Errorf("render %s step %q: %w", operation, stepDef.Description, err)
		}

		switch stepDef.Type {
		case "sql":
			step.SQL = rendered
		case "command", "external":
			step.Command = rendered
		case "procedural":
			step.Notes = rendered
		}

		suggestion.Steps = append(suggestion.Steps, step)
	}

	return suggestion, nil
}

// HasSuggestion returns true if a suggestion exists for the given operation
func (s *suggester) HasSuggestion(operation string) bool {
	_, exists := operations[operation]
	return exists
}

// Operations lists every operation with a suggestion, sorted
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// substituteTemplate renders a template with the given metadata
func (s *suggester) substituteTemplate(tmplStr string, metadata OperationMetadata) (string, error) {
	if tmplStr == "" {
		return "", nil
	}

	funcMap := template.FuncMap{
		"join":   strings.Join,
		"printf": fmt.Sprintf,
		"required": func(value interface{}, fieldName string) (interface{}, error) {
			if value == nil || value == "" {
				return nil, fmt.Errorf("missing required field: %s", s.fieldDisplayName(fieldName))
			}
			if slice, ok := value.([]string); ok && len(slice) == 0 {
				return nil, fmt.Errorf("field '%s' cannot be empty", s.fieldDisplayName(fieldName))
			}
			return value, nil
		},
		"error": func(msg string) (string, error) {
			return "", fmt.Errorf("%s", msg)
		},
	}

	tmpl, err := template.New("suggestion").Funcs(funcMap).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, metadata); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fieldDisplayName converts field names to display format
func (s *suggester) fieldDisplayName(field string) string {
	displayNames := map[string]string{
		"tableName":       "TableName",
		"indexName":       "IndexName",
		"columns":         "Columns",
		"columnName":      "ColumnName",
		"dataType":        "DataType",
		"defaultValue":    "DefaultValue",
		"newType":         "NewType",
		"constraintName":  "ConstraintName",
		"referencedTable": "ReferencedTable",
		"lockMode":        "LockMode",
		"schema":          "Schema",
	}

	if display, ok := displayNames[field]; ok {
		return display
	}
	if len(field) > 0 {
		return strings.ToUpper(field[:1]) + field[1:]
	}
	return field
}

// validateCriticalFields checks for fields that would produce invalid SQL if missing
func (s *suggester) validateCriticalFields(operation string, metadata OperationMetadata) error {
	criticalFields := map[string][]string{
		"CREATE INDEX":                  {"tableName", "columns"},
		"DROP INDEX":                    {"indexName"},
		"REINDEX INDEX":                 {"indexName"},
		"REINDEX TABLE":                 {"tableName"},
		"REINDEX SCHEMA":                {"schema"},
		"VACUUM FULL":                   {"tableName"},
		"CLUSTER":                       {"tableName"},
		"ALTER TABLE ADD COLUMN":        {"tableName", "columnName", "dataType"},
		"ALTER TABLE ALTER COLUMN TYPE": {"tableName", "columnName", "newType"},
		"ALTER TABLE SET NOT NULL":      {"tableName", "columnName"},
		"ALTER TABLE ADD CHECK":         {"tableName", "constraintName"},
		"ALTER TABLE ADD FOREIGN KEY":   {"tableName", "columns", "referencedTable"},
		"ALTER TABLE ADD PRIMARY KEY":   {"tableName", "columns"},
		"ALTER TABLE ADD UNIQUE":        {"tableName", "columns"},
		"LOCK TABLE":                    {"tableName", "lockMode"},
	}

	fields, ok := criticalFields[operation]
	if !ok {
		return nil
	}

	for _, field := range fields {
		value, exists := metadata[field]
		if !exists || value == nil {
			return fmt.Errorf("missing required field: %s", s.fieldDisplayName(field))
		}
		if str, ok := value.(string); ok && str == "" {
			return fmt.Errorf("field '%s' cannot be empty", s.fieldDisplayName(field))
		}
		if arr, ok := value.([]string); ok && len(arr) == 0 {
			return fmt.Errorf("field '%s' cannot be empty", s.fieldDisplayName(field))
		}
	}

	return nil
}
