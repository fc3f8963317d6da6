package suggester

import (
	"errors"
	"strings"
	"testing"
)

// Test helpers
func assertStep(t *testing.T, step Step, expectedType string, expectedCanRunInTx bool) {
	t.Helper()
	if step.Type != expectedType {
		t.Errorf("Step type = %v, want %v", step.Type, expectedType)
	}
	if step.CanRunInTransaction != expectedCanRunInTx {
		t.Errorf("Step CanRunInTransaction = %v, want %v", step.CanRunInTransaction, expectedCanRunInTx)
	}
}

func assertSQLStep(t *testing.T, step Step, wantSQL string) {
	t.Helper()
	assertStep(t, step, "sql", step.CanRunInTransaction)
	if step.SQL != wantSQL {
		t.Errorf("SQL = %q, want %q", step.SQL, wantSQL)
	}
}

func assertProceduralStep(t *testing.T, step Step, mustContain ...string) {
	t.Helper()
	assertStep(t, step, "procedural", step.CanRunInTransaction)
	if step.SQL != "" {
		t.Errorf("Procedural step should not have SQL, got %q", step.SQL)
	}
	for _, text := range mustContain {
		if !strings.Contains(step.Notes, text) {
			t.Errorf("Step notes should contain %q, got %q", text, step.Notes)
		}
	}
}

func assertExternalStep(t *testing.T, step Step, mustContain string) {
	t.Helper()
	assertStep(t, step, "external", step.CanRunInTransaction)
	if !strings.Contains(step.Command, mustContain) {
		t.Errorf("Command should contain %q, got %q", mustContain, step.Command)
	}
}

func assertError(t *testing.T, err error, mustContain string) {
	t.Helper()
	if err == nil {
		t.Errorf("Expected error containing %q, got nil", mustContain)
		return
	}
	if !strings.Contains(err.Error(), mustContain) {
		t.Errorf("Error = %q, want to contain %q", err.Error(), mustContain)
	}
}

func buildIndexMetadata(table string, columns ...string) OperationMetadata {
	return OperationMetadata{
		"tableName": table,
		"columns":   columns,
	}
}

func TestSuggester_HasSuggestion(t *testing.T) {
	s := NewSuggester()

	withSuggestion := []string{
		"CREATE INDEX",
		"DROP INDEX",
		"REINDEX INDEX",
		"REINDEX TABLE",
		"REINDEX SCHEMA",
		"VACUUM FULL",
		"CLUSTER",
		"ALTER TABLE ADD COLUMN",
		"ALTER TABLE ALTER COLUMN TYPE",
		"ALTER TABLE SET NOT NULL",
		"ALTER TABLE ADD CHECK",
		"ALTER TABLE ADD FOREIGN KEY",
		"ALTER TABLE ADD PRIMARY KEY",
		"ALTER TABLE ADD UNIQUE",
		"LOCK TABLE",
	}
	for _, op := range withSuggestion {
		t.Run(op, func(t *testing.T) {
			if !s.HasSuggestion(op) {
				t.Errorf("HasSuggestion(%q) = false, want true", op)
			}
		})
	}

	withoutSuggestion := []string{"SELECT", "DROP TABLE", "TRUNCATE", "CREATE INDEX CONCURRENTLY", "ALTER TABLE"}
	for _, op := range withoutSuggestion {
		if s.HasSuggestion(op) {
			t.Errorf("HasSuggestion(%q) = true, want false", op)
		}
	}

	if got := len(Operations()); got != len(withSuggestion) {
		t.Errorf("Operations() returned %d entries, want %d", got, len(withSuggestion))
	}
}

func TestSuggester_IndexOperations(t *testing.T) {
	s := NewSuggester()

	t.Run("CREATE INDEX", func(t *testing.T) {
		metadata := buildIndexMetadata("users", "email")
		metadata["indexName"] = "idx_users_email"

		suggestion, err := s.GetSuggestion("CREATE INDEX", metadata)
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		if suggestion.Category != "index" {
			t.Errorf("Category = %q, want index", suggestion.Category)
		}
		if len(suggestion.Steps) != 2 {
			t.Fatalf("Expected 2 steps, got %d", len(suggestion.Steps))
		}
		assertSQLStep(t, suggestion.Steps[0], "CREATE INDEX CONCURRENTLY idx_users_email ON users (email);\n")
		assertStep(t, suggestion.Steps[0], "sql", false)
		assertSQLStep(t, suggestion.Steps[1], "SELECT indisvalid FROM pg_index WHERE indexrelid = 'idx_users_email'::regclass;\n")
	})

	t.Run("CREATE UNIQUE INDEX without a name", func(t *testing.T) {
		metadata := buildIndexMetadata("users", "email", "tenant_id")
		metadata["unique"] = true

		suggestion, err := s.GetSuggestion("CREATE INDEX", metadata)
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "CREATE UNIQUE INDEX CONCURRENTLY idx_users_email_tenant_id ON users (email, tenant_id);\n")
	})

	t.Run("DROP INDEX", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("DROP INDEX", OperationMetadata{"indexName": "idx_old"})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "DROP INDEX CONCURRENTLY IF EXISTS idx_old;\n")
		assertStep(t, suggestion.Steps[0], "sql", false)
	})

	t.Run("REINDEX variants", func(t *testing.T) {
		cases := []struct {
			op       string
			metadata OperationMetadata
			want     string
		}{
			{"REINDEX INDEX", OperationMetadata{"indexName": "idx_users_email"}, "REINDEX INDEX CONCURRENTLY idx_users_email;\n"},
			{"REINDEX TABLE", OperationMetadata{"tableName": "users"}, "REINDEX TABLE CONCURRENTLY users;\n"},
			{"REINDEX SCHEMA", OperationMetadata{"schema": "public"}, "REINDEX SCHEMA CONCURRENTLY public;\n"},
		}
		for _, c := range cases {
			suggestion, err := s.GetSuggestion(c.op, c.metadata)
			if err != nil {
				t.Fatalf("GetSuggestion(%q) error = %v", c.op, err)
			}
			assertSQLStep(t, suggestion.Steps[0], c.want)
		}
	})
}

func TestSuggester_MaintenanceOperations(t *testing.T) {
	s := NewSuggester()

	t.Run("VACUUM FULL", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("VACUUM FULL", OperationMetadata{"tableName": "logs"})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		if !suggestion.IsPartial {
			t.Errorf("VACUUM FULL should be marked as partial alternative")
		}
		assertExternalStep(t, suggestion.Steps[0], "pg_repack -n -t logs -d <YOUR_DATABASE>")
		if suggestion.Steps[0].CommandTemplate == "" {
			t.Errorf("Should keep the command template")
		}
		assertSQLStep(t, suggestion.Steps[1], "VACUUM (ANALYZE) logs;\n")
	})

	t.Run("CLUSTER with index", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("CLUSTER", OperationMetadata{"tableName": "users", "indexName": "users_pkey"})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertExternalStep(t, suggestion.Steps[0], "pg_repack -t users -i users_pkey -d <YOUR_DATABASE>")
	})

	t.Run("CLUSTER without index", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("CLUSTER", OperationMetadata{"tableName": "users"})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertExternalStep(t, suggestion.Steps[0], "pg_repack -t users -d <YOUR_DATABASE>")
	})
}

func TestSuggester_AlterTableOperations(t *testing.T) {
	s := NewSuggester()

	t.Run("ADD COLUMN with default", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD COLUMN", OperationMetadata{
			"tableName":    "users",
			"columnName":   "new_id",
			"dataType":     "uuid",
			"defaultValue": "gen_random_uuid()",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "ALTER TABLE users ADD COLUMN new_id uuid;\n")
		assertSQLStep(t, suggestion.Steps[1], "ALTER TABLE users ALTER COLUMN new_id SET DEFAULT gen_random_uuid();\n")
		assertProceduralStep(t, suggestion.Steps[2], "users.new_id", "batches")
	})

	t.Run("ADD COLUMN without default", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD COLUMN", OperationMetadata{
			"tableName":  "users",
			"columnName": "nickname",
			"dataType":   "text",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[1], "-- no default to set\n")
	})

	t.Run("ALTER COLUMN TYPE", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ALTER COLUMN TYPE", OperationMetadata{
			"tableName":  "products",
			"columnName": "price",
			"newType":    "numeric(10, 2)",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "ALTER TABLE products ADD COLUMN price_new numeric(10, 2);\n")
		assertProceduralStep(t, suggestion.Steps[1], "price_new", "trigger")
		if !strings.Contains(suggestion.Steps[2].SQL, "RENAME COLUMN price_new TO price") {
			t.Errorf("swap step = %q", suggestion.Steps[2].SQL)
		}
	})

	t.Run("SET NOT NULL", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE SET NOT NULL", OperationMetadata{
			"tableName":  "users",
			"columnName": "email",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "ALTER TABLE users ADD CONSTRAINT email_not_null CHECK (email IS NOT NULL) NOT VALID;\n")
		assertSQLStep(t, suggestion.Steps[1], "ALTER TABLE users VALIDATE CONSTRAINT email_not_null;\n")
	})

	t.Run("ADD CHECK", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD CHECK", OperationMetadata{
			"tableName":       "users",
			"constraintName":  "check_age",
			"checkExpression": "age >= 18",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "ALTER TABLE users ADD CONSTRAINT check_age CHECK (age >= 18) NOT VALID;\n")
	})

	t.Run("ADD FOREIGN KEY", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD FOREIGN KEY", OperationMetadata{
			"tableName":       "orders",
			"columns":         []string{"user_id"},
			"referencedTable": "users",
		})
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "ALTER TABLE orders ADD CONSTRAINT fk_orders_user_id FOREIGN KEY (user_id) REFERENCES users NOT VALID;\n")
		assertSQLStep(t, suggestion.Steps[1], "ALTER TABLE orders VALIDATE CONSTRAINT fk_orders_user_id;\n")
	})

	t.Run("ADD PRIMARY KEY", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD PRIMARY KEY", buildIndexMetadata("users", "id"))
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[0], "CREATE UNIQUE INDEX CONCURRENTLY users_pkey_idx ON users (id);\n")
		assertSQLStep(t, suggestion.Steps[1], "ALTER TABLE users ADD CONSTRAINT users_pkey PRIMARY KEY USING INDEX users_pkey_idx;\n")
	})

	t.Run("ADD UNIQUE", func(t *testing.T) {
		suggestion, err := s.GetSuggestion("ALTER TABLE ADD UNIQUE", buildIndexMetadata("users", "email"))
		if err != nil {
			t.Fatalf("GetSuggestion() error = %v", err)
		}
		assertSQLStep(t, suggestion.Steps[1], "ALTER TABLE users ADD CONSTRAINT users_email_key UNIQUE USING INDEX users_email_key;\n")
	})
}

func TestSuggester_LockTable(t *testing.T) {
	s := NewSuggester()

	suggestion, err := s.GetSuggestion("LOCK TABLE", OperationMetadata{"tableName": "users", "lockMode": "ACCESS EXCLUSIVE"})
	if err != nil {
		t.Fatalf("GetSuggestion() error = %v", err)
	}
	assertSQLStep(t, suggestion.Steps[0], "SET LOCAL lock_timeout = '5s';\nLOCK TABLE users IN ACCESS EXCLUSIVE MODE;\n")
	assertProceduralStep(t, suggestion.Steps[1], "ACCESS EXCLUSIVE on users")
}

func TestSuggester_SpecialCharacters(t *testing.T) {
	s := NewSuggester()

	suggestion, err := s.GetSuggestion("CREATE INDEX", OperationMetadata{
		"tableName": `"user"`,
		"indexName": `"idx-user-email"`,
		"columns":   []string{`"E-mail"`},
	})
	if err != nil {
		t.Fatalf("GetSuggestion() error = %v", err)
	}
	assertSQLStep(t, suggestion.Steps[0], `CREATE INDEX CONCURRENTLY "idx-user-email" ON "user" ("E-mail");`+"\n")
}

func TestSuggester_ErrorCases(t *testing.T) {
	s := NewSuggester()

	tests := []struct {
		name      string
		operation string
		metadata  OperationMetadata
		errMsg    string
	}{
		{
			name:      "operation without suggestion",
			operation: "TRUNCATE",
			metadata:  OperationMetadata{"tableName": "users"},
			errMsg:    "no suggestion available",
		},
		{
			name:      "missing table",
			operation: "CREATE INDEX",
			metadata:  OperationMetadata{"columns": []string{"email"}},
			errMsg:    "missing required field: TableName",
		},
		{
			name:      "empty columns",
			operation: "CREATE INDEX",
			metadata:  OperationMetadata{"tableName": "users", "columns": []string{}},
			errMsg:    "field 'Columns' cannot be empty",
		},
		{
			name:      "empty index name",
			operation: "DROP INDEX",
			metadata:  OperationMetadata{"indexName": ""},
			errMsg:    "field 'IndexName' cannot be empty",
		},
		{
			name:      "missing referenced table",
			operation: "ALTER TABLE ADD FOREIGN KEY",
			metadata:  OperationMetadata{"tableName": "orders", "columns": []string{"user_id"}},
			errMsg:    "missing required field: ReferencedTable",
		},
		{
			name:      "missing lock mode",
			operation: "LOCK TABLE",
			metadata:  OperationMetadata{"tableName": "users"},
			errMsg:    "missing required field: LockMode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GetSuggestion(tt.operation, tt.metadata)
			assertError(t, err, tt.errMsg)
		})
	}

	if _, err := s.GetSuggestion("SELECT", nil); !errors.Is(err, ErrNoSuggestion) {
		t.Errorf("Expected ErrNoSuggestion, got %v", err)
	}
}

func TestSuggester_TransactionModeConsistency(t *testing.T) {
	s := NewSuggester()

	metadata := OperationMetadata{
		"tableName":  "t",
		"indexName":  "idx_t",
		"schema":     "public",
		"columns":    []string{"col"},
		"columnName": "col",
		"dataType":   "int",
		"newType":    "bigint",
		"lockMode":   "SHARE",
	}

	for _, op := range Operations() {
		t.Run(op, func(t *testing.T) {
			md := OperationMetadata{}
			for k, v := range metadata {
				md[k] = v
			}
			md["constraintName"] = "c_t"
			md["referencedTable"] = "parent"

			suggestion, err := s.GetSuggestion(op, md)
			if err != nil {
				t.Fatalf("GetSuggestion() error = %v", err)
			}
			for i, step := range suggestion.Steps {
				if step.Type == "sql" && strings.Contains(step.SQL, "CONCURRENTLY") && step.CanRunInTransaction {
					t.Errorf("Step %d: %s with CONCURRENTLY must have CanRunInTransaction = false", i+1, op)
				}
			}
		})
	}
}

func BenchmarkSuggester_GetSuggestion(b *testing.B) {
	s := NewSuggester()
	metadata := buildIndexMetadata("users", "email", "username", "created_at")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetSuggestion("CREATE INDEX", metadata); err != nil {
			b.Fatal(err)
		}
	}
}
