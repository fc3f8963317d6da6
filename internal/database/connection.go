package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nnaka2992/peaceful-postgresql/internal/logger"
)

// ConnectionConfig holds database connection parameters
type ConnectionConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	ApplicationName string
}

// Connect opens a pgx-backed *sql.DB and verifies it with a ping
func Connect(ctx context.Context, config *ConnectionConfig) (*sql.DB, error) {
	log := logger.Get()
	log.Debug("Attempting database connection",
		"host", config.Host,
		"port", config.Port,
		"database", config.Database,
		"user", config.User,
		"sslmode", config.SSLMode,
	)

	conn, err := sql.Open("pgx", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		log.Debug("Database ping failed", "error", err)
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug("Database connection established")
	return conn, nil
}

// DSN renders the configuration as a libpq keyword/value string
func (c *ConnectionConfig) DSN() string {
	parts := []string{
		"host=" + dsnValue(c.Host),
		fmt.Sprintf("port=%d", c.Port),
		"dbname=" + dsnValue(c.Database),
		"user=" + dsnValue(c.User),
	}
	if c.Password != "" {
		parts = append(parts, "password="+dsnValue(c.Password))
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+dsnValue(c.SSLMode))
	}
	if c.ApplicationName != "" {
		parts = append(parts, "application_name="+dsnValue(c.ApplicationName))
	}
	return strings.Join(parts, " ")
}

// dsnValue quotes values containing spaces, quotes or backslashes
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
