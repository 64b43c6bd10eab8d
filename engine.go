package main

import (
	"context"
	"fmt"
)

// Engine abstracts the database server family envferry moves databases
// between, so the view engine and the shell services stay engine-agnostic.
type Engine interface {
	// Name returns a human-readable name for the engine ("MySQL", "PostgreSQL").
	Name() string

	// Connect opens a single connection to database on the endpoint.
	Connect(ctx context.Context, ep Endpoint, database string) (sqlConn, error)

	// QuoteIdentifier quotes an identifier for use in statements.
	QuoteIdentifier(name string) string

	// Dialect returns the lexical rules used when rewriting view SQL.
	Dialect() sqlDialect

	// IsStatementError reports whether err was reported by the server for a
	// single statement, as opposed to a broken connection.
	IsStatementError(err error) bool

	// DefaultPort is used when an endpoint does not specify one.
	DefaultPort() int

	// DefaultTools names the dump, client and admin binaries.
	DefaultTools() ToolsConfig

	// DumpCommand builds the command writing database to path, skipping the
	// excluded tables and views.
	DumpCommand(tools ToolsConfig, ep Endpoint, database string, excluded []string, path string) shellCommand

	// CreateDatabaseCommand builds the command creating an empty database.
	CreateDatabaseCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand

	// LoadCommand builds the command replaying a dump into database. The dump
	// is fed on stdin.
	LoadCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand
}

// sqlConn is one open connection to one database.
type sqlConn interface {
	// ListViews returns the names of all views in the connected database.
	ListViews(ctx context.Context) ([]string, error)

	// ShowCreateView returns the full CREATE VIEW statement for a view.
	ShowCreateView(ctx context.Context, name string) (string, error)

	// Exec runs a single statement.
	Exec(ctx context.Context, sql string) error

	Close() error
}

// newEngine returns the Engine implementation for the given engine type.
func newEngine(engineType string) (Engine, error) {
	switch engineType {
	case "mysql":
		return &mysqlEngine{}, nil
	case "postgres":
		return &postgresEngine{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q (must be mysql or postgres)", engineType)
	}
}
