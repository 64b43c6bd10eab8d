package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// postgresEngine treats each database of a set as a separate PostgreSQL
// database. Views are read from and recreated in the connection's current
// schema.
type postgresEngine struct{}

func (p *postgresEngine) Name() string { return "PostgreSQL" }

func (p *postgresEngine) DefaultPort() int { return 5432 }

func (p *postgresEngine) Dialect() sqlDialect { return postgresDialect }

func (p *postgresEngine) DefaultTools() ToolsConfig {
	return ToolsConfig{Dump: "pg_dump", Client: "psql", Admin: "createdb"}
}

func (p *postgresEngine) QuoteIdentifier(name string) string { return pgIdent(name) }

func (p *postgresEngine) IsStatementError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func (p *postgresEngine) connConfig(ep Endpoint, database string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, err
	}
	cfg.Host = ep.Host
	cfg.Port = uint16(p.DefaultPort())
	if ep.Port < 0 || ep.Port > 65535 {
		return nil, fmt.Errorf("port %d out of range", ep.Port)
	}
	if ep.Port != 0 {
		cfg.Port = uint16(ep.Port)
	}
	cfg.User = ep.Username
	cfg.Password = ep.Password
	cfg.Database = database
	return cfg, nil
}

func (p *postgresEngine) Connect(ctx context.Context, ep Endpoint, database string) (sqlConn, error) {
	cfg, err := p.connConfig(ep, database)
	if err != nil {
		return nil, &ConnectionError{Database: database, Err: fmt.Errorf("postgres config: %w", err)}
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Database: database, Err: err}
	}
	return &postgresConn{conn: conn}, nil
}

func (p *postgresEngine) DumpCommand(tools ToolsConfig, ep Endpoint, database string, excluded []string, path string) shellCommand {
	args := p.connArgs(ep)
	args = append(args, "--no-owner", "--no-privileges")
	args = append(args, tools.DumpOptions...)
	for _, name := range excluded {
		args = append(args, "--exclude-table="+pgIdent(name))
	}
	args = append(args, "--file="+path, "--dbname="+database)
	return shellCommand{Name: tools.Dump, Args: args, Env: p.passwordEnv(ep)}
}

func (p *postgresEngine) CreateDatabaseCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand {
	args := append(p.connArgs(ep), database)
	return shellCommand{Name: tools.Admin, Args: args, Env: p.passwordEnv(ep)}
}

func (p *postgresEngine) LoadCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand {
	args := append(p.connArgs(ep), "--quiet", "--set=ON_ERROR_STOP=1", "--dbname="+database)
	return shellCommand{Name: tools.Client, Args: args, Env: p.passwordEnv(ep)}
}

func (p *postgresEngine) connArgs(ep Endpoint) []string {
	args := []string{"-h", ep.Host}
	if ep.Port != 0 {
		args = append(args, "-p", strconv.Itoa(ep.Port))
	}
	return append(args, "-U", ep.Username)
}

func (p *postgresEngine) passwordEnv(ep Endpoint) []string {
	if ep.Password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + ep.Password}
}

type postgresConn struct {
	conn *pgx.Conn
}

func (c *postgresConn) ListViews(ctx context.Context) ([]string, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.views
		WHERE table_schema = current_schema()
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	views, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return views, nil
}

// ShowCreateView frames pg_get_viewdef the way MySQL's SHOW CREATE VIEW does,
// so the rewriter sees the same shape from both engines.
func (c *postgresConn) ShowCreateView(ctx context.Context, name string) (string, error) {
	var def string
	err := c.conn.QueryRow(ctx,
		`SELECT pg_get_viewdef(format('%I.%I', current_schema(), $1::text)::regclass, true)`,
		name,
	).Scan(&def)
	if err != nil {
		return "", fmt.Errorf("view definition %s: %w", name, err)
	}
	def = strings.TrimSuffix(strings.TrimSpace(def), ";")
	return fmt.Sprintf("CREATE VIEW %s AS %s", pgIdent(name), def), nil
}

func (c *postgresConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.Exec(ctx, query)
	return err
}

func (c *postgresConn) Close() error {
	return c.conn.Close(context.Background())
}
