package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type mysqlEngine struct{}

func (m *mysqlEngine) Name() string { return "MySQL" }

func (m *mysqlEngine) DefaultPort() int { return 3306 }

func (m *mysqlEngine) Dialect() sqlDialect { return mysqlDialect }

func (m *mysqlEngine) DefaultTools() ToolsConfig {
	return ToolsConfig{Dump: "mysqldump", Client: "mysql", Admin: "mysqladmin"}
}

func (m *mysqlEngine) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}

func (m *mysqlEngine) IsStatementError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr)
}

// mysqlConfig builds a driver config for one database on the endpoint.
func mysqlConfig(ep Endpoint, database string, defaultPort int) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = ep.Username
	cfg.Passwd = ep.Password
	cfg.Net = "tcp"
	port := ep.Port
	if port == 0 {
		port = defaultPort
	}
	cfg.Addr = net.JoinHostPort(ep.Host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	return cfg
}

func (m *mysqlEngine) Connect(ctx context.Context, ep Endpoint, database string) (sqlConn, error) {
	connector, err := mysql.NewConnector(mysqlConfig(ep, database, m.DefaultPort()))
	if err != nil {
		return nil, &ConnectionError{Database: database, Err: fmt.Errorf("mysql config: %w", err)}
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Database: database, Err: err}
	}
	return &mysqlConn{db: db, dbName: database, quote: m.QuoteIdentifier}, nil
}

func (m *mysqlEngine) DumpCommand(tools ToolsConfig, ep Endpoint, database string, excluded []string, path string) shellCommand {
	args := m.connArgs(ep)
	args = append(args, tools.DumpOptions...)
	for _, name := range excluded {
		args = append(args, "--ignore-table="+database+"."+name)
	}
	args = append(args, "--result-file="+path, database)
	return shellCommand{Name: tools.Dump, Args: args, Env: m.passwordEnv(ep)}
}

func (m *mysqlEngine) CreateDatabaseCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand {
	args := append(m.connArgs(ep), "create", database)
	return shellCommand{Name: tools.Admin, Args: args, Env: m.passwordEnv(ep)}
}

func (m *mysqlEngine) LoadCommand(tools ToolsConfig, ep Endpoint, database string) shellCommand {
	args := append(m.connArgs(ep), database)
	return shellCommand{Name: tools.Client, Args: args, Env: m.passwordEnv(ep)}
}

func (m *mysqlEngine) connArgs(ep Endpoint) []string {
	args := []string{"-h", ep.Host}
	if ep.Port != 0 {
		args = append(args, "-P", strconv.Itoa(ep.Port))
	}
	return append(args, "-u", ep.Username)
}

// passwordEnv keeps the password out of the argument list.
func (m *mysqlEngine) passwordEnv(ep Endpoint) []string {
	if ep.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + ep.Password}
}

type mysqlConn struct {
	db     *sql.DB
	dbName string
	quote  func(string) string
}

func (c *mysqlConn) ListViews(ctx context.Context) ([]string, error) {
	var views []string
	if err := collectStringRows(ctx, c.db, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.VIEWS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME
	`, c.dbName, &views); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return views, nil
}

func (c *mysqlConn) ShowCreateView(ctx context.Context, name string) (string, error) {
	// View, Create View, character_set_client, collation_connection
	var view, def, charset, collation string
	err := c.db.QueryRowContext(ctx, "SHOW CREATE VIEW "+c.quote(name)).Scan(&view, &def, &charset, &collation)
	if err != nil {
		return "", fmt.Errorf("show create view %s: %w", name, err)
	}
	return def, nil
}

func (c *mysqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.db.ExecContext(ctx, query)
	return err
}

func (c *mysqlConn) Close() error { return c.db.Close() }
