package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	defaultAGEHost     = "localhost"
	defaultAGEPort     = 5432
	defaultAGEDatabase = "postgres"
	defaultAGEUser     = "postgres"
	defaultAGEMaxConns = 5
)

// AGE runs openCypher through the Apache AGE extension for Postgres.
// The pool is created on first use.
type AGE struct {
	cfg       AGEConfig
	graphName string
	logger    *zap.Logger

	mu   sync.Mutex
	pool atomic.Pointer[pgxpool.Pool]
}

func NewAGE(cfg AGEConfig, logger *zap.Logger) (*AGE, error) {
	graphName := strings.TrimSpace(cfg.GraphName)
	if graphName == "" {
		graphName = defaultGraphName
	}
	if err := validGraphName(graphName); err != nil {
		return nil, err
	}

	return &AGE{cfg: cfg, graphName: graphName, logger: logger}, nil
}

func (a *AGE) Backend() string { return BackendAGE }

func (a *AGE) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	if pool := a.pool.Load(); pool != nil {
		return pool, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if pool := a.pool.Load(); pool != nil {
		return pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(a.connString())
	if err != nil {
		return nil, fmt.Errorf("parse age connection config: %w", err)
	}

	maxConns := a.cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultAGEMaxConns
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create age pool: %w", err)
	}

	a.logger.Debug("age pool created",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", maxConns),
	)

	a.pool.Store(pool)
	return pool, nil
}

func (a *AGE) connString() string {
	if dsn := strings.TrimSpace(a.cfg.DSN); dsn != "" {
		return dsn
	}

	host := valueOr(a.cfg.Host, defaultAGEHost)
	port := a.cfg.Port
	if port == 0 {
		port = defaultAGEPort
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(valueOr(a.cfg.User, defaultAGEUser), a.cfg.Password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + valueOr(a.cfg.Database, defaultAGEDatabase),
	}

	return u.String()
}

// Run executes query inside ag_catalog.cypher and decodes each agtype row.
func (a *AGE) Run(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	statement, err := cypherSQL(a.graphName, query, len(params) > 0)
	if err != nil {
		return nil, err
	}

	pool, err := a.getPool(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire age connection: %w", err)
	}
	defer conn.Release()

	if err := prepareSession(ctx, conn); err != nil {
		return nil, err
	}

	args := []any{}
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode cypher params: %w", err)
		}
		args = append(args, string(encoded))
	}

	a.logger.Debug("run cypher", zap.String("query", compact(query)))

	rows, err := conn.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("age cypher: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var raw *string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan agtype: %w", err)
		}
		if raw == nil {
			continue
		}
		value, err := parseAgtype(*raw)
		if err != nil {
			return nil, err
		}
		result = append(result, unwrap(value))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("age cypher rows: %w", err)
	}

	return result, nil
}

// EnsureGraph installs the extension and creates the graph when missing.
func (a *AGE) EnsureGraph(ctx context.Context) error {
	pool, err := a.getPool(ctx)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire age connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS age"); err != nil {
		return fmt.Errorf("create age extension: %w", err)
	}

	if err := prepareSession(ctx, conn); err != nil {
		return err
	}

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM ag_catalog.ag_graph WHERE name = $1)", a.graphName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup graph %s: %w", a.graphName, err)
	}

	if exists {
		return nil
	}

	if _, err := conn.Exec(ctx, "SELECT ag_catalog.create_graph($1::name)", a.graphName); err != nil {
		return fmt.Errorf("create graph %s: %w", a.graphName, err)
	}

	a.logger.Info("graph created", zap.String("graph", a.graphName))
	return nil
}

func (a *AGE) Close(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pool := a.pool.Swap(nil); pool != nil {
		pool.Close()
	}
	return nil
}

func prepareSession(ctx context.Context, conn *pgxpool.Conn) error {
	if _, err := conn.Exec(ctx, "LOAD 'age'"); err != nil {
		return fmt.Errorf("load age: %w", err)
	}
	if _, err := conn.Exec(ctx, `SET search_path = ag_catalog, "$user", public`); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	return nil
}

func cypherSQL(graphName, query string, withParams bool) (string, error) {
	if err := validGraphName(graphName); err != nil {
		return "", err
	}
	if strings.Contains(query, "$$") {
		return "", errors.New("cypher query must not contain $$")
	}

	params := ""
	if withParams {
		params = ", $1"
	}

	return fmt.Sprintf(
		"SELECT * FROM ag_catalog.cypher('%s', $$ %s $$%s) AS (%s ag_catalog.agtype)",
		graphName, query, params, ResultKey,
	), nil
}

func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func valueOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
