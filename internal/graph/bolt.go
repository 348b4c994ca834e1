package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

const (
	defaultBoltUser     = "neo4j"
	defaultBoltPoolSize = 50
	defaultBoltTimeout  = 10
)

// Bolt runs queries over the Bolt protocol (Neo4j, Aura, Neptune with Bolt enabled).
type Bolt struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

func NewBolt(ctx context.Context, cfg BoltConfig, logger *zap.Logger) (*Bolt, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, errors.New("bolt uri is required")
	}

	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = defaultBoltTimeout
	}
	poolSize := cfg.MaxPoolSize
	if poolSize <= 0 {
		poolSize = defaultBoltPoolSize
	}

	auth := neo4j.NoAuth()
	if cfg.Password != "" {
		auth = neo4j.BasicAuth(valueOr(cfg.User, defaultBoltUser), cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = poolSize
		c.SocketConnectTimeout = time.Duration(timeout) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("init bolt driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify bolt connectivity: %w", err)
	}

	logger.Debug("bolt driver connected", zap.String("uri", uri))

	return &Bolt{driver: driver, database: strings.TrimSpace(cfg.Database), logger: logger}, nil
}

func (b *Bolt) Backend() string { return BackendBolt }

func (b *Bolt) Run(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	session := b.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: b.database,
	})
	defer session.Close(ctx)

	b.logger.Debug("run cypher", zap.String("query", compact(query)))

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		rows := make([]Row, 0, len(records))
		for _, record := range records {
			rows = append(rows, unwrap(record.AsMap()))
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt cypher: %w", err)
	}

	rows, _ := out.([]Row)
	return rows, nil
}

// EnsureGraph creates the uniqueness constraints the repository relies on.
// Failures are logged; Neptune rejects constraint DDL.
func (b *Bolt) EnsureGraph(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT qtree_unique IF NOT EXISTS FOR (t:QTree) REQUIRE (t.tree_id, t.user_type) IS UNIQUE`,
		`CREATE CONSTRAINT concept_unique IF NOT EXISTS FOR (c:Concept) REQUIRE (c.type, c.key) IS UNIQUE`,
	}

	session := b.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: b.database,
	})
	defer session.Close(ctx)

	for _, stmt := range stmts {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			b.logger.Warn("bolt schema init failed (continuing)", zap.Error(err))
			continue
		}
		_, _ = res.Consume(ctx)
	}

	return nil
}

func (b *Bolt) Close(ctx context.Context) error {
	if b.driver == nil {
		return nil
	}
	return b.driver.Close(ctx)
}
