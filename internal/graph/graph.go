package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/secrets"
	"go.uber.org/zap"
)

const (
	BackendAGE     = "age"
	BackendNeptune = "neptune"
	BackendBolt    = "bolt"
	// BackendMemory keeps the graph in process. It has no Client; the qna store handles it.
	BackendMemory = "memory"

	defaultGraphName = "recruiting_graph"

	// ResultKey is the alias every query returns its projection under.
	ResultKey = "row"
)

var (
	ErrUnsupportedBackend = errors.New("unsupported graph backend")
	ErrInvalidGraphName   = errors.New("invalid graph name")

	graphNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Row is a single projected result. Queries return a map aliased as "row"
// and backends unwrap it, so a Row holds the projected fields directly.
type Row map[string]any

// Client executes openCypher against a property graph.
type Client interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Row, error)
	// EnsureGraph prepares the schema where the backend needs it.
	EnsureGraph(ctx context.Context) error
	Close(ctx context.Context) error
	Backend() string
}

type Config struct {
	Backend string         `mapstructure:"backend"`
	AGE     *AGEConfig     `mapstructure:"age"`
	Neptune *NeptuneConfig `mapstructure:"neptune"`
	Bolt    *BoltConfig    `mapstructure:"bolt"`
}

type AGEConfig struct {
	DSN          string `mapstructure:"dsn"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	GraphName    string `mapstructure:"graph-name"`
	MaxConns     int32  `mapstructure:"max-conns"`
}

type NeptuneConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Port     int    `mapstructure:"port"`
	UseHTTPS *bool  `mapstructure:"use-https"`
	UseBolt  bool   `mapstructure:"use-bolt"`
}

type BoltConfig struct {
	URI          string `mapstructure:"uri"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	Database     string `mapstructure:"database"`
	MaxPoolSize  int    `mapstructure:"max-pool-size"`
	TimeoutSec   int    `mapstructure:"timeout-seconds"`
}

// New opens a client for the configured backend.
func New(ctx context.Context, cfg *Config, log *zap.Logger) (Client, error) {
	if cfg == nil {
		return nil, errors.New("graph config is required")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	log = logger.WithFields(log, zap.String(logger.FieldBackend, backend))

	switch backend {
	case BackendAGE:
		ageCfg := AGEConfig{}
		if cfg.AGE != nil {
			ageCfg = *cfg.AGE
		}
		password, err := secrets.Optional(secrets.Source{
			Name:  "age password",
			Value: ageCfg.Password,
			File:  ageCfg.PasswordFile,
			Env:   "AGE_PASSWORD",
		})
		if err != nil {
			return nil, err
		}
		ageCfg.Password = password
		return NewAGE(ageCfg, log)
	case BackendNeptune:
		if cfg.Neptune == nil || strings.TrimSpace(cfg.Neptune.Endpoint) == "" {
			return nil, errors.New("graph.neptune.endpoint is required for the neptune backend")
		}
		if cfg.Neptune.UseBolt {
			port := cfg.Neptune.Port
			if port == 0 {
				port = defaultNeptunePort
			}
			return NewBolt(ctx, BoltConfig{
				URI: fmt.Sprintf("bolt+s://%s:%d", cfg.Neptune.Endpoint, port),
			}, log)
		}
		return NewNeptune(*cfg.Neptune, log), nil
	case BackendBolt:
		if cfg.Bolt == nil {
			return nil, errors.New("graph.bolt section is required for the bolt backend")
		}
		boltCfg := *cfg.Bolt
		password, err := secrets.Optional(secrets.Source{
			Name:  "bolt password",
			Value: boltCfg.Password,
			File:  boltCfg.PasswordFile,
			Env:   "NEO4J_PASSWORD",
		})
		if err != nil {
			return nil, err
		}
		boltCfg.Password = password
		return NewBolt(ctx, boltCfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}

func validGraphName(name string) error {
	if !graphNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidGraphName, name)
	}
	return nil
}

// unwrap lifts the "row" projection into the Row itself.
func unwrap(value any) Row {
	switch v := value.(type) {
	case map[string]any:
		if inner, ok := v[ResultKey].(map[string]any); ok && len(v) == 1 {
			return Row(inner)
		}
		return Row(v)
	case Row:
		return v
	default:
		return Row{ResultKey: v}
	}
}
