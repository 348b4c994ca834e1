package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/talentflow/internal/ai"
	"github.com/spigell/talentflow/internal/ai/gemini"
	"github.com/spigell/talentflow/internal/ai/openai"
	"github.com/spigell/talentflow/internal/classifier"
	"github.com/spigell/talentflow/internal/dialogue"
	"github.com/spigell/talentflow/internal/graph"
	"github.com/spigell/talentflow/internal/logger"
	"github.com/spigell/talentflow/internal/qna"
	"github.com/spigell/talentflow/internal/scoring"
	"github.com/spigell/talentflow/internal/secrets"
	"github.com/spigell/talentflow/internal/sequencer"
)

// appDeps holds everything a command needs. Build it with newAppDeps and Close it when done.
type appDeps struct {
	config *Config
	logger *zap.Logger

	graph      graph.Client
	store      qna.Store
	qna        *qna.Service
	ai         ai.Client
	classifier *classifier.Classifier
	dialogue   *dialogue.Engine
	scoring    *scoring.Engine
	redis      *redis.Client
}

func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

// newAppDeps wires the stores, model clients and engines from the config.
func newAppDeps(ctx context.Context, l *zap.Logger) (*appDeps, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}

	d := &appDeps{config: config, logger: l}

	if err := d.initStore(ctx); err != nil {
		return nil, err
	}

	d.qna = qna.NewService(d.store, l)
	if _, err := d.qna.LoadTrees(config.QnA.TreesDir); err != nil {
		d.Close()
		return nil, fmt.Errorf("loading trees: %w", err)
	}
	if config.QnA.PersistOnStart {
		if err := d.qna.PersistTrees(ctx); err != nil {
			l.Warn("persisting trees failed, they are still served from memory", zap.Error(err))
		}
	}

	if config.AI != nil && config.AI.Enabled {
		client, err := newAIClient(ctx, config.AI, l)
		if err != nil {
			l.Warn("language model disabled", zap.Error(err))
		} else {
			d.ai = client
			l.Info("language model enabled", logger.AIFields(client.Provider(), client.Model())...)
		}
	}

	d.classifier = classifier.New(d.ai, l)
	for _, tree := range d.qna.Trees() {
		for _, warning := range qna.Lint(tree, d.classifier.Outputs) {
			l.Warn("tree lint", zap.String(logger.FieldTreeID, tree.TreeID), zap.String("warning", warning))
		}
	}

	deps := dialogue.Deps{
		QnA:        d.qna,
		Classifier: d.classifier,
		Phraser:    dialogue.NewPhraser(d.ai, l),
		Locker:     d.newLocker(ctx),
		Logger:     l,
	}
	if d.ai != nil {
		deps.Responder = dialogue.NewAIResponder(d.ai, l)
	}

	d.dialogue, err = dialogue.New(deps)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.scoring = scoring.New(d.store, logger.Named(l, "scoring"))

	return d, nil
}

func (d *appDeps) initStore(ctx context.Context) error {
	backend := strings.ToLower(strings.TrimSpace(d.config.Graph.Backend))
	if backend == "" || backend == graph.BackendMemory {
		d.logger.Info("using in-memory graph store, nothing is persisted across restarts")
		d.store = qna.NewMemoryStore()
		return nil
	}

	client, err := graph.New(ctx, d.config.Graph, d.logger)
	if err != nil {
		return fmt.Errorf("creating graph client: %w", err)
	}
	if err := client.EnsureGraph(ctx); err != nil {
		d.logger.Warn("preparing graph failed", zap.String(logger.FieldBackend, backend), zap.Error(err))
	}

	d.graph = client
	d.store = qna.NewGraphRepository(client, logger.Named(d.logger, "repository"))
	return nil
}

// newLocker prefers Redis so several replicas serialize answers of the same user.
func (d *appDeps) newLocker(ctx context.Context) sequencer.Locker {
	cfg := d.config.Redis
	if cfg == nil || strings.TrimSpace(cfg.Addr) == "" {
		return sequencer.NewLocal()
	}

	password, err := secrets.Optional(secrets.Source{
		Name:  "redis password",
		Value: cfg.Password,
		File:  cfg.PasswordFile,
		Env:   "REDIS_PASSWORD",
	})
	if err != nil {
		d.logger.Warn("redis password unavailable, using in-process locks", zap.Error(err))
		return sequencer.NewLocal()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		d.logger.Warn("redis is unreachable, using in-process locks", zap.String("addr", cfg.Addr), zap.Error(err))
		client.Close()
		return sequencer.NewLocal()
	}

	d.redis = client
	return sequencer.NewRedis(client, sequencer.RedisConfig{TTL: cfg.LockTTL}, d.logger)
}

func (d *appDeps) Close() {
	if d.graph != nil {
		if err := d.graph.Close(context.Background()); err != nil {
			d.logger.Warn("closing graph client", zap.Error(err))
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Warn("closing redis client", zap.Error(err))
		}
	}
}

func newAIClient(ctx context.Context, cfg *AIConfig, l *zap.Logger) (ai.Client, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch provider {
	case "", ai.ProviderGemini:
		g := cfg.Gemini
		if g == nil {
			g = &GeminiConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: g.APIKey,
			File:  g.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		generator, err := gemini.NewGenerator(ctx, gemini.Config{
			APIKey:       apiKey,
			Model:        g.Model,
			MaxRetries:   g.MaxRetries,
			MaxLogLength: g.MaxLogLength,
		}, logger.WithAIFields(l, ai.ProviderGemini, g.Model))
		if err != nil {
			return nil, err
		}
		return generator, nil
	case ai.ProviderOpenAI:
		o := cfg.OpenAI
		if o == nil {
			o = &OpenAIConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: o.APIKey,
			File:  o.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY)", err)
		}

		client, err := openai.New(openai.Config{
			APIKey:       apiKey,
			BaseURL:      o.BaseURL,
			Model:        o.Model,
			MaxTokens:    o.MaxTokens,
			Temperature:  o.Temperature,
			MaxLogLength: o.MaxLogLength,
		}, logger.WithAIFields(l, ai.ProviderOpenAI, o.Model))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, errors.New("unsupported ai provider: " + cfg.Provider)
	}
}
