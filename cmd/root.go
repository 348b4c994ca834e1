package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/spigell/talentflow/internal/graph"
	"github.com/spigell/talentflow/internal/server"
)

const (
	app       = "talentflow"
	envPrefix = "TALENTFLOW"
)

type Config struct {
	Graph  *graph.Config  `mapstructure:"graph"`
	AI     *AIConfig      `mapstructure:"ai"`
	QnA    *QnAConfig     `mapstructure:"qna"`
	Redis  *RedisConfig   `mapstructure:"redis"`
	Server *server.Config `mapstructure:"server"`
}

type QnAConfig struct {
	// TreesDir holds *.yaml tree definitions. Empty means the builtin trees.
	TreesDir string `mapstructure:"trees-dir"`
	// PersistOnStart mirrors the trees into the graph when a command starts.
	PersistOnStart bool `mapstructure:"persist-on-start"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	PasswordFile string        `mapstructure:"password-file"`
	DB           int           `mapstructure:"db"`
	LockTTL      time.Duration `mapstructure:"lock-ttl"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey       string  `mapstructure:"api-key"`
	APIKeyFile   string  `mapstructure:"api-key-file"`
	BaseURL      string  `mapstructure:"base-url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max-tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxLogLength int     `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "talentflow runs the recruiting Q&A dialogue engine",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is talentflow.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	// Defaults make the keys known to viper so TALENTFLOW_* variables override them.
	viper.SetDefault("graph.backend", graph.BackendMemory)
	viper.SetDefault("qna.trees-dir", "")
	viper.SetDefault("qna.persist-on-start", true)
	viper.SetDefault("ai.enabled", false)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("server.addr", ":8080")
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit --config the file is optional.
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		cobra.CheckErr(fmt.Errorf("reading config: %w", err))
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}
	if config.Graph == nil {
		config.Graph = &graph.Config{Backend: graph.BackendMemory}
	}
	if config.QnA == nil {
		config.QnA = &QnAConfig{}
	}
	if config.Server == nil {
		config.Server = &server.Config{}
	}

	return config, nil
}
