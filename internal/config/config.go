package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config 汇总整个服务的配置；进程启动时装载一次，此后只读传递。
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	AI       AIConfig       `toml:"ai"`
	Search   SearchConfig   `toml:"search"`
	Market   MarketConfig   `toml:"market"`
	Analysis AnalysisConfig `toml:"analysis"`
	Database DatabaseConfig `toml:"database"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type LogConfig struct {
	Level         string `toml:"level"`
	LogLLMPayload bool   `toml:"log_llm_payload"`
}

// AIConfig 描述推理服务接入；models 为候选模型清单，运行时取第一个启用项。
// 推理调用不重试：阶段级兜底负责容错，这里只有超时。
type AIConfig struct {
	TimeoutSeconds int           `toml:"timeout_seconds"`
	Temperature    float64       `toml:"temperature"`
	Models         []ModelConfig `toml:"models"`
}

type ModelConfig struct {
	ID       string            `toml:"id"`
	Provider string            `toml:"provider"` // openai | anthropic（openai 兼容端点亦走 openai）
	APIURL   string            `toml:"api_url"`
	APIKey   string            `toml:"api_key"`
	Model    string            `toml:"model"`
	Enabled  bool              `toml:"enabled"`
	Headers  map[string]string `toml:"headers"`
}

type SearchConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	MaxResults     int    `toml:"max_results"`
	Depth          string `toml:"depth"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type MarketConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	QuoteAsset     string `toml:"quote_asset"`
}

// AnalysisConfig 承载交易约束常量；最小名义价值因交易所而异，必须可配置。
type AnalysisConfig struct {
	Benchmarks          []string `toml:"benchmarks"`
	MinNotional         float64  `toml:"min_notional"`
	PositionFraction    float64  `toml:"position_fraction"`
	MinPositionFloor    float64  `toml:"min_position_floor"`
	MaxLeverage         int      `toml:"max_leverage"`
	MaxResearchSteps    int      `toml:"max_research_steps"`
	MaxDiscoverySymbols int      `toml:"max_discovery_symbols"`
	PriceConcurrency    int      `toml:"price_concurrency"`
	ResponseLanguage    string   `toml:"response_language"`
	DefaultGoal         string   `toml:"default_goal"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Load 读取 TOML 配置并叠加 .env / 环境变量中的密钥。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse %q: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	for i := range c.AI.Models {
		m := &c.AI.Models[i]
		if strings.TrimSpace(m.APIKey) != "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.Provider)) {
		case "anthropic":
			m.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			m.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if strings.TrimSpace(c.Search.APIKey) == "" {
		c.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8086"
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = "info"
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = 120
	}
	if c.AI.Temperature <= 0 {
		c.AI.Temperature = 0.4
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	if strings.TrimSpace(c.Search.Depth) == "" {
		c.Search.Depth = "basic"
	}
	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = 20
	}
	if c.Market.TimeoutSeconds <= 0 {
		c.Market.TimeoutSeconds = 10
	}
	if strings.TrimSpace(c.Market.QuoteAsset) == "" {
		c.Market.QuoteAsset = "USDT"
	}
	if len(c.Analysis.Benchmarks) == 0 {
		c.Analysis.Benchmarks = []string{"BTCUSDT", "ETHUSDT"}
	}
	if c.Analysis.MinNotional <= 0 {
		c.Analysis.MinNotional = 100
	}
	if c.Analysis.PositionFraction <= 0 {
		c.Analysis.PositionFraction = 0.10
	}
	if c.Analysis.MinPositionFloor <= 0 {
		c.Analysis.MinPositionFloor = 15
	}
	if c.Analysis.MaxLeverage <= 0 {
		c.Analysis.MaxLeverage = 20
	}
	if c.Analysis.MaxResearchSteps <= 0 {
		c.Analysis.MaxResearchSteps = 2
	}
	if c.Analysis.MaxDiscoverySymbols <= 0 {
		c.Analysis.MaxDiscoverySymbols = 5
	}
	if c.Analysis.PriceConcurrency <= 0 {
		c.Analysis.PriceConcurrency = 4
	}
	if strings.TrimSpace(c.Analysis.ResponseLanguage) == "" {
		c.Analysis.ResponseLanguage = "en"
	}
	if strings.TrimSpace(c.Analysis.DefaultGoal) == "" {
		c.Analysis.DefaultGoal = "Review my portfolio and optimize risk-adjusted returns over the next week."
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = "data/aurum.db"
	}
}

func (c *Config) validate() error {
	enabled := 0
	for _, m := range c.AI.Models {
		if m.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("config: 至少需要一个启用的 ai.models 条目")
	}
	if c.Analysis.PositionFraction > 1 {
		return fmt.Errorf("config: analysis.position_fraction 不能超过 1 (got %v)", c.Analysis.PositionFraction)
	}
	return nil
}

// AITimeout 将超时秒数换算为 time.Duration。
func (c *AIConfig) AITimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
