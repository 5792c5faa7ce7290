package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Doubao  DoubaoConfig  `mapstructure:"doubao"`
	Qwen    QwenConfig    `mapstructure:"qwen"`
	Agent   AgentConfig   `mapstructure:"agent"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
	Session SessionConfig `mapstructure:"session"`
	Storage StorageConfig `mapstructure:"storage"`
	Widget  WidgetConfig  `mapstructure:"widget"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StreamTimeout     time.Duration `mapstructure:"stream_timeout"`
}

type ModelConfig struct {
	Provider string `mapstructure:"provider"` // echo | openai | doubao | qwen
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type DoubaoConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type AgentConfig struct {
	SystemPrompt       string `mapstructure:"system_prompt"`
	MaxHistoryMessages int    `mapstructure:"max_history_messages"`
	SourceNote         string `mapstructure:"source_note"`
	ProgressMessage    string `mapstructure:"progress_message"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"`
}

// WidgetConfig 聊天客户端（widget）一侧的配置
type WidgetConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	ReadBufferSize int           `mapstructure:"read_buffer_size"`
	StrictFrames   bool          `mapstructure:"strict_frames"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 0 表示不设超时
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.stream_timeout", 25*time.Minute)

	v.SetDefault("model.provider", "echo")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("qwen.max_tokens", 2048)
	v.SetDefault("qwen.temperature", 0.7)
	v.SetDefault("qwen.top_p", 0.9)
	v.SetDefault("qwen.timeout", 60*time.Second)

	v.SetDefault("agent.system_prompt", "You are the assistant of the crime statistics dashboards. Answer questions about the published crime figures concisely, in markdown.")
	v.SetDefault("agent.max_history_messages", 20)
	v.SetDefault("agent.source_note", "Figures come from the pre-aggregated crime statistics datasets behind the dashboards.")
	v.SetDefault("agent.progress_message", "Looking into the statistics...")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", time.Hour)

	v.SetDefault("storage.type", "memory")

	v.SetDefault("widget.endpoint", "http://localhost:8080/stream")
	v.SetDefault("widget.read_buffer_size", 4096)
	v.SetDefault("widget.strict_frames", false)
	v.SetDefault("widget.request_timeout", 0)
}

// Load 读取配置；configPath 为空时只使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	loaded := &Config{}
	if err := v.Unmarshal(loaded); err != nil {
		return nil, err
	}

	// 配置文件优先，如果配置文件中没有设置，则使用环境变量
	if loaded.Doubao.APIKey == "" {
		if apiKey := os.Getenv("DOUBAO_API_KEY"); apiKey != "" {
			loaded.Doubao.APIKey = apiKey
		}
		if apiKey := os.Getenv("ARK_API_KEY"); apiKey != "" {
			loaded.Doubao.APIKey = apiKey
		}
	}
	if loaded.OpenAI.APIKey == "" {
		loaded.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if loaded.Qwen.APIKey == "" {
		loaded.Qwen.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}

	cfg = loaded
	return cfg, nil
}

func Get() *Config {
	return cfg
}
