package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")，为空表示不启用
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
	TTL      string `yaml:"ttl"`      // 上传元数据的过期时间 (例如: "24h")
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 上传文件所在的存储桶
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`          // Kafka Broker 地址列表，为空表示不发布事件
	ConversionsTopic string   `yaml:"conversionsTopic"` // 转换完成事件的主题
}

// DatabaseConfigs 包含所有外部存储/消息组件的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"` // Redis 配置
	MinIO MinIOConfig `yaml:"minio"` // MinIO 对象存储配置
	Kafka KafkaConfig `yaml:"kafka"` // Kafka 消息队列配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ServerConfig 定义了 HTTP 服务的配置。
type ServerConfig struct {
	Address      string   `yaml:"address"`      // 监听地址，例如 ":8000"
	AllowOrigins []string `yaml:"allowOrigins"` // CORS 允许的来源
}

// LLMConfig 定义了文本生成端点的配置。
type LLMConfig struct {
	Provider string `yaml:"provider"` // "http"（默认，OpenAI 兼容）、"openai"、"ollama"、"gemini"
	APIKey   string `yaml:"apiKey"`   // 凭证，可被环境变量 LLM_API_KEY / OPENAI_API_KEY 覆盖
	Model    string `yaml:"model"`    // 模型名称
	BaseURL  string `yaml:"baseURL"`  // 端点基准地址
	Timeout  string `yaml:"timeout"`  // 单次调用超时 (例如: "120s")
}

// DetectionConfig 定义了 OCR / 版面检测引擎的配置。
type DetectionConfig struct {
	Engine    string `yaml:"engine"`    // "http" 或 "tesseract"
	Endpoint  string `yaml:"endpoint"`  // http 引擎的服务地址
	AuthToken string `yaml:"authToken"` // http 引擎的内部令牌
	Language  string `yaml:"language"`  // tesseract 语言，例如 "eng"
	Timeout   string `yaml:"timeout"`   // 单页检测超时
}

// PipelineConfig 定义了文档处理流水线的配置。
type PipelineConfig struct {
	MaxPages  int    `yaml:"maxPages"`  // 每个文档最多处理的页数
	PromptDir string `yaml:"promptDir"` // 提示词文件目录
	DPI       int    `yaml:"dpi"`       // PDF 栅格化分辨率
}

// StorageConfig 定义了上传文件的存储后端。
type StorageConfig struct {
	Backend   string `yaml:"backend"`   // "local" 或 "minio"
	UploadDir string `yaml:"uploadDir"` // local 后端的目录
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	LLM        LLMConfig        `yaml:"llm"`        // 文本生成配置
	Detection  DetectionConfig  `yaml:"detection"`  // 检测引擎配置
	Pipeline   PipelineConfig   `yaml:"pipeline"`   // 流水线配置
	Storage    StorageConfig    `yaml:"storage"`    // 上传存储配置
	Databases  DatabaseConfigs  `yaml:"databases"`  // 外部组件配置
	Middleware MiddlewareConfig `yaml:"middleware"` // 中间件配置
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了令牌桶限流器的配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // 每秒生成的令牌数
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// 默认值。
const (
	DefaultMaxPages  = 3
	DefaultModel     = "gpt-4o"
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultUploadDir = "uploads"
	DefaultPromptDir = "prompts"
	DefaultAddress   = ":8000"
	DefaultDPI       = 144
)

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件，随后应用环境变量覆盖和默认值。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyEnv 用环境变量覆盖敏感配置。
func (c *AppConfig) ApplyEnv() {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if token := os.Getenv("DETECTION_AUTH_TOKEN"); token != "" {
		c.Detection.AuthToken = token
	}
}

// ApplyDefaults 为未设置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "http"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.BaseURL == "" && (c.LLM.Provider == "http" || c.LLM.Provider == "openai") {
		c.LLM.BaseURL = DefaultBaseURL
	}
	if c.Detection.Engine == "" {
		c.Detection.Engine = "http"
	}
	if c.Detection.Language == "" {
		c.Detection.Language = "eng"
	}
	if c.Pipeline.MaxPages <= 0 {
		c.Pipeline.MaxPages = DefaultMaxPages
	}
	if c.Pipeline.PromptDir == "" {
		c.Pipeline.PromptDir = DefaultPromptDir
	}
	if c.Pipeline.DPI <= 0 {
		c.Pipeline.DPI = DefaultDPI
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = DefaultUploadDir
	}
	if c.Databases.Kafka.ConversionsTopic == "" {
		c.Databases.Kafka.ConversionsTopic = "document_conversions"
	}
}

// Duration 解析形如 "30s" 的时长字符串，空字符串或非法值返回 fallback。
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
