package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	AI        AIConfig
	Session   SessionConfig
	Storage   StorageConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	telemetry, err := loadTelemetryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Backend:   backend,
		AI:        ai,
		Session:   session,
		Storage:   storage,
		Log:       logCfg,
		Telemetry: telemetry,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("MURPH_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// BackendConfig 描述上游 REST 后端。
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	base := strings.TrimRight(getEnvOrDefault("MURPH_BACKEND_URL", "http://localhost:8000/api"), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return BackendConfig{}, fmt.Errorf("invalid MURPH_BACKEND_URL value %q", base)
	}

	timeout, err := parseDurationEnv("MURPH_BACKEND_TIMEOUT", 15*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}
	if timeout <= 0 {
		return BackendConfig{}, fmt.Errorf("MURPH_BACKEND_TIMEOUT must be positive")
	}

	return BackendConfig{BaseURL: base, Timeout: timeout}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	GraderEnabled bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	graderEnabled, err := parseBoolEnv("AI_REVIEW_GRADER_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	modelName := strings.TrimSpace(os.Getenv("ARK_MODEL"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("Model"))
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         modelName,
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		GraderEnabled: graderEnabled,
	}, nil
}

// SessionConfig 控制会话计时与内存回收。
type SessionConfig struct {
	TickInterval    time.Duration
	ListingTTL      time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	tick, err := parseDurationEnv("MURPH_TICK_INTERVAL", time.Second)
	if err != nil {
		return SessionConfig{}, err
	}
	if tick <= 0 {
		return SessionConfig{}, fmt.Errorf("MURPH_TICK_INTERVAL must be positive")
	}

	ttl, err := parseDurationEnv("MURPH_LISTING_TTL", 5*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	retention, err := parseDurationEnv("MURPH_SESSION_RETENTION", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	cleanup, err := parseDurationEnv("MURPH_CLEANUP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		TickInterval:    tick,
		ListingTTL:      ttl,
		Retention:       retention,
		CleanupInterval: cleanup,
	}, nil
}

// StorageConfig selects the ledger database.
type StorageConfig struct {
	Driver string
	DSN    string
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("MURPH_STORAGE_DRIVER", "sqlite"))
	dsn := strings.TrimSpace(os.Getenv("MURPH_STORAGE_DSN"))

	switch driver {
	case "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "data/murph.db"
		}
	case "postgres", "postgresql":
		if dsn == "" {
			return StorageConfig{}, fmt.Errorf("MURPH_STORAGE_DSN is required for the postgres driver")
		}
	default:
		return StorageConfig{}, fmt.Errorf("invalid MURPH_STORAGE_DRIVER value %q", driver)
	}

	return StorageConfig{Driver: driver, DSN: dsn}, nil
}

// LogConfig 日志目录为空时输出到 stderr。
type LogConfig struct {
	Dir   string
	Level string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("MURPH_LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid MURPH_LOG_LEVEL value %q", level)
	}
	return LogConfig{Dir: strings.TrimSpace(os.Getenv("MURPH_LOG_DIR")), Level: level}, nil
}

type TelemetryConfig struct {
	Enabled bool
	Dir     string
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	enabled, err := parseBoolEnv("MURPH_TELEMETRY_ENABLED", false)
	if err != nil {
		return TelemetryConfig{}, err
	}
	return TelemetryConfig{
		Enabled: enabled,
		Dir:     getEnvOrDefault("MURPH_TELEMETRY_DIR", "logs"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 接受 "1s"、"500ms" 等格式，纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
