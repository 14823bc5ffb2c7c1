package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	CORSOrigins []string

	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string

	JWTSecret string
	JWTTTL    time.Duration

	AIPrimary             string
	AISecondary           string
	AITimeout             time.Duration
	AIRequestsPerMinute   int
	GeminiAPIKey          string
	GeminiModel           string
	GeminiFallbackModels  []string
	GeminiBaseURL         string
	AzureOpenAIKey        string
	AzureOpenAIEndpoint   string
	AzureOpenAIDeployment string
	AzureOpenAIAPIVersion string
	OpenAIAPIKey          string
	OpenAIModel           string

	GradeCacheTTL    time.Duration
	GovernorCooldown time.Duration
	SessionTTL       time.Duration

	VirusTotalAPIKey       string
	VirusTotalBaseURL      string
	VirusTotalPollAttempts int
	VirusTotalPollInterval time.Duration
	ThreatCacheTTL         time.Duration
	UploadMaxMB            int

	AuthRateLimit         int
	MonitorStreamInterval time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IsProduction reports whether the service runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration values from environment variables and optional .env file.
// Every key maps to CYBERVANTAGE_<KEY>, with dots replaced by underscores.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CYBERVANTAGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CyberVantage API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.origins", "*")
	v.SetDefault("database.url", "file:cybervantage.db")
	v.SetDefault("nats.subject", "cybervantage.simulation.events")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("ai.primary", "gemini")
	v.SetDefault("ai.secondary", "azure")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.requests_per_minute", 8)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.fallback_models", "gemini-2.0-flash")
	v.SetDefault("azure.api_version", "2024-02-15-preview")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("grading.cache_ttl", "10m")
	v.SetDefault("governor.cooldown", "600s")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("virustotal.base_url", "https://www.virustotal.com/api/v3")
	v.SetDefault("virustotal.poll_attempts", 10)
	v.SetDefault("virustotal.poll_interval", "3s")
	v.SetDefault("threat.cache_ttl", "1h")
	v.SetDefault("upload.max_mb", 32)
	v.SetDefault("auth.rate_limit", 20)
	v.SetDefault("monitor.stream_interval", "5s")

	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      strings.ToLower(v.GetString("app.env")),
		AppPort:     v.GetString("app.port"),
		CORSOrigins: splitList(v.GetString("cors.origins")),

		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		NATSSubject: v.GetString("nats.subject"),

		JWTSecret: strings.TrimSpace(v.GetString("jwt.secret")),

		AIPrimary:             strings.ToLower(v.GetString("ai.primary")),
		AISecondary:           strings.ToLower(v.GetString("ai.secondary")),
		AIRequestsPerMinute:   v.GetInt("ai.requests_per_minute"),
		GeminiAPIKey:          v.GetString("gemini.api_key"),
		GeminiModel:           v.GetString("gemini.model"),
		GeminiFallbackModels:  splitList(v.GetString("gemini.fallback_models")),
		GeminiBaseURL:         v.GetString("gemini.base_url"),
		AzureOpenAIKey:        v.GetString("azure.api_key"),
		AzureOpenAIEndpoint:   v.GetString("azure.endpoint"),
		AzureOpenAIDeployment: v.GetString("azure.deployment"),
		AzureOpenAIAPIVersion: v.GetString("azure.api_version"),
		OpenAIAPIKey:          v.GetString("openai.api_key"),
		OpenAIModel:           v.GetString("openai.model"),

		VirusTotalAPIKey:       v.GetString("virustotal.api_key"),
		VirusTotalBaseURL:      v.GetString("virustotal.base_url"),
		VirusTotalPollAttempts: v.GetInt("virustotal.poll_attempts"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
		AuthRateLimit:          v.GetInt("auth.rate_limit"),
	}
	durations["jwt.ttl"] = &cfg.JWTTTL
	durations["ai.timeout"] = &cfg.AITimeout
	durations["grading.cache_ttl"] = &cfg.GradeCacheTTL
	durations["governor.cooldown"] = &cfg.GovernorCooldown
	durations["session.ttl"] = &cfg.SessionTTL
	durations["virustotal.poll_interval"] = &cfg.VirusTotalPollInterval
	durations["threat.cache_ttl"] = &cfg.ThreatCacheTTL
	durations["monitor.stream_interval"] = &cfg.MonitorStreamInterval

	for key, target := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", key)
		}
		*target = parsed
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.AIRequestsPerMinute <= 0 {
		cfg.AIRequestsPerMinute = 8
	}
	if cfg.VirusTotalPollAttempts <= 0 {
		cfg.VirusTotalPollAttempts = 10
	}
	if cfg.UploadMaxMB <= 0 {
		cfg.UploadMaxMB = 32
	}
	if cfg.AuthRateLimit <= 0 {
		cfg.AuthRateLimit = 20
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
