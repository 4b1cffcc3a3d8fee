package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database        DatabaseConfig
	Redis           RedisConfig
	JWT             JWTConfig
	CORS            CORSConfig
	Log             LogConfig
	Eligibility     EligibilityConfig
	Recommendations RecommendationsConfig
	Evaluations     EvaluationsConfig
	Email           EmailConfig
	Uploads         UploadsConfig
	Dashboard       DashboardConfig
	Reports         ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EligibilityConfig holds the submit-gate policy knobs. Essay bounds
// default to the enforced 250-500 word range.
type EligibilityConfig struct {
	MinGPA         float64
	EssayMinWords  int
	EssayMaxWords  int
	ResidencyState string
}

// RecommendationsConfig governs recommender invitation behaviour.
type RecommendationsConfig struct {
	TokenTTL         time.Duration
	MaxLive          int
	ReminderCooldown time.Duration
}

// EvaluationsConfig tunes committee review aggregation.
type EvaluationsConfig struct {
	CommitteeSize    int
	RankingsCacheTTL time.Duration
}

// EmailConfig configures outbound notification dispatch.
type EmailConfig struct {
	FromAddress   string
	FromName      string
	PortalBaseURL string
	QueueWorkers  int
	QueueRetries  int
}

// UploadsConfig controls document upload targets and signed URLs.
type UploadsConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ReportsConfig tunes the async export pipeline.
type ReportsConfig struct {
	StorageDir      string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
	QueueWorkers    int
}

// DashboardConfig gates the admin dashboard endpoints and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Eligibility = EligibilityConfig{
		MinGPA:         v.GetFloat64("ELIGIBILITY_MIN_GPA"),
		EssayMinWords:  v.GetInt("ELIGIBILITY_ESSAY_MIN_WORDS"),
		EssayMaxWords:  v.GetInt("ELIGIBILITY_ESSAY_MAX_WORDS"),
		ResidencyState: v.GetString("ELIGIBILITY_RESIDENCY_STATE"),
	}

	cfg.Recommendations = RecommendationsConfig{
		TokenTTL:         parseDuration(v.GetString("RECOMMENDATION_TOKEN_TTL"), 30*24*time.Hour),
		MaxLive:          v.GetInt("RECOMMENDATION_MAX_LIVE"),
		ReminderCooldown: parseDuration(v.GetString("RECOMMENDATION_REMINDER_COOLDOWN"), 24*time.Hour),
	}

	cfg.Evaluations = EvaluationsConfig{
		CommitteeSize:    v.GetInt("EVALUATION_COMMITTEE_SIZE"),
		RankingsCacheTTL: parseDuration(v.GetString("RANKINGS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Email = EmailConfig{
		FromAddress:   v.GetString("EMAIL_FROM_ADDRESS"),
		FromName:      v.GetString("EMAIL_FROM_NAME"),
		PortalBaseURL: v.GetString("EMAIL_PORTAL_BASE_URL"),
		QueueWorkers:  v.GetInt("EMAIL_QUEUE_WORKERS"),
		QueueRetries:  v.GetInt("EMAIL_QUEUE_RETRIES"),
	}

	cfg.Uploads = UploadsConfig{
		StorageDir:       v.GetString("UPLOADS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 15*time.Minute),
		MaxFileSizeBytes: v.GetInt64("UPLOADS_MAX_FILE_SIZE_BYTES"),
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOADS_ALLOWED_MIMES")),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		ResultTTL:       parseDuration(v.GetString("REPORTS_RESULT_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("REPORTS_CLEANUP_INTERVAL"), time.Hour),
		MaxRetries:      v.GetInt("REPORTS_MAX_RETRIES"),
		QueueWorkers:    v.GetInt("REPORTS_QUEUE_WORKERS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "scholarship")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ELIGIBILITY_MIN_GPA", 3.0)
	v.SetDefault("ELIGIBILITY_ESSAY_MIN_WORDS", 250)
	v.SetDefault("ELIGIBILITY_ESSAY_MAX_WORDS", 500)
	v.SetDefault("ELIGIBILITY_RESIDENCY_STATE", "MI")

	v.SetDefault("RECOMMENDATION_TOKEN_TTL", "720h")
	v.SetDefault("RECOMMENDATION_MAX_LIVE", 2)
	v.SetDefault("RECOMMENDATION_REMINDER_COOLDOWN", "24h")

	v.SetDefault("EVALUATION_COMMITTEE_SIZE", 5)
	v.SetDefault("RANKINGS_CACHE_TTL", "5m")

	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@scholarship.local")
	v.SetDefault("EMAIL_FROM_NAME", "Scholarship Committee")
	v.SetDefault("EMAIL_PORTAL_BASE_URL", "http://localhost:3000")
	v.SetDefault("EMAIL_QUEUE_WORKERS", 2)
	v.SetDefault("EMAIL_QUEUE_RETRIES", 3)

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "15m")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE_BYTES", int64(10*1024*1024))
	v.SetDefault("UPLOADS_ALLOWED_MIMES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_RESULT_TTL", "24h")
	v.SetDefault("REPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("REPORTS_MAX_RETRIES", 3)
	v.SetDefault("REPORTS_QUEUE_WORKERS", 2)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
