package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"stayflow/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment    string      `json:"environment"`
	ServerPort     string      `json:"server_port"`
	DBHost         string      `json:"db_host"`
	DBPort         string      `json:"db_port"`
	DBUser         string      `json:"db_user"`
	DBPassword     string      `json:"-"`
	DBName         string      `json:"db_name"`
	DBSSLMode      string      `json:"db_ssl_mode"`
	DBMaxIdleConns int         `json:"db_max_idle_conns"`
	DBMaxOpenConns int         `json:"db_max_open_conns"`
	Redis          RedisConfig `json:"redis"`

	// Dispatcher
	CronSecret         string `json:"-"`
	DispatchBatchLimit int    `json:"dispatch_batch_limit"`
	SendMaxAttempts    int    `json:"send_max_attempts"`
	DailyEmailCap      int    `json:"daily_email_cap"`
	SendTimeoutSeconds int    `json:"send_timeout_seconds"`

	// Optional in-process cron stand-in
	DispatchWorkerEnabled  bool `json:"dispatch_worker_enabled"`
	DispatchWorkerInterval int  `json:"dispatch_worker_interval_seconds"`

	// Mail transport
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`
	FromEmail    string `json:"from_email"`
	FromName     string `json:"from_name"`
	BaseURL      string `json:"base_url"`

	RateLimitTrigger int    `json:"rate_limit_trigger"`
	SentryDSN        string `json:"-"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "stayflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		CronSecret:         getEnv("CRON_SECRET", ""),
		DispatchBatchLimit: getEnvAsInt("DISPATCH_BATCH_LIMIT", 50),
		SendMaxAttempts:    getEnvAsInt("SEND_MAX_ATTEMPTS", 5),
		DailyEmailCap:      getEnvAsInt("DAILY_EMAIL_CAP", 1),
		SendTimeoutSeconds: getEnvAsInt("SEND_TIMEOUT_SECONDS", 30),

		DispatchWorkerEnabled:  getEnv("DISPATCH_WORKER_ENABLED", "false") == "true",
		DispatchWorkerInterval: getEnvAsInt("DISPATCH_WORKER_INTERVAL_SECONDS", 300),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		FromEmail:    getEnv("FROM_EMAIL", "hola@stayflow.app"),
		FromName:     getEnv("FROM_NAME", "Stayflow"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:5000"),

		RateLimitTrigger: getEnvAsInt("RATE_LIMIT_TRIGGER", 60),
		SentryDSN:        getEnv("SENTRY_DSN", ""),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required to protect the dispatch endpoint")
	}
	if AppConfig.DispatchBatchLimit <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_LIMIT must be positive")
	}
	if AppConfig.SendMaxAttempts <= 0 {
		return fmt.Errorf("SEND_MAX_ATTEMPTS must be positive")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTPHost == "" || AppConfig.SMTPUsername == "" {
			return fmt.Errorf("SMTP credentials are required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")

	if err := models.CreateDefaultSequences(DB); err != nil {
		return fmt.Errorf("failed to seed default sequences: %w", err)
	}
	return nil
}

// MigrateDB runs the schema migration for all engine tables.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SequenceDefinition{},
		&models.SequenceStep{},
		&models.Contact{},
		&models.ContactInterest{},
		&models.Unsubscribe{},
		&models.Enrollment{},
		&models.ScheduledSend{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Dispatch: batch=%d max_attempts=%d daily_cap=%d worker=%t",
		AppConfig.DispatchBatchLimit,
		AppConfig.SendMaxAttempts,
		AppConfig.DailyEmailCap,
		AppConfig.DispatchWorkerEnabled)
}
