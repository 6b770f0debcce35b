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
	LogLevel    string
	DatabaseURL string
	DBDriver    string
	DataDir     string
	UploadMaxMB int
	JWTSecret   string

	CORSAllowOrigins []string
	AccessLog        bool

	// StageRateLimit caps stage runs per user per minute.
	StageRateLimit int

	StorageBackend         string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	PDFConverter   string
	PDFDPI         int
	PDFDockerImage string
	PDFTimeout     time.Duration
	DockerHost     string
	PDFMemoryMB    int

	Pix2TextURL        string
	TesseractLanguages []string
	OpenAIAPIKey       string
	OpenAIModel        string

	LockBackend     string
	LockTTL         time.Duration
	LockWaitTimeout time.Duration
	RedisURL        string

	NATSURL             string
	EventsSubjectPrefix string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// UploadLimitBytes is the maximum accepted size of one uploaded file.
func (c Config) UploadLimitBytes() int64 {
	return int64(c.UploadMaxMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SUPERMARKS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "SuperMarks API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:supermarks.db?_foreign_keys=on")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("upload.max_mb", 25)
	v.SetDefault("ratelimit.stages_per_minute", 60)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("log.access", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("cloudinary.folder", "supermarks")
	v.SetDefault("pdf.converter", "poppler")
	v.SetDefault("pdf.dpi", 150)
	v.SetDefault("pdf.docker_image", "minidocks/poppler:latest")
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.memory_mb", 512)
	v.SetDefault("ocr.tesseract_languages", "eng")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", "5m")
	v.SetDefault("lock.wait_timeout", "30s")
	v.SetDefault("events.subject_prefix", "supermarks")

	pdfTimeout, err := parseDuration(v, "pdf.timeout")
	if err != nil {
		return Config{}, err
	}

	lockTTL, err := parseDuration(v, "lock.ttl")
	if err != nil {
		return Config{}, err
	}

	lockWait, err := parseDuration(v, "lock.wait_timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		DBDriver:               strings.ToLower(v.GetString("database.driver")),
		DataDir:                v.GetString("data.dir"),
		UploadMaxMB:            v.GetInt("upload.max_mb"),
		JWTSecret:              v.GetString("jwt.secret"),
		CORSAllowOrigins:       splitList(v.GetString("cors.allow_origins")),
		AccessLog:              v.GetBool("log.access"),
		StageRateLimit:         v.GetInt("ratelimit.stages_per_minute"),
		StorageBackend:         strings.ToLower(v.GetString("storage.backend")),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		PDFConverter:           strings.ToLower(v.GetString("pdf.converter")),
		PDFDPI:                 v.GetInt("pdf.dpi"),
		PDFDockerImage:         v.GetString("pdf.docker_image"),
		PDFTimeout:             pdfTimeout,
		DockerHost:             v.GetString("docker_host"),
		PDFMemoryMB:            v.GetInt("pdf.memory_mb"),
		Pix2TextURL:            v.GetString("ocr.pix2text_url"),
		TesseractLanguages:     splitList(v.GetString("ocr.tesseract_languages")),
		OpenAIAPIKey:           v.GetString("openai.api_key"),
		OpenAIModel:            v.GetString("openai.model"),
		LockBackend:            strings.ToLower(v.GetString("lock.backend")),
		LockTTL:                lockTTL,
		LockWaitTimeout:        lockWait,
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsSubjectPrefix:    v.GetString("events.subject_prefix"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if err := oneOf("database.driver", c.DBDriver, "sqlite", "postgres"); err != nil {
		return err
	}
	if err := oneOf("storage.backend", c.StorageBackend, "local", "cloudinary"); err != nil {
		return err
	}
	if err := oneOf("pdf.converter", c.PDFConverter, "poppler", "docker", "none"); err != nil {
		return err
	}
	if err := oneOf("lock.backend", c.LockBackend, "memory", "redis"); err != nil {
		return err
	}

	if c.PDFDPI <= 0 {
		return fmt.Errorf("pdf dpi must be positive, got %d", c.PDFDPI)
	}
	if c.UploadMaxMB <= 0 {
		return fmt.Errorf("upload max mb must be positive, got %d", c.UploadMaxMB)
	}
	if c.StageRateLimit < 0 {
		return fmt.Errorf("stage rate limit must not be negative, got %d", c.StageRateLimit)
	}
	if c.LockBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("redis url must be provided when lock backend is redis")
	}
	if c.StorageBackend == "cloudinary" && (c.CloudinaryCloudName == "" || c.CloudinaryAPIKey == "" || c.CloudinaryAPISecret == "") {
		return fmt.Errorf("cloudinary credentials must be provided when storage backend is cloudinary")
	}

	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return value, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: expected one of %s", key, value, strings.Join(allowed, ", "))
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
