package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Login transport policies.
const (
	TransportPlaintext = "plaintext"
	TransportEncrypted = "encrypted"
)

// Backends.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMinio    = "minio"
	BackendDisk     = "disk"
)

// Config holds all service configuration. It is built once at startup and
// passed to constructors; nothing reads it from globals.
type Config struct {
	Port        string   `yaml:"port"`
	Env         string   `yaml:"env"`
	LogLevel    string   `yaml:"log_level"`
	PublicDir   string   `yaml:"public_dir"`
	CORSOrigins []string `yaml:"cors_origins"`

	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	UserBackend string `yaml:"user_backend"`
	PostgresDSN string `yaml:"postgres_dsn"`

	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	ImageBackend   string `yaml:"image_backend"`
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`
	MinioPublicURL string `yaml:"minio_public_url"`
	UploadDir      string `yaml:"upload_dir"`

	LoginTransport string `yaml:"login_transport"`
	PrivateKey     string `yaml:"private_key"` // base64 of a PEM RSA private key
	RSAPadding     string `yaml:"rsa_padding"`

	RecaptchaEnabled   bool    `yaml:"recaptcha_enabled"`
	RecaptchaSecret    string  `yaml:"recaptcha_secret"`
	RecaptchaVerifyURL string  `yaml:"recaptcha_verify_url"`
	RecaptchaMinScore  float64 `yaml:"recaptcha_min_score"`
}

// Defaults returns the development defaults.
func Defaults() *Config {
	return &Config{
		Port:               "3000",
		Env:                "development",
		LogLevel:           "info",
		PublicDir:          "public",
		CORSOrigins:        []string{"*"},
		MongoDB:            "peces",
		UserBackend:        BackendMongo,
		RedisAddr:          "redis:6379",
		SessionTTL:         8 * time.Hour,
		ImageBackend:       BackendDisk,
		MinioEndpoint:      "minio:9000",
		MinioBucket:        "peces-peruanos",
		UploadDir:          "uploads",
		LoginTransport:     TransportPlaintext,
		RSAPadding:         "pkcs1",
		RecaptchaVerifyURL: "https://www.google.com/recaptcha/api/siteverify",
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Port = getenv("PORT", c.Port)
	c.Env = getenv("ENV", c.Env)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.PublicDir = getenv("PUBLIC_DIR", c.PublicDir)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	c.MongoURI = getenv("MONGODB_URI", getenv("MONGO_URI", c.MongoURI))
	c.MongoDB = getenv("MONGO_DB", c.MongoDB)
	c.UserBackend = getenv("USER_BACKEND", c.UserBackend)
	c.PostgresDSN = getenv("POSTGRES_DSN", c.PostgresDSN)

	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getenv("REDIS_PASSWORD", c.RedisPassword)

	c.ImageBackend = getenv("IMAGE_BACKEND", c.ImageBackend)
	c.MinioEndpoint = getenv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getenv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getenv("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioBucket = getenv("MINIO_BUCKET", c.MinioBucket)
	c.MinioPublicURL = getenv("MINIO_PUBLIC_URL", c.MinioPublicURL)
	c.UploadDir = getenv("UPLOAD_DIR", c.UploadDir)

	c.LoginTransport = getenv("LOGIN_TRANSPORT", c.LoginTransport)
	c.PrivateKey = getenv("PRIVATE_KEY", c.PrivateKey)
	c.RSAPadding = getenv("RSA_PADDING", c.RSAPadding)

	c.RecaptchaSecret = getenv("RECAPTCHA_SECRET", c.RecaptchaSecret)
	c.RecaptchaVerifyURL = getenv("RECAPTCHA_VERIFY_URL", c.RecaptchaVerifyURL)

	var err error
	if c.MinioUseSSL, err = getbool("MINIO_USE_SSL", c.MinioUseSSL); err != nil {
		return err
	}
	if c.RecaptchaEnabled, err = getbool("RECAPTCHA_ENABLED", c.RecaptchaEnabled); err != nil {
		return err
	}
	if v := os.Getenv("RECAPTCHA_MIN_SCORE"); v != "" {
		if c.RecaptchaMinScore, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("RECAPTCHA_MIN_SCORE: %w", err)
		}
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if c.SessionTTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
	}
	return nil
}

// Validate rejects inconsistent combinations.
func (c *Config) Validate() error {
	var errs []error
	switch c.LoginTransport {
	case TransportPlaintext:
	case TransportEncrypted:
		if c.PrivateKey == "" {
			errs = append(errs, errors.New("encrypted login transport requires PRIVATE_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown login transport %q", c.LoginTransport))
	}
	if c.RSAPadding != "pkcs1" && c.RSAPadding != "oaep" {
		errs = append(errs, fmt.Errorf("unknown rsa padding %q", c.RSAPadding))
	}
	if c.RecaptchaEnabled && c.RecaptchaSecret == "" {
		errs = append(errs, errors.New("recaptcha enabled without RECAPTCHA_SECRET"))
	}
	switch c.UserBackend {
	case BackendMongo:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres user backend requires POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown user backend %q", c.UserBackend))
	}
	if c.ImageBackend != BackendMinio && c.ImageBackend != BackendDisk {
		errs = append(errs, fmt.Errorf("unknown image backend %q", c.ImageBackend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
