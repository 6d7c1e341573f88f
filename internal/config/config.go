package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Migrations MigrationsConfig `yaml:"migrations"`
	Webpay     WebpayConfig     `yaml:"webpay"`
	URLs       URLConfig        `yaml:"urls"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"60"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// WebpayConfig selects the gateway environment. The defaults are
// Transbank's public integration credentials and are safe to commit;
// production values must come from the environment.
type WebpayConfig struct {
	Environment  string `yaml:"environment" env:"WEBPAY_ENV" env-default:"integration"`
	CommerceCode string `yaml:"commerce_code" env:"WEBPAY_COMMERCE_CODE" env-default:"597055555532"`
	APIKey       string `yaml:"-" env:"WEBPAY_API_KEY" env-default:"579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"`
}

// URLConfig holds the public base URLs used to build the gateway return
// URL and the frontend result redirect.
type URLConfig struct {
	Backend  string `yaml:"backend" env-default:"http://localhost:8080"`
	Frontend string `yaml:"frontend" env-default:"http://localhost:3000"`
}

type NotifyConfig struct {
	From         string `yaml:"from" env-default:"no-reply@tienda.local"`
	OwnerEmail   string `yaml:"owner_email"`
	ResendAPIKey string `yaml:"-" env:"RESEND_API_KEY"`
}

// MustLoad panics when the configuration cannot be loaded.
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s", configPath)
	}

	return &cfg
}
