package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath           = "config.yaml"
	defaultGraphURL             = "https://graph.facebook.com"
	defaultGraphVideoURL        = "https://graph-video.facebook.com"
	defaultAPIVersion           = "v19.0"
	defaultHost                 = "0.0.0.0"
	defaultPort                 = "8000"
	defaultUploadTimeoutSeconds = 900
	defaultMaxUploadSize        = 1 << 30
	defaultArchiveDir           = "./archive"
	defaultArchivePrefix        = "videos"

	appSecretName = "facebook-app-secret"
)

type Config struct {
	AppID       string
	AppSecret   string
	PageID      string
	AccessToken string
	GCSBucket   string
	GCPProject  string

	Facebook FacebookConfig `yaml:"facebook"`
	Server   ServerConfig   `yaml:"server"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

type FacebookConfig struct {
	GraphURL      string `yaml:"graph_url"`
	GraphVideoURL string `yaml:"graph_video_url"`
	APIVersion    string `yaml:"api_version"`
}

type ServerConfig struct {
	Host                 string `yaml:"host"`
	Port                 string `yaml:"port"`
	UploadTimeoutSeconds int    `yaml:"upload_timeout_seconds"`
	MaxUploadSize        int64  `yaml:"max_upload_size"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Prefix  string `yaml:"prefix"`
}

// Load reads credentials from the environment (optionally seeded from .env),
// tunables from config.yaml, and falls back to GCP Secret Manager for the
// app secret when GOOGLE_CLOUD_PROJECT is set.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		AppID:       os.Getenv("FACEBOOK_APP_ID"),
		AppSecret:   os.Getenv("FACEBOOK_APP_SECRET"),
		PageID:      os.Getenv("FACEBOOK_PAGE_ID"),
		AccessToken: os.Getenv("FACEBOOK_ACCESS_TOKEN"),
		GCSBucket:   os.Getenv("GCS_BUCKET"),
		GCPProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}

	loadYAMLConfig(cfg)
	applyDefaults(cfg)

	if cfg.AppSecret == "" && cfg.GCPProject != "" {
		secret, err := resolveAppSecret(ctx, cfg.GCPProject)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve app secret: %w", err)
		}
		cfg.AppSecret = secret
	}

	return cfg, nil
}

func loadYAMLConfig(cfg *Config) {
	data, err := os.ReadFile(defaultConfigPath)
	if err != nil {
		slog.Warn("No config.yaml found, using defaults")
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Error("Failed to parse config.yaml", "error", err)
	}
}

func applyDefaults(cfg *Config) {
	applyFacebookDefaults(cfg)
	applyServerDefaults(cfg)
	applyArchiveDefaults(cfg)
}

func applyFacebookDefaults(cfg *Config) {
	if cfg.Facebook.GraphURL == "" {
		cfg.Facebook.GraphURL = defaultGraphURL
	}
	if cfg.Facebook.GraphVideoURL == "" {
		cfg.Facebook.GraphVideoURL = defaultGraphVideoURL
	}
	if cfg.Facebook.APIVersion == "" {
		cfg.Facebook.APIVersion = defaultAPIVersion
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.UploadTimeoutSeconds == 0 {
		cfg.Server.UploadTimeoutSeconds = defaultUploadTimeoutSeconds
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = defaultMaxUploadSize
	}
}

func applyArchiveDefaults(cfg *Config) {
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = defaultArchiveDir
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePrefix
	}
}

func resolveAppSecret(ctx context.Context, project string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, appSecretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", appSecretName, err)
	}

	return string(resp.Payload.Data), nil
}
