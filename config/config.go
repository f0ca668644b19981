package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Api        ApiConfig        `yaml:"api"`
	Rpc        RpcConfig        `yaml:"rpc"`
	Generation GenerationConfig `yaml:"generation"`
	Media      MediaConfig      `yaml:"media"`
	Log        LogConfig        `yaml:"log"`
}

type ApiConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowedOrigins"`
}

// RpcConfig is the gRPC health listener. An empty port disables it.
type RpcConfig struct {
	Port string `yaml:"port"`
}

type GenerationConfig struct {
	BaseUrl    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	Resolution string `yaml:"resolution"`
	// ApiKey seeds the credential gate; ApiKeyEnv is re-read whenever the user
	// asks to select a key.
	ApiKey       string `yaml:"apiKey"`
	ApiKeyEnv    string `yaml:"apiKeyEnv"`
	PollInterval string `yaml:"pollInterval"`
	MaxWait      string `yaml:"maxWait"`
	// DownloadTimeout bounds the media fetch.
	DownloadTimeout string `yaml:"downloadTimeout"`
}

type MediaConfig struct {
	Backend   string      `yaml:"backend"` // memory, disk or minio
	UrlPrefix string      `yaml:"urlPrefix"`
	Dir       string      `yaml:"dir"`
	Minio     MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"useSSL"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (g GenerationConfig) PollEvery() (time.Duration, error) {
	return parseDuration("generation.pollInterval", g.PollInterval, 10*time.Second)
}

func (g GenerationConfig) MaxWaitFor() (time.Duration, error) {
	return parseDuration("generation.maxWait", g.MaxWait, 0)
}

func (g GenerationConfig) DownloadTimeoutFor() (time.Duration, error) {
	return parseDuration("generation.downloadTimeout", g.DownloadTimeout, 10*time.Minute)
}

func (g GenerationConfig) KeyEnv() string {
	if env := strings.TrimSpace(g.ApiKeyEnv); env != "" {
		return env
	}
	return "API_KEY"
}

func parseDuration(name, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config %s: must not be negative", name)
	}
	return d, nil
}
