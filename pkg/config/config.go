package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config drives the ebookd development stub server.
type Config struct {
	Port         int    `yaml:"port"`
	LogLevel     string `yaml:"logLevel"`
	LogFormat    string `yaml:"logFormat"`
	Env          string `yaml:"env"`
	ArtifactName string `yaml:"artifactName"`
	// DelaySeconds simulates the multi-minute generation wait so the
	// client's liveness behavior can be exercised locally.
	DelaySeconds int `yaml:"delaySeconds"`
	MaxUploadMB  int `yaml:"maxUploadMb"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but treats an empty path
// or a missing file as an empty config.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		var c Config
		applyEnv(&c)
		applyDefaults(&c)
		return &c, nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		var c Config
		applyEnv(&c)
		applyDefaults(&c)
		return &c, nil
	}
	return LoadConfig(filePath)
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("ARTIFACT_NAME"); v != "" {
		c.ArtifactName = v
	}
	if v := os.Getenv("DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DelaySeconds = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxUploadMB = n
		}
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 5001
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.ArtifactName == "" {
		c.ArtifactName = "ebook_gerado.pdf"
	}
	if c.DelaySeconds < 0 {
		c.DelaySeconds = 0
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 32
	}
	log.Printf("ebookd Config: {Port:%d Env:%s Artifact:%s Delay:%ds}\n",
		c.Port, c.Env, c.ArtifactName, c.DelaySeconds)
}

func (c *Config) Validate() error {
	var errs []string
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if name := strings.TrimSpace(c.ArtifactName); name == "" || name != filepath.Base(name) {
		errs = append(errs, "artifactName must be a bare file name")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be json or text")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
