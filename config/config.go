package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed sites/*.yaml
var builtinSites embed.FS

type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Proxy     ProxyConfig
	Solver    SolverConfig
	Storage   StorageConfig
	S3        S3Config
	Scheduler SchedulerConfig
	Bypass    BypassConfig

	LogLevel    string
	LogPath     string
	ArtifactDir string
	SitesDir    string
	DefaultSite string
	Sites       map[string]*SiteConfig
}

type ServerConfig struct {
	Port           int
	RateLimitRPS   float64
	RateLimitBurst int
}

type BrowserConfig struct {
	Headless          bool
	ExecutablePath    string
	NavigationTimeout time.Duration
}

type ProxyConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Username string
	Password string
}

// Server returns the proxy address in the form the browser expects.
func (p ProxyConfig) Server() string {
	if !p.Enabled || p.Host == "" {
		return ""
	}
	if p.Port == "" {
		return "http://" + p.Host
	}
	return fmt.Sprintf("http://%s:%s", p.Host, p.Port)
}

// URL embeds credentials, for plain HTTP clients.
func (p ProxyConfig) URL() string {
	server := p.Server()
	if server == "" || p.Username == "" {
		return server
	}
	return fmt.Sprintf("http://%s:%s@%s:%s", p.Username, p.Password, p.Host, p.Port)
}

type SolverConfig struct {
	APIKey       string
	BaseURL      string
	SoftID       int
	Timeout      time.Duration
	PollInterval time.Duration
}

type StorageConfig struct {
	Driver string // sqlite, postgres or none
	DBPath string
	DBURL  string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool { return c.Bucket != "" }

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
	ZipCodes []string
	URLType  string
}

type BypassConfig struct {
	// SignaturesPath overrides the embedded challenge profile when set.
	SignaturesPath string
	// Deadline bounds one whole bypass run; zero means no overall limit.
	Deadline time.Duration
}

type SiteConfig struct {
	ID             string              `yaml:"id"`
	Name           string              `yaml:"name"`
	BaseURL        string              `yaml:"base_url"`
	DefaultURLType string              `yaml:"default_url_type"`
	RateLimitMS    int                 `yaml:"rate_limit_ms"`
	URLTemplates   map[string][]string `yaml:"url_templates"`
	Referers       map[string]string   `yaml:"referers"`
	Selectors      ListingSelectors    `yaml:"selectors"`
}

type ListingSelectors struct {
	Cards   []string `yaml:"cards"`
	Address []string `yaml:"address"`
	Price   []string `yaml:"price"`
	Details []string `yaml:"details"`
	Link    []string `yaml:"link"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 5001),
			RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 0.5),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 2),
		},
		Browser: BrowserConfig{
			Headless:          getEnvBool("HEADLESS", true),
			ExecutablePath:    os.Getenv("BROWSER_EXECUTABLE"),
			NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		},
		Proxy: ProxyConfig{
			Enabled:  getEnvBool("USE_PROXY", false),
			Host:     os.Getenv("PROXY_HOST"),
			Port:     os.Getenv("PROXY_PORT"),
			Username: os.Getenv("PROXY_USERNAME"),
			Password: os.Getenv("PROXY_PASSWORD"),
		},
		Solver: SolverConfig{
			APIKey:       os.Getenv("ANTICAPTCHA_API_KEY"),
			BaseURL:      getEnv("ANTICAPTCHA_URL", "https://api.anti-captcha.com"),
			SoftID:       getEnvInt("ANTICAPTCHA_SOFT_ID", 0),
			Timeout:      getEnvDuration("ANTICAPTCHA_TIMEOUT", 120*time.Second),
			PollInterval: getEnvDuration("ANTICAPTCHA_POLL", 3*time.Second),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "sqlite"),
			DBPath: getEnv("DB_PATH", "scraper.db"),
			DBURL:  os.Getenv("DATABASE_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SCRAPE_CRON"),
			Interval: getEnvDuration("SCRAPE_INTERVAL", 0),
			ZipCodes: splitList(os.Getenv("SCRAPE_ZIPS")),
			URLType:  getEnv("SCRAPE_URL_TYPE", "simple"),
		},
		Bypass: BypassConfig{
			SignaturesPath: os.Getenv("CHALLENGE_SIGNATURES"),
			Deadline:       getEnvDuration("BYPASS_DEADLINE", 0),
		},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPath:     getEnv("LOG_PATH", "scraper.log"),
		ArtifactDir: getEnv("ARTIFACT_DIR", "debug"),
		SitesDir:    getEnv("SITES_DIR", "config/sites"),
		DefaultSite: getEnv("SITE", "zillow"),
		Sites:       make(map[string]*SiteConfig),
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}
	if _, ok := cfg.Sites[cfg.DefaultSite]; !ok {
		return nil, fmt.Errorf("unknown site %q", cfg.DefaultSite)
	}

	return cfg, nil
}

// Site returns the active site configuration.
func (c *Config) Site() *SiteConfig {
	return c.Sites[c.DefaultSite]
}

// loadSiteConfigs reads the built-in sites, then lets files in SitesDir
// replace or extend them.
func (c *Config) loadSiteConfigs() error {
	entries, err := builtinSites.ReadDir("sites")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := builtinSites.ReadFile("sites/" + entry.Name())
		if err != nil {
			return err
		}
		if err := c.addSite(data, entry.Name()); err != nil {
			return err
		}
	}

	entries, err = os.ReadDir(c.SitesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(c.SitesDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := c.addSite(data, path); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) addSite(data []byte, source string) error {
	site, err := ParseSite(data)
	if err != nil {
		return fmt.Errorf("site config %s: %w", source, err)
	}
	c.Sites[site.ID] = site
	return nil
}

// ParseSite decodes and validates one site file.
func ParseSite(data []byte) (*SiteConfig, error) {
	var site SiteConfig
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, err
	}
	if site.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if len(site.URLTemplates) == 0 {
		return nil, fmt.Errorf("site %s has no url_templates", site.ID)
	}
	if site.DefaultURLType == "" {
		site.DefaultURLType = "simple"
	}
	return &site, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
