package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	ModeLocal      = "local"
	ModeDockerExec = "docker_exec"
)

type Config struct {
	RobotsPath     string
	HololibZipPath string

	RCCRemoteHost string
	RCCRemotePort int
	NginxHost     string
	NginxPort     int

	Port      int
	Debug     bool
	LogLevel  string
	StaticDir string

	RCCExecutionMode          string
	RCCBinary                 string
	RCCContainerName          string
	RobotsPathInContainer     string
	HololibZipPathInContainer string
	HololibZipInternalPath    string

	MaxUploadMB int64
}

var defaults = map[string]any{
	"robots_path":                   "/robots",
	"hololib_zip_path":              "/hololib_zip",
	"rccremote_host":                "rccremote",
	"rccremote_port":                4653,
	"nginx_host":                    "nginx",
	"nginx_port":                    80,
	"port":                          5000,
	"debug":                         false,
	"log_level":                     "info",
	"static_dir":                    "static",
	"rcc_execution_mode":            ModeLocal,
	"rcc_binary":                    "rcc",
	"rcc_container_name":            "rccremote",
	"robots_path_in_container":      "/robots",
	"hololib_zip_path_in_container": "/hololib_zip",
	"hololib_zip_internal_path":     "/hololib_zip_internal",
	"max_upload_mb":                 512,
}

// NewViper returns a viper instance with every key defaulted and bound to the
// upper-cased environment variable of the same name (robots_path -> ROBOTS_PATH).
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	return v
}

// Load reads configuration from the environment only.
func Load() (Config, error) {
	return FromViper(NewViper())
}

// ReadFiles layers optional files under the environment. envFile is a dotenv
// file whose entries never replace variables already set. configFile is any
// format viper understands by extension; keys match the lower-case names in
// defaults.
func ReadFiles(v *viper.Viper, envFile, configFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return nil
}

// FromViper builds a validated Config. Numeric values that do not parse fall
// back to their defaults instead of failing startup.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		RobotsPath:                strings.TrimSpace(v.GetString("robots_path")),
		HololibZipPath:            strings.TrimSpace(v.GetString("hololib_zip_path")),
		RCCRemoteHost:             v.GetString("rccremote_host"),
		RCCRemotePort:             intOr(v, "rccremote_port"),
		NginxHost:                 v.GetString("nginx_host"),
		NginxPort:                 intOr(v, "nginx_port"),
		Port:                      intOr(v, "port"),
		Debug:                     boolOr(v, "debug"),
		LogLevel:                  strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		StaticDir:                 v.GetString("static_dir"),
		RCCExecutionMode:          strings.TrimSpace(v.GetString("rcc_execution_mode")),
		RCCBinary:                 v.GetString("rcc_binary"),
		RCCContainerName:          strings.TrimSpace(v.GetString("rcc_container_name")),
		RobotsPathInContainer:     v.GetString("robots_path_in_container"),
		HololibZipPathInContainer: v.GetString("hololib_zip_path_in_container"),
		HololibZipInternalPath:    v.GetString("hololib_zip_internal_path"),
		MaxUploadMB:               int64(intOr(v, "max_upload_mb")),
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.RobotsPath == "" {
		return fmt.Errorf("robots path must be set")
	}
	if cfg.HololibZipPath == "" {
		return fmt.Errorf("hololib zip path must be set")
	}
	switch cfg.RCCExecutionMode {
	case ModeLocal:
		if strings.TrimSpace(cfg.RCCBinary) == "" {
			return fmt.Errorf("rcc binary must be set in %s mode", ModeLocal)
		}
	case ModeDockerExec:
	default:
		return fmt.Errorf("unknown rcc execution mode %q (want %s or %s)", cfg.RCCExecutionMode, ModeLocal, ModeDockerExec)
	}
	return nil
}

// ListenAddr is the dashboard's bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

func (c Config) LocalMode() bool {
	return c.RCCExecutionMode == ModeLocal
}

func intOr(v *viper.Viper, key string) int {
	d := defaults[key].(int)
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return d
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return d
	}
	return n
}

func boolOr(v *viper.Viper, key string) bool {
	d := defaults[key].(bool)
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return d
	}
	b, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return d
	}
	return b
}
