package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 << 20
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 256
	DefaultWorkers     = 4
	DefaultLLMModel    = "gpt-4o-mini"
	DefaultOCRLang     = "eng"
	DefaultAuthor      = "mcp-form-filler"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_FORM"
)

// ErrVersionRequested is returned by LoadFromFlags when --version is on the command line
var ErrVersionRequested = errors.New("version requested")

// LLMConfig selects the chat model used to phrase questions. An empty APIKey keeps questions local.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OCRConfig points at the tesseract binary used for scanned images
type OCRConfig struct {
	Tesseract string
	Lang      string
}

// Config holds all configuration for the form filler server
type Config struct {
	Mode string // ModeStdio or ModeServer
	Host string
	Port int

	// Documents are read from DocumentDirectory and written to OutputDirectory
	DocumentDirectory string
	OutputDirectory   string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum document size in bytes
	Author      string

	// Sessions
	SessionTTL  time.Duration
	MaxSessions int
	Workers     int

	LLM LLMConfig
	OCR OCRConfig

	// ConfigFile is the optional file merged under flags and environment
	ConfigFile string
}

// DefaultConfig serves stdio from the working directory
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:              ModeStdio,
		Host:              DefaultHost,
		Port:              DefaultPort,
		DocumentDirectory: currentDir,
		OutputDirectory:   currentDir,
		Version:           "1.0.0",
		ServerName:        "mcp-form-filler",
		LogLevel:          DefaultLogLevel,
		MaxFileSize:       DefaultMaxFileSize,
		Author:            DefaultAuthor,
		SessionTTL:        DefaultSessionTTL,
		MaxSessions:       DefaultMaxSessions,
		Workers:           DefaultWorkers,
		LLM:               LLMConfig{Model: DefaultLLMModel},
		OCR:               OCRConfig{Tesseract: "tesseract", Lang: DefaultOCRLang},
	}
}

// setting ties a command line flag to its viper key. The type of def picks the pflag constructor.
type setting struct {
	flag  string
	key   string
	def   any
	usage string
}

func settingsFor(cfg *Config) []setting {
	return []setting{
		{"mode", "mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP/SSE server"},
		{"host", "host", cfg.Host, "Server host address (server mode only)"},
		{"port", "port", cfg.Port, "Server port (server mode only)"},
		{"dir", "dir", cfg.DocumentDirectory, "Directory containing the documents to fill"},
		{"out", "out", cfg.OutputDirectory, "Directory receiving filled documents"},
		{"loglevel", "loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)"},
		{"maxfilesize", "maxfilesize", cfg.MaxFileSize, "Maximum document size in bytes"},
		{"sessionttl", "sessionttl", cfg.SessionTTL, "Idle time after which a session is discarded"},
		{"maxsessions", "maxsessions", cfg.MaxSessions, "Maximum number of concurrent sessions"},
		{"workers", "workers", cfg.Workers, "Concurrent extraction and fill jobs"},
		{"author", "author", cfg.Author, "Author written into filled documents"},
		{"llm-apikey", "llm.apikey", cfg.LLM.APIKey, "API key for the question model; empty uses built-in questions"},
		{"llm-baseurl", "llm.baseurl", cfg.LLM.BaseURL, "Base URL of an OpenAI compatible endpoint"},
		{"llm-model", "llm.model", cfg.LLM.Model, "Chat model name"},
		{"ocr-tesseract", "ocr.tesseract", cfg.OCR.Tesseract, "tesseract binary used for scanned images"},
		{"ocr-lang", "ocr.lang", cfg.OCR.Lang, "OCR language"},
	}
}

// LoadFromFlags merges defaults, an optional config file, MCP_FORM_* variables and
// command line flags (in increasing priority) into a validated Config.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	pflag.String("config", "", "Optional config file (yaml, json or toml)")
	_ = viper.BindPFlag("config", pflag.Lookup("config"))
	for _, s := range settingsFor(cfg) {
		register(s)
	}
	pflag.Usage = usage

	if versionRequested(os.Args[1:]) {
		return nil, ErrVersionRequested
	}

	pflag.Parse()

	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
		cfg.ConfigFile = file
	}

	applyViper(cfg)

	cfg.DocumentDirectory = absPath(cfg.DocumentDirectory)
	cfg.OutputDirectory = absPath(cfg.OutputDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func register(s setting) {
	switch def := s.def.(type) {
	case string:
		pflag.String(s.flag, def, s.usage)
	case int:
		pflag.Int(s.flag, def, s.usage)
	case int64:
		pflag.Int64(s.flag, def, s.usage)
	case time.Duration:
		pflag.Duration(s.flag, def, s.usage)
	default:
		panic(fmt.Sprintf("config: unsupported default %T for %s", def, s.flag))
	}
	viper.SetDefault(s.key, s.def)
	_ = viper.BindPFlag(s.key, pflag.Lookup(s.flag))
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if expanded, err := filepath.Abs(p); err == nil {
		return expanded
	}
	return p
}

func usage() {
	w := os.Stderr
	name := os.Args[0]
	fmt.Fprintf(w, "Usage: %s [options]\n", name)
	fmt.Fprintf(w, "\nMCP Form Filler - turns PDF and scanned forms into a guided conversation\n\n")
	pflag.PrintDefaults()
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintf(w, "  %s --dir=/srv/forms --out=/srv/filled\n", name)
	fmt.Fprintf(w, "  %s --mode=server --host=0.0.0.0 --port=8081\n", name)
	fmt.Fprintf(w, "  %s --config=formfill.yaml\n", name)
	fmt.Fprintln(w, "\nEvery option can also be set as MCP_FORM_<OPTION>, e.g. MCP_FORM_SESSIONTTL=1h or MCP_FORM_LLM_APIKEY.")
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-version", "--version", "-v":
			return true
		}
	}
	return false
}

// applyViper copies the merged viper view into cfg
func applyViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.DocumentDirectory = viper.GetString("dir")
	cfg.OutputDirectory = viper.GetString("out")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.SessionTTL = viper.GetDuration("sessionttl")
	cfg.MaxSessions = viper.GetInt("maxsessions")
	cfg.Workers = viper.GetInt("workers")
	cfg.Author = viper.GetString("author")
	cfg.LLM = LLMConfig{
		APIKey:  viper.GetString("llm.apikey"),
		BaseURL: viper.GetString("llm.baseurl"),
		Model:   viper.GetString("llm.model"),
	}
	cfg.OCR = OCRConfig{
		Tesseract: viper.GetString("ocr.tesseract"),
		Lang:      viper.GetString("ocr.lang"),
	}
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	switch {
	case c.Mode != ModeStdio && c.Mode != ModeServer:
		return errors.New("mode must be either 'stdio' or 'server'")
	case c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535):
		return errors.New("port must be between 1 and 65535")
	case c.DocumentDirectory == "":
		return errors.New("document directory cannot be empty")
	}
	// Missing directories are accepted so placeholder paths like ${workspaceRoot} still load
	if info, err := os.Stat(c.DocumentDirectory); err == nil && !info.IsDir() {
		return fmt.Errorf("document directory %s is not a directory", c.DocumentDirectory)
	}

	switch {
	case c.MaxFileSize <= 0:
		return errors.New("maximum file size must be positive")
	case c.SessionTTL <= 0:
		return errors.New("session ttl must be positive")
	case c.MaxSessions < 1:
		return errors.New("max sessions must be at least 1")
	case c.Workers < 1:
		return errors.New("workers must be at least 1")
	case c.LLM.APIKey != "" && c.LLM.Model == "":
		return errors.New("llm model is required when an api key is set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
}

// EnsureOutputDirectory creates the output directory when it does not exist yet
func (c *Config) EnsureOutputDirectory() error {
	if c.OutputDirectory == "" {
		return nil
	}
	if err := os.MkdirAll(c.OutputDirectory, DefaultDirPerm); err != nil {
		return fmt.Errorf("cannot create output directory %s: %w", c.OutputDirectory, err)
	}
	return nil
}

// Address is the host:port the SSE transport listens on
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsDebug() bool { return c.LogLevel == "debug" }

func (c *Config) IsServerMode() bool { return c.Mode == ModeServer }

func (c *Config) IsStdioMode() bool { return c.Mode == ModeStdio }

// String summarises the configuration for logs. The API key is never printed.
func (c *Config) String() string {
	llm := "off"
	if c.LLM.APIKey != "" {
		llm = c.LLM.Model
	}
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DocumentDirectory: %s, OutputDirectory: %s, "+
		"LogLevel: %s, MaxFileSize: %d, SessionTTL: %s, MaxSessions: %d, Workers: %d, LLM: %s}",
		c.Mode, c.Host, c.Port, c.DocumentDirectory, c.OutputDirectory,
		c.LogLevel, c.MaxFileSize, c.SessionTTL, c.MaxSessions, c.Workers, llm)
}
