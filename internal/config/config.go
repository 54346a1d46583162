package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL     string        `yaml:"api_base_url"`    // Root URL of the CA REST API
	APICAFile      string        `yaml:"api_ca_file"`     // PEM bundle trusted when talking to the CA API over https
	RequestTimeout time.Duration `yaml:"request_timeout"` // Timeout of each CA API request
	ListenAddress  string        `yaml:"listen_address"`  // Address the console daemon listens on
	TLSCertFile    string        `yaml:"tls_cert_file"`   // Console TLS certificate; plain HTTP when empty
	TLSKeyFile     string        `yaml:"tls_key_file"`    // Console TLS private key
	TLSSelfSigned  bool          `yaml:"tls_self_signed"` // Generate the TLS pair when the files are missing
	ProductName    string        `yaml:"product_name"`    // Shown on the about page
	Contact        string        `yaml:"contact"`         // Shown on the contact page
	TokenSecret    string        `yaml:"token_secret"`    // HS256 key for console tokens; random per process when empty
	TokenTTL       time.Duration `yaml:"token_ttl"`       // Lifetime of tokens minted by the CLI
	StorageType    string        `yaml:"storage_type"`    // Journal storage: "memory" or "postgres"
	DBHost         string        `yaml:"db_host"`         // PostgreSQL host
	DBUser         string        `yaml:"db_user"`         // PostgreSQL user
	DBPassword     string        `yaml:"db_password"`     // PostgreSQL password
	DBName         string        `yaml:"db_name"`         // PostgreSQL database name
	DBPort         int           `yaml:"db_port"`         // PostgreSQL port
	DBSSLMode      string        `yaml:"db_sslmode"`      // PostgreSQL SSL mode
	DBCert         string        `yaml:"db_cert"`         // PostgreSQL client certificate file
	DBKey          string        `yaml:"db_key"`          // PostgreSQL client private key file
	DBRootCert     string        `yaml:"db_root_cert"`    // PostgreSQL root CA certificate file
	LogFormat      string        `yaml:"log_format"`      // "console" (development) or "json" (production)
	JournalLimit   int           `yaml:"journal_limit"`   // Default page size of GET /journal
}

const (
	defaultAPIBaseURL     = "http://localhost:8080"
	defaultAPICAFile      = ""
	defaultRequestTimeout = 10 * time.Second
	defaultListenAddress  = ":8081"
	defaultTLSCertFile    = ""
	defaultTLSKeyFile     = ""
	defaultProductName    = "muCA"
	defaultContact        = ""
	defaultTokenTTL       = 12 * time.Hour
	defaultStorageType    = "memory"
	defaultDBHost         = "localhost"
	defaultDBUser         = "caconsole"
	defaultDBPassword     = "password"
	defaultDBName         = "caconsole"
	defaultDBPort         = 5432
	defaultDBSSLMode      = "disable" // Default to disable SSL
	defaultLogFormat      = "console"
	defaultJournalLimit   = 50
)

const envPrefix = "CACONSOLE_"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		APIBaseURL:     defaultAPIBaseURL,
		APICAFile:      defaultAPICAFile,
		RequestTimeout: defaultRequestTimeout,
		ListenAddress:  defaultListenAddress,
		TLSCertFile:    defaultTLSCertFile,
		TLSKeyFile:     defaultTLSKeyFile,
		ProductName:    defaultProductName,
		Contact:        defaultContact,
		TokenTTL:       defaultTokenTTL,
		StorageType:    defaultStorageType,
		DBHost:         defaultDBHost,
		DBUser:         defaultDBUser,
		DBPassword:     defaultDBPassword,
		DBName:         defaultDBName,
		DBPort:         defaultDBPort,
		DBSSLMode:      defaultDBSSLMode,
		LogFormat:      defaultLogFormat,
		JournalLimit:   defaultJournalLimit,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty), then CACONSOLE_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse config file '%s': %w", path, err)
		}
	}

	cfg.APIBaseURL = getEnv(envPrefix+"API_BASE_URL", cfg.APIBaseURL)
	cfg.APICAFile = getEnv(envPrefix+"API_CA_FILE", cfg.APICAFile)
	cfg.RequestTimeout = getEnvAsDuration(envPrefix+"REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ListenAddress = getEnv(envPrefix+"LISTEN_ADDRESS", cfg.ListenAddress)
	cfg.TLSCertFile = getEnv(envPrefix+"TLS_CERT_FILE", cfg.TLSCertFile)
	cfg.TLSKeyFile = getEnv(envPrefix+"TLS_KEY_FILE", cfg.TLSKeyFile)
	cfg.TLSSelfSigned = getEnvAsBool(envPrefix+"TLS_SELF_SIGNED", cfg.TLSSelfSigned)
	cfg.ProductName = getEnv(envPrefix+"PRODUCT_NAME", cfg.ProductName)
	cfg.Contact = getEnv(envPrefix+"CONTACT", cfg.Contact)
	cfg.TokenSecret = getEnv(envPrefix+"TOKEN_SECRET", cfg.TokenSecret)
	cfg.TokenTTL = getEnvAsDuration(envPrefix+"TOKEN_TTL", cfg.TokenTTL)
	cfg.StorageType = getEnv(envPrefix+"STORAGE_TYPE", cfg.StorageType)
	cfg.DBHost = getEnv(envPrefix+"DB_HOST", cfg.DBHost)
	cfg.DBUser = getEnv(envPrefix+"DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv(envPrefix+"DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv(envPrefix+"DB_NAME", cfg.DBName)
	cfg.DBPort = getEnvAsInt(envPrefix+"DB_PORT", cfg.DBPort)
	cfg.DBSSLMode = getEnv(envPrefix+"DB_SSLMODE", cfg.DBSSLMode)
	cfg.DBCert = getEnv(envPrefix+"DB_CERT", cfg.DBCert)
	cfg.DBKey = getEnv(envPrefix+"DB_KEY", cfg.DBKey)
	cfg.DBRootCert = getEnv(envPrefix+"DB_ROOTCERT", cfg.DBRootCert)
	cfg.LogFormat = getEnv(envPrefix+"LOG_FORMAT", cfg.LogFormat)
	cfg.JournalLimit = getEnvAsInt(envPrefix+"JOURNAL_LIMIT", cfg.JournalLimit)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("api_base_url must be an http(s) URL, got %q", c.APIBaseURL))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout cannot be negative"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("tls_cert_file and tls_key_file must be set together"))
	}
	switch strings.ToLower(c.StorageType) {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage_type must be memory or postgres, got %q", c.StorageType))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s (%s), using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s (%s), using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s (%s), using default: %s", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
