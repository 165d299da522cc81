package config

import (
	"time"
)

const (
	EnvDevelopment = "development"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageLocal = "local"
	StorageS3    = "s3"

	AuthSchemeSecret    = "secret"
	AuthSchemeSignature = "signature"

	RateStoreMemory = "memory"
	RateStoreTTL    = "ttl"

	KindProjects = "projects"
	KindServices = "services"
)

// Config is the root application configuration.
type Config struct {
	Environment string         `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	Server      ServerConfig   `yaml:"server"`
	Log         LogConfig      `yaml:"log"`
	Database    DatabaseConfig `yaml:"database"`
	Storage     StorageConfig  `yaml:"storage"`
	Security    SecurityConfig `yaml:"security"`
	Auth        AuthConfig     `yaml:"auth"`
	CORS        CORSConfig     `yaml:"cors"`
	Cache       CacheConfig    `yaml:"cache"`

	// Functions is a comma separated list of name=kind:collection routes,
	// e.g. "portfolio=projects:main,catalog=services:main".
	Functions string `yaml:"functions" env:"FOLIO_FUNCTIONS" env-default:"portfolio=projects:main,seadek=projects:seadek,catalog=services:main"`

	functions []Function
}

// Function is one /{name}/... route group bound to a resource kind and collection.
type Function struct {
	Name       string
	Kind       string
	Collection string
}

type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	Version         string        `yaml:"version"          env:"SERVER_VERSION"          env-default:"2.0.0"`
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed when
	// keying the login throttle. Empty means the connection address is used.
	TrustedProxies []string `yaml:"trusted_proxies" env:"SERVER_TRUSTED_PROXIES" env-separator:","`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}

// DatabaseConfig selects the metadata store. SQLite takes a file path as DSN.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"             env:"DATABASE_DRIVER"             env-default:"sqlite"`
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-default:"build/data/folio.db"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	AutoMigrate     bool          `yaml:"auto_migrate"       env:"DATABASE_AUTO_MIGRATE"       env-default:"true"`
}

type StorageConfig struct {
	Driver         string `yaml:"driver"           env:"STORAGE_DRIVER"           env-default:"local"`
	LocalDir       string `yaml:"local_dir"        env:"STORAGE_LOCAL_DIR"        env-default:"build/blobs"`
	PublicBaseURL  string `yaml:"public_base_url"  env:"STORAGE_PUBLIC_BASE_URL"  env-default:"http://localhost:8080/files"`
	ProjectsBucket string `yaml:"projects_bucket"  env:"STORAGE_PROJECTS_BUCKET"  env-default:"project-images"`
	ServicesBucket string `yaml:"services_bucket"  env:"STORAGE_SERVICES_BUCKET"  env-default:"service-images"`
	Region         string `yaml:"region"           env:"STORAGE_REGION"           env-default:"us-east-1"`
	Endpoint       string `yaml:"endpoint"         env:"STORAGE_ENDPOINT"`
	AccessKey      string `yaml:"access_key"       env:"STORAGE_ACCESS_KEY"`
	SecretKey      string `yaml:"secret_key"       env:"STORAGE_SECRET_KEY"`
	UsePathStyle   bool   `yaml:"use_path_style"   env:"STORAGE_USE_PATH_STYLE"   env-default:"true"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"STORAGE_MAX_UPLOAD_BYTES" env-default:"10485760"`
	CacheControl   string `yaml:"cache_control"    env:"STORAGE_CACHE_CONTROL"    env-default:"max-age=3600"`
	// CDNBaseURL replaces the S3 endpoint in public image URLs.
	CDNBaseURL string `yaml:"cdn_base_url" env:"STORAGE_CDN_BASE_URL"`
}

// SecurityConfig drives the per-route security middleware.
type SecurityConfig struct {
	AuthScheme      string        `yaml:"auth_scheme"      env:"SECURITY_AUTH_SCHEME"      env-default:"secret"`
	InternalSecret  string        `yaml:"internal_secret"  env:"INTERNAL_API_SECRET"`
	SignatureSecret string        `yaml:"signature_secret" env:"EDGE_FUNCTION_SECRET"`
	SignatureWindow time.Duration `yaml:"signature_window" env:"SECURITY_SIGNATURE_WINDOW" env-default:"5m"`
	RateLimitStore  string        `yaml:"rate_limit_store" env:"SECURITY_RATE_LIMIT_STORE" env-default:"ttl"`
	PublicWindow    time.Duration `yaml:"public_window"    env:"SECURITY_PUBLIC_WINDOW"    env-default:"60s"`
	PublicMax       int           `yaml:"public_max"       env:"SECURITY_PUBLIC_MAX"       env-default:"100"`
	ProtectedWindow time.Duration `yaml:"protected_window" env:"SECURITY_PROTECTED_WINDOW" env-default:"60s"`
	ProtectedMax    int           `yaml:"protected_max"    env:"SECURITY_PROTECTED_MAX"    env-default:"30"`
}

// AuthConfig holds the admin session gate settings.
type AuthConfig struct {
	AdminPassword     string        `yaml:"admin_password"      env:"ADMIN_PASSWORD"`
	AdminPasswordHash string        `yaml:"admin_password_hash" env:"ADMIN_PASSWORD_HASH"`
	SessionSecret     string        `yaml:"session_secret"      env:"SESSION_SECRET"`
	SessionTTL        time.Duration `yaml:"session_ttl"         env:"SESSION_TTL"         env-default:"30m"`
	LoginPerMinute    int           `yaml:"login_per_minute"    env:"AUTH_LOGIN_PER_MINUTE" env-default:"10"`
	LoginBurst        int           `yaml:"login_burst"         env:"AUTH_LOGIN_BURST"      env-default:"5"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"   env:"ALLOWED_ORIGINS"        env-default:"http://localhost:3000" env-separator:","`
	AllowCredentials bool     `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
}

type CacheConfig struct {
	RecordTTL time.Duration `yaml:"record_ttl" env:"CACHE_RECORD_TTL" env-default:"0s"`
}

// IsDevelopment reports whether upstream error details may reach clients.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// FunctionList returns the parsed function routes. Valid after Validate.
func (c *Config) FunctionList() []Function {
	return c.functions
}
