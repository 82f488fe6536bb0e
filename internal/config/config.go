package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every tunable of the memory engine. Each backend gets its
// own sub-config following the ServiceEndpoint convention so remote/required/
// health-check behaviour is uniform across Qdrant, the graph store, Redis and
// Postgres.
type Config struct {
	Server        ServerConfig
	Qdrant        VectorStoreConfig
	Graph         GraphStoreConfig
	Redis         RedisConfig
	Postgres      PostgresConfig
	Embedding     EmbeddingConfig
	Consolidation ConsolidationConfig
	RepoIngest    RepoIngestConfig
	Monitoring    MonitoringConfig
	Services      ServicesConfig
}

// ServiceEndpoint represents a configurable service endpoint that can be local or remote.
type ServiceEndpoint struct {
	Host        string        `yaml:"host"`
	Port        string        `yaml:"port"`
	URL         string        `yaml:"url"`         // Full URL override (takes precedence over host:port)
	Enabled     bool          `yaml:"enabled"`      // Whether this service is used
	Required    bool          `yaml:"required"`     // Boot fails if unavailable
	Remote      bool          `yaml:"remote"`       // Skip compose start, only health check
	HealthPath  string        `yaml:"health_path"`  // HTTP health check path (e.g. "/health")
	HealthType  string        `yaml:"health_type"`  // "tcp", "http", "pgx", "redis", "grpc"
	Timeout     time.Duration `yaml:"timeout"`      // Health check timeout
	RetryCount  int           `yaml:"retry_count"`  // Number of health check retries
	ComposeFile string        `yaml:"compose_file"` // Docker compose file path
	ServiceName string        `yaml:"service_name"` // Docker compose service name
	Profile     string        `yaml:"profile"`      // Docker compose profile
}

// ResolvedURL builds the full URL from host:port or returns the URL field if set.
func (e *ServiceEndpoint) ResolvedURL() string {
	if e.URL != "" {
		return e.URL
	}
	if e.Host == "" {
		return ""
	}
	port := e.Port
	if port == "" {
		return e.Host
	}
	return e.Host + ":" + port
}

// ServicesConfig holds the health/lifecycle configuration for all backing services.
type ServicesConfig struct {
	Qdrant   ServiceEndpoint `yaml:"qdrant"`
	Graph    ServiceEndpoint `yaml:"graph"`
	Redis    ServiceEndpoint `yaml:"redis"`
	Postgres ServiceEndpoint `yaml:"postgres"`
}

type ServerConfig struct {
	Port           string
	APIKey         string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Host           string
	RequestLogging bool
	DebugEnabled   bool
}

// VectorStoreConfig configures the Qdrant-backed vector index.
type VectorStoreConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	Collection     string
	VectorSize     int
	DistanceMetric string
	Timeout        time.Duration
}

// GraphStoreConfig configures the Cypher-speaking property graph client.
type GraphStoreConfig struct {
	URI           string
	Username      string
	Password      string
	DatabaseName  string
	GraphName     string
	MaxPoolSize   int
	ConnTimeout   time.Duration
	QueryTimeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// PostgresConfig configures the Durable Registry (categories, schedules, audit trail).
type PostgresConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConnections int
	ConnTimeout    time.Duration
	PoolSize       int
}

// EmbeddingConfig configures the embedding provider and its deterministic fallback.
type EmbeddingConfig struct {
	ProviderURL string
	APIKey      string
	Model       string
	Dimension   int
	Timeout     time.Duration
}

// ConsolidationConfig tunes the consolidation engine's thresholds and bounds.
type ConsolidationConfig struct {
	SemanticSampleSize    int
	SemanticSimThreshold  float64
	FuzzyMatchThreshold   float64
	MaxFixpointIterations int
	MinContentLength      int
	InsightOutputDir      string
}

// RepoIngestConfig tunes the repository ingestion pipeline. The supported
// extension set itself is a fixed allow-list hardcoded in internal/repoingest
// (mirroring original_source's SUPPORTED_EXTENSIONS); ExcludeExts here is a
// supplementary deny-list layered on top of it, not the allow-list itself.
type RepoIngestConfig struct {
	CloneBackend  string // "go-git" or "cli"
	CloneDir      string
	MaxFileSizeKB int
	ExcludeDirs   []string
	ExcludeExts   []string
	VB6Exts       []string
	GitHubToken   string
}

type MonitoringConfig struct {
	Enabled        bool
	MetricsPath    string
	LogLevel       string
	TracingEnabled bool
	OTLPEndpoint   string
	Prometheus     PrometheusConfig
}

type PrometheusConfig struct {
	Enabled   bool
	Path      string
	Port      string
	Namespace string
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "7061"),
			APIKey:         getEnv("ULTRAMEMORY_API_KEY", ""),
			ReadTimeout:    getDurationEnv("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			RequestLogging: getBoolEnv("REQUEST_LOGGING", true),
			DebugEnabled:   getBoolEnv("DEBUG_ENABLED", false),
		},
		Qdrant: VectorStoreConfig{
			Host:           getEnv("QDRANT_HOST", "localhost"),
			Port:           getIntEnv("QDRANT_PORT", 6334),
			APIKey:         getEnv("QDRANT_API_KEY", ""),
			UseTLS:         getBoolEnv("QDRANT_TLS", false),
			Collection:     getEnv("QDRANT_COLLECTION", "memories"),
			VectorSize:     getIntEnv("EMBEDDING_DIMENSION", 1536),
			DistanceMetric: getEnv("QDRANT_DISTANCE", "Cosine"),
			Timeout:        getDurationEnv("QDRANT_TIMEOUT", 10*time.Second),
		},
		Graph: GraphStoreConfig{
			URI:          getEnv("GRAPH_URI", "bolt://localhost:7687"),
			Username:     getEnv("GRAPH_USER", "neo4j"),
			Password:     getEnv("GRAPH_PASSWORD", "password"),
			DatabaseName: getEnv("GRAPH_DATABASE", "neo4j"),
			GraphName:    getEnv("GRAPH_NAME", "memory_graph"),
			MaxPoolSize:  getIntEnv("GRAPH_MAX_POOL_SIZE", 50),
			ConnTimeout:  getDurationEnv("GRAPH_CONN_TIMEOUT", 10*time.Second),
			QueryTimeout: getDurationEnv("GRAPH_QUERY_TIMEOUT", 15*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
			Timeout:  getDurationEnv("REDIS_TIMEOUT", 5*time.Second),
		},
		Postgres: PostgresConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "ultramemory"),
			Password:       getEnv("DB_PASSWORD", "secret"),
			Name:           getEnv("DB_NAME", "ultramemory_db"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getIntEnv("DB_MAX_CONNECTIONS", 20),
			ConnTimeout:    getDurationEnv("DB_CONN_TIMEOUT", 10*time.Second),
			PoolSize:       getIntEnv("DB_POOL_SIZE", 10),
		},
		Embedding: EmbeddingConfig{
			ProviderURL: getEnv("EMBEDDING_PROVIDER_URL", ""),
			APIKey:      getEnv("EMBEDDING_API_KEY", ""),
			Model:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:   getIntEnv("EMBEDDING_DIMENSION", 1536),
			Timeout:     getDurationEnv("EMBEDDING_TIMEOUT", 15*time.Second),
		},
		Consolidation: ConsolidationConfig{
			SemanticSampleSize:    getIntEnv("CONSOLIDATION_SEMANTIC_SAMPLE_SIZE", 200),
			SemanticSimThreshold:  getFloatEnv("CONSOLIDATION_SEMANTIC_THRESHOLD", 0.85),
			FuzzyMatchThreshold:   getFloatEnv("CONSOLIDATION_FUZZY_THRESHOLD", 0.75),
			MaxFixpointIterations: getIntEnv("CONSOLIDATION_FIXPOINT_MAX_ITER", 5),
			MinContentLength:      getIntEnv("CONSOLIDATION_MIN_CONTENT_LENGTH", 10),
			InsightOutputDir:      getEnv("CONSOLIDATION_INSIGHT_DIR", "./insights"),
		},
		RepoIngest: RepoIngestConfig{
			CloneBackend:  getEnv("REPOINGEST_CLONE_BACKEND", "go-git"),
			CloneDir:      getEnv("REPOINGEST_CLONE_DIR", os.TempDir()),
			MaxFileSizeKB: getIntEnv("REPOINGEST_MAX_FILE_SIZE_KB", 1024),
			ExcludeDirs:   getEnvSlice("REPOINGEST_EXCLUDE_DIRS", []string{".git", "node_modules", "vendor", "dist", "build", "__pycache__"}),
			ExcludeExts:   getEnvSlice("REPOINGEST_EXCLUDE_EXTS", []string{".png", ".jpg", ".jpeg", ".gif", ".ico", ".woff", ".ttf", ".zip", ".exe", ".dll"}),
			VB6Exts:       getEnvSlice("REPOINGEST_VB6_EXTS", []string{".frm", ".dsr", ".dca", ".dsx"}),
			GitHubToken:   getEnv("REPOINGEST_GITHUB_TOKEN", ""),
		},
		Monitoring: MonitoringConfig{
			Enabled:        getBoolEnv("METRICS_ENABLED", true),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TracingEnabled: getBoolEnv("TRACING_ENABLED", false),
			OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
			Prometheus: PrometheusConfig{
				Enabled:   getBoolEnv("PROMETHEUS_ENABLED", true),
				Path:      getEnv("PROMETHEUS_PATH", "/metrics"),
				Port:      getEnv("PROMETHEUS_PORT", "9090"),
				Namespace: getEnv("PROMETHEUS_NAMESPACE", "ultramemory"),
			},
		},
		Services: DefaultServicesConfig(),
	}

	LoadServicesFromEnv(&cfg.Services)

	return cfg
}

// DefaultServicesConfig returns the default health/lifecycle configuration for
// the four backing services.
func DefaultServicesConfig() ServicesConfig {
	return ServicesConfig{
		Qdrant: ServiceEndpoint{
			Host:        "localhost",
			Port:        "6333",
			Enabled:     true,
			Required:    true,
			HealthPath:  "/healthz",
			HealthType:  "http",
			Timeout:     5 * time.Second,
			RetryCount:  6,
			ComposeFile: "docker-compose.yml",
			ServiceName: "qdrant",
			Profile:     "default",
		},
		Graph: ServiceEndpoint{
			Host:        "localhost",
			Port:        "7687",
			Enabled:     true,
			Required:    true,
			HealthType:  "tcp",
			Timeout:     5 * time.Second,
			RetryCount:  6,
			ComposeFile: "docker-compose.yml",
			ServiceName: "graphdb",
			Profile:     "default",
		},
		Redis: ServiceEndpoint{
			Host:        "localhost",
			Port:        "6379",
			Enabled:     true,
			Required:    true,
			HealthType:  "redis",
			Timeout:     5 * time.Second,
			RetryCount:  6,
			ComposeFile: "docker-compose.yml",
			ServiceName: "redis",
			Profile:     "default",
		},
		Postgres: ServiceEndpoint{
			Host:        "localhost",
			Port:        "5432",
			Enabled:     true,
			Required:    true,
			HealthType:  "pgx",
			Timeout:     10 * time.Second,
			RetryCount:  6,
			ComposeFile: "docker-compose.yml",
			ServiceName: "postgres",
			Profile:     "default",
		},
	}
}

// LoadServicesFromEnv applies environment variable overrides to the services config.
// Environment variables follow the pattern: SVC_<SERVICE>_<FIELD>
// e.g. SVC_QDRANT_HOST, SVC_REDIS_REMOTE, SVC_POSTGRES_PORT
func LoadServicesFromEnv(cfg *ServicesConfig) {
	loadServiceEndpointFromEnv("SVC_QDRANT", &cfg.Qdrant)
	loadServiceEndpointFromEnv("SVC_GRAPH", &cfg.Graph)
	loadServiceEndpointFromEnv("SVC_REDIS", &cfg.Redis)
	loadServiceEndpointFromEnv("SVC_POSTGRES", &cfg.Postgres)
}

func loadServiceEndpointFromEnv(prefix string, ep *ServiceEndpoint) {
	if v := os.Getenv(prefix + "_HOST"); v != "" {
		ep.Host = v
	}
	if v := os.Getenv(prefix + "_PORT"); v != "" {
		ep.Port = v
	}
	if v := os.Getenv(prefix + "_URL"); v != "" {
		ep.URL = v
	}
	if v := os.Getenv(prefix + "_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			ep.Enabled = b
		}
	}
	if v := os.Getenv(prefix + "_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			ep.Required = b
		}
	}
	if v := os.Getenv(prefix + "_REMOTE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			ep.Remote = b
		}
	}
	if v := os.Getenv(prefix + "_HEALTH_PATH"); v != "" {
		ep.HealthPath = v
	}
	if v := os.Getenv(prefix + "_HEALTH_TYPE"); v != "" {
		ep.HealthType = v
	}
	if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			ep.Timeout = d
		}
	}
	if v := os.Getenv(prefix + "_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			ep.RetryCount = n
		}
	}
}

// AllEndpoints returns all service endpoints as a name->endpoint map.
func (s *ServicesConfig) AllEndpoints() map[string]ServiceEndpoint {
	return map[string]ServiceEndpoint{
		"qdrant":   s.Qdrant,
		"graph":    s.Graph,
		"redis":    s.Redis,
		"postgres": s.Postgres,
	}
}

// RequiredEndpoints returns only the enabled and required service endpoints.
func (s *ServicesConfig) RequiredEndpoints() map[string]ServiceEndpoint {
	all := s.AllEndpoints()
	required := make(map[string]ServiceEndpoint)
	for name, ep := range all {
		if ep.Enabled && ep.Required {
			required[name] = ep
		}
	}
	return required
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
