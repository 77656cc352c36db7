package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Pipeline parameters
	TimeResolution    time.Duration // width of one hour bucket
	LookbackWindow    int           // rolling window length, hours
	SequenceLookback  int           // sequence window length, hours
	ForwardFillLimit  int           // max hours a value may be carried forward
	FuzzyThreshold    float64       // 0-100 similarity cutoff for fuzzy flags
	FuzzyMatching     bool          // fuzzy keyword matching instead of exact
	ClipLowerPercent  float64       // lower winsorization percentile
	ClipUpperPercent  float64       // upper winsorization percentile
	RateOfChangeLag   int           // lag for rate-of-change features, hours
	HigherMoments     bool          // also emit _skew/_kurtosis columns
	DropUnknownNames  bool          // drop unmapped raw names (else pass through)
	PipelineWorkers   int           // 0 lets pargo pick
	VocabularyPath    string        // YAML vocabulary override
	FeatureCacheTTL   time.Duration // online feature cache TTL
	ObservationsTopic string
	FeatureRowsTopic  string
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "maai"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "maai123"),
		PostgresDB:       getEnv("POSTGRES_DB", "maai"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "maai-featurizer"),

		TimeResolution:    getDuration("TIME_RESOLUTION", time.Hour),
		LookbackWindow:    getIntEnv("LOOKBACK_WINDOW_HOURS", 12),
		SequenceLookback:  getIntEnv("SEQUENCE_LOOKBACK_HOURS", 12),
		ForwardFillLimit:  getIntEnv("FORWARD_FILL_LIMIT_HOURS", 24),
		FuzzyThreshold:    getFloatEnv("FUZZY_MATCH_THRESHOLD", 80),
		FuzzyMatching:     getBoolEnv("FUZZY_MATCHING", false),
		ClipLowerPercent:  getFloatEnv("CLIP_LOWER_PERCENTILE", 1),
		ClipUpperPercent:  getFloatEnv("CLIP_UPPER_PERCENTILE", 99),
		RateOfChangeLag:   getIntEnv("RATE_OF_CHANGE_LAG_HOURS", 6),
		HigherMoments:     getBoolEnv("ROLLING_HIGHER_MOMENTS", false),
		DropUnknownNames:  getBoolEnv("DROP_UNKNOWN_NAMES", true),
		PipelineWorkers:   getIntEnv("PIPELINE_WORKERS", 0),
		VocabularyPath:    getEnv("VOCABULARY_PATH", ""),
		FeatureCacheTTL:   getDuration("FEATURE_CACHE_TTL", 5*time.Minute),
		ObservationsTopic: getEnv("OBSERVATIONS_TOPIC", "raw-observations"),
		FeatureRowsTopic:  getEnv("FEATURE_ROWS_TOPIC", "feature-rows"),
	}
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

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
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

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
