package app

import (
	"time"

	"github.com/fnaplatform/fna-backend/internal/platform/envutil"
	"github.com/fnaplatform/fna-backend/internal/services"
)

type Config struct {
	Port string

	VectorProvider     string
	IVFLists           int
	IVFProbes          int
	IVFTrainThreshold  int
	WarmIndexOnStartup bool

	SentimentCacheSize int
	SentimentCacheTTL  time.Duration
	EmbeddingCacheSize int

	Lifecycle services.LifecycleConfig
	Batch     services.BatchConfig
}

func LoadConfig() Config {
	return Config{
		Port: envutil.Str("PORT", "8080"),

		VectorProvider:     envutil.Str("VECTOR_PROVIDER", "linear"),
		IVFLists:           envutil.Int("VECTOR_IVF_LISTS", 100),
		IVFProbes:          envutil.Int("VECTOR_IVF_PROBES", 8),
		IVFTrainThreshold:  envutil.Int("VECTOR_IVF_TRAIN_THRESHOLD", 1000),
		WarmIndexOnStartup: envutil.Bool("VECTOR_WARM_ON_STARTUP", true),

		SentimentCacheSize: envutil.Int("SENTIMENT_CACHE_SIZE", 1000),
		SentimentCacheTTL:  envutil.DurationSeconds("SENTIMENT_CACHE_TTL", 24*time.Hour),
		EmbeddingCacheSize: envutil.Int("EMBEDDING_CACHE_SIZE", 10000),

		Lifecycle: services.LifecycleConfigFromEnv(),
		Batch:     services.BatchConfigFromEnv(),
	}
}
