// Package config loads the seeder's runtime configuration from the
// environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries every knob the seeder reads. Defaults match the compose
// deployment so a bare `seeder` run works inside the stack.
type Config struct {
	MongoURI          string `env:"HOST_MONGO_URI" envDefault:"mongodb://host.docker.internal:27017"`
	MongoDB           string `env:"HOST_MONGO_DB" envDefault:"catalog"`
	MoviesCollection  string `env:"MOVIES_COLLECTION" envDefault:"movies"`
	PeopleCollection  string `env:"PEOPLE_COLLECTION" envDefault:"people"`
	SeasonsCollection string `env:"SEASONS_COLLECTION" envDefault:"seasons"`

	PGHost     string `env:"PGHOST" envDefault:"postgres"`
	PGPort     int    `env:"PGPORT" envDefault:"5432"`
	PGUser     string `env:"PGUSER" envDefault:"movie_user"`
	PGPassword string `env:"PGPASSWORD" envDefault:"movie_password_2025"`
	PGDatabase string `env:"PGDATABASE" envDefault:"movie_recommendation_db"`

	ElasticsearchURL string `env:"ELASTICSEARCH_URL" envDefault:"http://elasticsearch:9200"`
	EnableES         bool   `env:"ENABLE_ES" envDefault:"true"`

	RedisURL    string `env:"REDIS_URL" envDefault:"redis://redis:6379"`
	EnableRedis bool   `env:"ENABLE_REDIS" envDefault:"true"`

	FullClean bool `env:"FULL_CLEAN" envDefault:"true"`

	BatchSize      int `env:"BATCH_SIZE" envDefault:"1000"`
	MaxWorkers     int `env:"MAX_WORKERS" envDefault:"4"`
	CommitInterval int `env:"COMMIT_INTERVAL" envDefault:"500"`

	ESBulkSize        int `env:"ES_BULK_SIZE" envDefault:"1000"`
	RedisPipelineSize int `env:"REDIS_PIPELINE_SIZE" envDefault:"1000"`

	TrendingMinRating float64 `env:"TRENDING_MIN_RATING" envDefault:"7.0"`
	TrendingMinYear   int64   `env:"TRENDING_MIN_YEAR" envDefault:"2024"`
	AlwaysCacheRecent bool    `env:"ALWAYS_CACHE_RECENT" envDefault:"true"`

	SkipPeople  bool `env:"SKIP_PEOPLE" envDefault:"false"`
	SkipMovies  bool `env:"SKIP_MOVIES" envDefault:"false"`
	SkipSeasons bool `env:"SKIP_SEASONS" envDefault:"false"`

	VerboseLogs bool   `env:"VERBOSE_LOGS" envDefault:"false"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}

// PostgresDSN assembles a connection string from the PG* variables.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase,
	)
}
