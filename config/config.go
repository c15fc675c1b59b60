// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	SourceMovieLens = "movielens"
	SourceCSV       = "csv"
	SourceDatabase  = "database"

	MovieLensURL  = "https://files.grouplens.org/datasets/movielens/ml-latest-small.zip"
	MovieLensName = "ml-latest-small"

	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlphttp"
	ExporterZipkin   = "zipkin"

	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// Config is the configuration for the recommender service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig is the configuration for the HTTP server.
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey       string        `mapstructure:"api_key"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"`
	DefaultN     int           `mapstructure:"default_n" validate:"gte=0"`
}

// DatasetConfig is the configuration for the rating source.
type DatasetConfig struct {
	Source      string `mapstructure:"source" validate:"oneof=movielens csv database"`
	URL         string `mapstructure:"url" validate:"required_if=Source movielens,omitempty,url"`
	Dir         string `mapstructure:"dir" validate:"required_if=Source csv"`
	Name        string `mapstructure:"name" validate:"required_if=Source movielens"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Source database"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// RecommendConfig is the configuration for recommendation.
type RecommendConfig struct {
	Jobs      int           `mapstructure:"jobs" validate:"gte=1"`
	CacheSize int           `mapstructure:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// TracingConfig is the configuration for OpenTelemetry tracing.
type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=otlp otlphttp zipkin"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint" validate:"required_if=EnableTracing true"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

func (tracing *TracingConfig) newExporter() (tracesdk.SpanExporter, error) {
	switch tracing.Exporter {
	case ExporterOTLP:
		return otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(tracing.CollectorEndpoint))
	case ExporterOTLPHTTP:
		return otlptracehttp.New(context.Background(),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(tracing.CollectorEndpoint))
	case ExporterZipkin:
		return zipkin.New(tracing.CollectorEndpoint)
	}
	return nil, errors.NotSupportedf("exporter %s", tracing.Exporter)
}

func (tracing *TracingConfig) newSampler() (tracesdk.Sampler, error) {
	switch tracing.Sampler {
	case SamplerAlways:
		return tracesdk.AlwaysSample(), nil
	case SamplerNever:
		return tracesdk.NeverSample(), nil
	case SamplerRatio:
		return tracesdk.TraceIDRatioBased(tracing.Ratio), nil
	}
	return nil, errors.NotSupportedf("sampler %s", tracing.Sampler)
}

// NewTracerProvider creates a tracer provider. Spans are dropped if tracing is disabled.
func (tracing *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !tracing.EnableTracing {
		return noop.NewTracerProvider(), nil
	}
	exporter, err := tracing.newExporter()
	if err != nil {
		return nil, errors.Trace(err)
	}
	sampler, err := tracing.newSampler()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(sampler)),
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewSchemaless(
			semconv.ServiceNameKey.String("gorse-neighbor"),
		)),
	), nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			DefaultN:     10,
		},
		Dataset: DatasetConfig{
			Source: SourceMovieLens,
			URL:    MovieLensURL,
			Name:   MovieLensName,
		},
		Recommend: RecommendConfig{
			Jobs:      runtime.NumCPU(),
			CacheSize: 1024,
			CacheTTL:  time.Minute,
		},
		Tracing: TracingConfig{
			Exporter: ExporterOTLP,
			Sampler:  SamplerAlways,
			Ratio:    1,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.read_timeout", defaultConfig.Server.ReadTimeout)
	viper.SetDefault("server.write_timeout", defaultConfig.Server.WriteTimeout)
	viper.SetDefault("server.rate_limit", defaultConfig.Server.RateLimit)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	// [dataset]
	viper.SetDefault("dataset.source", defaultConfig.Dataset.Source)
	viper.SetDefault("dataset.url", defaultConfig.Dataset.URL)
	viper.SetDefault("dataset.name", defaultConfig.Dataset.Name)
	// [recommend]
	viper.SetDefault("recommend.jobs", defaultConfig.Recommend.Jobs)
	viper.SetDefault("recommend.cache_size", defaultConfig.Recommend.CacheSize)
	viper.SetDefault("recommend.cache_ttl", defaultConfig.Recommend.CacheTTL)
	// [tracing]
	viper.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	viper.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	viper.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from a TOML file and environment variables. An
// empty path loads defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()

	// bind environment bindings
	bindings := []configBinding{
		{"server.host", "GORSE_NEIGHBOR_HOST"},
		{"server.port", "GORSE_NEIGHBOR_PORT"},
		{"server.api_key", "GORSE_NEIGHBOR_API_KEY"},
		{"server.rate_limit", "GORSE_NEIGHBOR_RATE_LIMIT"},
		{"dataset.source", "GORSE_NEIGHBOR_DATASET_SOURCE"},
		{"dataset.dir", "GORSE_NEIGHBOR_DATASET_DIR"},
		{"dataset.database_url", "GORSE_NEIGHBOR_DATABASE_URL"},
		{"dataset.table_prefix", "GORSE_NEIGHBOR_TABLE_PREFIX"},
		{"recommend.jobs", "GORSE_NEIGHBOR_JOBS"},
		{"tracing.enable_tracing", "GORSE_NEIGHBOR_ENABLE_TRACING"},
		{"tracing.collector_endpoint", "GORSE_NEIGHBOR_COLLECTOR_ENDPOINT"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	if path != "" {
		viper.SetConfigFile(path)
		if strings.HasSuffix(path, ".template") {
			viper.SetConfigType("toml")
		}
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
