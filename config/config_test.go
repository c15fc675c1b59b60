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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestUnmarshal(t *testing.T) {
	data, err := os.ReadFile("config.toml")
	assert.NoError(t, err)
	text := string(data)
	text = strings.Replace(text, "api_key = \"\"", "api_key = \"19260817\"", -1)
	viper.Reset()
	viper.SetConfigType("toml")
	err = viper.ReadConfig(strings.NewReader(text))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)

	// [server]
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "19260817", config.Server.APIKey)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, config.Server.WriteTimeout)
	assert.Zero(t, config.Server.RateLimit)
	assert.Equal(t, 10, config.Server.DefaultN)
	// [dataset]
	assert.Equal(t, SourceMovieLens, config.Dataset.Source)
	assert.Equal(t, MovieLensURL, config.Dataset.URL)
	assert.Equal(t, MovieLensName, config.Dataset.Name)
	assert.Empty(t, config.Dataset.Dir)
	assert.Empty(t, config.Dataset.DatabaseURL)
	// [recommend]
	assert.Equal(t, 4, config.Recommend.Jobs)
	assert.Equal(t, 1024, config.Recommend.CacheSize)
	assert.Equal(t, time.Minute, config.Recommend.CacheTTL)
	// [tracing]
	assert.False(t, config.Tracing.EnableTracing)
	assert.Equal(t, ExporterOTLP, config.Tracing.Exporter)
	assert.Empty(t, config.Tracing.CollectorEndpoint)
	assert.Equal(t, SamplerAlways, config.Tracing.Sampler)
	assert.Equal(t, 1.0, config.Tracing.Ratio)
	assert.NoError(t, config.Validate())
}

func TestSetDefault(t *testing.T) {
	viper.Reset()
	setDefault()
	var config Config
	err := viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("config.toml")
	assert.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 4, config.Recommend.Jobs)
	// defaults only
	config, err = LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
	// missing file
	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestBindEnv(t *testing.T) {
	t.Setenv("GORSE_NEIGHBOR_PORT", "9090")
	t.Setenv("GORSE_NEIGHBOR_DATASET_SOURCE", "database")
	t.Setenv("GORSE_NEIGHBOR_DATABASE_URL", "sqlite:///tmp/neighbor.db")
	t.Setenv("GORSE_NEIGHBOR_TABLE_PREFIX", "gorse_")
	t.Setenv("GORSE_NEIGHBOR_JOBS", "2")
	t.Setenv("GORSE_NEIGHBOR_ENABLE_TRACING", "true")
	t.Setenv("GORSE_NEIGHBOR_COLLECTOR_ENDPOINT", "localhost:4317")
	config, err := LoadConfig("config.toml")
	assert.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, SourceDatabase, config.Dataset.Source)
	assert.Equal(t, "sqlite:///tmp/neighbor.db", config.Dataset.DatabaseURL)
	assert.Equal(t, "gorse_", config.Dataset.TablePrefix)
	assert.Equal(t, 2, config.Recommend.Jobs)
	assert.True(t, config.Tracing.EnableTracing)
	assert.Equal(t, "localhost:4317", config.Tracing.CollectorEndpoint)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	assert.NoError(t, config.Validate())

	config = GetDefaultConfig()
	config.Dataset.Source = "redis"
	assert.True(t, errors.Is(config.Validate(), errors.NotValid))

	config = GetDefaultConfig()
	config.Dataset.Source = SourceDatabase
	err := config.Validate()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Contains(t, err.Error(), "database_url")

	config = GetDefaultConfig()
	config.Dataset.Source = SourceCSV
	assert.Error(t, config.Validate())
	config.Dataset.Dir = "/tmp/ml-latest-small"
	assert.NoError(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.Jobs = 0
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Server.Port = 70000
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Tracing.EnableTracing = true
	err = config.Validate()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.Contains(t, err.Error(), "collector_endpoint")
	config.Tracing.CollectorEndpoint = "localhost:4317"
	assert.NoError(t, config.Validate())
	config.Tracing.Exporter = "jaeger"
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Tracing.Sampler = SamplerRatio
	config.Tracing.Ratio = 1.5
	assert.Error(t, config.Validate())
}

func TestTracingConfig_NewTracerProvider(t *testing.T) {
	// disabled
	tracing := GetDefaultConfig().Tracing
	tp, err := tracing.NewTracerProvider()
	assert.NoError(t, err)
	assert.IsType(t, noop.TracerProvider{}, tp)

	// exporters are created without connecting to the collector
	for _, c := range []struct {
		exporter string
		endpoint string
		sampler  string
	}{
		{ExporterOTLP, "localhost:4317", SamplerAlways},
		{ExporterOTLPHTTP, "localhost:4318", SamplerNever},
		{ExporterZipkin, "http://localhost:9411/api/v2/spans", SamplerRatio},
	} {
		tracing = TracingConfig{
			EnableTracing:     true,
			Exporter:          c.exporter,
			CollectorEndpoint: c.endpoint,
			Sampler:           c.sampler,
			Ratio:             0.5,
		}
		tp, err = tracing.NewTracerProvider()
		assert.NoError(t, err, c.exporter)
		sdkProvider, ok := tp.(*tracesdk.TracerProvider)
		if assert.True(t, ok, c.exporter) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = sdkProvider.Shutdown(ctx)
			cancel()
		}
	}

	// unknown exporter and sampler
	tracing = TracingConfig{EnableTracing: true, Exporter: "jaeger", CollectorEndpoint: "localhost:14268", Sampler: SamplerAlways}
	_, err = tracing.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))
	tracing = TracingConfig{EnableTracing: true, Exporter: ExporterZipkin, CollectorEndpoint: "http://localhost:9411/api/v2/spans", Sampler: "sometimes"}
	_, err = tracing.NewTracerProvider()
	assert.True(t, errors.Is(err, errors.NotSupported))
}
