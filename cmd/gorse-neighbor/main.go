// Copyright 2022 gorse Project Authors
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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/cmd/version"
	"github.com/gorse-io/neighbor/config"
	"github.com/gorse-io/neighbor/dataset"
	"github.com/gorse-io/neighbor/recommend"
	"github.com/gorse-io/neighbor/server"
	"github.com/gorse-io/neighbor/storage"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "gorse-neighbor",
	Short: "Single neighbor collaborative filtering recommender.",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		defer log.CloseLogger()

		// load config
		conf := loadConfig(cmd)
		shutdownTracing := setupTracing(conf)
		defer shutdownTracing()

		// load dataset
		ctx := context.Background()
		d, err := dataset.Load(ctx, conf.Dataset)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		m, err := d.Build()
		if err != nil {
			log.Logger().Fatal("failed to build rating matrix", zap.Error(err))
		}
		recommender, err := recommend.NewRecommender(m, conf.Recommend.Jobs)
		if err != nil {
			log.Logger().Fatal("failed to create recommender", zap.Error(err))
		}

		// stop server
		s := server.NewServer(conf, recommender)
		done := make(chan struct{})
		go func() {
			sigint := make(chan os.Signal, 1)
			signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
			<-sigint
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				log.Logger().Error("failed to shutdown server", zap.Error(err))
			}
			close(done)
		}()
		// start server
		if err = s.Serve(); err != nil {
			log.Logger().Fatal("failed to start server", zap.Error(err))
		}
		<-done
		log.Logger().Info("stop gorse-neighbor successfully")
	},
}

var importCommand = &cobra.Command{
	Use:   "import <database-url>",
	Short: "Import the configured dataset into a database.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		defer log.CloseLogger()
		conf := loadConfig(cmd)
		shutdownTracing := setupTracing(conf)
		defer shutdownTracing()
		tablePrefix, _ := cmd.Flags().GetString("table-prefix")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if err := importDataset(conf, args[0], tablePrefix, batchSize); err != nil {
			log.Logger().Fatal("failed to import dataset", zap.Error(err))
		}
	},
}

func loadConfig(cmd *cobra.Command) *config.Config {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	return conf
}

// setupTracing installs the global tracer provider used by the REST filter and the
// database drivers. The returned function flushes pending spans.
func setupTracing(conf *config.Config) func() {
	tp, err := conf.Tracing.NewTracerProvider()
	if err != nil {
		log.Logger().Fatal("failed to create trace provider", zap.Error(err))
	}
	otel.SetTracerProvider(tp)
	otel.SetErrorHandler(log.GetErrorHandler())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return func() {
		sdkProvider, ok := tp.(*tracesdk.TracerProvider)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sdkProvider.Shutdown(ctx); err != nil {
			log.Logger().Error("failed to shutdown trace provider", zap.Error(err))
		}
	}
}

func importDataset(conf *config.Config, databaseURL, tablePrefix string, batchSize int) error {
	ctx := context.Background()
	d, err := dataset.Load(ctx, conf.Dataset)
	if err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("connect database", zap.String("database", log.RedactDBURL(databaseURL)))
	target, err := storage.Open(databaseURL, tablePrefix)
	if err != nil {
		return errors.Trace(err)
	}
	defer target.Close()
	if err = target.Init(); err != nil {
		return errors.Trace(err)
	}
	bar := progressbar.Default(int64(len(d.Ratings)), "importing")
	defer bar.Close()
	return dataset.SaveDatabase(ctx, target, d, batchSize, func(n int) {
		_ = bar.Add(n)
	})
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().BoolP("version", "v", false, "gorse-neighbor version")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	importCommand.Flags().String("table-prefix", "", "prefix of the ratings table")
	importCommand.Flags().Int("batch-size", 1000, "number of ratings inserted in a batch")
	rootCommand.AddCommand(importCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
