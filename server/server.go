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

package server

import (
	"context"
	"fmt"
	"net/http"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/config"
	"github.com/gorse-io/neighbor/recommend"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	apiDocsPath = "/apidocs/"
	apiSpecPath = "/apidocs.json"
	metricsPath = "/metrics"
)

// Server serves recommendations over HTTP.
type Server struct {
	RestServer
	container    *restful.Container
	httpServer   *http.Server
	cacheRunning atomic.Bool
}

// NewServer creates a server over a recommender.
func NewServer(cfg *config.Config, recommender *recommend.Recommender) *Server {
	s := &Server{RestServer: *NewRestServer(cfg, recommender)}
	s.CreateWebService()
	// register restful APIs
	s.container = restful.NewContainer()
	s.container.Add(s.WebService)
	// register swagger UI
	specConfig := restfulspec.Config{
		WebServices: s.container.RegisteredWebServices(),
		APIPath:     apiSpecPath,
	}
	s.container.Add(restfulspec.NewOpenAPIService(specConfig))
	s.container.Handle(apiDocsPath, v5emb.New("gorse-neighbor", apiSpecPath, apiDocsPath))
	// register prometheus
	s.container.Handle(metricsPath, promhttp.Handler())
	// recover from panics in handlers
	s.container.DoNotRecover(false)
	s.container.RecoverHandler(func(reason interface{}, w http.ResponseWriter) {
		log.Logger().Error("panic in handler", zap.Any("reason", reason))
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.container,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.container
}

// Serve starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Serve() error {
	if s.cache != nil && s.cacheRunning.CompareAndSwap(false, true) {
		go s.cache.Start()
	}
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s", s.httpServer.Addr)),
		zap.Int("jobs", s.Config.Recommend.Jobs),
		zap.Int("cache_size", s.Config.Recommend.CacheSize),
		zap.Float64("rate_limit", s.Config.Server.RateLimit))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cache != nil && s.cacheRunning.CompareAndSwap(true, false) {
		s.cache.Stop()
	}
	return errors.Trace(s.httpServer.Shutdown(ctx))
}
