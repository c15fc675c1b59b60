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
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/neighbor/base/log"
	"github.com/gorse-io/neighbor/config"
	"github.com/gorse-io/neighbor/recommend"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const (
	HealthPath      = "/health"
	RequestIDHeader = "X-Request-ID"
	APIKeyHeader    = "X-API-Key"
)

// Recommendation is the list of recommended items for a user.
type Recommendation struct {
	UserId uint32
	Items  []uint32
}

// RecommendationRequest is the body of POST /recommendations.
type RecommendationRequest struct {
	UserId *uint32 `json:"user_id"`
}

// Stats describes the rating matrix.
type Stats struct {
	Users         int
	Items         int
	Ratings       int
	CapacityUsers int
	CapacityItems int
}

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config      *config.Config
	Recommender *recommend.Recommender
	WebService  *restful.WebService

	cache   *ttlcache.Cache[uint32, []uint32]
	limiter *ratelimit.Bucket
}

// NewRestServer creates a REST-ful API server. The result cache and the rate limiter are
// enabled by the configuration.
func NewRestServer(cfg *config.Config, recommender *recommend.Recommender) *RestServer {
	s := &RestServer{
		Config:      cfg,
		Recommender: recommender,
		WebService:  new(restful.WebService),
	}
	if cfg.Recommend.CacheSize > 0 {
		s.cache = ttlcache.New(
			ttlcache.WithTTL[uint32, []uint32](cfg.Recommend.CacheTTL),
			ttlcache.WithCapacity[uint32, []uint32](uint64(cfg.Recommend.CacheSize)),
			ttlcache.WithDisableTouchOnHit[uint32, []uint32](),
		)
	}
	if cfg.Server.RateLimit > 0 {
		capacity := int64(math.Max(1, math.Ceil(cfg.Server.RateLimit)))
		s.limiter = ratelimit.NewBucketWithRate(cfg.Server.RateLimit, capacity)
	}
	return s
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter(RequestIDHeader)
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.AddHeader(RequestIDHeader, requestId)
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode())).Inc()
	if req.Request.URL.Path != HealthPath {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("used_time", time.Since(start)))
	}
}

// RateLimitFilter rejects requests beyond the configured rate.
func (s *RestServer) RateLimitFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.limiter != nil && req.Request.URL.Path != HealthPath && s.limiter.TakeAvailable(1) == 0 {
		TooManyRequests(resp, errors.New("rate limit exceeded"))
		return
	}
	chain.ProcessFilter(req, resp)
}

// AuthFilter checks the API key if one is configured.
func (s *RestServer) AuthFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.Config.Server.APIKey == "" || req.HeaderParameter(APIKeyHeader) == s.Config.Server.APIKey {
		chain.ProcessFilter(req, resp)
		return
	}
	log.ResponseLogger(resp).Error("unauthorized", zap.String("path", req.Request.URL.Path))
	resp.Header().Set("Access-Control-Allow-Origin", "*")
	if err := resp.WriteError(http.StatusUnauthorized, errors.Unauthorizedf("api key")); err != nil {
		log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/")
	ws.Filter(otelrestful.OTelFilter("gorse-neighbor"))
	ws.Filter(LogFilter)
	ws.Filter(s.RateLimitFilter)

	ws.Route(ws.GET(HealthPath).To(s.health).
		Doc("Liveness check.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Produces("text/plain").
		Returns(http.StatusOK, "OK", ""))
	ws.Route(ws.POST("/recommendations").To(s.postRecommendations).
		Doc("Recommend items for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Filter(s.AuthFilter).
		Param(ws.HeaderParameter(APIKeyHeader, "secret key for RESTful API")).
		Reads(RecommendationRequest{}).
		Returns(http.StatusOK, "OK", []uint32{}).
		Returns(http.StatusNoContent, "no recommendation", nil).
		Returns(http.StatusNotFound, "unknown user", nil))
	ws.Route(ws.GET("/api/recommend/{user-id}").To(s.getRecommend).
		Doc("Recommend items for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Filter(s.AuthFilter).
		Param(ws.HeaderParameter(APIKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned items, 0 returns all").DataType("integer")).
		Returns(http.StatusOK, "OK", Recommendation{}).
		Returns(http.StatusNoContent, "no recommendation", nil).
		Returns(http.StatusNotFound, "unknown user", nil).
		Writes(Recommendation{}))
	ws.Route(ws.GET("/api/neighbor/{user-id}").To(s.getNeighbor).
		Doc("Get the nearest neighbor of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Filter(s.AuthFilter).
		Param(ws.HeaderParameter(APIKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Returns(http.StatusOK, "OK", recommend.Neighbor{}).
		Returns(http.StatusNoContent, "no other user", nil).
		Returns(http.StatusNotFound, "unknown user", nil).
		Writes(recommend.Neighbor{}))
	ws.Route(ws.GET("/api/stats").To(s.getStats).
		Doc("Get statistics of the rating matrix.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"stats"}).
		Filter(s.AuthFilter).
		Param(ws.HeaderParameter(APIKeyHeader, "secret key for RESTful API")).
		Writes(Stats{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	if valueString == "" {
		return fallback, nil
	}
	value, err = strconv.Atoi(valueString)
	if err != nil {
		return 0, errors.NotValidf("%s=%s", name, valueString)
	}
	return value, nil
}

func parseUserId(request *restful.Request) (uint32, error) {
	text := request.PathParameter("user-id")
	userId, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, errors.NotValidf("user id %q", text)
	}
	return uint32(userId), nil
}

func (s *RestServer) health(_ *restful.Request, response *restful.Response) {
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	Text(response, "OK")
}

func (s *RestServer) postRecommendations(request *restful.Request, response *restful.Response) {
	var body RecommendationRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	if body.UserId == nil {
		BadRequest(response, errors.NotValidf("missing user_id"))
		return
	}
	items, err := s.Recommend(*body.UserId, 0)
	if err != nil {
		s.writeRecommendError(response, err)
		return
	}
	Ok(response, items)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	userId, err := parseUserId(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if n < 0 {
		BadRequest(response, errors.NotValidf("n=%d", n))
		return
	}
	items, err := s.Recommend(userId, n)
	if err != nil {
		s.writeRecommendError(response, err)
		return
	}
	Ok(response, Recommendation{UserId: userId, Items: items})
}

func (s *RestServer) getNeighbor(request *restful.Request, response *restful.Response) {
	userId, err := parseUserId(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	start := time.Now()
	neighbor, err := s.Recommender.Neighbor(userId)
	GetNeighborSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeRecommendError(response, err)
		return
	}
	Ok(response, neighbor)
}

func (s *RestServer) getStats(_ *restful.Request, response *restful.Response) {
	m := s.Recommender.Matrix()
	capacityUsers, capacityItems := m.Shape()
	Ok(response, Stats{
		Users:         m.CountUsers(),
		Items:         m.CountItems(),
		Ratings:       m.CountRatings(),
		CapacityUsers: capacityUsers,
		CapacityItems: capacityItems,
	})
}

// Recommend returns at most n items for a user, or all items if n is 0. Full lists are
// cached per user.
func (s *RestServer) Recommend(userId uint32, n int) ([]uint32, error) {
	start := time.Now()
	defer func() {
		GetRecommendSeconds.Observe(time.Since(start).Seconds())
	}()
	if s.cache == nil {
		return s.Recommender.RecommendN(userId, n)
	}
	var items []uint32
	if item := s.cache.Get(userId); item != nil {
		RecommendCacheHitsTotal.Inc()
		items = item.Value()
	} else {
		RecommendCacheMissesTotal.Inc()
		var err error
		if items, err = s.Recommender.Recommend(userId); err != nil {
			return nil, errors.Trace(err)
		}
		s.cache.Set(userId, items, ttlcache.DefaultTTL)
	}
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	return append([]uint32(nil), items...), nil
}

func (s *RestServer) writeRecommendError(response *restful.Response, err error) {
	switch {
	case errors.Is(err, errors.NotFound):
		PageNotFound(response, err)
	case errors.Is(err, recommend.ErrNoRecommendation):
		NoContent(response)
	default:
		InternalServerError(response, err)
	}
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// TooManyRequests returns a rate limit error.
func TooManyRequests(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusTooManyRequests, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// NoContent returns an empty response.
func NoContent(response *restful.Response) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	response.WriteHeader(http.StatusNoContent)
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

// Text returns a plain text.
func Text(response *restful.Response, content string) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := response.Write([]byte(content)); err != nil {
		log.ResponseLogger(response).Error("failed to write text", zap.Error(err))
	}
}
