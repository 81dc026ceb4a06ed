// File: internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/config"
	"github.com/xkilldash9x/serp-harvester/internal/harvest"
	"github.com/xkilldash9x/serp-harvester/internal/orchestrator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes caps the request payload.
const maxBodyBytes = 1 << 20

// Runner executes one scrape.
type Runner interface {
	Run(ctx context.Context, keyword string, maxPageNumber int) (*orchestrator.Result, error)
}

// ArticleRequest is a validated POST /article payload.
type ArticleRequest struct {
	Keyword    string
	PageNumber int
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handlers serves the HTTP API.
type Handlers struct {
	log        *zap.Logger
	runner     Runner
	harvest    config.HarvestConfig
	runTimeout time.Duration
}

// NewHandlers creates a Handlers instance.
func NewHandlers(cfg *config.Config, runner Runner, logger *zap.Logger) *Handlers {
	return &Handlers{
		log:        logger.Named("handlers"),
		runner:     runner,
		harvest:    cfg.Harvest,
		runTimeout: cfg.Server.RunTimeout,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)
	r.Post("/article", h.HandleArticle)
}

// HandleHealthCheck confirms the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleArticle validates the payload, runs a scrape and replies with the
// harvested articles.
func (h *Handlers) HandleArticle(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	log := h.log.With(zap.String("request_id", reqID))
	log.Info("Validating request.", zap.String("path", r.URL.Path))

	req, err := h.parseArticleRequest(w, r)
	if err != nil {
		log.Info("Validation failed.", zap.Error(err))
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Bad Request: " + err.Error(),
		})
		return
	}

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	log.Info("Scraping articles.", zap.String("keyword", req.Keyword), zap.Int("pageNumber", req.PageNumber))
	res, err := h.runner.Run(ctx, req.Keyword, req.PageNumber)
	if err != nil {
		log.Error("Scrape failed.", zap.Error(err))
		h.respond(w, http.StatusInternalServerError, ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Internal Server Error",
		})
		return
	}

	articles := res.Articles
	if articles == nil {
		articles = []harvest.Article{}
	}
	log.Info("Sending back the response.", zap.Int("articles", len(articles)), zap.String("run_id", res.RunID))
	h.respond(w, http.StatusOK, articles)
}

// parseArticleRequest applies the payload rules: keyword is a required
// non-empty string; pageNumber is an optional positive integer capped by
// harvest.max_pages; other fields are ignored.
func (h *Handlers) parseArticleRequest(w http.ResponseWriter, r *http.Request) (ArticleRequest, error) {
	var fields map[string]jsoniter.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields); err != nil {
		return ArticleRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}

	req := ArticleRequest{PageNumber: h.harvest.DefaultPages}

	raw, ok := fields["keyword"]
	if !ok {
		return req, errors.New(`"keyword" is required`)
	}
	if isNull(raw) || json.Unmarshal(raw, &req.Keyword) != nil {
		return req, errors.New(`"keyword" must be a string`)
	}
	if strings.TrimSpace(req.Keyword) == "" {
		return req, errors.New(`"keyword" is not allowed to be empty`)
	}

	if raw, ok := fields["pageNumber"]; ok {
		n, err := parsePageNumber(raw)
		if err != nil {
			return req, err
		}
		if h.harvest.MaxPages > 0 && n > h.harvest.MaxPages {
			return req, fmt.Errorf(`"pageNumber" must be less than or equal to %d`, h.harvest.MaxPages)
		}
		req.PageNumber = n
	}
	return req, nil
}

// parsePageNumber accepts JSON numbers and numeric strings.
func parsePageNumber(raw jsoniter.RawMessage) (int, error) {
	notNumber := errors.New(`"pageNumber" must be a number`)
	if isNull(raw) {
		return 0, notNumber
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, notNumber
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, notNumber
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, notNumber
	}
	if f != math.Trunc(f) {
		return 0, errors.New(`"pageNumber" must be an integer`)
	}
	if f < 1 {
		return 0, errors.New(`"pageNumber" must be a positive number`)
	}
	if f > math.MaxInt32 {
		return 0, errors.New(`"pageNumber" is too large`)
	}
	return int(f), nil
}

func isNull(raw jsoniter.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// respond writes data as JSON with the given status.
func (h *Handlers) respond(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
