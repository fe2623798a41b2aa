package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/retrieval-fusion/internal/adapters/report"
	"github.com/kirillkom/retrieval-fusion/internal/config"
	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

const maxRequestBytes = 1 << 20

type Router struct {
	retrieval ports.PassageRetrievalService
	inspector ports.PipelineInspector
	metrics   MetricsRecorder
	service   string
	logger    *slog.Logger

	apiKey          string
	rateLimitRPS    float64
	rateLimitBurst  int
	backpressureCfg backpressureConfig
}

// MetricsRecorder is the part of the metrics registry the router needs.
type MetricsRecorder interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
}

type RouterOption func(*Router)

func WithMetrics(m MetricsRecorder) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	retrieval ports.PassageRetrievalService,
	inspector ports.PipelineInspector,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		retrieval:      retrieval,
		inspector:      inspector,
		service:        cfg.ServiceName,
		logger:         slog.Default(),
		apiKey:         cfg.APIKey,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		backpressureCfg: backpressureConfig{
			maxInFlight: cfg.APIMaxInFlight,
			wait:        cfg.APIBackpressureWait,
		},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/retrieve", rt.retrieve)
	api.HandleFunc("POST /v1/debug/inspect", rt.inspect)

	var protected http.Handler = api
	protected = authMiddleware(protected, rt.apiKey)
	protected = backpressureMiddleware(protected, rt.backpressureCfg.maxInFlight, rt.backpressureCfg.wait)
	protected = rateLimitMiddleware(protected, rt.rateLimitRPS, rt.rateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", protected)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Question  string           `json:"question"`
	Overrides domain.Overrides `json:"overrides"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := rt.retrieval.Retrieve(r.Context(), req.Question, req.Overrides)
	if err != nil {
		rt.logger.Error("retrieve_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) inspect(w http.ResponseWriter, r *http.Request) {
	var req domain.InspectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rep, err := rt.inspector.Inspect(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = report.WriteText(w, rep)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("request body is required"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
