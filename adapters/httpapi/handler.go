// Package httpapi provides the HTTP surface of the gateway: the proxied
// messages endpoint, the usage read API, health and metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/llmgate/llmgate/adapters/metrics"
	"github.com/llmgate/llmgate/app"
	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/domain/pricing"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/ports"
)

// maxBodyBytes bounds an inbound request body.
const maxBodyBytes = 10 << 20 // 10MB

// Handler serves the gateway HTTP API.
type Handler struct {
	service     *app.GatewayService
	auth        *app.Authenticator
	usage       ports.UsageStore
	clock       ports.Clock
	metrics     *metrics.Collector
	log         zerolog.Logger
	relay       *relay
	authHeaders []string
}

// HandlerDeps contains dependencies for Handler.
type HandlerDeps struct {
	Service *app.GatewayService
	Auth    *app.Authenticator
	Usage   ports.UsageStore
	Clock   ports.Clock
	Metrics *metrics.Collector
	Log     zerolog.Logger

	// KeepaliveInterval overrides the default 25s keepalive cadence.
	KeepaliveInterval time.Duration

	// AuthHeaders lists extra headers checked for the gateway token after
	// Authorization and x-api-key.
	AuthHeaders []string
}

// NewHandler creates the gateway HTTP handler.
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		service:     deps.Service,
		auth:        deps.Auth,
		usage:       deps.Usage,
		clock:       deps.Clock,
		metrics:     deps.Metrics,
		log:         deps.Log,
		authHeaders: deps.AuthHeaders,
	}
	h.relay = newRelay(deps.Service, deps.Metrics, deps.Log, deps.KeepaliveInterval)
	return h
}

// Router builds the chi router. A streaming proxy cannot carry a global
// request timeout middleware; deadlines live on the upstream calls.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/messages", h.handleMessages)
	r.Get("/v1/usage", h.handleUsage)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	start := h.clock.Now()
	if h.metrics != nil {
		h.metrics.RequestsInFlight.Inc()
		defer h.metrics.RequestsInFlight.Dec()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read request body")
		e := gateway.ErrInvalidBody
		h.writeError(w, &e)
		return
	}
	if !gjson.ValidBytes(body) {
		e := gateway.ErrInvalidBody
		h.writeError(w, &e)
		return
	}

	req := gateway.Request{
		Token:           h.extractToken(r),
		Model:           gjson.GetBytes(body, "model").String(),
		Stream:          gjson.GetBytes(body, "stream").Bool(),
		Body:            body,
		ProviderVersion: r.Header.Get("anthropic-version"),
		BetaFeatures:    r.Header.Get("anthropic-beta"),
		RemoteIP:        r.RemoteAddr,
		UserAgent:       r.UserAgent(),
		TraceID:         middleware.GetReqID(r.Context()),
	}

	adm := h.service.Admit(r.Context(), req)
	if adm.Error != nil {
		h.countRejection(req, adm.Error, adm.Principal)
		h.writeError(w, adm.Error)
		return
	}

	if req.Stream {
		h.relay.serve(w, r, req, adm.Principal)
		h.observe(req, adm.Principal, "200", start, true)
		return
	}

	result := h.service.Forwarded(r.Context(), req, adm.Principal)
	if result.Error != nil {
		h.observe(req, adm.Principal, fmt.Sprint(result.Error.Status), start, false)
		h.writeError(w, result.Error)
		return
	}

	h.observe(req, adm.Principal, fmt.Sprint(result.Response.Status), start, false)
	countUsage(h.metrics, req.Model, result.Response.Usage)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Response.Status)
	if _, err := w.Write(result.Response.Body); err != nil {
		h.log.Debug().Err(err).Msg("failed to write response body")
	}
}

// usageResponse is the read-API payload.
type usageResponse struct {
	Summary summaryJSON  `json:"summary"`
	Recent  []recordJSON `json:"recent"`
}

type summaryJSON struct {
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	RequestCount     int64     `json:"request_count"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	CacheCreation    int64     `json:"cache_creation_tokens"`
	CacheRead        int64     `json:"cache_read_tokens"`
	CostMicrodollars int64     `json:"cost_microdollars"`
	Credits          int64     `json:"credits"`
	ErrorCount       int64     `json:"error_count"`
}

type recordJSON struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	InputTokens      int64     `json:"input_tokens"`
	OutputTokens     int64     `json:"output_tokens"`
	CostMicrodollars int64     `json:"cost_microdollars"`
	Credits          int64     `json:"credits"`
	RequestID        string    `json:"request_id,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	token := h.extractToken(r)
	if token == "" {
		e := gateway.ErrMissingToken
		h.writeError(w, &e)
		return
	}

	p, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			e := gateway.ErrInvalidToken
			h.writeError(w, &e)
			return
		}
		h.log.Error().Err(err).Msg("usage auth failed")
		h.writeError(w, &gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Internal error"})
		return
	}

	now := h.clock.Now()
	monthStart := principal.MonthStart(now)

	summary, err := h.usage.Summary(r.Context(), p.UserID, monthStart, now)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("usage summary failed")
		h.writeError(w, &gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Internal error"})
		return
	}
	recent, err := h.usage.Recent(r.Context(), p.UserID, 50)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", p.UserID).Msg("usage recent failed")
		h.writeError(w, &gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Internal error"})
		return
	}

	resp := usageResponse{
		Summary: summaryJSON{
			PeriodStart:      summary.PeriodStart,
			PeriodEnd:        summary.PeriodEnd,
			RequestCount:     summary.RequestCount,
			InputTokens:      summary.InputTokens,
			OutputTokens:     summary.OutputTokens,
			CacheCreation:    summary.CacheCreation,
			CacheRead:        summary.CacheRead,
			CostMicrodollars: summary.CostMicrodollars,
			Credits:          summary.Credits,
			ErrorCount:       summary.ErrorCount,
		},
		Recent: make([]recordJSON, 0, len(recent)),
	}
	for _, rec := range recent {
		resp.Recent = append(resp.Recent, recordJSON{
			ID:               rec.ID,
			Model:            rec.Model,
			InputTokens:      rec.InputTokens,
			OutputTokens:     rec.OutputTokens,
			CostMicrodollars: rec.CostMicrodollars,
			Credits:          rec.Credits,
			RequestID:        rec.RequestID,
			DurationMs:       rec.DurationMs,
			Error:            rec.Error,
			Timestamp:        rec.Timestamp,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// extractToken pulls the gateway token from Authorization: Bearer, the
// x-api-key header, then any extra configured headers. Provider SDKs use
// one of the first two.
func (h *Handler) extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	for _, name := range h.authHeaders {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) writeError(w http.ResponseWriter, e *gateway.ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprint(e.RetryAfter))
	}
	w.WriteHeader(e.Status)
	w.Write(e.Envelope())
}

func (h *Handler) countRejection(req gateway.Request, e *gateway.ErrorResponse, p principal.Principal) {
	if h.metrics == nil {
		return
	}
	switch e.Type {
	case "authentication_error":
		h.metrics.AuthFailures.WithLabelValues(e.Message).Inc()
	case "rate_limit_error":
		h.metrics.QuotaRejections.WithLabelValues(e.Message, p.Plan).Inc()
	}
	h.metrics.RequestsTotal.WithLabelValues(req.Model, fmt.Sprint(e.Status), p.Plan).Inc()
}

// countUsage adds final token counts and metered cost to the usage
// counters. Called once per completed request, buffered or streamed.
func countUsage(m *metrics.Collector, model string, u gateway.TokenUsage) {
	if m == nil || u.Total() == 0 {
		return
	}
	for kind, n := range map[string]int64{
		"input":          u.InputTokens,
		"output":         u.OutputTokens,
		"cache_creation": u.CacheCreationTokens,
		"cache_read":     u.CacheReadTokens,
	} {
		if n > 0 {
			m.TokensTotal.WithLabelValues(model, kind).Add(float64(n))
		}
	}
	m.CostMicrodollars.WithLabelValues(model).Add(float64(pricing.Cost(model, u)))
}

func (h *Handler) observe(req gateway.Request, p principal.Principal, status string, start time.Time, streaming bool) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(req.Model, status, p.Plan).Inc()
	label := "false"
	if streaming {
		label = "true"
	}
	h.metrics.StreamDuration.WithLabelValues(req.Model, label).Observe(h.clock.Now().Sub(start).Seconds())
}
