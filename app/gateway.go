package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/llmgate/llmgate/domain/gateway"
	"github.com/llmgate/llmgate/domain/pricing"
	"github.com/llmgate/llmgate/domain/principal"
	"github.com/llmgate/llmgate/domain/usage"
	"github.com/llmgate/llmgate/ports"
)

// GatewayService handles proxied chat-completion requests end to end:
// authenticate, run the quota ledger, forward upstream, and meter the
// outcome. Streaming requests use Admit plus RecordOutcome; the transport
// layer owns the relay in between.
type GatewayService struct {
	auth      *Authenticator
	ledger    *LedgerService
	forwarder ports.Forwarder
	recorder  ports.UsageRecorder
	clock     ports.Clock
	idGen     ports.IDGenerator
	log       zerolog.Logger
	provider  string
}

// GatewayDeps contains dependencies for GatewayService.
type GatewayDeps struct {
	Auth      *Authenticator
	Ledger    *LedgerService
	Forwarder ports.Forwarder
	Recorder  ports.UsageRecorder
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Log       zerolog.Logger
}

// NewGatewayService creates a gateway service.
func NewGatewayService(deps GatewayDeps) *GatewayService {
	return &GatewayService{
		auth:      deps.Auth,
		ledger:    deps.Ledger,
		forwarder: deps.Forwarder,
		recorder:  deps.Recorder,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		log:       deps.Log,
		provider:  "anthropic",
	}
}

// Admission is the outcome of authentication plus the ledger check.
type Admission struct {
	Principal principal.Principal
	Error     *gateway.ErrorResponse
}

// Admit authenticates the token and runs the quota ledger. A rejected
// request never reaches upstream.
func (s *GatewayService) Admit(ctx context.Context, req gateway.Request) Admission {
	if req.Token == "" {
		e := gateway.ErrMissingToken
		return Admission{Error: &e}
	}

	p, err := s.auth.Authenticate(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			e := gateway.ErrInvalidToken
			return Admission{Error: &e}
		}
		s.log.Error().Err(err).Str("trace_id", req.TraceID).Msg("authentication failed")
		e := gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Internal error"}
		return Admission{Error: &e}
	}

	decision, err := s.ledger.Check(ctx, p)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", p.UserID).Str("trace_id", req.TraceID).Msg("ledger check failed")
		e := gateway.ErrorResponse{Status: 500, Type: "api_error", Message: "Internal error"}
		return Admission{Principal: p, Error: &e}
	}
	if !decision.Allowed {
		limits := decision.Limits
		e := gateway.ErrorResponse{
			Status:     429,
			Type:       "rate_limit_error",
			Message:    decision.Reason,
			RetryAfter: decision.RetryAfter,
			Limits:     &limits,
		}
		return Admission{Principal: p, Error: &e}
	}

	return Admission{Principal: p}
}

// HandleResult is the outcome of a buffered (non-streaming) request.
type HandleResult struct {
	Response gateway.Response
	Error    *gateway.ErrorResponse
}

// Handle processes a non-streaming request: admit, forward, meter.
// Exactly one usage record is produced once the request passes admission,
// on success and on failure alike.
func (s *GatewayService) Handle(ctx context.Context, req gateway.Request) HandleResult {
	adm := s.Admit(ctx, req)
	if adm.Error != nil {
		return HandleResult{Error: adm.Error}
	}
	return s.Forwarded(ctx, req, adm.Principal)
}

// Forwarded forwards an already-admitted request and meters the outcome.
func (s *GatewayService) Forwarded(ctx context.Context, req gateway.Request, p principal.Principal) HandleResult {
	start := s.clock.Now()
	resp, err := s.forwarder.Forward(ctx, req)
	durationMs := s.clock.Now().Sub(start).Milliseconds()

	if err != nil {
		e := classifyTransportError(err)
		s.RecordOutcome(p, req, gateway.TokenUsage{}, "", durationMs, e.Message)
		return HandleResult{Error: &e}
	}

	errMsg := ""
	if resp.Status < 200 || resp.Status >= 300 {
		errMsg = upstreamErrorMessage(resp.Body, resp.Status)
	}
	s.RecordOutcome(p, req, resp.Usage, resp.RequestID, durationMs, errMsg)

	return HandleResult{Response: resp}
}

// OpenStream opens a live upstream stream for an admitted request. The
// transport relay owns reading and metering the body.
func (s *GatewayService) OpenStream(ctx context.Context, req gateway.Request) (ports.StreamBody, error) {
	return s.forwarder.OpenStream(ctx, req)
}

// RecordOutcome prices the observed token usage and queues exactly one
// usage record. Failed requests carry whatever partial counts were seen.
func (s *GatewayService) RecordOutcome(p principal.Principal, req gateway.Request, u gateway.TokenUsage, requestID string, durationMs int64, errMsg string) {
	cost := pricing.Cost(req.Model, u)
	s.recorder.Record(usage.Record{
		ID:               s.idGen.New(),
		UserID:           p.UserID,
		Provider:         s.provider,
		Model:            req.Model,
		Endpoint:         "/v1/messages",
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		CacheCreation:    u.CacheCreationTokens,
		CacheRead:        u.CacheReadTokens,
		CostMicrodollars: cost,
		Credits:          pricing.Credits(cost),
		RequestID:        requestID,
		DurationMs:       durationMs,
		Error:            errMsg,
		Timestamp:        s.clock.Now(),
	})

	s.ledger.RecordTokens(p.UserID, u.Total())

	s.log.Info().
		Str("user_id", p.UserID).
		Str("model", req.Model).
		Int64("input_tokens", u.InputTokens).
		Int64("output_tokens", u.OutputTokens).
		Int64("cost_microdollars", cost).
		Int64("duration_ms", durationMs).
		Str("request_id", requestID).
		Str("error", errMsg).
		Msg("request metered")
}

// upstreamErrorMessage pulls the provider error message out of a non-2xx
// body for the usage record. Falls back to the status code.
func upstreamErrorMessage(body []byte, status int) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	return fmt.Sprintf("upstream status %d", status)
}

func classifyTransportError(err error) gateway.ErrorResponse {
	if errors.Is(err, context.DeadlineExceeded) {
		return gateway.ErrTimeout
	}
	return gateway.ErrUpstream
}
