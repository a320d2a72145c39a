package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	id "examdesk/pkg/domain"
	dErrors "examdesk/pkg/domain-errors"
	"examdesk/pkg/platform/circuit"
)

// ChargeRequest is what the service asks the gateway to collect.
type ChargeRequest struct {
	Tenant    id.TenantID
	PaymentID id.PaymentID
	FeeID     id.FeeID
	Amount    int64
	Currency  string
}

// ChargeResult carries the gateway's reference for the charge; callbacks are
// correlated by it.
type ChargeResult struct {
	GatewayRef string
}

// Gateway is the outbound payment provider boundary.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// HTTPGateway talks to the provider's REST API behind a circuit breaker: a
// run of failed calls stops further charge attempts until the provider
// recovers, so initiation fails fast instead of tying up request handlers.
type HTTPGateway struct {
	client  *http.Client
	baseURL string
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu            sync.Mutex
	nextProbe     time.Time
	probeCooldown time.Duration
}

func NewHTTPGateway(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		client:        &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		breaker:       circuit.New("payment-gateway", circuit.WithSuccessThreshold(2)),
		logger:        logger,
		probeCooldown: 30 * time.Second,
	}
}

type chargeRequestBody struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type chargeResponseBody struct {
	Ref string `json:"ref"`
}

func (g *HTTPGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	// When the breaker is open, fail fast except for one probe per cooldown
	// window; successful probes close the breaker again.
	if g.breaker.IsOpen() {
		g.mu.Lock()
		now := time.Now()
		if now.Before(g.nextProbe) {
			g.mu.Unlock()
			return nil, dErrors.New(dErrors.CodeUnavailable, "payment gateway unavailable")
		}
		g.nextProbe = now.Add(g.probeCooldown)
		g.mu.Unlock()
	}

	body, err := json.Marshal(chargeRequestBody{
		Reference: req.PaymentID.String(),
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.recordFailure(ctx, err.Error())
		return nil, dErrors.Wrap(dErrors.CodeUnavailable, "payment gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		g.recordFailure(ctx, resp.Status)
		return nil, dErrors.New(dErrors.CodeUnavailable, "payment gateway error: "+resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// Client errors do not trip the breaker: the provider is up.
		g.breaker.RecordSuccess()
		return nil, dErrors.New(dErrors.CodeBadRequest, "payment gateway rejected charge: "+resp.Status)
	}

	var out chargeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed && g.logger != nil {
		g.logger.InfoContext(ctx, "payment gateway breaker closed")
	}
	return &ChargeResult{GatewayRef: out.Ref}, nil
}

func (g *HTTPGateway) recordFailure(ctx context.Context, detail string) {
	if _, change := g.breaker.RecordFailure(); change.Opened && g.logger != nil {
		g.logger.WarnContext(ctx, "payment gateway breaker opened", "detail", detail)
	}
}

// InMemoryGateway fakes the provider for tests: deterministic references and
// programmable failures.
type InMemoryGateway struct {
	mu      sync.Mutex
	calls   int
	failFor int
	failErr error
}

func NewInMemoryGateway() *InMemoryGateway {
	return &InMemoryGateway{}
}

func (g *InMemoryGateway) CreateCharge(_ context.Context, req ChargeRequest) (*ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor > 0 {
		g.failFor--
		return nil, g.failErr
	}
	g.calls++
	return &ChargeResult{GatewayRef: "gw-" + req.PaymentID.String()}, nil
}

// FailNext makes the next count charges return err.
func (g *InMemoryGateway) FailNext(count int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failFor = count
	g.failErr = err
}

// Calls reports the number of successful charge creations.
func (g *InMemoryGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
