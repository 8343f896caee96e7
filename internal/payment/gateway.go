package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lms-enrollment-sync/internal/models"
	"github.com/noah-isme/lms-enrollment-sync/pkg/config"
	appErrors "github.com/noah-isme/lms-enrollment-sync/pkg/errors"
)

// Gateway issues charges. Implementations own their wire protocol.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeRef, error)
}

// HTTPGateway posts charges to a REST endpoint exposing POST /charges.
type HTTPGateway struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPGateway builds a gateway adapter for cfg.
func NewHTTPGateway(cfg config.GatewayConfig, timeout time.Duration, logger *zap.Logger) *HTTPGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("gateway", cfg.Name)),
	}
}

// Name returns the configured gateway name.
func (g *HTTPGateway) Name() string {
	return g.name
}

type chargePayload struct {
	Customer    models.Customer `json:"customer"`
	Amount      float64         `json:"amount"`
	DueDate     string          `json:"due_date"`
	Description string          `json:"description"`
	Method      string          `json:"billing_type"`
	Reference   string          `json:"external_reference,omitempty"`
}

type chargeResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	InvoiceURL string  `json:"invoice_url"`
	Amount     float64 `json:"amount"`
}

// CreateCharge sends a single charge request. It is never retried.
func (g *HTTPGateway) CreateCharge(ctx context.Context, req models.ChargeRequest) (*models.ChargeRef, error) {
	body, err := json.Marshal(chargePayload{
		Customer:    req.Customer,
		Amount:      req.Amount,
		DueDate:     req.DueDate.Format("2006-01-02"),
		Description: req.Description,
		Method:      string(req.Method),
		Reference:   req.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, err, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, err, "read gateway response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, fmt.Errorf("%s returned status %d", g.name, resp.StatusCode), "")
	}

	var out chargeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, err, "decode gateway response")
	}
	if out.ID == "" {
		return nil, appErrors.WrapAs(appErrors.ErrPaymentFailed, fmt.Errorf("%s returned no charge id", g.name), "")
	}
	amount := out.Amount
	if amount == 0 {
		amount = req.Amount
	}

	g.logger.Info("charge created", zap.String("charge_id", out.ID), zap.String("reference", req.Reference))
	return &models.ChargeRef{
		ID:         out.ID,
		Gateway:    g.name,
		Status:     out.Status,
		InvoiceURL: out.InvoiceURL,
		Amount:     amount,
		DueDate:    req.DueDate,
	}, nil
}
