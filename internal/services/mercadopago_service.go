package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agendafacil/internal/models"
)

// PaymentFetcher reads authoritative payment state with one tenant's credential.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, externalID string) (*models.GatewayPayment, error)
}

// PaymentGateway hands out credential-scoped fetchers. It holds no token of
// its own, so concurrent events for different tenants never share one.
type PaymentGateway interface {
	ForCredential(cred *models.PaymentCredential) PaymentFetcher
}

const DefaultMercadoPagoBaseURL = "https://api.mercadopago.com"

type mercadoPagoGateway struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewMercadoPagoGateway creates a gateway adapter. timeout bounds each lookup.
func NewMercadoPagoGateway(baseURL string, timeout time.Duration, httpClient *http.Client) PaymentGateway {
	if baseURL == "" {
		baseURL = DefaultMercadoPagoBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &mercadoPagoGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    httpClient,
	}
}

func (g *mercadoPagoGateway) ForCredential(cred *models.PaymentCredential) PaymentFetcher {
	return &mercadoPagoClient{
		gateway:     g,
		accessToken: cred.AccessToken,
	}
}

type mercadoPagoClient struct {
	gateway     *mercadoPagoGateway
	accessToken string
}

// GetPayment calls GET /v1/payments/{id}. It never retries; the caller decides
// whether a failure is worth a redelivery.
func (c *mercadoPagoClient) GetPayment(ctx context.Context, externalID string) (*models.GatewayPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.gateway.timeout)
	defer cancel()

	body, err := c.makeRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(externalID))
	if err != nil {
		return nil, err
	}

	payment := &models.GatewayPayment{}
	if err := json.Unmarshal(body, payment); err != nil {
		return nil, fmt.Errorf("failed to decode gateway payment %s: %w", externalID, err)
	}
	payment.ID = externalID
	payment.Raw = body
	return payment, nil
}

func (c *mercadoPagoClient) makeRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.gateway.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.gateway.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out: %v", ErrGatewayUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrGatewayPaymentNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrCredentialRejected, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
