// Package paygate implements the payment gateway capability over HTTP.
// A successful check causes the provider integration to settle the
// referenced order out of band; the client only reports whether the check
// went through.
package paygate

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lectoria/course-coupons/internal/domain/payment"
)

var _ payment.Gateway = (*Client)(nil)

// Client calls the payment provider's check endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient creates a gateway client for the given provider base URL.
// The timeout caps the whole check call including connection setup, so a
// stalled provider cannot hold a redemption request indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: otel.Tracer("paygate"),
	}
}

type checkRequest struct {
	Token string `json:"token"`
	Kind  string `json:"kind"`
}

// CheckPayment asks the provider to verify the payment identified by token.
// Any transport failure or non-2xx response is returned as an error; the
// caller decides whether that aborts anything.
func (c *Client) CheckPayment(ctx context.Context, token, kind string) error {
	ctx, span := c.tracer.Start(ctx, "CheckPayment",
		trace.WithAttributes(attribute.String("payment.kind", kind)),
	)
	defer span.End()

	body, err := json.Marshal(checkRequest{Token: token, Kind: kind})
	if err != nil {
		return errors.Wrap(err, "encode check request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments/check", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build check request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "call payment gateway")
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("payment gateway returned %s", resp.Status)
	}
	return nil
}
