// Package restapi implements the sync engine's remote boundary against the
// ConnectSA dashboard REST contract.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/wire"
	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

const (
	pathAuthMe             = "/api/auth/me"
	pathProviderBookings   = "/api/provider/bookings"
	pathBookServiceFormat  = "/api/book-service/%s/%s"
	pathCashPaymentConfirm = "/api/provider/cash-payment/confirm"
	pathBankDetails        = "/api/provider/bank-details"

	idempotencyKeyHeader = "Idempotency-Key"
)

// Client talks to the dashboard API. Retries, timeouts, and caching are the
// engine's job; the client performs exactly one request per call and maps
// failures onto the engine's error taxonomy.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

// WithSessionCookie pre-loads a session cookie for the API origin, the way a
// headless host authenticates without a browser login flow.
func WithSessionCookie(name string, value string) ClientOption {
	return func(client *Client) {
		client.httpClient.Jar.SetCookies(client.baseURL, []*http.Cookie{{Name: name, Value: value}})
	}
}

// New wires a client for the given API origin.
func New(baseURL string, options ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Jar: jar},
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

// CheckSession probes identity; a 401 maps to the unauthorized error kind.
func (client *Client) CheckSession(ctx context.Context) (syncengine.Identity, error) {
	var payload wire.Session
	if err := client.do(ctx, http.MethodGet, pathAuthMe, "", nil, &payload); err != nil {
		return syncengine.Identity{}, err
	}
	return syncengine.Identity{
		UserID: payload.User.ID,
		Email:  payload.User.Email,
		Role:   payload.User.Role,
	}, nil
}

// FetchBookings loads the full authoritative booking snapshot.
func (client *Client) FetchBookings(ctx context.Context) (syncengine.BookingSnapshot, error) {
	var payload wire.BookingsResponse
	if err := client.do(ctx, http.MethodGet, pathProviderBookings, "", nil, &payload); err != nil {
		return syncengine.BookingSnapshot{}, err
	}
	return payload.ToSnapshot(), nil
}

// FetchBankDetails loads the secondary payout resource.
func (client *Client) FetchBankDetails(ctx context.Context) (syncengine.BankDetails, error) {
	var payload wire.BankDetails
	if err := client.do(ctx, http.MethodGet, pathBankDetails, "", nil, &payload); err != nil {
		return syncengine.BankDetails{}, err
	}
	return payload.ToBankDetails(), nil
}

// AcceptBooking posts the accept action.
func (client *Client) AcceptBooking(ctx context.Context, bookingID string, idempotencyKey string) (syncengine.BookingRecord, error) {
	return client.postAction(ctx, bookingID, "accept", idempotencyKey, nil)
}

// StartBooking posts the start action.
func (client *Client) StartBooking(ctx context.Context, bookingID string, idempotencyKey string) (syncengine.BookingRecord, error) {
	return client.postAction(ctx, bookingID, "start", idempotencyKey, nil)
}

// CompleteBooking posts the complete action with the provider's report.
func (client *Client) CompleteBooking(ctx context.Context, bookingID string, idempotencyKey string, report syncengine.CompletionReport) (syncengine.BookingRecord, error) {
	body := wire.CompleteRequest{Notes: report.Notes, Photos: report.PhotoURLs}
	return client.postAction(ctx, bookingID, "complete", idempotencyKey, body)
}

// ConfirmCashPayment posts the cash settlement.
func (client *Client) ConfirmCashPayment(ctx context.Context, bookingID string, idempotencyKey string, amountCents int64) (syncengine.BookingRecord, error) {
	var payload wire.BookingEnvelope
	body := wire.CashConfirmRequest{BookingID: bookingID, Amount: amountCents}
	if err := client.do(ctx, http.MethodPost, pathCashPaymentConfirm, idempotencyKey, body, &payload); err != nil {
		return syncengine.BookingRecord{}, err
	}
	return payload.Booking.ToRecord(), nil
}

func (client *Client) postAction(ctx context.Context, bookingID string, action string, idempotencyKey string, body any) (syncengine.BookingRecord, error) {
	path := fmt.Sprintf(pathBookServiceFormat, url.PathEscape(bookingID), action)
	var payload wire.BookingEnvelope
	if err := client.do(ctx, http.MethodPost, path, idempotencyKey, body, &payload); err != nil {
		return syncengine.BookingRecord{}, err
	}
	return payload.Booking.ToRecord(), nil
}

// do performs one request. Network and deadline failures pass through
// untagged (the engine classifies them as transient or timeout); HTTP error
// statuses are tagged with the taxonomy kind, carrying the server message
// verbatim so validation conflicts surface unchanged.
func (client *Client) do(ctx context.Context, method string, path string, idempotencyKey string, body any, out any) error {
	operation := method + " " + path

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", operation, err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", operation, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		request.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", operation, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		kind := syncengine.KindFromStatus(response.StatusCode)
		return syncengine.NewCallError(operation, kind, response.StatusCode, serverMessage(raw), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

func serverMessage(raw []byte) string {
	var payload wire.ErrorBody
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}

var _ syncengine.API = (*Client)(nil)
