package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"kasabot/internal/model"

	"golang.org/x/text/unicode/norm"
)

const (
	receiptPageSize = 1000
	maxReceiptPages = 50
	maxDocumentSize = 20 << 20
)

var (
	// ErrUnauthorized means the cashier token was rejected (401/403).
	ErrUnauthorized = errors.New("checkbox: unauthorized")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("checkbox: not found")
	// ErrInvalidDocument means the document body is not a PDF.
	ErrInvalidDocument = errors.New("checkbox: document is not a pdf")
)

var pdfMagic = []byte("%PDF-")

// CheckboxConfig holds the fiscal API connection settings.
type CheckboxConfig struct {
	BaseURL       string
	ClientName    string
	ClientVersion string
	Timeout       time.Duration
	Breaker       CircuitBreakerConfig
}

// CheckboxClient talks to the Checkbox cash-register REST API.
// Every license key gets its own circuit breaker so one broken register
// does not fast-fail the others.
type CheckboxClient struct {
	cfg        CheckboxConfig
	httpClient *http.Client

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewCheckboxClient(cfg CheckboxConfig) *CheckboxClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Breaker.IsFailure == nil && cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker = DefaultCBConfig()
	}
	return &CheckboxClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breakers:   make(map[string]*CircuitBreaker),
	}
}

// BreakerState reports the worst breaker state across all license keys
// (for the health endpoint).
func (c *CheckboxClient) BreakerState() CBState {
	c.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(c.breakers))
	for _, b := range c.breakers {
		breakers = append(breakers, b)
	}
	c.mu.Unlock()

	worst := CBClosed
	for _, b := range breakers {
		if s := b.State(); s > worst {
			worst = s
		}
	}
	return worst
}

func (c *CheckboxClient) breaker(licenseKey string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[licenseKey]
	if !ok {
		b = NewCircuitBreaker(c.cfg.Breaker)
		c.breakers[licenseKey] = b
	}
	return b
}

// ── Wire types ───────────────────────────────────────────────────────────────

type signInRequest struct {
	PinCode string `json:"pin_code"`
}

type signInResponse struct {
	AccessToken string `json:"access_token"`
}

type shiftList struct {
	Results []model.Shift `json:"results"`
}

type receiptList struct {
	Results []model.Receipt `json:"results"`
}

type reportList struct {
	Results []model.ReportRef `json:"results"`
}

type cashRegister struct {
	Title string `json:"title"`
}

// ── Operations ───────────────────────────────────────────────────────────────

// SignIn exchanges the license key and cashier PIN for an access token.
func (c *CheckboxClient) SignIn(ctx context.Context, licenseKey, pin string) (string, error) {
	var resp signInResponse
	if err := c.call(ctx, http.MethodPost, licenseKey, "", "/cashier/signinPinCode", nil, signInRequest{PinCode: pin}, &resp); err != nil {
		return "", fmt.Errorf("checkbox: sign in: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("checkbox: sign in: %w", ErrUnauthorized)
	}
	return resp.AccessToken, nil
}

// CashRegisterTitle returns the register's display title, NFC-normalised.
// An empty string means the register has no title.
func (c *CheckboxClient) CashRegisterTitle(ctx context.Context, licenseKey, token string) (string, error) {
	var resp cashRegister
	if err := c.call(ctx, http.MethodGet, licenseKey, token, "/cash-register", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("checkbox: cash register: %w", err)
	}
	return strings.TrimSpace(norm.NFC.String(resp.Title)), nil
}

// CurrentOpenShiftID returns the id of the register's open shift, or "" when
// none is open.
func (c *CheckboxClient) CurrentOpenShiftID(ctx context.Context, licenseKey, token string) (string, error) {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("offset", "0")
	q.Set("desc", "false")
	q.Add("statuses", string(model.StatusOpened))

	var resp shiftList
	if err := c.call(ctx, http.MethodGet, licenseKey, token, "/shifts", q, nil, &resp); err != nil {
		return "", fmt.Errorf("checkbox: current shift: %w", err)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].ID, nil
}

// ShiftDetail fetches a single shift.
func (c *CheckboxClient) ShiftDetail(ctx context.Context, licenseKey, token, shiftID string) (*model.Shift, error) {
	var shift model.Shift
	if err := c.call(ctx, http.MethodGet, licenseKey, token, "/shifts/"+url.PathEscape(shiftID), nil, nil, &shift); err != nil {
		return nil, fmt.Errorf("checkbox: shift %s: %w", shiftID, err)
	}
	return &shift, nil
}

// SearchReceipts lists the shift's receipts in [from, to], following pages
// until a short page is returned.
func (c *CheckboxClient) SearchReceipts(ctx context.Context, licenseKey, token, shiftID string, from, to time.Time) ([]model.Receipt, error) {
	var all []model.Receipt
	for page := 0; page < maxReceiptPages; page++ {
		q := url.Values{}
		q.Add("shift_id", shiftID)
		q.Set("self_receipts", "true")
		q.Set("desc", "false")
		q.Set("limit", strconv.Itoa(receiptPageSize))
		q.Set("offset", strconv.Itoa(page*receiptPageSize))
		q.Set("from_date", from.UTC().Format(time.RFC3339Nano))
		q.Set("to_date", to.UTC().Format(time.RFC3339Nano))

		var resp receiptList
		if err := c.call(ctx, http.MethodGet, licenseKey, token, "/receipts/search", q, nil, &resp); err != nil {
			return nil, fmt.Errorf("checkbox: search receipts (page %d): %w", page, err)
		}
		all = append(all, resp.Results...)
		if len(resp.Results) < receiptPageSize {
			break
		}
	}
	return all, nil
}

// ReceiptDetail fetches the full receipt.
func (c *CheckboxClient) ReceiptDetail(ctx context.Context, licenseKey, token, receiptID string) (*model.Receipt, error) {
	var r model.Receipt
	if err := c.call(ctx, http.MethodGet, licenseKey, token, "/receipts/"+url.PathEscape(receiptID), nil, nil, &r); err != nil {
		return nil, fmt.Errorf("checkbox: receipt %s: %w", receiptID, err)
	}
	return &r, nil
}

// ReceiptDocument downloads the receipt's PDF rendering.
func (c *CheckboxClient) ReceiptDocument(ctx context.Context, licenseKey, token, receiptID string) ([]byte, error) {
	var body []byte
	err := c.breaker(licenseKey).Execute(func() error {
		req, err := c.newRequest(ctx, http.MethodGet, licenseKey, token, "/receipts/"+url.PathEscape(receiptID)+"/pdf", nil, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/pdf")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("unreachable: %w", err)
		}
		defer resp.Body.Close()
		if err := statusError(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("checkbox: receipt %s pdf: %w", receiptID, err)
	}
	if !bytes.HasPrefix(body, pdfMagic) {
		return nil, fmt.Errorf("checkbox: receipt %s pdf: %w", receiptID, ErrInvalidDocument)
	}
	return body, nil
}

// ReportListing lists the shift's X (closing=false) or Z (closing=true)
// reports in [from, to].
func (c *CheckboxClient) ReportListing(ctx context.Context, licenseKey, token string, closing bool, shiftID string, from, to time.Time) ([]model.ReportRef, error) {
	q := url.Values{}
	q.Add("shift_id", shiftID)
	q.Set("is_z_report", strconv.FormatBool(closing))
	q.Set("from_date", from.UTC().Format(time.RFC3339Nano))
	q.Set("to_date", to.UTC().Format(time.RFC3339Nano))
	q.Set("desc", "true")
	q.Set("limit", "10")

	var resp reportList
	if err := c.call(ctx, http.MethodGet, licenseKey, token, "/reports/search", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("checkbox: report listing: %w", err)
	}
	return resp.Results, nil
}

// ── Transport ────────────────────────────────────────────────────────────────

func (c *CheckboxClient) call(ctx context.Context, method, licenseKey, token, path string, query url.Values, in, out any) error {
	return c.breaker(licenseKey).Execute(func() error {
		req, err := c.newRequest(ctx, method, licenseKey, token, path, query, in)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("unreachable: %w", err)
		}
		defer resp.Body.Close()
		if err := statusError(resp); err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func (c *CheckboxClient) newRequest(ctx context.Context, method, licenseKey, token, path string, query url.Values, in any) (*http.Request, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-License-Key", licenseKey)
	req.Header.Set("X-Client-Name", c.cfg.ClientName)
	req.Header.Set("X-Client-Version", c.cfg.ClientVersion)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("api returned %d", resp.StatusCode)
	}
}
