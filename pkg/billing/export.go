package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"costscan/pkg/logger"
	"costscan/pkg/utils/dateutils"

	"go.uber.org/zap"
)

// HTTPExportSource pulls pre-exported billing and usage data from an HTTP
// endpoint. Azure and Nebius accounts are fed this way: an out-of-band
// export job lands their provider reports behind a JSON endpoint, and this
// source reads one day per request. Kubernetes collectors expose the same
// shape for usage records.
type HTTPExportSource struct {
	baseURL    string
	provider   string
	httpClient *http.Client
}

var (
	_ DailySource = (*HTTPExportSource)(nil)
	_ UsageSource = (*HTTPExportSource)(nil)
)

// exportResponse is the envelope the export endpoint serves
type exportResponse struct {
	Ready bool          `json:"ready"`
	Items []Item        `json:"items"`
	Usage []UsageRecord `json:"usage"`
}

func NewHTTPExportSource(baseURL, provider string, timeout time.Duration) *HTTPExportSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExportSource{
		baseURL:    baseURL,
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// DailyBillItems fetches one day of exported billing lines. An export not
// yet marked ready comes back as a DataNotReadyError.
func (s *HTTPExportSource) DailyBillItems(ctx context.Context, day time.Time) ([]Item, error) {
	billingDate := day.Format(dateutils.LayoutDate)

	query := url.Values{}
	query.Set("date", billingDate)

	resp, err := s.get(ctx, "/billing", query)
	if err != nil {
		return nil, err
	}
	if !resp.Ready {
		return nil, &DataNotReadyError{BillingDate: billingDate}
	}

	logger.Debug("export billing items pulled",
		zap.String("provider", s.provider),
		zap.String("billing_date", billingDate),
		zap.Int("records", len(resp.Items)))
	return resp.Items, nil
}

// RawUsage fetches usage records of one resource kind in [start, end)
func (s *HTTPExportSource) RawUsage(ctx context.Context, resourceKind string, start, end time.Time) ([]UsageRecord, error) {
	query := url.Values{}
	query.Set("kind", resourceKind)
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))

	resp, err := s.get(ctx, "/usage", query)
	if err != nil {
		return nil, err
	}

	logger.Debug("export usage records pulled",
		zap.String("provider", s.provider),
		zap.String("resource_kind", resourceKind),
		zap.Int("records", len(resp.Usage)))
	return resp.Usage, nil
}

func (s *HTTPExportSource) get(ctx context.Context, path string, query url.Values) (*exportResponse, error) {
	endpoint := s.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create export request: %w", err)
	}

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call export endpoint: %w", err)
	}
	defer httpResp.Body.Close()

	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &DataNotReadyError{BillingDate: query.Get("date")}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &APIError{
			Code:     "AccessDenied",
			Message:  "export endpoint rejected the request",
			HTTPCode: httpResp.StatusCode,
		}
	default:
		return nil, &APIError{
			Code:     "UnexpectedStatus",
			Message:  fmt.Sprintf("export endpoint returned %s", httpResp.Status),
			HTTPCode: httpResp.StatusCode,
		}
	}

	var resp exportResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode export response: %w", err)
	}
	return &resp, nil
}
