package notary

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"ledgerd/internal/domain"
)

const maxProviderReceiptBytes = 256 * 1024

// HTTPProvider posts anchor digests to a notarization backend over a small
// JSON API. The backend is expected to deduplicate on reference_id.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewHTTPProvider(name, baseURL, apiKey string, httpClient *http.Client) (*HTTPProvider, error) {
	if name == "" {
		return nil, errors.New("notary provider name is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("notary base url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &HTTPProvider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpDo:  doer,
	}, nil
}

func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) Publish(ctx context.Context, req Request) Result {
	if p == nil {
		return Result{ErrorCode: domain.PublishErrorBadConfig}
	}
	if req.Digest == "" || req.ReferenceID == "" {
		return Result{ErrorCode: domain.PublishErrorBadConfig}
	}

	body, err := json.Marshal(notarizationRequest{
		Digest:      req.Digest,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return Result{ErrorCode: domain.PublishErrorBadConfig}
	}

	postURL := p.baseURL + "/api/v1/notarizations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return Result{ErrorCode: domain.PublishErrorBadConfig}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpDo(httpReq)
	if err != nil {
		return failedResult(errorToCode(ctx, err), nil)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failedResult(errorToCode(ctx, err), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failedResult(statusToErrorCode(resp.StatusCode), respBody)
	}

	var entry notarizationResponse
	if err := json.Unmarshal(respBody, &entry); err != nil || entry.ID == "" {
		return failedResult(domain.PublishErrorProviderError, respBody)
	}

	receiptJSON, _, _ := truncateReceiptJSON(respBody)
	return Result{
		OK:                  true,
		ProviderRef:         entry.ID,
		URL:                 entry.URL,
		SigningKeyID:        entry.SigningKeyID,
		ProviderReceiptJSON: json.RawMessage(receiptJSON),
	}
}

func statusToErrorCode(code int) string {
	if code == http.StatusTooManyRequests {
		return domain.PublishErrorRateLimit
	}
	if code >= 500 {
		return domain.PublishErrorProvider5xx
	}
	return domain.PublishErrorProviderError
}

func errorToCode(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.PublishErrorTimeout
	}
	return domain.PublishErrorNetwork
}

func truncateReceiptJSON(payload []byte) ([]byte, bool, int) {
	size := len(payload)
	if size == 0 {
		return nil, false, 0
	}
	if size <= maxProviderReceiptBytes {
		return payload, false, size
	}
	prefix := payload[:maxProviderReceiptBytes]
	truncated := map[string]any{
		"truncated":     true,
		"prefix_base64": base64.StdEncoding.EncodeToString(prefix),
	}
	encoded, err := json.Marshal(truncated)
	if err != nil {
		return nil, true, size
	}
	return encoded, true, size
}

type notarizationRequest struct {
	Digest      string `json:"digest"`
	ReferenceID string `json:"reference_id"`
}

type notarizationResponse struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	SigningKeyID string `json:"signing_key_id"`
}
