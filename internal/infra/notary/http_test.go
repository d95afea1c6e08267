package notary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"ledgerd/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestHTTPProviderPublishSuccess(t *testing.T) {
	var gotDigest, gotRef string
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/api/v1/notarizations" {
				return &http.Response{
					StatusCode: http.StatusNotFound,
					Body:       io.NopCloser(bytes.NewReader(nil)),
				}, nil
			}
			body, _ := io.ReadAll(req.Body)
			var payload notarizationRequest
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("invalid notarization request: %v", err)
			}
			gotDigest = payload.Digest
			gotRef = payload.ReferenceID
			return &http.Response{
				StatusCode: http.StatusCreated,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body: io.NopCloser(bytes.NewReader([]byte(
					`{"id":"entry-7","url":"https://notary.example/entries/entry-7","signing_key_id":"key-1"}`,
				))),
			}, nil
		}),
	}

	provider, err := NewHTTPProvider("notary", "https://notary.example", "secret", httpClient)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	result := provider.Publish(context.Background(), Request{
		Digest:      "abc123",
		ReferenceID: ReferenceID("anchor-1", "notary"),
	})
	if !result.OK {
		t.Fatalf("expected success, got error code %s", result.ErrorCode)
	}
	if result.ProviderRef != "entry-7" {
		t.Fatalf("expected entry-7, got %s", result.ProviderRef)
	}
	if result.URL != "https://notary.example/entries/entry-7" {
		t.Fatalf("unexpected url: %s", result.URL)
	}
	if result.SigningKeyID != "key-1" {
		t.Fatalf("unexpected signing key id: %s", result.SigningKeyID)
	}
	if len(result.ProviderReceiptJSON) == 0 {
		t.Fatal("expected provider receipt json")
	}
	if gotDigest != "abc123" {
		t.Fatalf("expected digest abc123, got %s", gotDigest)
	}
	if gotRef != "ledgerd:anchor-1:notary" {
		t.Fatalf("unexpected reference id: %s", gotRef)
	}
}

func TestHTTPProviderPublishNetworkFailure(t *testing.T) {
	httpClient := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("dial failed")
		}),
	}
	provider, err := NewHTTPProvider("notary", "https://notary.example", "", httpClient)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	result := provider.Publish(context.Background(), Request{Digest: "abc", ReferenceID: "ref"})
	if result.OK {
		t.Fatal("expected failure")
	}
	if result.ErrorCode != domain.PublishErrorNetwork {
		t.Fatalf("expected NETWORK, got %s", result.ErrorCode)
	}
}

func TestHTTPProviderPublishStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusTooManyRequests, domain.PublishErrorRateLimit},
		{http.StatusInternalServerError, domain.PublishErrorProvider5xx},
		{http.StatusBadRequest, domain.PublishErrorProviderError},
	}
	for _, tc := range cases {
		httpClient := &http.Client{
			Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tc.status,
					Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"nope"}`))),
				}, nil
			}),
		}
		provider, err := NewHTTPProvider("notary", "https://notary.example", "", httpClient)
		if err != nil {
			t.Fatalf("new provider: %v", err)
		}
		result := provider.Publish(context.Background(), Request{Digest: "abc", ReferenceID: "ref"})
		if result.OK {
			t.Fatalf("status %d: expected failure", tc.status)
		}
		if result.ErrorCode != tc.code {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.code, result.ErrorCode)
		}
	}
}

func TestHTTPProviderPublishMissingDigest(t *testing.T) {
	provider, err := NewHTTPProvider("notary", "https://notary.example", "", nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	result := provider.Publish(context.Background(), Request{})
	if result.OK || result.ErrorCode != domain.PublishErrorBadConfig {
		t.Fatalf("expected BAD_CONFIG, got %+v", result)
	}
}

func TestNewHTTPProviderRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPProvider("notary", "  ", "", nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
	if _, err := NewHTTPProvider("", "https://notary.example", "", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}
