package notary

import (
	"context"
	"encoding/json"
)

// Request is one publish of an anchor digest. ReferenceID is the idempotency
// key the backend deduplicates on, so resubmitting an accepted digest is safe.
type Request struct {
	Digest      string
	ReferenceID string
}

// Result reports the outcome of a single publish attempt. A failed attempt
// carries an error code from the domain publish-error set; a successful one
// carries the provider's reference for the accepted entry.
type Result struct {
	OK                  bool
	ErrorCode           string
	ProviderRef         string
	URL                 string
	SigningKeyID        string
	ProviderReceiptJSON json.RawMessage
}

type Provider interface {
	Name() string
	Publish(ctx context.Context, req Request) Result
}

// ReferenceID builds the dedup key for one (anchor, provider) pair.
func ReferenceID(anchorID, provider string) string {
	return "ledgerd:" + anchorID + ":" + provider
}

func failedResult(code string, body []byte) Result {
	result := Result{ErrorCode: code}
	if len(body) > 0 {
		receiptJSON, _, _ := truncateReceiptJSON(body)
		result.ProviderReceiptJSON = json.RawMessage(receiptJSON)
	}
	return result
}
