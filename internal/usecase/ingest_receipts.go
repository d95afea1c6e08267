package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
	"ledgerd/internal/infra/metrics"
)

const (
	IngestStatusAccepted  = "accepted"
	IngestStatusDuplicate = "duplicate"
	IngestStatusRejected  = "rejected"
)

type ReceiptSubmission struct {
	ReceiptID string          `json:"receipt_id"`
	TenantID  string          `json:"tenant_id"`
	Payload   json.RawMessage `json:"payload"`
}

type IngestItemResult struct {
	ReceiptID string `json:"receipt_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// IngestService validates and stores receipts. The payload is canonicalized
// before storage so the hash, and every later re-export, is byte-stable
// regardless of how the submitter formatted the JSON.
type IngestService struct {
	Receipts domain.ReceiptRepository
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func NewIngestService(receipts domain.ReceiptRepository, m *metrics.Metrics) *IngestService {
	return &IngestService{
		Receipts: receipts,
		Metrics:  m,
		Now:      time.Now,
	}
}

// IngestBatch processes submissions independently: one malformed item never
// fails the batch, and a duplicate is reported, not treated as an error.
func (s *IngestService) IngestBatch(ctx context.Context, submissions []ReceiptSubmission) ([]IngestItemResult, error) {
	if s == nil || s.Receipts == nil {
		return nil, errors.New("receipt repository is required")
	}
	results := make([]IngestItemResult, 0, len(submissions))
	for _, submission := range submissions {
		results = append(results, s.ingestOne(ctx, submission))
	}
	return results, nil
}

func (s *IngestService) ingestOne(ctx context.Context, submission ReceiptSubmission) IngestItemResult {
	result := IngestItemResult{ReceiptID: submission.ReceiptID}
	if submission.ReceiptID == "" || submission.TenantID == "" {
		result.Status = IngestStatusRejected
		result.Error = "receipt_id and tenant_id are required"
		return result
	}
	if len(submission.Payload) == 0 {
		result.Status = IngestStatusRejected
		result.Error = "payload is required"
		return result
	}

	canonical, err := canon.CanonicalizeJSON(submission.Payload)
	if err != nil {
		result.Status = IngestStatusRejected
		result.Error = err.Error()
		return result
	}
	sum := sha256.Sum256(canonical)

	receipt := domain.Receipt{
		ReceiptID:   submission.ReceiptID,
		TenantID:    submission.TenantID,
		Payload:     canonical,
		PayloadHash: hex.EncodeToString(sum[:]),
		CreatedAt:   s.now(),
	}
	if _, err := s.Receipts.Put(ctx, receipt); err != nil {
		if errors.Is(err, domain.ErrDuplicateReceipt) {
			if s.Metrics != nil {
				s.Metrics.DuplicateReceipts.Inc()
			}
			result.Status = IngestStatusDuplicate
			return result
		}
		result.Status = IngestStatusRejected
		result.Error = err.Error()
		return result
	}
	if s.Metrics != nil {
		s.Metrics.ReceiptsIngested.Inc()
	}
	result.Status = IngestStatusAccepted
	return result
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
