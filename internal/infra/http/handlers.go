package http

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ledgerd/internal/domain"
	"ledgerd/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ingestRequest struct {
	Receipts []usecase.ReceiptSubmission `json:"receipts"`
}

type ingestResponse struct {
	Results []usecase.IngestItemResult `json:"results"`
}

type policyRequest struct {
	Policies []policyInput `json:"policies"`
}

type policyInput struct {
	TenantID  string   `json:"tenant_id"`
	Version   string   `json:"version"`
	Allowlist []string `json:"allowlist"`
	Denylist  []string `json:"denylist"`
	Salt      string   `json:"salt,omitempty"`
}

type policyResponse struct {
	TenantID  string   `json:"tenant_id"`
	Version   string   `json:"version"`
	Allowlist []string `json:"allowlist,omitempty"`
	Denylist  []string `json:"denylist,omitempty"`
	HasSalt   bool     `json:"has_salt"`
	DenyAll   bool     `json:"deny_all,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

type revokeRequest struct {
	TenantID   string `json:"tenant_id"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason,omitempty"`
}

type anchorResponse struct {
	AnchorID   string              `json:"anchor_id"`
	TenantID   string              `json:"tenant_id"`
	AnchorHash string              `json:"anchor_hash"`
	MemberIDs  []string            `json:"member_ids"`
	CreatedAt  string              `json:"created_at"`
	Proofs     []domain.ProofEntry `json:"proofs"`
}

func (s *Server) handlePutReceipts(c *gin.Context) {
	if s.ingest == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ingestion not configured")
		return
	}
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if len(req.Receipts) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "EMPTY_BATCH", "receipts are required")
		return
	}
	if !s.enforceRateLimit(c, "receipts", batchTenant(req.Receipts)) {
		return
	}
	results, err := s.ingest.IngestBatch(c.Request.Context(), req.Receipts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingestResponse{Results: results})
}

// batchTenant picks the rate-limit key tenant. Mixed-tenant batches fall
// under the first item's tenant; submitters are expected to batch per tenant.
func batchTenant(receipts []usecase.ReceiptSubmission) string {
	for _, receipt := range receipts {
		if receipt.TenantID != "" {
			return receipt.TenantID
		}
	}
	return "unknown"
}

func (s *Server) handlePutPolicy(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.policies == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "policy service not configured")
		return
	}
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if len(req.Policies) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "EMPTY_BATCH", "policies are required")
		return
	}
	actorHash := s.adminKeyHash()
	for _, input := range req.Policies {
		policy := domain.AnchorPolicy{
			TenantID:  input.TenantID,
			Version:   input.Version,
			Allowlist: input.Allowlist,
			Denylist:  input.Denylist,
			Salt:      input.Salt,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.policies.Upsert(c.Request.Context(), policy, actorHash); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "count": len(req.Policies)})
}

func (s *Server) handleGetPolicy(c *gin.Context) {
	if s.policies == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "policy service not configured")
		return
	}
	tenantID := c.Param("tenant_id")
	policy, err := s.policies.Active(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := policyResponse{
		TenantID:  policy.TenantID,
		Version:   policy.Version,
		Allowlist: policy.Allowlist,
		Denylist:  policy.Denylist,
		HasSalt:   policy.Salt != "",
		DenyAll:   policy.DenyAll,
	}
	if !policy.CreatedAt.IsZero() {
		out.CreatedAt = policy.CreatedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRehydrate(c *gin.Context) {
	if s.rehydrate == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "rehydration not configured")
		return
	}
	tenantID := c.Query("tenant_id")
	operationID := c.Query("operation_id")
	if tenantID == "" || operationID == "" {
		writeErrorCode(c, http.StatusBadRequest, "MISSING_PARAMETER", "tenant_id and operation_id are required")
		return
	}
	pinnedVersion := c.Query("policy_version")

	bundle, err := s.rehydrate.Rehydrate(c.Request.Context(), tenantID, operationID, pinnedVersion)
	if err != nil {
		writeError(c, err)
		return
	}
	exported, err := usecase.ExportBundle(bundle)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", exported)
}

func (s *Server) handlePostRevocation(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.revocations == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "revocation service not configured")
		return
	}
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	entry := domain.RevocationEntry{
		TenantID:   req.TenantID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
	}
	epoch, err := s.revocations.Revoke(c.Request.Context(), entry, s.adminKeyHash())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked", "revocation_epoch": epoch})
}

func (s *Server) handleGetAnchor(c *gin.Context) {
	if s.anchors == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "anchor lookup not configured")
		return
	}
	anchorID := c.Param("anchor_id")
	anchor, err := s.anchors.Get(c.Request.Context(), anchorID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := anchorResponse{
		AnchorID:   anchor.AnchorID,
		TenantID:   anchor.TenantID,
		AnchorHash: anchor.AnchorHash,
		MemberIDs:  anchor.MemberIDs,
		CreatedAt:  anchor.CreatedAt.UTC().Format(time.RFC3339Nano),
		Proofs:     []domain.ProofEntry{},
	}
	if s.proofs != nil {
		proofs, err := s.proofs.ListByAnchor(c.Request.Context(), anchorID)
		if err != nil {
			writeError(c, err)
			return
		}
		for _, proof := range proofs {
			out.Proofs = append(out.Proofs, domain.ProofEntry{
				AnchorID:     proof.AnchorID,
				Provider:     proof.Provider,
				ProviderRef:  proof.ProviderRef,
				URL:          proof.URL,
				SigningKeyID: proof.SigningKeyID,
				PublishedAt:  proof.PublishedAt.UTC().Format(time.RFC3339Nano),
			})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

// adminKeyHash identifies the admin actor in audit events without recording
// the key itself.
func (s *Server) adminKeyHash() string {
	if s.adminAPIKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s.adminAPIKey))
	return hex.EncodeToString(sum[:])
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrMalformedPayload):
		status, code = http.StatusBadRequest, "MALFORMED_PAYLOAD"
	case errors.Is(err, domain.ErrNoAnchorForOperation):
		status, code = http.StatusNotFound, "NO_ANCHOR_FOR_OPERATION"
	case errors.Is(err, domain.ErrPolicyNotFound):
		status, code = http.StatusNotFound, "POLICY_NOT_FOUND"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrRevokedArtifact):
		status, code = http.StatusConflict, "REVOKED"
	case isValidationError(err):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}
	writeErrorCode(c, status, code, err.Error())
}

// isValidationError treats service-side "x is required" errors as client
// faults rather than internal ones.
func isValidationError(err error) bool {
	var jsonErr *json.SyntaxError
	if errors.As(err, &jsonErr) {
		return true
	}
	message := err.Error()
	return len(message) < 120 && (strings.Contains(message, "required") || strings.Contains(message, "must be"))
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
