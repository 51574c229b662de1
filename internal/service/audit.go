package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// AuditRepository abstracts PostgreSQL audit log storage.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	GetLatestHash(ctx context.Context) (string, error)
	GetRange(ctx context.Context, startID, endID string) ([]model.AuditLog, error)
}

// VerificationResult reports the outcome of a hash-chain verification.
type VerificationResult struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entriesChecked"`
	BrokenAt       string `json:"brokenAt,omitempty"`
	BrokenIndex    int    `json:"brokenIndex,omitempty"`
}

// BigQueryWriter abstracts async writes to BigQuery for WORM archival. A nil
// BigQueryWriter disables archival without branching at call sites.
type BigQueryWriter interface {
	WriteAuditEntry(ctx context.Context, entry *model.AuditLog) error
}

// AuditService implements AuditLogger with SHA-256 hash-chain integrity: each
// entry's hash covers the previous entry's hash, so any row altered or
// deleted out from under the chain is detectable by VerifyChain. Writes go
// to PostgreSQL immediately and, if configured, to BigQuery asynchronously
// for WORM archival.
type AuditService struct {
	repo AuditRepository
	bq   BigQueryWriter // nil means BQ archival disabled

	mu       sync.Mutex
	lastHash string
}

var _ AuditLogger = (*AuditService)(nil)

// NewAuditService creates an AuditService, fetching the latest hash from the
// repo to continue the chain. bqWriter may be nil to disable BigQuery writes.
func NewAuditService(repo AuditRepository, bqWriter BigQueryWriter) (*AuditService, error) {
	lastHash, err := repo.GetLatestHash(context.Background())
	if err != nil {
		return nil, fmt.Errorf("service.NewAuditService: fetch latest hash: %w", err)
	}
	return &AuditService{repo: repo, bq: bqWriter, lastHash: lastHash}, nil
}

// Log implements AuditLogger. It never returns an error to the caller — a
// failure to persist an audit entry must not abort the ingestion or query it
// describes, so it is logged via slog and swallowed.
func (s *AuditService) Log(ctx context.Context, event string, fields map[string]any) {
	entry := &model.AuditLog{
		ID:        uuid.NewString(),
		Event:     event,
		Severity:  severityForEvent(event),
		CreatedAt: time.Now().UTC(),
	}

	if id, ok := fields["document_id"]; ok {
		if v, ok := toInt64(id); ok {
			entry.DocumentID = &v
		}
		delete(fields, "document_id")
	}
	if u, ok := fields["uuid"].(string); ok {
		entry.DocumentUUID = &u
		delete(fields, "uuid")
	}

	if len(fields) > 0 {
		detailsJSON, err := json.Marshal(fields)
		if err != nil {
			slog.Error("audit: failed to marshal details", "event", event, "error", err)
		} else {
			entry.Details = detailsJSON
		}
	}

	s.mu.Lock()
	hash := computeHash(s.lastHash, entry)
	entry.DetailsHash = &hash
	s.lastHash = hash
	s.mu.Unlock()

	if err := s.repo.Create(ctx, entry); err != nil {
		slog.Error("audit: failed to persist entry", "event", event, "error", err)
		return
	}

	if s.bq != nil {
		go func() {
			if err := s.bq.WriteAuditEntry(context.Background(), entry); err != nil {
				slog.Warn("audit: bigquery archival write failed", "event", event, "error", err)
			}
		}()
	}
}

// VerifyChain validates the hash-chain integrity for a range of audit entries.
func (s *AuditService) VerifyChain(ctx context.Context, startID, endID string) (*VerificationResult, error) {
	entries, err := s.repo.GetRange(ctx, startID, endID)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyChain: %w", err)
	}

	if len(entries) == 0 {
		return &VerificationResult{Valid: true, EntriesChecked: 0}, nil
	}

	// The first entry in the range can't be verified against an entry
	// outside the range, so verification starts from the second.
	var prevHash string
	if entries[0].DetailsHash != nil {
		prevHash = *entries[0].DetailsHash
	}

	for i := 1; i < len(entries); i++ {
		expected := computeHash(prevHash, &entries[i])
		actual := ""
		if entries[i].DetailsHash != nil {
			actual = *entries[i].DetailsHash
		}
		if actual != expected {
			return &VerificationResult{
				Valid:          false,
				EntriesChecked: i + 1,
				BrokenAt:       entries[i].ID,
				BrokenIndex:    i,
			}, nil
		}
		prevHash = actual
	}

	return &VerificationResult{Valid: true, EntriesChecked: len(entries)}, nil
}

// computeHash links an entry to the previous one in the chain.
// Formula: SHA-256(previousHash + event + createdAt(RFC3339Nano) + details)
func computeHash(previousHash string, entry *model.AuditLog) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write([]byte(entry.Event))
	h.Write([]byte(entry.CreatedAt.Format(time.RFC3339Nano)))
	if entry.Details != nil {
		h.Write(entry.Details)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func severityForEvent(event string) string {
	switch event {
	case model.AuditIngestionFailed:
		return "HIGH"
	case model.AuditDocumentDeleted:
		return "HIGH"
	case model.AuditIngestionRejected:
		return "MEDIUM"
	case model.AuditIngestionCommitted, model.AuditIngestionDeduped, model.AuditQueryExecuted:
		return "LOW"
	default:
		return "INFO"
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
