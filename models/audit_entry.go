package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit action names besides the policy actions (allow, rewrite, block).
const (
	AuditActionModelError = "model_error"
)

// AuditEntry is one request/response exchange in the append-only ledger.
// The pipeline writes it once; only the sealer touches it afterwards.
type AuditEntry struct {
	ID          int64       `json:"id" db:"id"`
	OrgID       uuid.UUID   `json:"org_id" db:"org_id"`
	Prompt      string      `json:"prompt" db:"prompt"`
	Response    string      `json:"response" db:"response"`
	Tokens      int32       `json:"tokens" db:"tokens"`
	Action      string      `json:"action" db:"action"`
	Score       *float64    `json:"score,omitempty" db:"score"`
	FragmentIDs []uuid.UUID `json:"fragment_ids" db:"fragment_ids"`
	Trace       *Trace      `json:"trace,omitempty" db:"trace"`
	Timestamp   time.Time   `json:"ts" db:"ts"`
}

// TableName returns the table name for the AuditEntry model
func (AuditEntry) TableName() string {
	return "audit_ledger"
}

// NewAuditEntry creates a ledger entry for the given org, prompt and action.
func NewAuditEntry(orgID uuid.UUID, prompt, action string) *AuditEntry {
	return &AuditEntry{
		OrgID:       orgID,
		Prompt:      prompt,
		Action:      action,
		FragmentIDs: []uuid.UUID{},
	}
}

// WithResponse sets the model response and its token count
func (e *AuditEntry) WithResponse(response string, tokens int32) *AuditEntry {
	e.Response = response
	e.Tokens = tokens
	return e
}

// WithFragments sets the ids of the retrieved fragments used as context
func (e *AuditEntry) WithFragments(ids []uuid.UUID) *AuditEntry {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	e.FragmentIDs = ids
	return e
}

// WithScore sets the optional score
func (e *AuditEntry) WithScore(score float64) *AuditEntry {
	e.Score = &score
	return e
}

// WithTrace sets the trace metadata
func (e *AuditEntry) WithTrace(trace *Trace) *AuditEntry {
	e.Trace = trace
	return e
}

// FragmentIDStrings returns the fragment ids in their text form.
func (e *AuditEntry) FragmentIDStrings() []string {
	out := make([]string, len(e.FragmentIDs))
	for i, id := range e.FragmentIDs {
		out[i] = id.String()
	}
	return out
}

// Sealed reports whether the sealer has flagged this entry.
func (e *AuditEntry) Sealed() bool {
	return e.Trace != nil && e.Trace.Sealed
}

// ParseFragmentIDs converts text ids back into UUIDs.
func ParseFragmentIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid fragment id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Trace is the structured metadata stored in the ledger's JSONB column.
type Trace struct {
	RequestID string     `json:"request_id,omitempty"`
	RuleID    string     `json:"rule_id,omitempty"`
	Rewritten bool       `json:"rewritten,omitempty"`
	Error     string     `json:"error,omitempty"`
	Sealed    bool       `json:"sealed,omitempty"`
	SealedAt  *time.Time `json:"sealed_at,omitempty"`
}

// Value implements driver.Valuer. JSON goes out as text; lib/pq would send
// []byte as bytea.
func (t Trace) Value() (driver.Value, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (t *Trace) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = Trace{}
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported trace type %T", src)
	}
}
