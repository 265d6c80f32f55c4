package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/crossaudit-gateway/internal/policy"
	"github.com/upb/crossaudit-gateway/models"
)

// ChatRequest is one inbound prompt from an organization.
type ChatRequest struct {
	OrgID     uuid.UUID
	Prompt    string
	RequestID string
}

// ChatResponse is returned for answered prompts only.
type ChatResponse struct {
	Response string `json:"response"`
}

// State is a step of the per-request pipeline.
type State string

const (
	StateStart     State = "start"
	StateRetrieved State = "retrieved"
	StateDecided   State = "decided"
	StateBlocked   State = "blocked"
	StateAnswering State = "answering"
	StateLogged    State = "logged"
	StateDone      State = "done"
)

// PipelineContext carries what each step produced for the steps after it.
type PipelineContext struct {
	Request         *ChatRequest
	State           State
	StartTime       time.Time
	Fragments       []models.Fragment
	Decision        policy.Decision
	EffectivePrompt string
	Response        string
	Tokens          int32
}

// Retriever finds context fragments for a prompt. It never fails.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) []models.Fragment
}

// PolicyEvaluator decides what happens to a prompt.
type PolicyEvaluator interface {
	Apply(text string) policy.Decision
}

// AuditRecorder appends ledger entries without surfacing write failures.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) bool
}

// AlertPublisher broadcasts alert strings. Publish never blocks.
type AlertPublisher interface {
	Publish(msg string)
}

// Config tunes the pipeline.
type Config struct {
	// RetrievalLimit bounds the fragments passed to the model.
	RetrievalLimit int

	// RecordModelErrors appends a "model_error" entry when the model call
	// fails. Off by default: failed calls leave no ledger trace.
	RecordModelErrors bool
}

// BlockedAlert formats the alert published for a blocked prompt.
func BlockedAlert(prompt string) string {
	return "blocked:" + prompt
}
