package chat

import (
	"context"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/upb/crossaudit-gateway/internal/observability"
	"github.com/upb/crossaudit-gateway/internal/policy"
	"github.com/upb/crossaudit-gateway/models"
	"github.com/upb/crossaudit-gateway/services"
	"github.com/upb/crossaudit-gateway/services/providers"
	"go.uber.org/zap"
)

// ChatService runs every chat request through retrieval, the policy
// engine, the model and the audit ledger, in that order.
type ChatService struct {
	retriever Retriever
	policy    PolicyEvaluator
	model     providers.ModelClient
	audit     AuditRecorder
	alerts    AlertPublisher
	metrics   *observability.Metrics
	config    Config
	logger    *zap.Logger
}

// NewChatService creates a new chat service with all dependencies
func NewChatService(
	retriever Retriever,
	policyEvaluator PolicyEvaluator,
	model providers.ModelClient,
	audit AuditRecorder,
	alerts AlertPublisher,
	metrics *observability.Metrics,
	config Config,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		retriever: retriever,
		policy:    policyEvaluator,
		model:     model,
		audit:     audit,
		alerts:    alerts,
		metrics:   metrics,
		config:    config,
		logger:    logger,
	}
}

// Process handles one prompt. A blocked prompt returns
// services.ErrPromptBlocked; a failed model call returns an external error.
func (s *ChatService) Process(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.ErrEmptyPrompt
	}
	if req.RequestID == "" {
		req.RequestID = middleware.GetReqID(ctx)
	}

	pc := &PipelineContext{
		Request:   req,
		State:     StateStart,
		StartTime: time.Now(),
	}
	logger := s.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("org_id", req.OrgID.String()))

	// Step 1: retrieval on the raw prompt; failures come back as no fragments
	pc.Fragments = s.retriever.Search(ctx, req.Prompt, s.config.RetrievalLimit)
	s.advance(logger, pc, StateRetrieved)

	// Step 2: policy decision on the raw prompt
	pc.Decision = s.policy.Apply(req.Prompt)
	if pc.Decision.Matched {
		s.metrics.RecordPolicyMatch(pc.Decision.Action.String())
	}
	s.advance(logger, pc, StateDecided)

	if pc.Decision.Blocked() {
		return nil, s.block(ctx, logger, pc)
	}

	// Step 3: model call with the effective prompt
	s.advance(logger, pc, StateAnswering)
	pc.EffectivePrompt = pc.Decision.Text

	response, err := s.model.Complete(ctx, pc.EffectivePrompt, models.FragmentTexts(pc.Fragments))
	if err != nil {
		return nil, s.modelFailed(ctx, logger, pc, err)
	}
	pc.Response = response
	pc.Tokens = countTokens(response)

	// Step 4: audit
	entry := models.NewAuditEntry(req.OrgID, req.Prompt, pc.Decision.ActionName()).
		WithResponse(pc.Response, pc.Tokens).
		WithFragments(models.FragmentIDs(pc.Fragments)).
		WithTrace(s.trace(pc))
	s.audit.Record(ctx, entry)
	s.advance(logger, pc, StateLogged)

	s.metrics.RecordRequest(observability.OutcomeAnswered, time.Since(pc.StartTime))
	s.advance(logger, pc, StateDone)

	logger.Info("chat request answered",
		zap.String("action", pc.Decision.ActionName()),
		zap.String("rule_id", pc.Decision.RuleID),
		zap.Int("fragments", len(pc.Fragments)),
		zap.Int32("tokens", pc.Tokens),
		zap.Duration("elapsed", time.Since(pc.StartTime)))

	return &ChatResponse{Response: pc.Response}, nil
}

// block audits the prompt, then publishes the alert. The model is never
// called and the outcome does not depend on the audit write.
func (s *ChatService) block(ctx context.Context, logger *zap.Logger, pc *PipelineContext) error {
	s.advance(logger, pc, StateBlocked)

	entry := models.NewAuditEntry(pc.Request.OrgID, pc.Request.Prompt, policy.ActionBlock.String()).
		WithResponse("", 0).
		WithFragments(models.FragmentIDs(pc.Fragments)).
		WithTrace(s.trace(pc))
	s.audit.Record(ctx, entry)
	s.advance(logger, pc, StateLogged)

	s.alerts.Publish(BlockedAlert(pc.Request.Prompt))
	s.metrics.RecordAlert()
	s.metrics.RecordRequest(observability.OutcomeBlocked, time.Since(pc.StartTime))
	s.advance(logger, pc, StateDone)

	logger.Info("chat request blocked", zap.String("rule_id", pc.Decision.RuleID))
	return services.ErrPromptBlocked
}

func (s *ChatService) modelFailed(ctx context.Context, logger *zap.Logger, pc *PipelineContext, err error) error {
	logger.Error("model call failed",
		zap.String("provider", s.model.Name()),
		zap.Error(err))

	if s.config.RecordModelErrors {
		trace := s.trace(pc)
		trace.Error = err.Error()
		entry := models.NewAuditEntry(pc.Request.OrgID, pc.Request.Prompt, models.AuditActionModelError).
			WithFragments(models.FragmentIDs(pc.Fragments)).
			WithTrace(trace)
		s.audit.Record(ctx, entry)
	}

	s.metrics.RecordRequest(observability.OutcomeModelError, time.Since(pc.StartTime))
	return services.WrapExternal("model call failed", err)
}

func (s *ChatService) trace(pc *PipelineContext) *models.Trace {
	return &models.Trace{
		RequestID: pc.Request.RequestID,
		RuleID:    pc.Decision.RuleID,
		Rewritten: pc.Decision.Matched && pc.Decision.Action == policy.ActionRewrite,
	}
}

func (s *ChatService) advance(logger *zap.Logger, pc *PipelineContext, next State) {
	logger.Debug("pipeline transition",
		zap.String("from", string(pc.State)),
		zap.String("to", string(next)))
	pc.State = next
}

// countTokens counts whitespace-delimited words.
func countTokens(text string) int32 {
	return int32(len(strings.Fields(text)))
}
