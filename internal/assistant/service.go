package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/worktab/worktab-api/internal/domain"
	"github.com/worktab/worktab-api/internal/llm"
	"github.com/worktab/worktab-api/internal/metrics"
	"github.com/worktab/worktab-api/internal/ratelimit"
)

// Service runs chat turns. It holds no per-turn state; concurrent calls are
// independent apart from the limiter's counters.
type Service struct {
	client    llm.Client
	maxTokens int
	limiter   *ratelimit.Limiter
	log       ConversationLogger
	now       func() time.Time
}

// NewService creates a chat service. A nil client makes every turn fail
// with ErrNotConfigured. maxTokens is the configured output ceiling; the
// limiter may lower it per tier.
func NewService(client llm.Client, maxTokens int, limiter *ratelimit.Limiter, conversationLogger ConversationLogger) *Service {
	if limiter == nil {
		limiter = ratelimit.New(nil, nil, false)
	}
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	return &Service{
		client:    client,
		maxTokens: maxTokens,
		limiter:   limiter,
		log:       conversationLogger,
		now:       time.Now,
	}
}

// Configured reports whether a model client is available.
func (s *Service) Configured() bool {
	return s.client != nil
}

// RunTurn answers one chat message. Validation happens before any external
// call; rate limiting happens before the configuration check.
func (s *Service) RunTurn(ctx context.Context, req domain.ChatRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		metrics.ChatTurns.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyMessage
	}

	reservation, decision := s.limiter.Acquire(ctx, req.Caller)
	if !decision.Allowed {
		metrics.ChatTurns.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitError{Decision: decision}
	}
	defer reservation.Release()

	if s.client == nil {
		slog.Error("Chat model credential not configured")
		metrics.ChatTurns.WithLabelValues("not_configured").Inc()
		return nil, ErrNotConfigured
	}

	turnID := uuid.NewString()
	sessionID := s.now().UTC().Format("2006-01-02")
	s.log.Log(ConversationLogEvent{
		TurnID:     turnID,
		UserID:     req.Caller.ID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: req.Message,
		Meta: map[string]any{
			"history_len": len(req.History),
			"is_pro":      req.Caller.IsPro,
		},
	})

	llmReq := llm.Request{
		System:   BuildSystemPrompt(req.Context),
		Messages: toMessages(BuildConversation(req.History, req.Message)),
	}
	if s.limiter.Enabled() {
		llmReq.MaxTokens = s.tokenCeiling(req.Caller)
	}

	start := time.Now()
	reply, err := s.client.Complete(ctx, llmReq)
	if err != nil {
		metrics.ModelLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.ChatTurns.WithLabelValues(failureOutcome(err)).Inc()
		slog.Error("Chat model call failed", "user_id", req.Caller.ID, "turn_id", turnID, "error", err)
		return nil, err
	}
	metrics.ModelLatency.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	metrics.ModelTokens.WithLabelValues("input").Add(float64(reply.Usage.InputTokens))
	metrics.ModelTokens.WithLabelValues("output").Add(float64(reply.Usage.OutputTokens))

	parsed := ParseDirectives(reply.Text)
	actions := make([]domain.ActionDirective, 0, len(parsed))
	for _, p := range parsed {
		if p.Malformed {
			metrics.MalformedDirectives.Inc()
			slog.Debug("Action directive params are not JSON", "type", p.Type, "turn_id", turnID)
		}
		metrics.ActionsParsed.WithLabelValues(p.Type).Inc()
		actions = append(actions, p.Action())
	}

	result := &TurnResult{
		Reply: StripActionMarkers(reply.Text),
		Usage: reply.Usage,
	}
	if len(actions) > 0 {
		result.Actions = actions
	}
	result.RateLimit = reservation.Commit(ctx)

	s.log.Log(ConversationLogEvent{
		TurnID:     turnID,
		UserID:     req.Caller.ID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: reply.Text,
		Meta: map[string]any{
			"model":         reply.Model,
			"actions":       len(actions),
			"input_tokens":  reply.Usage.InputTokens,
			"output_tokens": reply.Usage.OutputTokens,
		},
	})

	metrics.ChatTurns.WithLabelValues("ok").Inc()
	slog.Info("Chat turn completed",
		"user_id", req.Caller.ID,
		"turn_id", turnID,
		"actions", len(actions),
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens)

	return result, nil
}

// tokenCeiling applies the tier cap to the configured output ceiling.
func (s *Service) tokenCeiling(caller domain.Identity) int {
	tierMax := s.limiter.Policy(caller).MaxTokensPerMessage
	if tierMax <= 0 {
		return s.maxTokens
	}
	if s.maxTokens <= 0 {
		return tierMax
	}
	return min(s.maxTokens, tierMax)
}

func failureOutcome(err error) string {
	if _, ok := llm.AsStatusError(err); ok {
		return "upstream"
	}
	if errors.Is(err, llm.ErrInvalidResponse) {
		return "invalid_response"
	}
	return "error"
}

// Close releases the conversation logger.
func (s *Service) Close() error {
	return s.log.Close()
}
