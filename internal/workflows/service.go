package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/epivigil/epivigil/internal/logging"
	"github.com/epivigil/epivigil/internal/runtime"
	"github.com/epivigil/epivigil/internal/tools"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/graph"
	"github.com/epivigil/epivigil/pkg/guardrails"
	"github.com/epivigil/epivigil/pkg/observability"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
	"github.com/epivigil/epivigil/pkg/session"
	"github.com/epivigil/epivigil/pkg/state"
)

// Collaborators are the external dependencies every workflow needs.
type Collaborators struct {
	Model      ports.Model
	Metrics    ports.MetricsProvider
	Query      ports.QueryExecutor
	Dictionary ports.Dictionary
	News       ports.NewsProvider
}

// Service wires the topologies, the tool registry, the guardrails and the
// session layer into the two public operations: Report and Chat.
type Service struct {
	executor *runtime.Executor
	sessions *session.Manager
	registry *registry.Registry
	guard    *guardrails.Guard
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    func() time.Time

	reportTopo   *graph.Topology
	reportSchema *state.Schema
	chatTopo     *graph.Topology
	chatSchema   *state.Schema
}

// Option configures the Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	store       ports.CheckpointStore
	locker      ports.DistributedLocker
	logger      *slog.Logger
	metrics     *observability.Metrics
	guard       *guardrails.Guard
	stepCeiling int
	clock       func() time.Time
}

// WithStore enables checkpoint persistence and thread resumption.
func WithStore(store ports.CheckpointStore) Option {
	return func(c *serviceConfig) { c.store = store }
}

// WithLocker serializes same-thread runs across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(c *serviceConfig) { c.locker = locker }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

// WithObservability enables prometheus instrumentation.
func WithObservability(m *observability.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// WithGuard overrides the default guardrail configuration.
func WithGuard(guard *guardrails.Guard) Option {
	return func(c *serviceConfig) { c.guard = guard }
}

// WithStepCeiling overrides the per-run step budget.
func WithStepCeiling(n int) Option {
	return func(c *serviceConfig) { c.stepCeiling = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *serviceConfig) { c.clock = now }
}

// New builds the service: registers the five domain tools, compiles both
// topologies and wires the executor and session layers.
func New(deps Collaborators, opts ...Option) (*Service, error) {
	cfg := serviceConfig{
		logger: logging.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.guard == nil {
		cfg.guard = guardrails.New(
			guardrails.WithLogger(cfg.logger),
			guardrails.WithMetrics(cfg.metrics),
		)
	}

	reg := registry.New()
	reg.Register(tools.NewGetMetrics(deps.Metrics))
	reg.Register(tools.NewGetTableSchema(deps.Query))
	reg.Register(tools.NewQueryDatabase(deps.Query, cfg.guard))
	reg.Register(tools.NewLookupField(deps.Dictionary))
	reg.Register(tools.NewSearchNews(deps.News, cfg.guard))

	dispatcher := registry.NewDispatcher(reg,
		registry.WithLogger(cfg.logger),
		registry.WithMetrics(cfg.metrics),
	)

	reportTopo, err := BuildReport(deps.Metrics, deps.News, deps.Model, cfg.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to compile report topology: %w", err)
	}
	chatTopo, err := BuildChat(deps.Model, dispatcher, reg.Specs())
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat topology: %w", err)
	}

	executorOpts := []runtime.Option{
		runtime.WithLogger(cfg.logger),
		runtime.WithMetrics(cfg.metrics),
	}
	if cfg.store != nil {
		executorOpts = append(executorOpts, runtime.WithCheckpointStore(cfg.store))
	}
	if cfg.stepCeiling > 0 {
		executorOpts = append(executorOpts, runtime.WithStepCeiling(cfg.stepCeiling))
	}

	var sessions *session.Manager
	if cfg.store != nil {
		sessionOpts := []session.Option{session.WithLogger(cfg.logger)}
		if cfg.locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(cfg.locker))
		}
		sessions = session.NewManager(cfg.store, sessionOpts...)
	}

	return &Service{
		executor:     runtime.New(executorOpts...),
		sessions:     sessions,
		registry:     reg,
		guard:        cfg.guard,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		clock:        cfg.clock,
		reportTopo:   reportTopo,
		reportSchema: ReportSchema(),
		chatTopo:     chatTopo,
		chatSchema:   ChatSchema(),
	}, nil
}

// Registry exposes the tool registry, for the MCP surface.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// RunTopology executes a compiled topology by name over a caller-provided
// initial state. Report and Chat layer request shaping and guardrails on top
// of this; it exists for embedders that bring their own state.
func (s *Service) RunTopology(ctx context.Context, name string, initial state.State, threadID string) (state.State, string, error) {
	if threadID == "" {
		threadID = uuid.NewString()
	}

	var (
		topo   *graph.Topology
		schema *state.Schema
	)
	switch name {
	case TopologyReport:
		topo, schema = s.reportTopo, s.reportSchema
	case TopologyChat:
		topo, schema = s.chatTopo, s.chatSchema
	default:
		return nil, "", fmt.Errorf("%w: %s", domain.ErrUnknownTopology, name)
	}

	out, err := s.executor.Run(ctx, topo, schema, initial, threadID)
	if err != nil {
		return nil, "", err
	}
	return out, threadID, nil
}

// ReportRequest parameterizes one report generation.
type ReportRequest struct {
	Days     int    `json:"days"`
	Region   string `json:"state"`
	ThreadID string `json:"thread_id"`
}

// ReportResult is the caller-facing projection of the final report state.
type ReportResult struct {
	Report        string `json:"report"`
	Metrics       any    `json:"metrics"`
	ChartData     any    `json:"chart_data"`
	NewsCitations any    `json:"news_citations"`
	Audit         any    `json:"audit_trail"`
	ThreadID      string `json:"thread_id"`
	Err           string `json:"error,omitempty"`
	Exhausted     bool   `json:"exhausted,omitempty"`
}

// Report runs the deterministic report workflow.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	days := req.Days
	if days <= 0 {
		days = 30
	}
	region := strings.ToUpper(strings.TrimSpace(req.Region))

	initial := state.State{
		KeyDays:   days,
		KeyRegion: region,
		KeyMessages: []domain.Message{
			domain.NewHumanMessage(fmt.Sprintf("Generate SRAG report for last %d days", days)),
		},
	}

	s.logger.Info("report run starting", "thread", threadID, "days", days, "region", region)
	out, err := s.executor.Run(ctx, s.reportTopo, s.reportSchema, initial, threadID)
	if err != nil {
		return nil, fmt.Errorf("report run failed: %w", err)
	}

	return &ReportResult{
		Report:        out.String(KeyFinalReport),
		Metrics:       out[KeyMetrics],
		ChartData:     out[KeyChartData],
		NewsCitations: out[KeyNewsCitations],
		Audit:         out[KeyAudit],
		ThreadID:      threadID,
		Err:           out.String(KeyError),
		Exhausted:     out.Bool(KeyExhausted),
	}, nil
}

// ChatRequest is one conversational turn.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

// ToolCallSummary is the per-turn view of one dispatched tool.
type ToolCallSummary struct {
	Name          string `json:"name"`
	ResultPreview string `json:"result_preview"`
}

// ChatResult is the caller-facing outcome of a chat turn.
type ChatResult struct {
	Response  string            `json:"response"`
	ThreadID  string            `json:"thread_id"`
	ToolCalls []ToolCallSummary `json:"tool_calls"`
	Err       string            `json:"error,omitempty"`
	Exhausted bool              `json:"exhausted,omitempty"`
}

// Chat runs one turn of the autonomous loop. The thread resumes from its
// latest checkpoint; an unknown thread is a cold start seeded with the
// system directive.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	sanitized := s.guard.SanitizeInput(req.Message)
	s.guard.LogSecurityEvent("chat_message_received", fmt.Sprintf("thread=%s len=%d", threadID, len(req.Message)))

	var result *ChatResult
	run := func(ctx context.Context) error {
		history, err := s.chatHistory(ctx, threadID)
		if err != nil {
			return err
		}
		history = append(history, domain.NewHumanMessage(sanitized))

		out, err := s.executor.Run(ctx, s.chatTopo, s.chatSchema, state.State{
			KeyMessages: history,
		}, threadID)
		if err != nil {
			return fmt.Errorf("chat run failed: %w", err)
		}
		s.metrics.ObserveLoop(assistantTurns(out.Messages(KeyMessages), len(history)))
		result = s.buildChatResult(threadID, out)
		return nil
	}

	if s.sessions != nil {
		if err := s.sessions.WithLock(ctx, threadID, run); err != nil {
			return nil, err
		}
	} else {
		if err := run(ctx); err != nil {
			return nil, err
		}
	}

	s.guard.LogSecurityEvent("chat_response_sent", fmt.Sprintf("thread=%s tools=%d", threadID, len(result.ToolCalls)))
	return result, nil
}

// chatHistory loads prior conversation messages, or seeds a new thread with
// the system directive. It runs under the session lock.
func (s *Service) chatHistory(ctx context.Context, threadID string) ([]domain.Message, error) {
	seed := []domain.Message{domain.NewSystemMessage(ChatSystemPrompt)}
	if s.sessions == nil {
		return seed, nil
	}

	snap, err := s.sessions.Store().Latest(ctx, threadID)
	if err == domain.ErrThreadNotFound {
		return seed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resume thread %q: %w", threadID, err)
	}

	prior, err := state.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to decode thread %q: %w", threadID, err)
	}
	history := prior.Messages(KeyMessages)
	if len(history) == 0 {
		return seed, nil
	}
	return history, nil
}

// buildChatResult extracts the final answer, validates it through the
// guardrails and summarizes this turn's tool activity.
func (s *Service) buildChatResult(threadID string, out state.State) *ChatResult {
	response := out.String(KeyResponse)
	if response == "" {
		// Exhausted or failed runs still answer with whatever the
		// assistant produced last.
		messages := out.Messages(KeyMessages)
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == domain.RoleAssistant && messages[i].Content != "" {
				response = messages[i].Content
				break
			}
		}
	}
	if response == "" {
		response = "Desculpe, não consegui concluir a resposta. Por favor, tente novamente."
	}

	report := s.guard.ValidateOutput(response)
	response = report.Scrubbed

	var calls []ToolCallSummary
	if log, ok := out[KeyToolLog].([]domain.ToolInvocation); ok {
		for _, inv := range log {
			preview := inv.Result
			if inv.IsError {
				preview = "Erro: " + inv.Error
			}
			calls = append(calls, ToolCallSummary{
				Name:          inv.Name,
				ResultPreview: truncateRunes(preview, 100),
			})
		}
	}

	return &ChatResult{
		Response:  response,
		ThreadID:  threadID,
		ToolCalls: calls,
		Err:       out.String(KeyError),
		Exhausted: out.Bool(KeyExhausted),
	}
}

// assistantTurns counts this run's assistant messages, skipping the seeded
// history prefix.
func assistantTurns(messages []domain.Message, historyLen int) int {
	if historyLen > len(messages) {
		return 0
	}
	turns := 0
	for _, msg := range messages[historyLen:] {
		if msg.Role == domain.RoleAssistant {
			turns++
		}
	}
	return turns
}

// History returns the persisted snapshots for a thread.
func (s *Service) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	if s.sessions == nil {
		return nil, domain.ErrThreadNotFound
	}
	return s.sessions.History(ctx, threadID)
}

// Threads lists the known thread IDs.
func (s *Service) Threads(ctx context.Context) ([]string, error) {
	if s.sessions == nil {
		return nil, nil
	}
	return s.sessions.Threads(ctx)
}
