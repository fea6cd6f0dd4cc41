package workflows

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
)

// scriptedModel replays a fixed sequence of replies.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []ports.ModelReply
	requests []ports.ModelRequest
}

func (m *scriptedModel) Complete(_ context.Context, req ports.ModelRequest) (ports.ModelReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return ports.ModelReply{Content: "sem resposta"}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

type stubMetrics struct{}

func (stubMetrics) Metrics(context.Context, int, string) (domain.MetricSet, error) {
	return domain.MetricSet{
		CaseIncrease: domain.CaseIncrease{IncreaseRate: 15.0, CurrentPeriodCases: 920, PreviousPeriodCases: 800},
		Mortality:    domain.Mortality{MortalityRate: 8.7, TotalDeaths: 80, TotalCases: 920},
		ICUOccupancy: domain.ICUOccupancy{OccupancyRate: 33.0, ICUAdmissions: 66, TotalHospitalizations: 200},
		Vaccination:  domain.Vaccination{VaccinationRate: 61.0, VaccinatedCases: 561, FullVaccinationRate: 44.0},
	}, nil
}

func (stubMetrics) DailySeries(_ context.Context, days int) ([]domain.ChartPoint, error) {
	points := make([]domain.ChartPoint, days)
	for i := range points {
		points[i] = domain.ChartPoint{Label: fmt.Sprintf("d%d", i), Cases: i}
	}
	return points, nil
}

func (stubMetrics) MonthlySeries(_ context.Context, months int) ([]domain.ChartPoint, error) {
	points := make([]domain.ChartPoint, months)
	for i := range points {
		points[i] = domain.ChartPoint{Label: fmt.Sprintf("m%d", i), Cases: i * 10}
	}
	return points, nil
}

type stubQuery struct {
	schema string
	rows   []map[string]any
}

func (q stubQuery) Schema(context.Context, string) (string, error) { return q.schema, nil }
func (q stubQuery) Query(context.Context, string) ([]map[string]any, error) {
	return q.rows, nil
}

type stubDictionary struct{}

func (stubDictionary) Lookup(context.Context, string) (domain.FieldDef, bool, error) {
	return domain.FieldDef{}, false, nil
}

func (stubDictionary) Search(context.Context, string, int) ([]domain.FieldDef, error) {
	return nil, nil
}

type stubNews struct{}

func (stubNews) Search(_ context.Context, _ string, days, _ int) ([]domain.Article, error) {
	return []domain.Article{
		{Title: "Aumento de casos no inverno", URL: "https://noticias.example/a", Excerpt: "resumo", Published: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
	}, nil
}

func newService(t *testing.T, model ports.Model, opts ...Option) *Service {
	t.Helper()
	svc, err := New(Collaborators{
		Model:      model,
		Metrics:    stubMetrics{},
		Query:      stubQuery{schema: "DT_NOTIFIC date\nEVOLUCAO int"},
		Dictionary: stubDictionary{},
		News:       stubNews{},
	}, opts...)
	require.NoError(t, err)
	return svc
}

func TestRunTopologyUnknownName(t *testing.T) {
	svc := newService(t, &scriptedModel{})

	_, _, err := svc.RunTopology(context.Background(), "ghost", nil, "")
	assert.ErrorIs(t, err, domain.ErrUnknownTopology)
}

// Scenario A: one report run populates every projection field and records
// one audit entry per gather step.
func TestReportScenario(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{
		{Content: "# Relatório SRAG\n\nSituação estável."},
	}}
	store := memory.NewStore()
	svc := newService(t, model, WithStore(store))

	res, err := svc.Report(context.Background(), ReportRequest{Days: 30, Region: "sp"})
	require.NoError(t, err)

	assert.Contains(t, res.Report, "Relatório SRAG")
	assert.NotNil(t, res.Metrics)
	assert.NotNil(t, res.ChartData)
	assert.NotNil(t, res.NewsCitations)
	assert.NotNil(t, res.Audit)
	assert.Empty(t, res.Err)
	assert.False(t, res.Exhausted)
	assert.NotEmpty(t, res.ThreadID)

	audit, ok := res.Audit.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", audit["status"])
	log, ok := audit["tool_log"].([]domain.ToolInvocation)
	require.True(t, ok)
	names := make([]string, 0, len(log))
	for _, inv := range log {
		names = append(names, inv.Name)
	}
	assert.ElementsMatch(t, []string{"get_metrics", "search_news", "get_chart_series"}, names)

	// The model saw the metrics and the news context in its prompt.
	require.Len(t, model.requests, 1)
	prompt := model.requests[0].Messages[1].Content
	assert.Contains(t, prompt, "increase_rate")
	assert.Contains(t, prompt, "Aumento de casos no inverno")

	// Every wave appended a checkpoint.
	history, err := store.History(context.Background(), res.ThreadID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

// Scenario B: two sequential tool calls appear in history in the requested
// order before the final answer.
func TestChatSequentialToolCalls(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "get_table_schema", Args: map[string]any{"table_name": "srag_cases"}}}},
		{ToolCalls: []domain.ToolCall{{ID: "c2", Name: "query_database", Args: map[string]any{"sql_query": "SELECT count(*) FROM srag_cases"}}}},
		{Content: "A tabela tem 165 mil casos."},
	}}
	store := memory.NewStore()
	svc := newService(t, model, WithStore(store))

	res, err := svc.Chat(context.Background(), ChatRequest{Message: "Quantos casos existem?", ThreadID: "t-seq"})
	require.NoError(t, err)

	assert.Equal(t, "A tabela tem 165 mil casos.", res.Response)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "get_table_schema", res.ToolCalls[0].Name)
	assert.Equal(t, "query_database", res.ToolCalls[1].Name)

	// The final model request carries both tool results, in order, before
	// the final answer was produced.
	final := model.requests[len(model.requests)-1]
	var toolNames []string
	for _, msg := range final.Messages {
		if msg.Role == domain.RoleTool {
			toolNames = append(toolNames, msg.ToolName)
		}
	}
	assert.Equal(t, []string{"get_table_schema", "query_database"}, toolNames)
}

// Scenario C: PII in the model's answer is redacted in the response while
// the underlying tool data is untouched.
func TestChatResponseRedaction(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{
		{Content: "O paciente com CPF 123.456.789-00 evoluiu para cura."},
	}}
	svc := newService(t, model)

	res, err := svc.Chat(context.Background(), ChatRequest{Message: "E o caso?", ThreadID: "t-pii"})
	require.NoError(t, err)

	assert.NotContains(t, res.Response, "123.456.789-00")
	assert.Contains(t, res.Response, "[CPF_REDACTED]")
}

// A model that always requests another tool terminates within the ceiling
// with the exhausted flag and a best-effort answer.
func TestChatLoopExhaustion(t *testing.T) {
	replies := make([]ports.ModelReply, 0, 64)
	for i := 0; i < 64; i++ {
		replies = append(replies, ports.ModelReply{
			ToolCalls: []domain.ToolCall{{ID: fmt.Sprintf("c%d", i), Name: "get_metrics", Args: map[string]any{}}},
		})
	}
	model := &scriptedModel{replies: replies}
	svc := newService(t, model, WithStepCeiling(6))

	res, err := svc.Chat(context.Background(), ChatRequest{Message: "loop", ThreadID: "t-loop"})
	require.NoError(t, err)

	assert.True(t, res.Exhausted)
	assert.NotEmpty(t, res.Response)
	assert.LessOrEqual(t, len(model.requests), 6)
}

// A second turn on the same thread resumes the persisted conversation.
func TestChatResume(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{
		{Content: "Primeira resposta."},
		{Content: "Segunda resposta."},
	}}
	store := memory.NewStore()
	svc := newService(t, model, WithStore(store))
	ctx := context.Background()

	_, err := svc.Chat(ctx, ChatRequest{Message: "Oi", ThreadID: "t-resume"})
	require.NoError(t, err)

	_, err = svc.Chat(ctx, ChatRequest{Message: "Continuando", ThreadID: "t-resume"})
	require.NoError(t, err)

	// The second turn's model request contains the whole prior exchange.
	second := model.requests[len(model.requests)-1]
	var contents []string
	for _, msg := range second.Messages {
		contents = append(contents, msg.Content)
	}
	joined := strings.Join(contents, "\n")
	assert.Contains(t, joined, "Oi")
	assert.Contains(t, joined, "Primeira resposta.")
	assert.Contains(t, joined, "Continuando")

	// The system directive is seeded exactly once.
	systemCount := 0
	for _, msg := range second.Messages {
		if msg.Role == domain.RoleSystem {
			systemCount++
		}
	}
	assert.Equal(t, 1, systemCount)
}

// Input sanitization strips injection fragments before the message enters
// the conversation.
func TestChatInputSanitized(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{{Content: "ok"}}}
	svc := newService(t, model)

	_, err := svc.Chat(context.Background(), ChatRequest{Message: "oi; DROP TABLE srag_cases", ThreadID: "t-inj"})
	require.NoError(t, err)

	first := model.requests[0]
	last := first.Messages[len(first.Messages)-1]
	assert.Equal(t, domain.RoleHuman, last.Role)
	assert.NotContains(t, strings.ToUpper(last.Content), "DROP TABLE")
}

// A failing gather branch still reaches the exit: error is recorded, the
// sibling outputs survive and the synthesis explains the gap.
func TestReportGatherFailureStillCompletes(t *testing.T) {
	model := &scriptedModel{replies: []ports.ModelReply{
		{Content: "Relatório com lacuna de notícias."},
	}}
	svc, err := New(Collaborators{
		Model:      model,
		Metrics:    stubMetrics{},
		Query:      stubQuery{},
		Dictionary: stubDictionary{},
		News:       failingNews{},
	})
	require.NoError(t, err)

	res, err := svc.Report(context.Background(), ReportRequest{Days: 30})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Err)
	assert.NotNil(t, res.Metrics)
	assert.Contains(t, res.Report, "Relatório")
	audit := res.Audit.(map[string]any)
	assert.Equal(t, "error", audit["status"])
}

type failingNews struct{}

func (failingNews) Search(context.Context, string, int, int) ([]domain.Article, error) {
	return nil, fmt.Errorf("news provider unavailable")
}
