package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/graph"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/state"
)

const monthlyChartMonths = 12

const reportSystemPrompt = `Você é um analista de saúde pública especializado em SRAG (Síndrome Respiratória Aguda Grave).

Sua tarefa é gerar um relatório conciso e informativo sobre a situação atual de SRAG no Brasil, baseado em:
1. Métricas calculadas do banco de dados DATASUS
2. Notícias recentes sobre SRAG

O relatório deve:
- Explicar cada métrica de forma clara
- Contextualizar os números com as notícias recentes
- Identificar tendências e padrões
- Ser objetivo e baseado em dados
- Ter no máximo 500 palavras

Formato do relatório:
# Relatório SRAG - [Data]

## Resumo Executivo
[Principais achados em 2-3 frases]

## Métricas Principais

### 1. Taxa de Aumento de Casos
[Explicação da métrica e interpretação]

### 2. Taxa de Mortalidade
[Explicação da métrica e interpretação]

### 3. Taxa de Ocupação de UTI
[Explicação da métrica e interpretação]

### 4. Taxa de Vacinação
[Explicação da métrica e interpretação]

## Contexto de Notícias Recentes
[Como as notícias relacionam-se com as métricas]

## Conclusão
[Síntese e implicações]`

// ReportSchema declares the state fields of the report workflow and their
// merge behavior. The gather branches run concurrently, so every field they
// write is either branch-exclusive (keep-latest) or accumulative (append).
func ReportSchema() *state.Schema {
	return state.NewSchema().
		AddField(KeyDays, state.Field{Reducer: state.KeepFirst, Default: func() any { return 30 }}).
		AddField(KeyRegion, state.Field{Reducer: state.KeepFirst}).
		AddField(KeyMessages, state.Field{Reducer: state.Append}).
		AddField(KeyMetrics, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyNewsContext, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyNewsCitations, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyChartData, state.Field{Reducer: state.KeepLatest}).
		AddField(KeySQLLog, state.Field{Reducer: state.Append}).
		AddField(KeyToolLog, state.Field{Reducer: state.Append}).
		AddField(KeyFinalReport, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyAudit, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyError, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyExhausted, state.Field{Reducer: state.KeepLatest})
}

// reportDeps are the collaborators the report steps close over.
type reportDeps struct {
	metrics ports.MetricsProvider
	news    ports.NewsProvider
	model   ports.Model
	clock   func() time.Time
}

// BuildReport assembles the deterministic report topology: a three-way
// fan-out of gather steps, a model synthesis fan-in, then the audit step.
func BuildReport(metrics ports.MetricsProvider, news ports.NewsProvider, model ports.Model, clock func() time.Time) (*graph.Topology, error) {
	if clock == nil {
		clock = time.Now
	}
	d := reportDeps{metrics: metrics, news: news, model: model, clock: clock}

	return graph.NewBuilder(TopologyReport).
		AddStep(graph.Step{
			Name:   "prepare",
			Run:    d.prepare,
			Reads:  []string{KeyDays, KeyRegion},
			Writes: []string{KeyMessages},
		}).
		AddStep(graph.Step{
			Name:   "calculate_metrics",
			Run:    d.calculateMetrics,
			Reads:  []string{KeyDays, KeyRegion},
			Writes: []string{KeyMetrics, KeySQLLog, KeyToolLog, KeyMessages},
		}).
		AddStep(graph.Step{
			Name:   "fetch_news",
			Run:    d.fetchNews,
			Reads:  []string{KeyDays},
			Writes: []string{KeyNewsContext, KeyNewsCitations, KeyToolLog, KeyMessages},
		}).
		AddStep(graph.Step{
			Name:   "generate_charts",
			Run:    d.generateCharts,
			Reads:  []string{KeyDays},
			Writes: []string{KeyChartData, KeyToolLog, KeyMessages},
		}).
		AddStep(graph.Step{
			Name:   "write_report",
			Run:    d.writeReport,
			Reads:  []string{KeyMetrics, KeyNewsContext},
			Writes: []string{KeyFinalReport, KeyMessages},
		}).
		AddStep(graph.Step{
			Name:   "create_audit",
			Run:    d.createAudit,
			Writes: []string{KeyAudit, KeyMessages},
		}).
		SetEntry("prepare").
		AddEdge("prepare", "calculate_metrics").
		AddEdge("prepare", "fetch_news").
		AddEdge("prepare", "generate_charts").
		AddEdge("calculate_metrics", "write_report").
		AddEdge("fetch_news", "write_report").
		AddEdge("generate_charts", "write_report").
		AddEdge("write_report", "create_audit").
		AddEdge("create_audit", graph.End).
		Compile()
}

// prepare opens the run transcript. Parameter normalization happens before
// the run starts, because days and region are keep-first fields.
func (d reportDeps) prepare(_ context.Context, s state.State) (state.State, error) {
	note := fmt.Sprintf("Starting SRAG report generation for the last %d days", s.Int(KeyDays))
	if region := s.String(KeyRegion); region != "" {
		note += " filtered to " + region
	}
	return state.State{
		KeyMessages: []domain.Message{domain.NewAssistantMessage(note)},
	}, nil
}

func (d reportDeps) calculateMetrics(ctx context.Context, s state.State) (state.State, error) {
	days := s.Int(KeyDays)
	region := s.String(KeyRegion)
	started := d.clock()

	set, err := d.metrics.Metrics(ctx, days, region)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate metrics: %w", err)
	}

	note := fmt.Sprintf("Calculated all 4 SRAG metrics for last %d days", days)
	if region != "" {
		note += " in state " + region
	}

	return state.State{
		KeyMetrics: set,
		KeySQLLog: []map[string]any{{
			"operation":    "calculate_metrics",
			"timestamp":    started.UTC().Format(time.RFC3339),
			"days":         days,
			"state_filter": region,
		}},
		KeyToolLog:  []domain.ToolInvocation{invocationRecord("get_metrics", map[string]any{"days": days, "state": region}, note, started, d.clock())},
		KeyMessages: []domain.Message{domain.NewAssistantMessage(note)},
	}, nil
}

func (d reportDeps) fetchNews(ctx context.Context, s state.State) (state.State, error) {
	days := s.Int(KeyDays)
	started := d.clock()

	articles, err := d.news.Search(ctx, "SRAG síndrome respiratória aguda grave Brasil", days, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}

	citations := make([]map[string]any, 0, len(articles))
	var contextB strings.Builder
	for i, a := range articles {
		citations = append(citations, map[string]any{
			"title":     a.Title,
			"url":       a.URL,
			"published": a.Published.Format("2006-01-02"),
		})
		fmt.Fprintf(&contextB, "%d. %s (%s)\n   %s\n", i+1, a.Title, a.Published.Format("2006-01-02"), a.Excerpt)
	}

	note := fmt.Sprintf("Fetched %d recent news articles about SRAG from last %d days", len(articles), days)
	return state.State{
		KeyNewsContext:   contextB.String(),
		KeyNewsCitations: citations,
		KeyToolLog:       []domain.ToolInvocation{invocationRecord("search_news", map[string]any{"days": days}, note, started, d.clock())},
		KeyMessages:      []domain.Message{domain.NewAssistantMessage(note)},
	}, nil
}

func (d reportDeps) generateCharts(ctx context.Context, s state.State) (state.State, error) {
	days := s.Int(KeyDays)
	started := d.clock()

	daily, err := d.metrics.DailySeries(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily series: %w", err)
	}
	monthly, err := d.metrics.MonthlySeries(ctx, monthlyChartMonths)
	if err != nil {
		return nil, fmt.Errorf("failed to build monthly series: %w", err)
	}

	note := fmt.Sprintf("Generated chart data: %d daily points, %d monthly points", len(daily), len(monthly))
	return state.State{
		KeyChartData: map[string]any{
			"daily":   daily,
			"monthly": monthly,
		},
		KeyToolLog:  []domain.ToolInvocation{invocationRecord("get_chart_series", map[string]any{"days": days, "months": monthlyChartMonths}, note, started, d.clock())},
		KeyMessages: []domain.Message{domain.NewAssistantMessage(note)},
	}, nil
}

func (d reportDeps) writeReport(ctx context.Context, s state.State) (state.State, error) {
	metricsJSON, err := json.MarshalIndent(s[KeyMetrics], "", "  ")
	if err != nil {
		metricsJSON = []byte("{}")
	}

	userPrompt := fmt.Sprintf("Gere o relatório baseado nestes dados:\n\nMÉTRICAS:\n```json\n%s\n```\n\nNOTÍCIAS RECENTES:\n%s\n\nGere o relatório seguindo o formato especificado.",
		metricsJSON, s.String(KeyNewsContext))
	if errMsg := s.String(KeyError); errMsg != "" {
		userPrompt += fmt.Sprintf("\n\nATENÇÃO: parte da coleta de dados falhou (%s). Indique a lacuna no relatório.", errMsg)
	}

	reply, err := d.model.Complete(ctx, ports.ModelRequest{
		Messages: []domain.Message{
			domain.NewSystemMessage(reportSystemPrompt),
			domain.NewHumanMessage(userPrompt),
		},
		Temperature: 0.3,
	})
	if err != nil {
		// Synthesis failures still produce a report field so the audit and
		// the caller see a terminal artifact.
		return state.State{
			KeyFinalReport: fmt.Sprintf("Erro ao gerar relatório: %v", err),
			KeyError:       err.Error(),
			KeyMessages:    []domain.Message{domain.NewAssistantMessage(fmt.Sprintf("Error writing report: %v", err))},
		}, nil
	}

	return state.State{
		KeyFinalReport: reply.Content,
		KeyMessages:    []domain.Message{domain.NewAssistantMessage("Report generated successfully")},
	}, nil
}

func (d reportDeps) createAudit(_ context.Context, s state.State) (state.State, error) {
	status := "success"
	if s.String(KeyError) != "" {
		status = "error"
	}

	transcript := []map[string]string{}
	for _, msg := range s.Messages(KeyMessages) {
		transcript = append(transcript, map[string]string{
			"role":    string(msg.Role),
			"content": truncateRunes(msg.Content, 200),
		})
	}

	audit := map[string]any{
		"timestamp":      d.clock().UTC().Format(time.RFC3339),
		"metrics":        s[KeyMetrics],
		"news_citations": s[KeyNewsCitations],
		"sql_log":        s[KeySQLLog],
		"tool_log":       s[KeyToolLog],
		"chart_summary":  chartSummary(s[KeyChartData]),
		"messages":       transcript,
		"status":         status,
		"error":          s.String(KeyError),
	}

	return state.State{
		KeyAudit:    audit,
		KeyMessages: []domain.Message{domain.NewAssistantMessage("Audit trail created")},
	}, nil
}

func chartSummary(v any) map[string]int {
	summary := map[string]int{"daily_points": 0, "monthly_points": 0}
	data, ok := v.(map[string]any)
	if !ok {
		return summary
	}
	summary["daily_points"] = seriesLen(data["daily"])
	summary["monthly_points"] = seriesLen(data["monthly"])
	return summary
}

func seriesLen(v any) int {
	switch s := v.(type) {
	case []domain.ChartPoint:
		return len(s)
	case []any:
		return len(s)
	default:
		return 0
	}
}

func invocationRecord(name string, args map[string]any, result string, started, finished time.Time) domain.ToolInvocation {
	return domain.ToolInvocation{
		Name:      name,
		Args:      args,
		Result:    result,
		StartedAt: started.UTC(),
		Duration:  finished.Sub(started),
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
