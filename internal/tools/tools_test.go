package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/guardrails"
)

// Port fakes

type fakeMetrics struct {
	gotDays   int
	gotRegion string
	set       domain.MetricSet
	err       error
}

func (f *fakeMetrics) Metrics(_ context.Context, days int, region string) (domain.MetricSet, error) {
	f.gotDays, f.gotRegion = days, region
	return f.set, f.err
}

func (f *fakeMetrics) DailySeries(context.Context, int) ([]domain.ChartPoint, error) {
	return nil, nil
}

func (f *fakeMetrics) MonthlySeries(context.Context, int) ([]domain.ChartPoint, error) {
	return nil, nil
}

type fakeExecutor struct {
	schema  string
	rows    []map[string]any
	gotSQL  string
	gotName string
	err     error
}

func (f *fakeExecutor) Schema(_ context.Context, table string) (string, error) {
	f.gotName = table
	return f.schema, f.err
}

func (f *fakeExecutor) Query(_ context.Context, sql string) ([]map[string]any, error) {
	f.gotSQL = sql
	return f.rows, f.err
}

type fakeDictionary struct {
	exact   domain.FieldDef
	found   bool
	similar []domain.FieldDef
}

func (f *fakeDictionary) Lookup(context.Context, string) (domain.FieldDef, bool, error) {
	return f.exact, f.found, nil
}

func (f *fakeDictionary) Search(context.Context, string, int) ([]domain.FieldDef, error) {
	return f.similar, nil
}

type fakeNews struct {
	gotQuery string
	gotDays  int
	articles []domain.Article
}

func (f *fakeNews) Search(_ context.Context, query string, days, _ int) ([]domain.Article, error) {
	f.gotQuery, f.gotDays = query, days
	return f.articles, nil
}

func TestGetMetricsDefaultsAndFormat(t *testing.T) {
	provider := &fakeMetrics{set: domain.MetricSet{
		CaseIncrease: domain.CaseIncrease{IncreaseRate: 12.5, CurrentPeriodCases: 900, PreviousPeriodCases: 800},
		Mortality:    domain.Mortality{MortalityRate: 9.1, TotalDeaths: 82, TotalCases: 900},
		ICUOccupancy: domain.ICUOccupancy{OccupancyRate: 31.0, ICUAdmissions: 62, TotalHospitalizations: 200},
		Vaccination:  domain.Vaccination{VaccinationRate: 55.5, VaccinatedCases: 500, FullVaccinationRate: 40.0},
	}}
	tool := NewGetMetrics(provider)

	out, err := tool.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, 30, provider.gotDays)
	assert.Equal(t, "", provider.gotRegion)
	text := out.(string)
	assert.Contains(t, text, "Nacional")
	assert.Contains(t, text, "12.5%")
	assert.Contains(t, text, "Taxa de Mortalidade")
}

func TestGetMetricsRegionFilter(t *testing.T) {
	provider := &fakeMetrics{}
	tool := NewGetMetrics(provider)

	out, err := tool.Invoke(context.Background(), map[string]any{"days": 7, "state": "SP"})
	require.NoError(t, err)

	assert.Equal(t, 7, provider.gotDays)
	assert.Equal(t, "SP", provider.gotRegion)
	assert.Contains(t, out.(string), "Estado: SP")
}

func TestGetTableSchemaRejectsUnknownTable(t *testing.T) {
	tool := NewGetTableSchema(&fakeExecutor{})

	_, err := tool.Invoke(context.Background(), map[string]any{"table_name": "users"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "não permitida")
}

func TestGetTableSchemaAllowedTable(t *testing.T) {
	executor := &fakeExecutor{schema: "DT_NOTIFIC date\nEVOLUCAO int"}
	tool := NewGetTableSchema(executor)

	out, err := tool.Invoke(context.Background(), map[string]any{"table_name": "srag_cases"})
	require.NoError(t, err)
	assert.Equal(t, "srag_cases", executor.gotName)
	assert.Contains(t, out.(string), "EVOLUCAO")
}

func TestValidateQuery(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		ok   bool
	}{
		{"plain select", "SELECT count(*) FROM srag_cases", true},
		{"lowercase select", "select * from daily_metrics limit 5", true},
		{"insert", "INSERT INTO srag_cases VALUES (1)", false},
		{"stacked statement", "SELECT 1; DROP TABLE srag_cases", false},
		{"comment injection", "SELECT * FROM srag_cases -- hide", false},
		{"empty", "   ", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuery(tc.sql)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestQueryDatabaseScrubsPII(t *testing.T) {
	executor := &fakeExecutor{rows: []map[string]any{
		{"nome": "paciente", "cpf": "123.456.789-00"},
	}}
	tool := NewQueryDatabase(executor, guardrails.New())

	out, err := tool.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT nome, cpf FROM srag_cases LIMIT 1",
	})
	require.NoError(t, err)

	text := out.(string)
	assert.NotContains(t, text, "123.456.789-00")
	assert.Contains(t, text, "[CPF_REDACTED]")
}

func TestQueryDatabaseEmptyResult(t *testing.T) {
	tool := NewQueryDatabase(&fakeExecutor{}, guardrails.New())

	out, err := tool.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT * FROM daily_metrics WHERE 1=0",
	})
	require.NoError(t, err)
	assert.Equal(t, "A consulta retornou 0 resultados.", out)
}

func TestQueryDatabaseSummarizesLargeResults(t *testing.T) {
	rows := make([]map[string]any, 25)
	for i := range rows {
		rows[i] = map[string]any{"i": i}
	}
	tool := NewQueryDatabase(&fakeExecutor{rows: rows}, guardrails.New())

	out, err := tool.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT i FROM daily_metrics",
	})
	require.NoError(t, err)
	text := out.(string)
	assert.Contains(t, text, "Retornados 25 registros")
	assert.Contains(t, text, "mais 20 registros")
}

func TestQueryDatabasePropagatesExecutorError(t *testing.T) {
	tool := NewQueryDatabase(&fakeExecutor{err: errors.New("connection refused")}, guardrails.New())

	_, err := tool.Invoke(context.Background(), map[string]any{
		"sql_query": "SELECT 1",
	})
	assert.Error(t, err)
}

func TestLookupFieldExactMatch(t *testing.T) {
	dict := &fakeDictionary{
		found: true,
		exact: domain.FieldDef{
			Name:        "EVOLUCAO",
			DisplayName: "Evolução do caso",
			Description: "Desfecho do caso notificado",
			Values:      map[string]string{"1": "Cura", "2": "Óbito"},
		},
	}
	tool := NewLookupField(dict)

	out, err := tool.Invoke(context.Background(), map[string]any{"field_name": "EVOLUCAO"})
	require.NoError(t, err)

	text := out.(string)
	assert.Contains(t, text, "EVOLUCAO")
	assert.Contains(t, text, "1=Cura, 2=Óbito")
}

func TestLookupFieldFallsBackToSimilarity(t *testing.T) {
	dict := &fakeDictionary{
		similar: []domain.FieldDef{
			{Name: "VACINA_COV", Description: "Vacina COVID-19", Similarity: 0.82},
		},
	}
	tool := NewLookupField(dict)

	out, err := tool.Invoke(context.Background(), map[string]any{"field_name": "vacina"})
	require.NoError(t, err)

	text := out.(string)
	assert.Contains(t, text, "Campos similares")
	assert.Contains(t, text, "VACINA_COV")
	assert.Contains(t, text, "82%")
}

func TestLookupFieldNotFound(t *testing.T) {
	tool := NewLookupField(&fakeDictionary{})

	out, err := tool.Invoke(context.Background(), map[string]any{"field_name": "XYZ"})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "não encontrado")
}

func TestSearchNewsAnchorsBaseQuery(t *testing.T) {
	provider := &fakeNews{articles: []domain.Article{
		{Title: "Casos em alta", URL: "https://example.org/a", Excerpt: "resumo", Published: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
	}}
	tool := NewSearchNews(provider, guardrails.New())

	out, err := tool.Invoke(context.Background(), map[string]any{"query": "São Paulo", "days": 14})
	require.NoError(t, err)

	assert.Equal(t, BaseNewsQuery+" São Paulo", provider.gotQuery)
	assert.Equal(t, 14, provider.gotDays)
	text := out.(string)
	assert.Contains(t, text, "Casos em alta")
	assert.Contains(t, text, "2026-08-20")
}

func TestSearchNewsNoResults(t *testing.T) {
	tool := NewSearchNews(&fakeNews{}, guardrails.New())

	out, err := tool.Invoke(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out.(string), "Nenhuma notícia encontrada")
}

// Truncation counts runes, so accented excerpts are never cut mid-character.
func TestTruncateKeepsUTF8Intact(t *testing.T) {
	s := strings.Repeat("ã", 10)

	out := truncate(s, 4)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("ã", 4), out)

	assert.Equal(t, s, truncate(s, 10))
	assert.Equal(t, s, truncate(s, 20))
}
