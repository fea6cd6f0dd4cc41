package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
)

type metricsArgs struct {
	Days   int    `json:"days"`
	Region string `json:"state"`
}

// NewGetMetrics builds the get_metrics tool over the metrics provider.
func NewGetMetrics(provider ports.MetricsProvider) registry.Func {
	return registry.Func{
		ToolName: "get_metrics",
		ToolDescription: "Obter as métricas atuais de SRAG: taxa de aumento de casos, " +
			"taxa de mortalidade, taxa de ocupação de UTI e taxa de vacinação.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{
					"type":        "integer",
					"description": "Período em dias para calcular as métricas (padrão 30)",
				},
				"state": map[string]any{
					"type":        "string",
					"description": "Sigla do estado brasileiro (ex: SP, RJ) ou vazio para nacional",
				},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			var in metricsArgs
			if err := registry.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Days <= 0 {
				in.Days = 30
			}

			metrics, err := provider.Metrics(ctx, in.Days, in.Region)
			if err != nil {
				return nil, fmt.Errorf("failed to compute metrics: %w", err)
			}

			scope := "Nacional"
			if in.Region != "" {
				scope = "Estado: " + in.Region
			}

			var b strings.Builder
			fmt.Fprintf(&b, "**Métricas SRAG - %s (últimos %d dias)**\n\n", scope, in.Days)
			fmt.Fprintf(&b, "**Taxa de Aumento de Casos**: %.1f%%\n", metrics.CaseIncrease.IncreaseRate)
			fmt.Fprintf(&b, "   Período atual: %d casos\n", metrics.CaseIncrease.CurrentPeriodCases)
			fmt.Fprintf(&b, "   Período anterior: %d casos\n\n", metrics.CaseIncrease.PreviousPeriodCases)
			fmt.Fprintf(&b, "**Taxa de Mortalidade**: %.1f%%\n", metrics.Mortality.MortalityRate)
			fmt.Fprintf(&b, "   Total de óbitos: %d\n", metrics.Mortality.TotalDeaths)
			fmt.Fprintf(&b, "   Total de casos: %d\n\n", metrics.Mortality.TotalCases)
			fmt.Fprintf(&b, "**Taxa de Ocupação de UTI**: %.1f%%\n", metrics.ICUOccupancy.OccupancyRate)
			fmt.Fprintf(&b, "   Admissões UTI: %d\n", metrics.ICUOccupancy.ICUAdmissions)
			fmt.Fprintf(&b, "   Total hospitalizações: %d\n\n", metrics.ICUOccupancy.TotalHospitalizations)
			fmt.Fprintf(&b, "**Taxa de Vacinação**: %.1f%%\n", metrics.Vaccination.VaccinationRate)
			fmt.Fprintf(&b, "   Casos vacinados: %d\n", metrics.Vaccination.VaccinatedCases)
			fmt.Fprintf(&b, "   Taxa vacinação completa: %.1f%%", metrics.Vaccination.FullVaccinationRate)

			return b.String(), nil
		},
	}
}
