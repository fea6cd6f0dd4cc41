package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/epivigil/epivigil/pkg/guardrails"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
)

// BaseNewsQuery anchors every search to the surveillance domain, so user
// terms refine rather than replace it.
const BaseNewsQuery = "SRAG síndrome respiratória aguda grave COVID-19 Brasil"

const maxArticles = 10

type newsArgs struct {
	Query string `json:"query"`
	Days  int    `json:"days"`
}

// NewSearchNews builds the search_news tool over the news provider.
func NewSearchNews(provider ports.NewsProvider, guard *guardrails.Guard) registry.Func {
	return registry.Func{
		ToolName: "search_news",
		ToolDescription: "Buscar notícias recentes sobre SRAG e surtos respiratórios. " +
			"Aceita termos adicionais de busca (ex: \"São Paulo\", \"surto gripe\").",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Termos adicionais de busca, opcional",
				},
				"days": map[string]any{
					"type":        "integer",
					"description": "Quantos dias para trás buscar (padrão 30)",
				},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			var in newsArgs
			if err := registry.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Days <= 0 {
				in.Days = 30
			}

			query := BaseNewsQuery
			if in.Query != "" {
				query = BaseNewsQuery + " " + in.Query
			}

			articles, err := provider.Search(ctx, query, in.Days, maxArticles)
			if err != nil {
				return nil, fmt.Errorf("failed to search news: %w", err)
			}
			if len(articles) == 0 {
				scope := "SRAG"
				if in.Query != "" {
					scope = fmt.Sprintf("%q", in.Query)
				}
				return fmt.Sprintf("Nenhuma notícia encontrada sobre %s nos últimos %d dias.", scope, in.Days), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Encontradas %d notícias relevantes:\n\n", len(articles))
			for i, a := range articles {
				fmt.Fprintf(&b, "%d. **%s**\n", i+1, a.Title)
				fmt.Fprintf(&b, "   Fonte: %s\n", a.URL)
				fmt.Fprintf(&b, "   Data: %s\n", a.Published.Format("2006-01-02"))
				if a.Excerpt != "" {
					fmt.Fprintf(&b, "   Resumo: %s\n", truncate(a.Excerpt, 200))
				}
				b.WriteString("\n")
			}
			return guard.ScrubPII(strings.TrimRight(b.String(), "\n")), nil
		},
	}
}
