package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
)

// AllowedTables are the only tables exposed to the model.
var AllowedTables = []string{"srag_cases", "monthly_metrics", "daily_metrics", "data_dictionary"}

type schemaArgs struct {
	Table string `json:"table_name"`
}

// NewGetTableSchema builds the get_table_schema tool over the query executor.
func NewGetTableSchema(executor ports.QueryExecutor) registry.Func {
	return registry.Func{
		ToolName: "get_table_schema",
		ToolDescription: "Obter o schema (nomes e tipos das colunas) de uma tabela do banco. " +
			"SEMPRE consulte o schema antes de escrever uma query SQL. " +
			"Tabelas disponíveis: " + strings.Join(AllowedTables, ", ") + ".",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table_name": map[string]any{
					"type":        "string",
					"description": "Nome da tabela",
				},
			},
			"required": []string{"table_name"},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			var in schemaArgs
			if err := registry.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if !tableAllowed(in.Table) {
				return nil, fmt.Errorf("tabela %q não permitida; tabelas disponíveis: %s",
					in.Table, strings.Join(AllowedTables, ", "))
			}

			schema, err := executor.Schema(ctx, in.Table)
			if err != nil {
				return nil, fmt.Errorf("failed to read schema for %q: %w", in.Table, err)
			}
			return schema, nil
		},
	}
}

func tableAllowed(name string) bool {
	for _, t := range AllowedTables {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	return false
}
