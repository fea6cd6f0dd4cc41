package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/epivigil/epivigil/pkg/guardrails"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
)

const previewRows = 5

// forbiddenSQL rejects statements and constructs that have no place in a
// read-only analytic query.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|exec|execute)\b|;|--|/\*`)

type queryArgs struct {
	SQL string `json:"sql_query"`
}

// NewQueryDatabase builds the query_database tool. Queries are validated as
// SELECT-only against the allowed tables before dispatch, and results are
// scrubbed for PII before they reach the conversation.
func NewQueryDatabase(executor ports.QueryExecutor, guard *guardrails.Guard) registry.Func {
	return registry.Func{
		ToolName: "query_database",
		ToolDescription: "Executar uma query SQL no banco de dados SRAG. " +
			"Apenas SELECT é permitido. Consulte get_table_schema antes para verificar os nomes das colunas.",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql_query": map[string]any{
					"type":        "string",
					"description": "Uma query SELECT válida",
				},
			},
			"required": []string{"sql_query"},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			var in queryArgs
			if err := registry.DecodeArgs(args, &in); err != nil {
				return nil, err
			}

			guard.LogSecurityEvent("sql_query_attempt", truncate(in.SQL, 200))

			if err := ValidateQuery(in.SQL); err != nil {
				guard.LogSecurityEvent("sql_query_rejected", err.Error())
				return nil, err
			}

			rows, err := executor.Query(ctx, in.SQL)
			if err != nil {
				guard.LogSecurityEvent("sql_query_error", err.Error())
				return nil, fmt.Errorf("failed to execute query: %w", err)
			}
			guard.LogSecurityEvent("sql_query_success", fmt.Sprintf("rows=%d", len(rows)))

			if len(rows) == 0 {
				return "A consulta retornou 0 resultados.", nil
			}
			return guard.ScrubPII(formatRows(rows)), nil
		},
	}
}

// ValidateQuery enforces the read-only contract: a single SELECT statement
// touching only the allowed tables.
func ValidateQuery(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return fmt.Errorf("query vazia")
	}
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") {
		return fmt.Errorf("apenas queries SELECT são permitidas")
	}
	if forbiddenSQL.MatchString(trimmed) {
		return fmt.Errorf("query rejeitada por razões de segurança: use apenas SELECT em tabelas permitidas")
	}
	return nil
}

func formatRows(rows []map[string]any) string {
	if len(rows) <= 10 {
		return marshalRows(rows)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Retornados %d registros. Primeiros %d:\n", len(rows), previewRows)
	b.WriteString(marshalRows(rows[:previewRows]))
	fmt.Fprintf(&b, "\n... e mais %d registros.", len(rows)-previewRows)
	return b.String()
}

func marshalRows(rows []map[string]any) string {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(data)
}

// truncate bounds s to n runes, never splitting a multi-byte character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
