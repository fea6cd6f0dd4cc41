package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
)

const similarFields = 3

type lookupArgs struct {
	Field string `json:"field_name"`
}

// NewLookupField builds the lookup_field tool over the data dictionary.
// An exact match returns the full definition; otherwise the closest fields
// are listed with their similarity scores.
func NewLookupField(dict ports.Dictionary) registry.Func {
	return registry.Func{
		ToolName: "lookup_field",
		ToolDescription: "Consultar a definição de um campo no dicionário de dados SRAG. " +
			"Use antes de escrever SQL para entender o significado das colunas e seus valores válidos " +
			"(ex: EVOLUCAO: 1=Cura, 2=Óbito).",
		ToolSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"field_name": map[string]any{
					"type":        "string",
					"description": "Nome do campo a consultar (ex: EVOLUCAO, VACINA_COV, UTI)",
				},
			},
			"required": []string{"field_name"},
		},
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			var in lookupArgs
			if err := registry.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if strings.TrimSpace(in.Field) == "" {
				return nil, fmt.Errorf("field_name é obrigatório")
			}

			field, found, err := dict.Lookup(ctx, in.Field)
			if err != nil {
				return nil, fmt.Errorf("failed to look up field %q: %w", in.Field, err)
			}
			if found {
				return explainField(field), nil
			}

			similar, err := dict.Search(ctx, in.Field, similarFields)
			if err != nil {
				return nil, fmt.Errorf("failed to search dictionary: %w", err)
			}
			if len(similar) == 0 {
				return fmt.Sprintf("Campo %q não encontrado. Verifique o nome ou tente uma busca diferente.", in.Field), nil
			}

			var b strings.Builder
			b.WriteString("Campo exato não encontrado. Campos similares:\n\n")
			for _, f := range similar {
				fmt.Fprintf(&b, "**%s**", f.Name)
				if f.DisplayName != "" {
					fmt.Fprintf(&b, " (%s)", f.DisplayName)
				}
				fmt.Fprintf(&b, "\nDescrição: %s\n", f.Description)
				if len(f.Values) > 0 {
					fmt.Fprintf(&b, "Valores: %s\n", formatValues(f.Values))
				}
				fmt.Fprintf(&b, "Similaridade: %.0f%%\n\n", f.Similarity*100)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func explainField(f domain.FieldDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", f.Name)
	if f.DisplayName != "" {
		fmt.Fprintf(&b, " (%s)", f.DisplayName)
	}
	fmt.Fprintf(&b, "\nDescrição: %s", f.Description)
	if len(f.Values) > 0 {
		fmt.Fprintf(&b, "\nValores válidos: %s", formatValues(f.Values))
	}
	return b.String()
}

func formatValues(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values[k])
	}
	return strings.Join(pairs, ", ")
}
