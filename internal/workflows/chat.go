package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/graph"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
	"github.com/epivigil/epivigil/pkg/state"
)

// ChatSystemPrompt directs the assistant: Portuguese answers, schema-first
// SQL discipline, no invented numbers.
const ChatSystemPrompt = `Você é um assistente especializado em dados de SRAG (Síndrome Respiratória Aguda Grave) do Brasil.

Você tem acesso às seguintes ferramentas:
- get_table_schema: Obter nomes e tipos das colunas de uma tabela
- lookup_field: Consultar o dicionário de dados para entender o SIGNIFICADO de colunas e seus valores válidos
- query_database: Consultar o banco de dados SRAG com SQL
- search_news: Buscar notícias recentes sobre SRAG e surtos respiratórios
- get_metrics: Obter métricas atuais (taxa de casos, mortalidade, UTI, vacinação)

Tabelas disponíveis:
- srag_cases: Casos individuais de SRAG (~165K registros)
- monthly_metrics: Métricas mensais agregadas
- daily_metrics: Métricas diárias agregadas
- data_dictionary: Dicionário de dados

IMPORTANTE - Fluxo para consultas SQL:
1. PRIMEIRO: Use get_table_schema para ver as colunas disponíveis e seus tipos
2. SEGUNDO: Use lookup_field para entender o SIGNIFICADO das colunas relevantes e seus valores válidos
   - Exemplo: lookup_field("EVOLUCAO") revela que 1=Cura, 2=Óbito, 3=Óbito por outras causas
   - Exemplo: lookup_field("VACINA_COV") revela que 1=Sim, 2=Não, 9=Ignorado
   - Isso é ESSENCIAL para saber como filtrar corretamente!
3. TERCEIRO: Agora sim, escreva a query SQL com os filtros corretos

Diretrizes:
- Sempre responda em português
- Seja conciso e objetivo
- Quando usar dados do banco, cite a fonte e mostre números específicos
- Nunca invente dados - use as ferramentas disponíveis para obter informações precisas
- Se não souber algo, diga que não sabe e sugira como o usuário pode obter a informação`

// ChatSchema declares the chat state fields. The conversation and the tool
// audit accumulate; the extracted response is latest-wins.
func ChatSchema() *state.Schema {
	return state.NewSchema().
		AddField(KeyMessages, state.Field{Reducer: state.Append}).
		AddField(KeyToolLog, state.Field{Reducer: state.Append}).
		AddField(KeyResponse, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyError, state.Field{Reducer: state.KeepLatest}).
		AddField(KeyExhausted, state.Field{Reducer: state.KeepLatest})
}

type chatDeps struct {
	model      ports.Model
	dispatcher *registry.Dispatcher
	specs      []domain.ToolSpec
}

// BuildChat assembles the bounded autonomous loop: the assistant step asks
// the model for either a final answer or tool calls; tool-call replies route
// to the tools step, which dispatches them in requested order and loops back.
// The executor's step ceiling bounds the cycle.
func BuildChat(model ports.Model, dispatcher *registry.Dispatcher, specs []domain.ToolSpec) (*graph.Topology, error) {
	d := chatDeps{model: model, dispatcher: dispatcher, specs: specs}

	return graph.NewBuilder(TopologyChat).
		AddStep(graph.Step{
			Name:   "assistant",
			Run:    d.assistant,
			Reads:  []string{KeyMessages},
			Writes: []string{KeyMessages, KeyResponse},
		}).
		AddStep(graph.Step{
			Name:   "tools",
			Run:    d.tools,
			Reads:  []string{KeyMessages},
			Writes: []string{KeyMessages, KeyToolLog},
		}).
		SetEntry("assistant").
		AddConditional("assistant", routeAfterAssistant, "tools", graph.End).
		AddEdge("tools", "assistant").
		AllowCycle().
		Compile()
}

// assistant runs one model turn over the full history.
func (d chatDeps) assistant(ctx context.Context, s state.State) (state.State, error) {
	messages := s.Messages(KeyMessages)

	reply, err := d.model.Complete(ctx, ports.ModelRequest{
		Messages:    messages,
		Tools:       d.specs,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("model completion failed: %w", err)
	}

	turn := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		ToolCalls: reply.ToolCalls,
	}
	partial := state.State{KeyMessages: []domain.Message{turn}}
	if len(reply.ToolCalls) == 0 {
		partial[KeyResponse] = reply.Content
	}
	return partial, nil
}

// tools dispatches the pending calls of the last assistant turn, strictly in
// the order the model requested them, and appends one tool message plus one
// audit record per call.
func (d chatDeps) tools(ctx context.Context, s state.State) (state.State, error) {
	calls := pendingToolCalls(s.Messages(KeyMessages))
	if len(calls) == 0 {
		return state.State{}, nil
	}

	messages := make([]domain.Message, 0, len(calls))
	log := make([]domain.ToolInvocation, 0, len(calls))

	for _, call := range calls {
		result, invocation := d.dispatcher.Dispatch(ctx, call)
		messages = append(messages, domain.NewToolMessage(call.ID, call.Name, renderResult(result)))
		log = append(log, invocation)
	}

	return state.State{
		KeyMessages: messages,
		KeyToolLog:  log,
	}, nil
}

// routeAfterAssistant sends tool-call turns to the tools step and plain
// answers to the exit.
func routeAfterAssistant(s state.State) string {
	messages := s.Messages(KeyMessages)
	if len(messages) == 0 {
		return graph.End
	}
	last := messages[len(messages)-1]
	if last.Role == domain.RoleAssistant && len(last.ToolCalls) > 0 {
		return "tools"
	}
	return graph.End
}

// pendingToolCalls returns the calls of the trailing assistant message.
func pendingToolCalls(messages []domain.Message) []domain.ToolCall {
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case domain.RoleAssistant:
			return messages[i].ToolCalls
		case domain.RoleTool:
			// Calls before an existing tool result were already dispatched.
			return nil
		}
	}
	return nil
}

// renderResult flattens a tool result into message text the model reads back.
func renderResult(result domain.ToolResult) string {
	if result.IsError {
		return "Erro: " + result.Error
	}
	switch v := result.Result.(type) {
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
