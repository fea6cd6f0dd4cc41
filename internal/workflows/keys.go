// Package workflows assembles the two production topologies over the shared
// executor: the deterministic report pipeline and the autonomous chat loop.
package workflows

import "github.com/epivigil/epivigil/pkg/graph"

// State field names shared by the workflows. The reserved executor fields
// (messages, error, exhausted) come from the graph package.
const (
	KeyMessages  = graph.KeyMessages
	KeyError     = graph.KeyError
	KeyExhausted = graph.KeyExhausted

	KeyDays          = "days"
	KeyRegion        = "region"
	KeyMetrics       = "metrics"
	KeyNewsContext   = "news_context"
	KeyNewsCitations = "news_citations"
	KeyChartData     = "chart_data"
	KeySQLLog        = "sql_log"
	KeyToolLog       = "tool_log"
	KeyFinalReport   = "final_report"
	KeyAudit         = "audit"
	KeyResponse      = "response"
)

// Topology names accepted by the service.
const (
	TopologyReport = "report"
	TopologyChat   = "chat"
)
