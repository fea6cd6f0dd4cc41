/*
Package epivigil is a workflow engine for epidemiological analytics over
Brazilian SRAG (Severe Acute Respiratory Syndrome) surveillance data.

It runs two workflows over a shared graph runtime: a deterministic report
pipeline that fans out over metrics, news and chart generation before
composing a cited situation report, and a conversational loop where a
language model selects analytic tools until it can answer.

# Concept

A workflow is a compiled topology of steps. Each step reads a snapshot of the
accumulated state and returns a partial update; a per-field reducer schema
merges concurrent partials deterministically. Fan-in steps wait for every
predecessor, declared cycles re-arm until a router exits, and a step ceiling
bounds runaway loops. Every wave of execution is checkpointed, so threads
survive restarts and can be resumed or audited later.

External collaborators (the model, the analytics backend, the news provider,
the field dictionary) enter through narrow interfaces, so the engine embeds in
any surface: the bundled CLI, the HTTP API, or an MCP server.

# Usage

Build an Engine from its collaborators and run a workflow:

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/epivigil/epivigil"
	)

	func main() {
		engine, err := epivigil.New(epivigil.Collaborators{
			Model:      model,      // ports.Model
			Metrics:    analytics,  // ports.MetricsProvider
			Query:      analytics,  // ports.QueryExecutor
			Dictionary: dict,       // ports.Dictionary
			News:       news,       // ports.NewsProvider
		})
		if err != nil {
			log.Fatal(err)
		}

		result, err := engine.Report(context.Background(), epivigil.ReportRequest{Days: 30})
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.Report)
	}

Persistence is opt-in: pass WithStore (in-memory or Redis backed) to enable
checkpointing and thread resumption, and WithLocker to serialize same-thread
runs across replicas.
*/
package epivigil
