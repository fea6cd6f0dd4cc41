// Package tools defines the domain tools exposed to the model and to the
// deterministic report workflow. Each tool is a thin adapter over a
// collaborator port: it decodes arguments, calls the port, and formats the
// result as text the model can read back. Errors are returned as errors and
// turned into conversational data by the dispatcher, never panics.
package tools
