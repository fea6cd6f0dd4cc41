// Package ports defines the interfaces between the orchestration core and
// its adapters: checkpoint persistence, the language model, registered
// tools, and the external analytics collaborators.
package ports
