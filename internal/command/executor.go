// Package command provides the text command system used by the CLI's remote mode
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/preview"
	"github.com/dynodocs/template-engine/internal/store"
	"github.com/dynodocs/template-engine/internal/tenant"
)

// Executor executes commands
type Executor struct {
	store   *store.Store
	tenants *tenant.Registry
	queue   *jobs.Queue
	preview *preview.Service
}

// NewExecutor creates a new command executor
func NewExecutor(st *store.Store, tenants *tenant.Registry, queue *jobs.Queue, pv *preview.Service) *Executor {
	return &Executor{
		store:   st,
		tenants: tenants,
		queue:   queue,
		preview: pv,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

type scopeKey struct{}

// WithTenantScope pins render, job and tenant commands run with ctx to
// tenantID
func WithTenantScope(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, scopeKey{}, tenantID)
}

func tenantScope(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scopeKey{}).(string)
	return id, ok
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return failure("empty command")
	}

	command := parts[0]
	args := parts[1:]

	switch command {
	case "template":
		return e.handleTemplate(ctx, args)
	case "render":
		return e.handleRender(ctx, args)
	case "job":
		return e.handleJob(ctx, args)
	case "tenant":
		return e.handleTenant(ctx, args)
	case "help":
		return e.handleHelp(args)
	default:
		return failure("unknown command: %s. Type 'help' for available commands", command)
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		switch {
		case char == '"' || char == '\'':
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		case char == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
