package command

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/store"
	"github.com/dynodocs/template-engine/internal/tenant"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// handleTemplate handles template commands
// Usage: template list | show <id> | tokens <id> | validate <id> | create <name> <design-path>
func (e *Executor) handleTemplate(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return failure("usage: template <list|show|tokens|validate|create>")
	}

	switch args[0] {
	case "list":
		list, err := e.store.List(ctx)
		if err != nil {
			return failure("failed to list templates: %v", err)
		}
		return &Result{
			Success: true,
			Message: "Found " + pluralize(len(list), "template"),
			Data:    map[string]any{"templates": list},
		}

	case "show":
		if len(args) < 2 {
			return failure("usage: template show <id>")
		}
		t, err := e.store.Get(ctx, args[1])
		if err != nil {
			return notFoundOr(err, "template", args[1])
		}
		return &Result{
			Success: true,
			Message: t.Name,
			Data:    map[string]any{"template": t},
		}

	case "tokens":
		if len(args) < 2 {
			return failure("usage: template tokens <id>")
		}
		tokens, err := e.preview.Tokens(ctx, args[1])
		if err != nil {
			return notFoundOr(err, "template", args[1])
		}
		return &Result{
			Success: true,
			Message: "Found " + pluralize(len(tokens), "token"),
			Data:    map[string]any{"tokens": tokens},
		}

	case "validate":
		if len(args) < 2 {
			return failure("usage: template validate <id>")
		}
		t, err := e.store.Get(ctx, args[1])
		if err != nil {
			return notFoundOr(err, "template", args[1])
		}
		d := designformat.Parse(t.Design)
		if d == nil {
			return failure("template %s is not a readable design", args[1])
		}
		if err := designformat.Validate(d); err != nil {
			return failure("invalid design: %v", err)
		}
		return &Result{Success: true, Message: "Design is valid"}

	case "create":
		if len(args) < 3 {
			return failure("usage: template create <name> <design-path>")
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return failure("failed to read design file: %v", err)
		}
		if designformat.Parse(string(data)) == nil {
			return failure("%s is not a readable design", args[2])
		}
		t, err := e.store.Create(ctx, args[1], string(data), "")
		if err != nil {
			return failure("failed to create template: %v", err)
		}
		return &Result{
			Success: true,
			Message: "Created template " + t.ID,
			Data:    map[string]any{"template_id": t.ID},
		}

	default:
		return failure("unknown template subcommand: %s. Use: list, show, tokens, validate, create", args[0])
	}
}

// handleRender queues a render job
// Usage: render <template-id> [--width N] [--format png|html] [--tenant id]
func (e *Executor) handleRender(ctx context.Context, args []string) *Result {
	if len(args) < 1 {
		return failure("usage: render <template-id> [--width N] [--format png|html] [--tenant id]")
	}

	req := jobs.Request{TemplateID: args[0], Width: 595}
	for i := 1; i < len(args); i++ {
		flag := args[i]
		if i+1 >= len(args) {
			return failure("missing value for %s", flag)
		}
		value := args[i+1]
		i++

		switch flag {
		case "--width":
			w, err := strconv.ParseFloat(value, 64)
			if err != nil || w <= 0 {
				return failure("invalid width: %s", value)
			}
			req.Width = w
		case "--format":
			req.Format = value
		case "--tenant":
			req.TenantID = value
		default:
			return failure("unknown flag: %s", flag)
		}
	}

	if scope, ok := tenantScope(ctx); ok {
		if req.TenantID != "" && req.TenantID != scope {
			return failure("cannot render for another tenant")
		}
		req.TenantID = scope
	}

	jobID, err := e.queue.Enqueue(req)
	if err != nil {
		return failure("failed to queue render: %v", err)
	}

	return &Result{
		Success: true,
		Message: "Render job queued: " + jobID,
		Data: map[string]any{
			"job_id":      jobID,
			"template_id": req.TemplateID,
		},
	}
}

// handleJob handles job commands
// Usage: job list | status <id> | clear
func (e *Executor) handleJob(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return failure("usage: job <list|status|clear>")
	}
	scope, scoped := tenantScope(ctx)

	switch args[0] {
	case "list":
		all := e.queue.GetAllJobs()
		if scoped {
			visible := all[:0]
			for _, job := range all {
				if job.TenantID == scope {
					visible = append(visible, job)
				}
			}
			all = visible
		}
		return &Result{
			Success: true,
			Message: "Found " + pluralize(len(all), "job"),
			Data:    map[string]any{"jobs": all},
		}

	case "status":
		if len(args) < 2 {
			return failure("usage: job status <id>")
		}
		job := e.queue.GetJob(args[1])
		if job == nil || (scoped && job.TenantID != scope) {
			return failure("job not found: %s", args[1])
		}
		job.Output = nil
		return &Result{
			Success: true,
			Message: "Job " + job.ID + ": " + job.Status,
			Data:    map[string]any{"job": job},
		}

	case "clear":
		if scoped {
			return failure("job clear is not available to tenant sessions")
		}
		n := e.queue.ClearCompleted()
		return &Result{Success: true, Message: "Cleared " + pluralize(n, "completed job")}

	default:
		return failure("unknown job subcommand: %s. Use: list, status, clear", args[0])
	}
}

// handleTenant handles tenant branding commands
// Usage: tenant list | show <id> | set <id> key=value... | remove <id>
func (e *Executor) handleTenant(ctx context.Context, args []string) *Result {
	if len(args) == 0 {
		return failure("usage: tenant <list|show|set|remove>")
	}

	if scope, ok := tenantScope(ctx); ok && (args[0] == "set" || args[0] == "remove") && len(args) > 1 && args[1] != scope {
		return failure("cannot modify another tenant")
	}

	switch args[0] {
	case "list":
		all := e.tenants.All()
		return &Result{
			Success: true,
			Message: "Found " + pluralize(len(all), "tenant"),
			Data:    map[string]any{"tenants": all},
		}

	case "show":
		if len(args) < 2 {
			return failure("usage: tenant show <id>")
		}
		info, err := e.tenants.Tenant(ctx, args[1])
		if err != nil {
			return notFoundOr(err, "tenant", args[1])
		}
		return &Result{Success: true, Message: info.AgencyName, Data: map[string]any{"tenant": info}}

	case "set":
		if len(args) < 3 {
			return failure("usage: tenant set <id> key=value...")
		}
		info, err := e.tenants.Tenant(ctx, args[1])
		if errors.Is(err, tenant.ErrNotFound) {
			info, err = &tenant.Info{ID: args[1]}, nil
		}
		if err != nil {
			return failure("failed to load tenant: %v", err)
		}
		for _, kv := range args[2:] {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || !setTenantField(info, key, value) {
				return failure("invalid field: %s. Use agencyName, logo, contactPhone, address, website", kv)
			}
		}
		saved, err := e.tenants.Put(*info)
		if err != nil {
			return failure("failed to save tenant: %v", err)
		}
		return &Result{Success: true, Message: "Updated tenant " + saved.ID, Data: map[string]any{"tenant": saved}}

	case "remove":
		if len(args) < 2 {
			return failure("usage: tenant remove <id>")
		}
		if !e.tenants.Remove(args[1]) {
			return failure("tenant not found: %s", args[1])
		}
		return &Result{Success: true, Message: "Removed tenant " + args[1]}

	default:
		return failure("unknown tenant subcommand: %s. Use: list, show, set, remove", args[0])
	}
}

func setTenantField(info *tenant.Info, key, value string) bool {
	switch key {
	case "agencyName":
		info.AgencyName = value
	case "logo":
		info.Logo = value
	case "contactPhone":
		info.ContactPhone = value
	case "address":
		info.Address = value
	case "website":
		info.Website = value
	default:
		return false
	}
	return true
}

// handleHelp shows available commands
func (e *Executor) handleHelp(args []string) *Result {
	help := `Available commands:

  template list                              List stored templates
  template show <id>                         Show a template and its design
  template tokens <id>                       List placeholder tokens a template uses
  template validate <id>                     Check a design for structural problems
  template create <name> <design-path>       Store a design file as a new template

  render <template-id> [--width N] [--format png|html] [--tenant id]
                                             Queue a render job

  job list                                   List render jobs
  job status <id>                            Show a job
  job clear                                  Remove completed jobs

  tenant list                                List tenant branding
  tenant show <id>                           Show a tenant
  tenant set <id> key=value...               Update branding (agencyName, logo, contactPhone, address, website)
  tenant remove <id>                         Delete a tenant

  help                                       Show this help`

	return &Result{Success: true, Message: help}
}

func notFoundOr(err error, kind, id string) *Result {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, tenant.ErrNotFound) {
		return failure("%s not found: %s", kind, id)
	}
	return failure("failed to load %s: %v", kind, err)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
