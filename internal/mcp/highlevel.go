package mcp

import (
	"context"
	"fmt"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/enum"
)

// RegisterHighLevelTools adds the agentic, model-configuration, and
// job-management tools (§4.8). Discovery tools are not re-registered here:
// they share a name with their low-level counterpart and the registry's
// first-occurrence-wins dedup makes that single registration serve both
// layers, which is what "delegates by name" means in practice.
func RegisterHighLevelTools(reg *Registry, svc *Services) {
	reg.Register(Tool{
		Name:        "process_email_instructions",
		Description: "Ask the configured tool-calling model to plan and narrate actions for a natural-language instruction against an account's mailbox",
		InputSchema: objectSchema(map[string]interface{}{
			"account": stringProp("account email to operate on"), "instruction": stringProp("natural language instruction"),
		}, "instruction"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			instruction, _ := stringArg(args, "instruction")
			if instruction == "" {
				return nil, apierr.New(apierr.KindMissingField, "instruction is required")
			}
			toolCalling, _ := svc.Models.Get()
			reply, err := svc.Models.complete(ctx, "You are an email assistant with access to mailbox tools.", instruction)
			if err != nil {
				return nil, apierr.Wrap(apierr.KindValidationFailed, err, fmt.Sprintf("model %q unavailable", toolCalling))
			}
			return map[string]interface{}{"model": toolCalling, "response": reply}, nil
		},
	})

	reg.Register(Tool{
		Name:        "draft_reply",
		Description: "Ask the configured drafting model to draft a reply to a cached message",
		InputSchema: objectSchema(map[string]interface{}{
			"account": stringProp("account email"), "folder": stringProp("folder name"), "uid": intProp("message UID to reply to", 0),
			"guidance": stringProp("tone/content guidance for the reply"),
		}, "uid"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			f, err := resolveFolder(svc, account.EmailAddress, argOrDefault(args, "folder", "INBOX"))
			if err != nil {
				return nil, err
			}
			m, err := svc.Cache.GetMessageByUID(account.EmailAddress, f.ID, uint32(intArg(args, "uid", 0)))
			if err != nil {
				return nil, err
			}
			if m == nil {
				return nil, apierr.NotFound("email", fmt.Sprintf("%d", intArg(args, "uid", 0)))
			}
			_, drafting := svc.Models.Get()
			guidance := argOrDefault(args, "guidance", "")
			prompt := fmt.Sprintf("Draft a reply to this message.\nSubject: %s\nFrom: %s\nBody: %s\nGuidance: %s",
				m.Subject, m.FromAddress, m.Preview(), guidance)
			draft, err := svc.Models.complete(ctx, "You draft concise, professional email replies.", prompt)
			if err != nil {
				return nil, apierr.Wrap(apierr.KindValidationFailed, err, fmt.Sprintf("model %q unavailable", drafting))
			}
			return map[string]interface{}{"model": drafting, "draft": draft}, nil
		},
	})

	reg.Register(Tool{
		Name:        "draft_email",
		Description: "Ask the configured drafting model to draft a new email from a brief",
		InputSchema: objectSchema(map[string]interface{}{
			"account": stringProp("account email"), "brief": stringProp("what the email should say"),
		}, "brief"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			brief, _ := stringArg(args, "brief")
			if brief == "" {
				return nil, apierr.New(apierr.KindMissingField, "brief is required")
			}
			_, drafting := svc.Models.Get()
			draft, err := svc.Models.complete(ctx, "You draft concise, professional emails from a brief.", brief)
			if err != nil {
				return nil, apierr.Wrap(apierr.KindValidationFailed, err, fmt.Sprintf("model %q unavailable", drafting))
			}
			return map[string]interface{}{"model": drafting, "draft": draft}, nil
		},
	})

	reg.Register(Tool{
		Name:        "get_model_configurations",
		Description: "Report which model names are configured for tool-calling and drafting",
		InputSchema: objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			toolCalling, drafting := svc.Models.Get()
			return map[string]interface{}{"toolCallingModel": toolCalling, "draftingModel": drafting}, nil
		},
	})

	reg.Register(Tool{
		Name:        "set_tool_calling_model",
		Description: "Set the model name used for process_email_instructions",
		InputSchema: objectSchema(map[string]interface{}{"model": stringProp("model name")}, "model"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			model, _ := stringArg(args, "model")
			if model == "" {
				return nil, apierr.New(apierr.KindMissingField, "model is required")
			}
			svc.Models.SetToolCallingModel(model)
			return map[string]interface{}{"toolCallingModel": model}, nil
		},
	})

	reg.Register(Tool{
		Name:        "set_drafting_model",
		Description: "Set the model name used for draft_reply and draft_email",
		InputSchema: objectSchema(map[string]interface{}{"model": stringProp("model name")}, "model"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			model, _ := stringArg(args, "model")
			if model == "" {
				return nil, apierr.New(apierr.KindMissingField, "model is required")
			}
			svc.Models.SetDraftingModel(model)
			return map[string]interface{}{"draftingModel": model}, nil
		},
	})

	reg.Register(Tool{
		Name:        "list_jobs",
		Description: "List background jobs, optionally filtered by account and status",
		InputSchema: objectSchema(map[string]interface{}{
			"account": stringProp("account email to scope to"), "status": stringProp("running|completed|failed|cancelled"),
			"limit": intProp("max rows", 50), "offset": intProp("pagination offset", 0),
		}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, _ := stringArg(args, "account")
			status, _ := stringArg(args, "status")
			return svc.Cache.ListJobs(account, enum.JobStatus(status), intArg(args, "limit", 50), intArg(args, "offset", 0))
		},
	})

	reg.Register(Tool{
		Name:        "get_job_status",
		Description: "Fetch one background job's current state and checkpoint",
		InputSchema: objectSchema(map[string]interface{}{"job_id": stringProp("job id")}, "job_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			jobID, _ := stringArg(args, "job_id")
			job, err := svc.Cache.GetJob(jobID)
			if err != nil {
				return nil, err
			}
			if job == nil {
				return nil, apierr.NotFound("job", jobID)
			}
			return job, nil
		},
	})

	reg.Register(Tool{
		Name:        "cancel_job",
		Description: "Cancel a running background job",
		InputSchema: objectSchema(map[string]interface{}{"job_id": stringProp("job id")}, "job_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			jobID, _ := stringArg(args, "job_id")
			if err := svc.Cache.CancelJob(jobID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"cancelled": jobID}, nil
		},
	})
}
