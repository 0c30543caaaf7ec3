package mcp

import (
	"fmt"

	"github.com/customeros/mailstack/internal/accounts"
	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/attachments"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/syncengine"
)

// Services bundles every backend the tool handlers call into, injected
// once at startup rather than reached for through ambient globals (§9's
// "no implicit process state" redesign note).
type Services struct {
	Cache       *cache.Store
	Pool        *pool.Pool
	Accounts    *accounts.Store
	Attachments *attachments.Store
	Sync        *syncengine.Engine
	Bus         *eventbus.Bus
	Models      *ModelConfig
	Log         logger.Logger
}

// resolveAccount picks the account a tool call operates against: the
// explicit "account" argument if present, else the calling session's
// current account, else the accounts store's configured default.
func resolveAccount(svc *Services, sess *Session, args map[string]interface{}) (*models.Account, error) {
	if email, ok := stringArg(args, "account"); ok && email != "" {
		return svc.Accounts.GetAccount(email)
	}
	if sess != nil && sess.CurrentAccount != "" {
		return svc.Accounts.GetAccount(sess.CurrentAccount)
	}
	acct, err := svc.Accounts.GetDefaultAccount()
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, apierr.New(apierr.KindValidationFailed, "no account specified and no default account configured")
	}
	return acct, nil
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

func boolArg(args map[string]interface{}, key string) bool {
	v, ok := args[key].(bool)
	return ok && v
}

func stringListArg(args map[string]interface{}, key string) []string {
	v, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func uintListArg(args map[string]interface{}, key string) []uint32 {
	v, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(v))
	for _, item := range v {
		if n, ok := item.(float64); ok {
			out = append(out, uint32(n))
		}
	}
	return out
}

// resolveFolder looks up a cached folder by name, scoped to account,
// returning a NotFound ApiError if the folder has never been synced.
func resolveFolder(svc *Services, accountEmail, name string) (*models.Folder, error) {
	f, err := svc.Cache.GetFolder(accountEmail, name)
	if err != nil {
		return nil, fmt.Errorf("mcp: lookup folder %s: %w", name, err)
	}
	if f == nil {
		return nil, apierr.NotFound("folder", name)
	}
	return f, nil
}
