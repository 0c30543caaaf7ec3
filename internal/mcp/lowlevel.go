package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/customeros/mailstack/internal/apierr"
	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/imapsession"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/utils"
)

// RegisterLowLevelTools registers one tool per IMAP/cache operation (§4.8),
// the ≈34 low-level tools every high-level discovery tool ultimately
// delegates to.
func RegisterLowLevelTools(reg *Registry, svc *Services) {
	accountProp := stringProp("account email to operate on; defaults to the session's current account or the configured default")
	folderProp := stringProp("folder name")

	reg.Register(Tool{
		Name:        "list_folders",
		Description: "List every folder cached for an account",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			return svc.Cache.ListFolders(account.EmailAddress)
		},
	})

	reg.Register(Tool{
		Name:        "create_folder",
		Description: "Create a new IMAP folder",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "name": stringProp("new folder name")}, "name"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			name, _ := stringArg(args, "name")
			if name == "" {
				return nil, apierr.New(apierr.KindMissingField, "name is required")
			}
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if err := lease.Session.CreateFolder(ctx, name); err != nil {
				return nil, err
			}
			f := models.NewFolder(account.EmailAddress, name, "/", nil)
			if err := svc.Cache.UpsertFolder(f); err != nil {
				return nil, err
			}
			return map[string]interface{}{"created": name}, nil
		},
	})

	reg.Register(Tool{
		Name:        "delete_folder",
		Description: "Delete an IMAP folder",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "name": stringProp("folder name to delete")}, "name"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			name, _ := stringArg(args, "name")
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if err := lease.Session.DeleteFolder(ctx, name); err != nil {
				return nil, err
			}
			if err := svc.Cache.DeleteFolder(account.EmailAddress, name); err != nil {
				return nil, err
			}
			return map[string]interface{}{"deleted": name}, nil
		},
	})

	reg.Register(Tool{
		Name:        "rename_folder",
		Description: "Rename an IMAP folder",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "old_name": stringProp("current folder name"), "new_name": stringProp("new folder name"),
		}, "old_name", "new_name"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			oldName, _ := stringArg(args, "old_name")
			newName, _ := stringArg(args, "new_name")
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if err := lease.Session.RenameFolder(ctx, oldName, newName); err != nil {
				return nil, err
			}
			if err := svc.Cache.RenameFolder(account.EmailAddress, oldName, newName); err != nil {
				return nil, err
			}
			return map[string]interface{}{"renamed": newName}, nil
		},
	})

	reg.Register(Tool{
		Name:        "search_emails",
		Description: "Search a live IMAP folder by subject",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp, "subject": stringProp("subject substring to search for"),
		}, "subject"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			folder := argOrDefault(args, "folder", "INBOX")
			subject, _ := stringArg(args, "subject")
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if _, err := lease.Session.SelectFolder(ctx, folder, true); err != nil {
				return nil, err
			}
			return lease.Session.SearchSubject(ctx, subject)
		},
	})

	reg.Register(Tool{
		Name:        "fetch_emails_with_mime",
		Description: "Fetch one or more messages live from IMAP, including MIME body structure",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp,
			"uids": arrayProp("message UIDs to fetch", intSchema()),
		}, "uids"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			folder := argOrDefault(args, "folder", "INBOX")
			uids := uintListArg(args, "uids")
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if _, err := lease.Session.SelectFolder(ctx, folder, true); err != nil {
				return nil, err
			}
			decoded, err := lease.Session.Fetch(ctx, uids)
			if err != nil {
				return nil, err
			}
			out := make([]*models.Message, 0, len(decoded))
			for _, dm := range decoded {
				out = append(out, dm.Message)
			}
			return out, nil
		},
	})

	reg.Register(Tool{
		Name:        "atomic_move_message",
		Description: "Move one message to another folder",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp, "uid": intProp("message UID", 0),
			"destination_folder": stringProp("target folder name"),
		}, "uid", "destination_folder"),
		Handler: moveHandler(svc, false),
	})

	reg.Register(Tool{
		Name:        "atomic_batch_move",
		Description: "Move multiple messages to another folder in one operation",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp,
			"uids": arrayProp("message UIDs to move", intSchema()), "destination_folder": stringProp("target folder name"),
		}, "uids", "destination_folder"),
		Handler: moveHandler(svc, true),
	})

	reg.Register(Tool{
		Name:        "mark_as_deleted",
		Description: "Flag messages \\Deleted without expunging",
		InputSchema: flagToolSchema(),
		Handler:     flagHandler(svc, imapsession.StoreAdd, `\Deleted`),
	})

	reg.Register(Tool{
		Name:        "delete_messages",
		Description: "Flag messages \\Deleted and expunge them immediately",
		InputSchema: flagToolSchema(),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, folder, uids, lease, err := prepareFolderOp(ctx, svc, sess, args)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if err := lease.Session.StoreFlags(ctx, uids, imapsession.StoreAdd, []string{`\Deleted`}); err != nil {
				return nil, err
			}
			if err := lease.Session.Expunge(ctx); err != nil {
				return nil, err
			}
			if f, ferr := svc.Cache.GetFolder(account.EmailAddress, folder); ferr == nil && f != nil {
				_ = svc.Cache.DeleteMessagesByUID(account.EmailAddress, f.ID, uids)
			}
			return map[string]interface{}{"deleted": uids}, nil
		},
	})

	reg.Register(Tool{
		Name:        "undelete_messages",
		Description: "Remove the \\Deleted flag from messages",
		InputSchema: flagToolSchema(),
		Handler:     flagHandler(svc, imapsession.StoreRemove, `\Deleted`),
	})

	reg.Register(Tool{
		Name:        "expunge",
		Description: "Permanently remove every \\Deleted message in the selected folder",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "folder": folderProp}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			folder := argOrDefault(args, "folder", "INBOX")
			lease, err := svc.Pool.Acquire(ctx, account)
			if err != nil {
				return nil, err
			}
			defer lease.Release()
			if _, err := lease.Session.SelectFolder(ctx, folder, false); err != nil {
				return nil, err
			}
			if err := lease.Session.Expunge(ctx); err != nil {
				return nil, err
			}
			return map[string]interface{}{"expunged": folder}, nil
		},
	})

	reg.Register(Tool{
		Name:        "mark_as_read",
		Description: "Flag messages \\Seen",
		InputSchema: flagToolSchema(),
		Handler:     flagHandler(svc, imapsession.StoreAdd, `\Seen`),
	})

	reg.Register(Tool{
		Name:        "mark_as_unread",
		Description: "Remove the \\Seen flag from messages",
		InputSchema: flagToolSchema(),
		Handler:     flagHandler(svc, imapsession.StoreRemove, `\Seen`),
	})

	reg.Register(Tool{
		Name:        "list_cached_emails",
		Description: "List cached messages for a folder, newest first",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp,
			"limit": intProp("max rows", 50), "offset": intProp("pagination offset", 0),
		}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			f, err := resolveFolder(svc, account.EmailAddress, argOrDefault(args, "folder", "INBOX"))
			if err != nil {
				return nil, err
			}
			return svc.Cache.ListMessages(account.EmailAddress, f.ID, intArg(args, "limit", 50), intArg(args, "offset", 0), true)
		},
	})

	reg.Register(Tool{
		Name:        "get_email_by_uid",
		Description: "Fetch one cached message by folder + UID",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp, "uid": intProp("message UID", 0),
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
			return svc.Cache.GetMessageByUID(account.EmailAddress, f.ID, uint32(intArg(args, "uid", 0)))
		},
	})

	reg.Register(Tool{
		Name:        "get_email_by_index",
		Description: "Fetch the Nth cached message (0-based, newest-first) in a folder",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp, "index": intProp("0-based position", 0),
		}, "index"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			f, err := resolveFolder(svc, account.EmailAddress, argOrDefault(args, "folder", "INBOX"))
			if err != nil {
				return nil, err
			}
			return svc.Cache.GetMessageByIndex(account.EmailAddress, f.ID, intArg(args, "index", 0))
		},
	})

	reg.Register(Tool{
		Name:        "count_emails_in_folder",
		Description: "Count cached messages in a folder",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "folder": folderProp}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			f, err := resolveFolder(svc, account.EmailAddress, argOrDefault(args, "folder", "INBOX"))
			if err != nil {
				return nil, err
			}
			n, err := svc.Cache.CountMessages(account.EmailAddress, f.ID)
			return map[string]interface{}{"folder": f.Name, "count": n}, err
		},
	})

	reg.Register(Tool{
		Name:        "get_folder_stats",
		Description: "Report total/unread/has-attachment counts for a folder",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "folder": folderProp}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			f, err := resolveFolder(svc, account.EmailAddress, argOrDefault(args, "folder", "INBOX"))
			if err != nil {
				return nil, err
			}
			return svc.Cache.GetFolderStats(account.EmailAddress, f.ID)
		},
	})

	reg.Register(Tool{
		Name:        "search_cached_emails",
		Description: "Substring search over cached subject/from/body",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": stringProp("optional folder name to scope the search"),
			"query": stringProp("search text"), "limit": intProp("max rows", 50), "offset": intProp("pagination offset", 0),
		}, "query"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			folderID := ""
			if name, ok := stringArg(args, "folder"); ok && name != "" {
				f, err := resolveFolder(svc, account.EmailAddress, name)
				if err != nil {
					return nil, err
				}
				folderID = f.ID
			}
			query, _ := stringArg(args, "query")
			return svc.Cache.SearchMessages(account.EmailAddress, folderID, query, intArg(args, "limit", 50), intArg(args, "offset", 0))
		},
	})

	reg.Register(Tool{
		Name:        "list_accounts",
		Description: "List configured accounts",
		InputSchema: objectSchema(map[string]interface{}{}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			return svc.Accounts.ListAccounts()
		},
	})

	reg.Register(Tool{
		Name:        "set_current_account",
		Description: "Bind this session to an account for subsequent calls that omit 'account'",
		InputSchema: objectSchema(map[string]interface{}{"account": stringProp("email address to select")}, "account"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			email, _ := stringArg(args, "account")
			account, err := svc.Accounts.GetAccount(email)
			if err != nil {
				return nil, err
			}
			if sess != nil {
				sess.CurrentAccount = account.EmailAddress
			}
			return map[string]interface{}{"currentAccount": account.EmailAddress}, nil
		},
	})

	reg.Register(Tool{
		Name:        "send_email",
		Description: "Queue an email for sending via the outbox pipeline",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp,
			"to":      arrayProp("recipient addresses", stringSchema()),
			"cc":      arrayProp("cc addresses", stringSchema()),
			"bcc":     arrayProp("bcc addresses", stringSchema()),
			"subject": stringProp("subject line"), "body_text": stringProp("plain text body"), "body_html": stringProp("HTML body"),
		}, "to", "subject"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			item := &models.OutboxItem{
				AccountEmail: account.EmailAddress,
				ToAddresses:  stringListArg(args, "to"),
				CcAddresses:  stringListArg(args, "cc"),
				BccAddresses: stringListArg(args, "bcc"),
				Subject:      argOrDefault(args, "subject", ""),
				BodyText:     argOrDefault(args, "body_text", ""),
				BodyHTML:     argOrDefault(args, "body_html", ""),
				MessageID:    utils.GenerateMessageID(account.EmailAddress, ""),
			}
			if len(item.ToAddresses) == 0 {
				return nil, apierr.New(apierr.KindMissingField, "to is required")
			}
			if err := svc.Cache.EnqueueOutboxItem(item); err != nil {
				return nil, err
			}
			return map[string]interface{}{"id": item.ID, "status": "queued"}, nil
		},
	})

	reg.Register(Tool{
		Name:        "list_email_attachments",
		Description: "List attachment metadata for a cached message",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "message_id": stringProp("cached message id")}, "message_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			messageID, _ := stringArg(args, "message_id")
			return svc.Cache.ListAttachments(account.EmailAddress, messageID)
		},
	})

	reg.Register(Tool{
		Name:        "download_email_attachments",
		Description: "Download one attachment's bytes, base64-encoded",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "attachment_id": stringProp("attachment id from list_email_attachments"),
		}, "attachment_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			attID, _ := stringArg(args, "attachment_id")
			att, err := svc.Cache.GetAttachment(account.EmailAddress, attID)
			if err != nil {
				return nil, err
			}
			if att == nil {
				return nil, apierr.NotFound("attachment", attID)
			}
			data, err := svc.Attachments.Download(ctx, att.StoragePath)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"filename":    att.Filename,
				"contentType": att.ContentType,
				"base64":      base64.StdEncoding.EncodeToString(data),
			}, nil
		},
	})

	reg.Register(Tool{
		Name:        "download_email_attachments_zip",
		Description: "Download every attachment on a message as a single ZIP archive, base64-encoded",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "message_id": stringProp("cached message id")}, "message_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			messageID, _ := stringArg(args, "message_id")
			atts, err := svc.Cache.ListAttachments(account.EmailAddress, messageID)
			if err != nil {
				return nil, err
			}
			if len(atts) == 0 {
				return nil, apierr.NotFound("attachment", messageID)
			}
			files := make(map[string]string, len(atts))
			for _, a := range atts {
				files[a.Filename] = a.StoragePath
			}
			var buf bytes.Buffer
			if err := svc.Attachments.WriteZip(&buf, files); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"filename": "attachments.zip",
				"base64":   base64.StdEncoding.EncodeToString(buf.Bytes()),
			}, nil
		},
	})

	reg.Register(Tool{
		Name:        "cleanup_attachments",
		Description: "Delete every attachment stored for a message, on disk and in the cache",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "message_id": stringProp("cached message id")}, "message_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			messageID, _ := stringArg(args, "message_id")
			if err := svc.Attachments.DeleteMessageDir(account.EmailAddress, messageID); err != nil {
				return nil, err
			}
			if err := svc.Cache.DeleteAttachmentsByMessage(account.EmailAddress, messageID); err != nil {
				return nil, err
			}
			return map[string]interface{}{"cleaned": messageID}, nil
		},
	})

	reg.Register(Tool{
		Name:        "get_email_synopsis",
		Description: "Return a short preview (subject, from, truncated body) of a cached message",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": folderProp, "uid": intProp("message UID", 0),
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
			return map[string]interface{}{
				"subject": m.Subject, "from": m.FromAddress, "preview": m.Preview(), "hasAttachment": m.HasAttachment,
			}, nil
		},
	})

	reg.Register(Tool{
		Name:        "get_email_thread",
		Description: "Return every cached message sharing a thread id across all folders",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "thread_id": stringProp("thread id, message id, or in-reply-to id")}, "thread_id"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			threadID, _ := stringArg(args, "thread_id")
			return svc.Cache.GetThread(account.EmailAddress, threadID)
		},
	})

	reg.Register(Tool{
		Name:        "search_by_domain",
		Description: "Find cached messages to/from a given domain",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "domain": stringProp("domain, e.g. example.com"),
			"limit": intProp("max rows", 50), "offset": intProp("pagination offset", 0),
		}, "domain"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			domain, _ := stringArg(args, "domain")
			return svc.Cache.SearchByDomain(account.EmailAddress, domain, intArg(args, "limit", 50), intArg(args, "offset", 0))
		},
	})

	reg.Register(Tool{
		Name:        "list_emails_by_flag",
		Description: "List cached messages carrying a given IMAP flag",
		InputSchema: objectSchema(map[string]interface{}{
			"account": accountProp, "folder": stringProp("optional folder to scope to"), "flag": stringProp(`IMAP flag, e.g. \Flagged`),
			"limit": intProp("max rows", 50), "offset": intProp("pagination offset", 0),
		}, "flag"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			folderID := ""
			if name, ok := stringArg(args, "folder"); ok && name != "" {
				f, err := resolveFolder(svc, account.EmailAddress, name)
				if err != nil {
					return nil, err
				}
				folderID = f.ID
			}
			flag, _ := stringArg(args, "flag")
			return svc.Cache.ListByFlag(account.EmailAddress, folderID, flag, intArg(args, "limit", 50), intArg(args, "offset", 0))
		},
	})

	reg.Register(Tool{
		Name:        "get_address_report",
		Description: "Report how often cached traffic has involved a given address",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp, "address": stringProp("email address to report on")}, "address"),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			address, _ := stringArg(args, "address")
			return svc.Cache.AddressReport(account.EmailAddress, address)
		},
	})

	reg.Register(Tool{
		Name:        "sync_emails",
		Description: "Trigger an immediate incremental sync for an account",
		InputSchema: objectSchema(map[string]interface{}{"account": accountProp}),
		Handler: func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
			account, err := resolveAccount(svc, sess, args)
			if err != nil {
				return nil, err
			}
			if err := svc.Sync.SyncAccount(ctx, account); err != nil {
				return nil, err
			}
			return map[string]interface{}{"synced": account.EmailAddress}, nil
		},
	})
}

func argOrDefault(args map[string]interface{}, key, def string) string {
	if v, ok := stringArg(args, key); ok && v != "" {
		return v
	}
	return def
}

func intSchema() map[string]interface{} { return map[string]interface{}{"type": "integer"} }
func stringSchema() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func flagToolSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"account": stringProp("account email"), "folder": stringProp("folder name"),
		"uids": arrayProp("message UIDs", intSchema()),
	}, "uids")
}

// prepareFolderOp resolves account/folder/uids and leaves the caller's
// folder selected on the returned lease; the caller must Release it.
func prepareFolderOp(ctx context.Context, svc *Services, sess *Session, args map[string]interface{}) (*models.Account, string, []uint32, *pool.Lease, error) {
	account, err := resolveAccount(svc, sess, args)
	if err != nil {
		return nil, "", nil, nil, err
	}
	folder := argOrDefault(args, "folder", "INBOX")
	uids := uintListArg(args, "uids")
	lease, err := svc.Pool.Acquire(ctx, account)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if _, err := lease.Session.SelectFolder(ctx, folder, false); err != nil {
		lease.Release()
		return nil, "", nil, nil, err
	}
	return account, folder, uids, lease, nil
}

func flagHandler(svc *Services, op imapsession.StoreOp, flag string) Handler {
	return func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
		account, folder, uids, lease, err := prepareFolderOp(ctx, svc, sess, args)
		if err != nil {
			return nil, err
		}
		defer lease.Release()
		if err := lease.Session.StoreFlags(ctx, uids, op, []string{flag}); err != nil {
			return nil, err
		}
		if f, ferr := svc.Cache.GetFolder(account.EmailAddress, folder); ferr == nil && f != nil {
			for _, uid := range uids {
				if m, _ := svc.Cache.GetMessageByUID(account.EmailAddress, f.ID, uid); m != nil {
					_ = svc.Cache.UpdateFlags(account.EmailAddress, f.ID, uid, applyFlag(m.Flags, op, flag))
				}
			}
		}
		return map[string]interface{}{"affected": uids}, nil
	}
}

func applyFlag(existing []string, op imapsession.StoreOp, flag string) []string {
	switch op {
	case imapsession.StoreAdd:
		for _, f := range existing {
			if f == flag {
				return existing
			}
		}
		return append(existing, flag)
	case imapsession.StoreRemove:
		out := existing[:0]
		for _, f := range existing {
			if f != flag {
				out = append(out, f)
			}
		}
		return out
	default:
		return []string{flag}
	}
}

func moveHandler(svc *Services, batch bool) Handler {
	return func(ctx context.Context, sess *Session, args map[string]interface{}) (interface{}, error) {
		account, err := resolveAccount(svc, sess, args)
		if err != nil {
			return nil, err
		}
		folder := argOrDefault(args, "folder", "INBOX")
		dest, _ := stringArg(args, "destination_folder")

		var uids []uint32
		if batch {
			uids = uintListArg(args, "uids")
		} else {
			uids = []uint32{uint32(intArg(args, "uid", 0))}
		}

		lease, err := svc.Pool.Acquire(ctx, account)
		if err != nil {
			return nil, err
		}
		defer lease.Release()
		if _, err := lease.Session.SelectFolder(ctx, folder, false); err != nil {
			return nil, err
		}
		if err := lease.Session.Move(ctx, uids, dest); err != nil {
			return nil, err
		}

		if srcFolder, ferr := svc.Cache.GetFolder(account.EmailAddress, folder); ferr == nil && srcFolder != nil {
			if dstFolder, derr := svc.Cache.GetFolder(account.EmailAddress, dest); derr == nil && dstFolder != nil {
				for _, uid := range uids {
					_ = svc.Cache.MoveMessage(account.EmailAddress, srcFolder.ID, dstFolder.ID, uid, uid)
				}
			}
		}

		if svc.Bus != nil {
			svc.Bus.Publish(eventbus.TopicFolderChanged, map[string]interface{}{"account": account.EmailAddress, "folder": dest})
		}
		return map[string]interface{}{"moved": uids, "to": dest}, nil
	}
}
