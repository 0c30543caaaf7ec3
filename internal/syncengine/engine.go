// Package syncengine implements the per-folder incremental sync algorithm
// (§4.5): SELECT + UIDVALIDITY check, discontinuity reset, a
// "UID <last+1>:*" search, chunked fetch, cursor advance, and cooperative
// cancellation between batches. It consolidates the teacher's
// services/imap/service.go and services/imap/folder.go, which duplicated
// this logic across two files, into one package built on internal/pool and
// internal/imapsession instead of a raw emersion/go-imap client.Client.
package syncengine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/internal/attachments"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/imapsession"
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/tracing"
	"github.com/customeros/mailstack/internal/utils"
)

// ProgressFunc is called after every batch and folder so a caller (the
// event bus, once wired) can publish sync_progress/folder_changed events
// without this package importing the event bus directly.
type ProgressFunc func(accountEmail, folderName string, synced, total int, err error)

// Engine runs the sync algorithm for one or many accounts against the
// shared cache and connection pool.
type Engine struct {
	cache       *cache.Store
	pool        *pool.Pool
	attachments *attachments.Store
	cfg         *config.SyncConfig
	log         logger.Logger
	onProgress  ProgressFunc
}

func New(cacheStore *cache.Store, p *pool.Pool, attStore *attachments.Store, cfg *config.SyncConfig, log logger.Logger) *Engine {
	return &Engine{cache: cacheStore, pool: p, attachments: attStore, cfg: cfg, log: log}
}

// OnProgress registers the callback invoked after each folder/batch.
func (e *Engine) OnProgress(fn ProgressFunc) { e.onProgress = fn }

func (e *Engine) report(account, folder string, synced, total int, err error) {
	if e.onProgress != nil {
		e.onProgress(account, folder, synced, total, err)
	}
}

// SyncAll runs one full pass over every given account, per
// original_source/src/bin/sync.rs's "worker exits after each full cycle"
// shape: a caller (cmd/mailstack-sync, or a cron tick) invokes this once
// and gets back when every account's folders have been synced.
func (e *Engine) SyncAll(ctx context.Context, accounts []*models.Account) error {
	var firstErr error
	for _, account := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.SyncAccount(ctx, account); err != nil {
			e.log.Errorf("syncengine: account %s: %v", account.EmailAddress, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SyncAccount leases one IMAP session for the account, discovers its
// folders, and syncs each in turn.
func (e *Engine) SyncAccount(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncengine.SyncAccount")
	defer span.Finish()
	tracing.TagAccount(span, account.EmailAddress)

	lease, err := e.pool.Acquire(ctx, account)
	if err != nil {
		return fmt.Errorf("syncengine: acquire session for %s: %w", account.EmailAddress, err)
	}
	defer lease.Release()

	folders, err := lease.Session.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: list folders for %s: %w", account.EmailAddress, err)
	}

	for _, f := range folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.cache.UpsertFolder(f); err != nil {
			e.log.Errorf("syncengine: upsert folder %s/%s: %v", account.EmailAddress, f.Name, err)
			continue
		}
		if err := e.SyncFolder(ctx, lease.Session, account, f); err != nil {
			e.log.Errorf("syncengine: sync %s/%s: %v", account.EmailAddress, f.Name, err)
			e.report(account.EmailAddress, f.Name, 0, 0, err)
		}
	}
	return nil
}

// SyncFolder runs the unchanged per-folder algorithm described in §4.5
// against one already-selected account/folder pair.
func (e *Engine) SyncFolder(ctx context.Context, session *imapsession.Session, account *models.Account, folder *models.Folder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncengine.SyncFolder")
	defer span.Finish()
	tracing.TagAccount(span, account.EmailAddress)
	span.SetTag("folder", folder.Name)

	info, err := session.SelectFolder(ctx, folder.Name, true)
	if err != nil {
		_ = e.cache.SetCursorStatus(folder.ID, enum.SyncStatusError, err.Error())
		return fmt.Errorf("select %s: %w", folder.Name, err)
	}

	cursor, err := e.cache.GetSyncCursor(folder.ID)
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}
	if cursor == nil {
		if err := e.cache.InitSyncCursor(folder.ID, info.UIDValidity); err != nil {
			return fmt.Errorf("init cursor: %w", err)
		}
		cursor = &models.SyncCursor{FolderID: folder.ID, UIDValidity: info.UIDValidity}
	} else if cursor.UIDValidity != info.UIDValidity {
		// UIDVALIDITY discontinuity: every cached UID mapping for this
		// folder is now meaningless, so the folder restarts from scratch
		// under the new epoch (§4.5 step 2).
		e.log.Infof("syncengine: %s/%s UIDVALIDITY changed %d -> %d, resetting cursor",
			account.EmailAddress, folder.Name, cursor.UIDValidity, info.UIDValidity)
		if err := e.cache.ResetCursor(folder.ID, info.UIDValidity); err != nil {
			return fmt.Errorf("reset cursor: %w", err)
		}
		cursor = &models.SyncCursor{FolderID: folder.ID, UIDValidity: info.UIDValidity}
	}

	if err := e.cache.SetCursorStatus(folder.ID, enum.SyncStatusSyncing, ""); err != nil {
		e.log.Errorf("syncengine: set syncing status: %v", err)
	}

	uids, err := session.SearchSince(ctx, cursor.LastUIDSynced)
	if err != nil {
		_ = e.cache.SetCursorStatus(folder.ID, enum.SyncStatusError, err.Error())
		return fmt.Errorf("search since %d: %w", cursor.LastUIDSynced, err)
	}

	maxTotal := e.cfg.InitialSyncMaxTotal
	if cursor.LastUIDSynced == 0 && maxTotal > 0 && len(uids) > maxTotal {
		e.log.Infof("syncengine: %s/%s capping initial sync to %d of %d messages",
			account.EmailAddress, folder.Name, maxTotal, len(uids))
		sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
		uids = uids[:maxTotal]
	}

	total := len(uids)
	if total == 0 {
		e.report(account.EmailAddress, folder.Name, 0, 0, nil)
		return e.cache.SetCursorStatus(folder.ID, enum.SyncStatusIdle, "")
	}

	batchSize := e.cfg.FetchBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	pause := time.Duration(e.cfg.BatchPauseMillis) * time.Millisecond

	highestUID := cursor.LastUIDSynced
	synced := 0

	for i := 0; i < len(uids); i += batchSize {
		if ctx.Err() != nil {
			_ = e.cache.SetCursorStatus(folder.ID, enum.SyncStatusError, ctx.Err().Error())
			return ctx.Err()
		}

		end := i + batchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[i:end]

		decoded, err := session.Fetch(ctx, batch)
		if err != nil {
			e.log.Errorf("syncengine: %s/%s fetch batch %d-%d: %v", account.EmailAddress, folder.Name, i, end, err)
			_ = e.cache.SetCursorStatus(folder.ID, enum.SyncStatusError, err.Error())
			e.report(account.EmailAddress, folder.Name, synced, total, err)
			return err
		}

		for _, dm := range decoded {
			if err := e.storeMessage(ctx, account.EmailAddress, folder.ID, dm); err != nil {
				e.log.Errorf("syncengine: store message uid=%d: %v", dm.UID, err)
				continue
			}
			synced++
			if dm.UID > highestUID {
				highestUID = dm.UID
			}
		}

		if highestUID > cursor.LastUIDSynced {
			if err := e.cache.AdvanceCursor(folder.ID, info.UIDValidity, highestUID); err != nil {
				e.log.Errorf("syncengine: advance cursor: %v", err)
			}
		}

		e.report(account.EmailAddress, folder.Name, synced, total, nil)

		if end < len(uids) && pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}

	return e.cache.SetCursorStatus(folder.ID, enum.SyncStatusIdle, "")
}

// storeMessage caches one decoded message and its attachments.
func (e *Engine) storeMessage(ctx context.Context, accountEmail, folderID string, dm *imapsession.DecodedMessage) error {
	m := dm.Message
	m.FolderID = folderID
	m.Direction = enum.EmailInbound
	m.Status = enum.EmailStatusReceived

	if m.MessageID == "" {
		m.MessageID = attachments.SynthesizeMessageID(accountEmail, dm.UID)
	}

	if err := e.cache.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	for i, att := range dm.Attachments {
		if e.attachments == nil {
			continue
		}
		filename := att.Filename
		if filename == "" {
			// No disposition filename on this MIME part: synthesize one from
			// its position and content type.
			filename = fmt.Sprintf("attachment_%d.%s", i, utils.GetFileExtensionFromContentType(att.ContentType))
		}
		path, err := e.attachments.Upload(ctx, accountEmail, m.MessageID, filename, att.Content)
		if err != nil {
			e.log.Errorf("syncengine: store attachment %s: %v", filename, err)
			continue
		}
		meta := &models.Attachment{
			MessageID:   m.MessageID,
			AccountEmail: accountEmail,
			Filename:    filename,
			ContentType: att.ContentType,
			ContentID:   att.ContentID,
			Size:        len(att.Content),
			IsInline:    att.IsInline,
			StoragePath: path,
		}
		if err := e.cache.UpsertAttachmentMeta(meta); err != nil {
			e.log.Errorf("syncengine: record attachment meta %s: %v", filename, err)
		}
	}

	return nil
}
