// Command mailstack-sync is the standalone one-shot sync process described
// in §4.5: it runs exactly one full sync pass over every active account
// and exits, so the OS reclaims the allocator heap between cycles instead
// of a long-lived worker accumulating growth. Grounded directly on
// original_source/src/bin/sync.rs's acquire-lock/connect/list-accounts/
// sync-each/release-lock shape, ported onto this module's own cache/pool/
// syncengine packages instead of sync.rs's raw sqlx queries and bespoke
// rustymail::imap::client calls.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/internal/accounts"
	"github.com/customeros/mailstack/internal/attachments"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/syncengine"
)

func main() {
	app := &cli.App{
		Name:  "mailstack-sync",
		Usage: "run one sync pass over every active account, then exit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "override CACHE_DATABASE_URL for this run",
				EnvVars: []string{"CACHE_DATABASE_URL"},
			},
		},
		Action: runOnce,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "mailstack-sync: %v\n", err)
		os.Exit(1)
	}
}

func runOnce(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	if url := c.String("database-url"); url != "" {
		cfg.Cache.DatabaseURL = url
	}

	log := logger.NewAppLogger(cfg.AppConfig.Logger)
	if err := log.InitLogger(); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Infof("starting email sync process (pid: %d)", os.Getpid())

	lock, err := syncengine.AcquireLock(cfg.Cache.SyncLockFile)
	if err != nil {
		// Another sync is already running (or crash-recovery failed to
		// clear a stale lock): this is not a process failure, it just
		// means there is nothing for this invocation to do.
		log.Infof("%v", err)
		return nil
	}
	defer lock.Release()

	cacheStore, err := cache.Open(cfg.Cache.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cacheStore.Close()

	accountsStore, err := accounts.Open(cfg.Cache.AccountsFile, cfg.Security.EncryptionMasterKey)
	if err != nil {
		return fmt.Errorf("open accounts store: %w", err)
	}

	accountList, err := accountsStore.ListAccounts()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	active := make([]*models.Account, 0, len(accountList))
	for _, a := range accountList {
		if a.IsActive {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		log.Info("no active accounts found, exiting")
		return nil
	}
	log.Infof("found %d active accounts to sync", len(active))

	attStore := attachments.NewStore(cfg.Cache.AttachmentsDir)
	imapPool := pool.New(cfg.Pool, credentialResolver)
	defer imapPool.Stop()

	engine := syncengine.New(cacheStore, imapPool, attStore, cfg.Sync, log)
	engine.OnProgress(func(account, folder string, synced, total int, ferr error) {
		if ferr != nil {
			log.Errorf("sync: %s/%s: %v", account, folder, ferr)
			return
		}
		log.Infof("synced %d/%d in %s for %s", synced, total, folder, account)
	})

	if err := engine.SyncAll(context.Background(), active); err != nil {
		log.Errorf("sync pass completed with errors: %v", err)
	}

	log.Info("sync complete, exiting")
	return nil
}

func credentialResolver(ctx context.Context, account *models.Account) (string, error) {
	if account.Password != "" {
		return account.Password, nil
	}
	if account.OAuthRefreshToken != "" {
		return account.OAuthAccessToken, nil
	}
	return "", fmt.Errorf("account %s has no usable credential", account.EmailAddress)
}
