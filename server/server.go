// Package server wires every component into one running process: the
// cache, the connection pool, the sync engine, the outbox worker, the MCP
// registry/dispatcher/transports, and the REST router — grounded on the
// teacher's server/server.go Server{} + NewServer/Initialize/Run shape.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/customeros/mailstack/api"
	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/internal/accounts"
	"github.com/customeros/mailstack/internal/attachments"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/eventbus"
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/mcp"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/outbox"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/ratelimit"
	"github.com/customeros/mailstack/internal/syncengine"
	"github.com/customeros/mailstack/internal/tracing"
)

const sessionReapInterval = time.Minute

// Server owns every long-lived component for one mailstackd process.
type Server struct {
	config     *config.Config
	log        logger.Logger
	httpServer *http.Server
	router     *gin.Engine

	cacheStore  *cache.Store
	accountsStore *accounts.Store
	attachments *attachments.Store
	pool        *pool.Pool
	sync        *syncengine.Engine
	outbox      *outbox.Worker
	bus         *eventbus.Bus
	sessions    *mcp.SessionManager
	syncLock    *syncengine.Lock

	tracerCloser io.Closer
	stopReaper   chan struct{}
}

// NewServer constructs every component but starts nothing — Run does that.
func NewServer(cfg *config.Config) (*Server, error) {
	log := logger.NewAppLogger(cfg.AppConfig.Logger)
	if err := log.InitLogger(); err != nil {
		return nil, fmt.Errorf("server: init logger: %w", err)
	}

	tracer, closer, err := tracing.NewJaegerTracer(cfg.AppConfig.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("server: init tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	cacheStore, err := cache.Open(cfg.Cache.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("server: open cache: %w", err)
	}

	accountsStore, err := accounts.Open(cfg.Cache.AccountsFile, cfg.Security.EncryptionMasterKey)
	if err != nil {
		return nil, fmt.Errorf("server: open accounts store: %w", err)
	}

	attStore := attachments.NewStore(cfg.Cache.AttachmentsDir)

	imapPool := pool.New(cfg.Pool, credentialResolver)

	syncEngine := syncengine.New(cacheStore, imapPool, attStore, cfg.Sync, log)

	outboxWorker := outbox.New(cacheStore, imapPool, accountsStore, cfg.Outbox, log)

	bus := eventbus.New()
	limiter := ratelimit.New(*cfg.RateLimit)
	sessions := mcp.NewSessionManager(time.Duration(cfg.MCP.SessionIdleTimeoutSeconds) * time.Second)

	modelConfig := mcp.NewModelConfig(nil)
	svc := &mcp.Services{
		Cache:       cacheStore,
		Pool:        imapPool,
		Accounts:    accountsStore,
		Attachments: attStore,
		Sync:        syncEngine,
		Bus:         bus,
		Models:      modelConfig,
		Log:         log,
	}

	registry := mcp.NewRegistry()
	mcp.RegisterLowLevelTools(registry, svc)
	mcp.RegisterHighLevelTools(registry, svc)
	dispatcher := mcp.NewDispatcher(registry, log)
	httpTransport := mcp.NewHTTPTransport(dispatcher, sessions, bus, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.TracingEnhancer(context.Background(), "mailstack"))

	s := &Server{
		config:        cfg,
		log:           log,
		router:        router,
		cacheStore:    cacheStore,
		accountsStore: accountsStore,
		attachments:   attStore,
		pool:          imapPool,
		sync:          syncEngine,
		outbox:        outboxWorker,
		bus:           bus,
		sessions:      sessions,
		tracerCloser:  closer,
		stopReaper:    make(chan struct{}),
		httpServer: &http.Server{
			Addr:    cfg.AppConfig.RestHost + ":" + cfg.AppConfig.RestPort,
			Handler: router,
		},
	}

	api.RegisterRoutes(context.Background(), router, svc, registry, httpTransport, cfg.AppConfig.APIKey, limiter)

	return s, nil
}

// credentialResolver satisfies pool.CredentialResolver directly off the
// already-decrypted models.Account the pool hands it.
func credentialResolver(ctx context.Context, account *models.Account) (string, error) {
	if account.Password != "" {
		return account.Password, nil
	}
	if account.OAuthRefreshToken != "" {
		return account.OAuthAccessToken, nil
	}
	return "", fmt.Errorf("server: account %s has no usable credential", account.EmailAddress)
}

// Initialize seeds the default account (if IMAP_* env vars are set and no
// accounts exist yet), acquires the single-instance sync lock, and starts
// the pool's idle-connection scrubber.
func (s *Server) Initialize(ctx context.Context) error {
	if err := s.bootstrapDefaultAccount(); err != nil {
		return err
	}

	lock, err := syncengine.AcquireLock(s.config.Cache.SyncLockFile)
	if err != nil {
		return fmt.Errorf("server: acquire sync lock: %w", err)
	}
	s.syncLock = lock

	reaped, err := s.cacheStore.ReapNonResumableRunningJobs()
	if err != nil {
		s.log.Errorf("reap non-resumable running jobs: %v", err)
	} else if reaped > 0 {
		s.log.Infof("reaped %d job(s) interrupted by a previous restart", reaped)
	}

	s.pool.Start(ctx)
	return nil
}

func (s *Server) bootstrapDefaultAccount() error {
	d := s.config.DefaultAccount
	if d.Host == "" || d.User == "" {
		return nil
	}
	existing, err := s.accountsStore.ListAccounts()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := timeNow()
	account := &models.Account{
		EmailAddress: d.User,
		DisplayName:  d.User,
		Provider:     enum.EmailGeneric,
		ImapHost:     d.Host,
		ImapPort:     d.Port,
		ImapSecurity: enum.EmailSecuritySSL,
		ImapUsername: d.User,
		Password:     d.Pass,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accountsStore.AddAccount(account); err != nil {
		return fmt.Errorf("server: bootstrap default account: %w", err)
	}
	return s.accountsStore.SetDefaultAccount(account.EmailAddress)
}

func timeNow() time.Time { return time.Now().UTC() }

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(fmt.Sprintf("panic.%s", name))
		ext.Error.Set(span, true)
		span.LogKV("event", "panic", "process", name, "error", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
		span.Finish()
		s.log.Errorf("panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

// Run blocks until shutdown: it starts the sync poll loop, the outbox
// worker, the session reaper, and the HTTP server, then waits for a
// termination signal.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	go s.wrapGoroutine("sync_poll", func() { s.runSyncLoop(ctx) })
	go s.wrapGoroutine("outbox_worker", func() { s.outbox.Run(ctx) })
	go s.wrapGoroutine("job_reaper", func() { s.runJobReapLoop(ctx) })
	go s.wrapGoroutine("session_reaper", func() {
		s.sessions.RunReaper(sessionReapInterval, s.stopReaper, func(id string) { s.bus.Unsubscribe(id) })
	})

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("REST/MCP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server error: %v", err)
		}
	})

	return s.waitForShutdown(cancel)
}

func (s *Server) runSyncLoop(ctx context.Context) {
	interval := time.Duration(s.config.Sync.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.syncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Server) syncOnce(ctx context.Context) {
	accountList, err := s.accountsStore.ListAccounts()
	if err != nil {
		s.log.Errorf("sync: list accounts: %v", err)
		return
	}
	if err := s.sync.SyncAll(ctx, accountList); err != nil {
		s.log.Errorf("sync: pass failed: %v", err)
	}
}

// runJobReapLoop periodically deletes background jobs that reached a
// terminal state more than Jobs.ReapAfterDays ago (§4.11).
func (s *Server) runJobReapLoop(ctx context.Context) {
	interval := time.Duration(s.config.Jobs.ReapIntervalMin) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maxAge := time.Duration(s.config.Jobs.ReapAfterDays) * 24 * time.Hour
			reaped, err := s.cacheStore.ReapOldTerminalJobs(maxAge)
			if err != nil {
				s.log.Errorf("reap old terminal jobs: %v", err)
				continue
			}
			if reaped > 0 {
				s.log.Infof("reaped %d terminal job(s) older than %d day(s)", reaped, s.config.Jobs.ReapAfterDays)
			}
		}
	}
}

func (s *Server) waitForShutdown(cancel context.CancelFunc) error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("shutting down")

	close(s.stopReaper)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http server shutdown error: %v", err)
	}

	s.pool.Stop()

	if s.syncLock != nil {
		if err := s.syncLock.Release(); err != nil {
			s.log.Errorf("release sync lock: %v", err)
		}
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
	return nil
}
