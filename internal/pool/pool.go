// Package pool manages a bounded set of authenticated IMAP sessions per
// account, so that concurrent REST/MCP requests against the same mailbox
// share a small number of live connections instead of dialing fresh for
// every call.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/internal/imapsession"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/tracing"
)

// CredentialResolver returns the plaintext IMAP password (or OAuth access
// token, already refreshed) for an account, decrypting as needed. The pool
// never persists credentials itself.
type CredentialResolver func(ctx context.Context, account *models.Account) (string, error)

type leasedSession struct {
	session  *imapsession.Session
	busy     bool
	lastUsed time.Time
}

type accountPool struct {
	mu       sync.Mutex
	account  *models.Account
	sessions []*leasedSession
	waiters  []chan struct{}
}

// Pool hands out exclusive IMAP session leases per account, bounded by
// PoolConfig.MaxPerAccount, and scrubs idle connections in the background.
type Pool struct {
	cfg      *config.PoolConfig
	resolve  CredentialResolver
	mu       sync.Mutex
	accounts map[string]*accountPool

	stopOnce sync.Once
	stopCh   chan struct{}

	acquireTimeouts  int64
	creationFailures int64
}

// AccountStats reports the live state of one account's pool, per §4.2's
// required stats surface.
type AccountStats struct {
	Active int
	Idle   int
	Wait   int
}

// Stats reports pool-wide and per-account counters: active/idle/waiting
// sessions right now, plus cumulative acquire timeouts and dial failures
// since the pool started.
type Stats struct {
	AcquireTimeouts  int64
	CreationFailures int64
	Accounts         map[string]AccountStats
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pools := make(map[string]*accountPool, len(p.accounts))
	for email, ap := range p.accounts {
		pools[email] = ap
	}
	p.mu.Unlock()

	accounts := make(map[string]AccountStats, len(pools))
	for email, ap := range pools {
		ap.mu.Lock()
		var active, idle int
		for _, ls := range ap.sessions {
			if ls.busy {
				active++
			} else {
				idle++
			}
		}
		wait := len(ap.waiters)
		ap.mu.Unlock()
		accounts[email] = AccountStats{Active: active, Idle: idle, Wait: wait}
	}

	return Stats{
		AcquireTimeouts:  atomic.LoadInt64(&p.acquireTimeouts),
		CreationFailures: atomic.LoadInt64(&p.creationFailures),
		Accounts:         accounts,
	}
}

func New(cfg *config.PoolConfig, resolver CredentialResolver) *Pool {
	return &Pool{
		cfg:      cfg,
		resolve:  resolver,
		accounts: make(map[string]*accountPool),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the idle-connection scrubber. Grounded on the teacher's
// IMAPService.Start/Stop goroutine-per-lifecycle shape.
func (p *Pool) Start(ctx context.Context) {
	go p.scrubLoop(ctx)
}

func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ap := range p.accounts {
		ap.mu.Lock()
		for _, ls := range ap.sessions {
			ls.session.Logout(context.Background())
		}
		ap.sessions = nil
		ap.mu.Unlock()
	}
}

func (p *Pool) scrubLoop(ctx context.Context) {
	interval := time.Duration(p.cfg.ScrubIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scrubIdle()
		}
	}
}

func (p *Pool) scrubIdle() {
	idleTimeout := time.Duration(p.cfg.IdleTimeoutSeconds) * time.Second
	if idleTimeout <= 0 {
		return
	}

	p.mu.Lock()
	pools := make([]*accountPool, 0, len(p.accounts))
	for _, ap := range p.accounts {
		pools = append(pools, ap)
	}
	p.mu.Unlock()

	for _, ap := range pools {
		ap.mu.Lock()
		kept := ap.sessions[:0]
		for _, ls := range ap.sessions {
			if !ls.busy && time.Since(ls.lastUsed) > idleTimeout {
				ls.session.Logout(context.Background())
				continue
			}
			kept = append(kept, ls)
		}
		ap.sessions = kept
		ap.mu.Unlock()
	}
}

func (p *Pool) poolFor(account *models.Account) *accountPool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ap, ok := p.accounts[account.EmailAddress]
	if !ok {
		ap = &accountPool{account: account}
		p.accounts[account.EmailAddress] = ap
	}
	return ap
}

// Lease is a checked-out session; callers MUST call Release exactly once.
type Lease struct {
	pool    *Pool
	ap      *accountPool
	entry   *leasedSession
	Session *imapsession.Session
}

// Release returns the session to the idle set, unless it is poisoned, in
// which case it is logged out and dropped so a future Acquire dials fresh.
func (l *Lease) Release() {
	l.ap.mu.Lock()
	defer l.ap.mu.Unlock()

	l.entry.busy = false
	l.entry.lastUsed = time.Now()

	if l.Session.Poisoned() {
		l.Session.Logout(context.Background())
		kept := l.ap.sessions[:0]
		for _, ls := range l.ap.sessions {
			if ls != l.entry {
				kept = append(kept, ls)
			}
		}
		l.ap.sessions = kept
	}

	if len(l.ap.waiters) > 0 {
		w := l.ap.waiters[0]
		l.ap.waiters = l.ap.waiters[1:]
		close(w)
	}
}

// Acquire returns a leased session for the account, dialing a new
// connection if the per-account pool has capacity, or blocking until one
// frees up or AcquireTimeoutSecs elapses.
func (p *Pool) Acquire(ctx context.Context, account *models.Account) (*Lease, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pool.Acquire")
	defer span.Finish()
	tracing.TagAccount(span, account.EmailAddress)

	ap := p.poolFor(account)
	deadline := time.Duration(p.cfg.AcquireTimeoutSecs) * time.Second
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		ap.mu.Lock()
		for _, ls := range ap.sessions {
			if !ls.busy {
				ls.busy = true
				ap.mu.Unlock()
				if err := ls.session.Noop(ctx); err != nil {
					return p.replaceDead(ctx, ap, ls, account)
				}
				return &Lease{pool: p, ap: ap, entry: ls, Session: ls.session}, nil
			}
		}

		maxPer := p.cfg.MaxPerAccount
		if maxPer <= 0 {
			maxPer = 1
		}
		if len(ap.sessions) < maxPer {
			ap.mu.Unlock()
			return p.dialNew(ctx, ap, account)
		}

		waiter := make(chan struct{})
		ap.waiters = append(ap.waiters, waiter)
		ap.mu.Unlock()

		select {
		case <-waiter:
			continue
		case <-timeoutCtx.Done():
			atomic.AddInt64(&p.acquireTimeouts, 1)
			return nil, fmt.Errorf("pool: acquire timed out for %s", account.EmailAddress)
		}
	}
}

func (p *Pool) dialNew(ctx context.Context, ap *accountPool, account *models.Account) (*Lease, error) {
	password, err := p.resolve(ctx, account)
	if err != nil {
		atomic.AddInt64(&p.creationFailures, 1)
		return nil, fmt.Errorf("pool: resolve credential: %w", err)
	}

	session, err := imapsession.Dial(ctx, account, password)
	if err != nil {
		atomic.AddInt64(&p.creationFailures, 1)
		return nil, err
	}

	ls := &leasedSession{session: session, busy: true, lastUsed: time.Now()}

	ap.mu.Lock()
	ap.sessions = append(ap.sessions, ls)
	ap.mu.Unlock()

	return &Lease{pool: p, ap: ap, entry: ls, Session: session}, nil
}

func (p *Pool) replaceDead(ctx context.Context, ap *accountPool, dead *leasedSession, account *models.Account) (*Lease, error) {
	ap.mu.Lock()
	kept := ap.sessions[:0]
	for _, ls := range ap.sessions {
		if ls != dead {
			kept = append(kept, ls)
		}
	}
	ap.sessions = kept
	ap.mu.Unlock()

	log.Printf("pool: dropping dead session for %s, redialing", account.EmailAddress)
	return p.dialNew(ctx, ap, account)
}
