// Package outbox implements the three-stage send pipeline (§4.6): an
// advisory APPEND to the account's Outbox folder, the authoritative SMTP
// send, and an advisory APPEND to Sent. Only the SMTP send gates whether a
// retry is ever allowed to resend — the two IMAP APPENDs are best-effort
// and failing them never triggers a resend, matching
// original_source/src/dashboard/services/outbox_worker.rs's
// process_next (save-to-Outbox / send_via_smtp / save-to-Sent / mark
// complete) exactly, re-expressed against this module's own cache and
// pool instead of the original's queue_service/smtp_service pair.
package outbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailstack/config"
	"github.com/customeros/mailstack/internal/accounts"
	"github.com/customeros/mailstack/internal/cache"
	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/pool"
	"github.com/customeros/mailstack/internal/tracing"
	"github.com/customeros/mailstack/internal/utils"
)

const (
	outboxFolder = "Outbox"
	sentFolder   = "Sent"
)

// Worker drains outbox_queue, one item at a time, in three checkpointed
// stages.
type Worker struct {
	cache   *cache.Store
	pool    *pool.Pool
	creds   *accounts.Store
	cfg     *config.OutboxConfig
	log     logger.Logger
	onEvent func(item *models.OutboxItem)
}

func New(cacheStore *cache.Store, p *pool.Pool, credStore *accounts.Store, cfg *config.OutboxConfig, log logger.Logger) *Worker {
	return &Worker{cache: cacheStore, pool: p, creds: credStore, cfg: cfg, log: log}
}

// OnEvent registers a callback fired after each processed item, so the
// event bus can publish email_changed without this package depending on it.
func (w *Worker) OnEvent(fn func(item *models.OutboxItem)) { w.onEvent = fn }

// Run polls the queue forever at the configured interval, for the
// long-lived server.
func (w *Worker) Run(ctx context.Context) {
	interval := time.Duration(w.cfg.WorkerIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for w.processOne(ctx) {
			}
		}
	}
}

// DrainOnce processes every currently pending item and returns the count,
// for a one-shot invocation; no binary in this module calls it.
func (w *Worker) DrainOnce(ctx context.Context) int {
	n := 0
	for w.processOne(ctx) {
		n++
		if ctx.Err() != nil {
			break
		}
	}
	return n
}

// processOne claims and fully processes one item; it returns false when
// the queue is empty so callers can stop looping.
func (w *Worker) processOne(ctx context.Context) bool {
	item, err := w.cache.ClaimNextPending()
	if err != nil {
		w.log.Errorf("outbox: claim next pending: %v", err)
		return false
	}
	if item == nil {
		return false
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "outbox.Worker.processOne")
	defer span.Finish()
	tracing.TagAccount(span, item.AccountEmail)
	span.SetTag("outbox.id", item.ID)

	account, err := w.creds.GetAccount(item.AccountEmail)
	if err != nil || account == nil {
		w.log.Errorf("outbox: account %s not found for item %s: %v", item.AccountEmail, item.ID, err)
		_ = w.cache.RetryOutboxItem(item.ID, "account not found")
		return true
	}

	// Stage A: advisory Outbox APPEND.
	if !item.OutboxSaved {
		if err := w.appendToFolder(ctx, account, outboxFolder, item); err != nil {
			w.log.Warn("outbox: save to Outbox folder failed, continuing to SMTP send", zap.Error(err))
		} else if err := w.cache.MarkOutboxSaved(item.ID); err != nil {
			w.log.Errorf("outbox: mark outbox saved: %v", err)
		}
	}

	// Stage B: authoritative SMTP send. This is the only stage that can
	// ever cause a retry/resend.
	if !item.SmtpSent {
		password, err := w.resolveCredential(ctx, account)
		if err != nil {
			w.handleFailure(item.ID, fmt.Sprintf("resolve credential: %v", err))
			return true
		}
		if err := w.sendViaSMTP(ctx, account, password, item); err != nil {
			w.handleFailure(item.ID, err.Error())
			return true
		}
		if err := w.cache.MarkSmtpSent(item.ID); err != nil {
			w.log.Errorf("outbox: mark smtp sent: %v", err)
		}
	}

	// Stage C: advisory Sent APPEND. Failures here are logged, never
	// retried over SMTP (§8 property 4).
	if !item.SentFolderSaved {
		if err := w.appendToFolder(ctx, account, sentFolder, item); err != nil {
			w.log.Warn("outbox: save to Sent folder failed", zap.Error(err))
			_ = w.cache.RetryOutboxItem(item.ID, "") // no-op: smtp_sent already true
		} else if err := w.cache.MarkSentFolderSaved(item.ID); err != nil {
			w.log.Errorf("outbox: mark sent folder saved: %v", err)
		}
	}

	if refreshed, err := w.cache.GetOutboxItem(item.ID); err == nil && w.onEvent != nil {
		w.onEvent(refreshed)
	}
	return true
}

func (w *Worker) handleFailure(id, lastErr string) {
	w.log.Errorf("outbox: item %s failed: %s", id, lastErr)
	if err := w.cache.RetryOutboxItem(id, lastErr); err != nil {
		w.log.Errorf("outbox: record failure for %s: %v", id, err)
	}
}

func (w *Worker) resolveCredential(ctx context.Context, account *models.Account) (string, error) {
	if account.OAuthRefreshToken != "" {
		return account.OAuthAccessToken, nil
	}
	return account.Password, nil
}

// appendToFolder builds the RFC 5322 bytes and appends them to the given
// IMAP folder via a pooled session; used for both the Outbox and Sent
// advisory writes.
func (w *Worker) appendToFolder(ctx context.Context, account *models.Account, folder string, item *models.OutboxItem) error {
	raw, err := buildMIME(item)
	if err != nil {
		return err
	}
	lease, err := w.pool.Acquire(ctx, account)
	if err != nil {
		return fmt.Errorf("acquire session: %w", err)
	}
	defer lease.Release()

	return lease.Session.Append(ctx, folder, []string{`\Seen`}, raw)
}

// sendViaSMTP validates recipients with mailsherpa, builds the MIME
// message, and dispatches it, choosing the explicit-STARTTLS dance versus
// smtp.SendMail per account.SmtpSecurity, exactly mirroring the teacher's
// sendWithSTARTTLS/SendMail split in services/smtp/service.go.
func (w *Worker) sendViaSMTP(ctx context.Context, account *models.Account, password string, item *models.OutboxItem) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "outbox.Worker.sendViaSMTP")
	defer span.Finish()
	tracing.TagAccount(span, account.EmailAddress)

	for _, addr := range item.ToAddresses {
		v := mailvalidate.ValidateEmailSyntax(addr)
		if !v.IsValid {
			return fmt.Errorf("recipient %s failed syntax validation", addr)
		}
	}

	raw, err := buildMIME(item)
	if err != nil {
		return err
	}

	// The same address can legitimately appear in more than one of
	// To/Cc/Bcc (e.g. a reply that Ccs someone already in To); dedupe so
	// SMTP never delivers the same message twice to one mailbox.
	recipients := utils.UniqueEmails(append(append(append([]string{}, item.ToAddresses...), item.CcAddresses...), item.BccAddresses...))
	addr := fmt.Sprintf("%s:%d", account.SmtpHost, account.SmtpPort)
	auth := smtp.PlainAuth("", account.SmtpUsername, password, account.SmtpHost)

	if account.SmtpSecurity == enum.EmailSecurityStartTLS {
		return sendWithSTARTTLS(account, auth, recipients, raw)
	}
	if err := smtp.SendMail(addr, auth, account.EmailAddress, recipients, raw); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func sendWithSTARTTLS(account *models.Account, auth smtp.Auth, recipients []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", account.SmtpHost, account.SmtpPort)
	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(&tls.Config{ServerName: account.SmtpHost}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := conn.Mail(account.EmailAddress); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	for _, r := range recipients {
		if err := conn.Rcpt(r); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", r, err)
		}
	}
	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return conn.Quit()
}

// buildMIME renders an OutboxItem as RFC 5322 bytes: a multipart/alternative
// message when HTML is present, plain text otherwise, matching the
// teacher's buildMultipartMessageWithStructure/buildPlainTextMessageWithStructure
// split in services/smtp/service.go (attachment parts are not modeled on
// OutboxItem, only text/HTML alternatives).
func buildMIME(item *models.OutboxItem) ([]byte, error) {
	if len(item.RawMIME) > 0 {
		return item.RawMIME, nil
	}

	buf := &bytes.Buffer{}
	headers := map[string]string{
		"To":           joinAddrs(item.ToAddresses),
		"Subject":      item.Subject,
		"MIME-Version": "1.0",
		"Date":         time.Now().Format(time.RFC1123Z),
	}
	if len(item.CcAddresses) > 0 {
		headers["Cc"] = joinAddrs(item.CcAddresses)
	}
	if item.MessageID != "" {
		headers["Message-ID"] = "<" + item.MessageID + ">"
	}

	if item.BodyHTML == "" {
		headers["Content-Type"] = "text/plain; charset=UTF-8"
		writeHeaders(headers, buf)
		buf.WriteString(item.BodyText)
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(buf)
	headers["Content-Type"] = "multipart/alternative; boundary=" + writer.Boundary()
	writeHeaders(headers, buf)

	if item.BodyText != "" {
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"text/plain; charset=UTF-8"},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		part.Write([]byte(item.BodyText))
	}
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	part.Write([]byte(item.BodyHTML))

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeHeaders(headers map[string]string, buf *bytes.Buffer) {
	for k, v := range headers {
		fmt.Fprintf(buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("\r\n")
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
