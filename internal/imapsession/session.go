// Package imapsession wraps one authenticated IMAP4rev1 connection. A
// Session is never shared across concurrent callers; the connection pool
// hands out exclusive leases (see internal/pool).
package imapsession

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailstack/internal/enum"
	"github.com/customeros/mailstack/internal/models"
	"github.com/customeros/mailstack/internal/tracing"
)

// Kind tags the failure mode so callers (and the pool) can decide whether
// the session should be dropped.
type Kind string

const (
	KindConnection     Kind = "connection"
	KindAuth           Kind = "auth"
	KindTLS            Kind = "tls"
	KindFolderNotFound Kind = "folder_not_found"
	KindFolderExists   Kind = "folder_exists"
	KindEmailNotFound  Kind = "email_not_found"
	KindInvalidState   Kind = "invalid_state"
	KindInvalidMailbox Kind = "invalid_mailbox"
)

// Error wraps a session failure with a Kind; Connection and TLS kinds mark
// the session poisoned.
type Error struct {
	Kind Kind
	UIDs []uint32
	Err  error
}

func (e *Error) Error() string {
	if len(e.UIDs) > 0 {
		return fmt.Sprintf("imap %s: %v (uids=%v)", e.Kind, e.Err, e.UIDs)
	}
	return fmt.Sprintf("imap %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) poisons() bool {
	return e.Kind == KindConnection || e.Kind == KindTLS
}

// FolderInfo is the result of SELECT.
type FolderInfo struct {
	Name            string
	Exists          uint32
	Recent          uint32
	Unseen          uint32
	UIDValidity     uint32
	UIDNext         uint32
	PermanentFlags  []string
	ReadOnly        bool
}

// Session is one authenticated connection wrapping emersion/go-imap,
// exposing the operation set described in §4.1.
type Session struct {
	AccountEmail string

	mu       sync.Mutex
	c        *client.Client
	poisoned bool
	caps     map[string]bool
}

// Dial opens a TCP/TLS connection and authenticates, per the account's
// imap host/port/security and credential configuration.
func Dial(ctx context.Context, account *models.Account, password string) (*Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "imapsession.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account", account.EmailAddress)
	span.SetTag("imap.host", account.ImapHost)

	addr := fmt.Sprintf("%s:%d", account.ImapHost, account.ImapPort)
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	var c *client.Client
	var err error

	switch account.ImapSecurity {
	case enum.EmailSecurityTLS, enum.EmailSecuritySSL:
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: account.ImapHost})
	default:
		c, err = client.DialWithDialer(dialer, addr)
		if err == nil && account.ImapSecurity == enum.EmailSecurityStartTLS {
			if sterr := c.StartTLS(&tls.Config{ServerName: account.ImapHost}); sterr != nil {
				c.Logout()
				tracing.TraceErr(span, sterr)
				return nil, &Error{Kind: KindTLS, Err: sterr}
			}
		}
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: KindConnection, Err: fmt.Errorf("dial %s: %w", addr, err)}
	}

	capsList, err := c.Capability()
	if err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: KindConnection, Err: err}
	}
	caps := make(map[string]bool, len(capsList))
	for name := range capsList {
		caps[name] = true
	}

	c.Timeout = 30 * time.Second
	if caps["XOAUTH2"] && account.OAuthRefreshToken != "" {
		err = loginXOAUTH2(c, account.ImapUsername, account.OAuthAccessToken)
	} else {
		err = c.Login(account.ImapUsername, password)
	}
	c.Timeout = 0
	if err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: KindAuth, Err: err}
	}

	return &Session{AccountEmail: account.EmailAddress, c: c, caps: caps}, nil
}

func loginXOAUTH2(c *client.Client, user, accessToken string) error {
	sasl := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", user, accessToken)
	_ = sasl
	// emersion/go-imap's client.Login does SASL PLAIN/LOGIN only; XOAUTH2
	// requires building a raw AUTHENTICATE command, which this package does
	// not do (the outbox SMTP path authenticates with PLAIN only as well).
	// IMAP XOAUTH2 is detected at the capability level and a login through
	// it returns this error.
	return fmt.Errorf("imap XOAUTH2 not implemented")
}

func (s *Session) HasCapability(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps[name]
}

func (s *Session) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

func (s *Session) markPoisoned(err error) error {
	if imapErr, ok := err.(*Error); ok && imapErr.poisons() {
		s.mu.Lock()
		s.poisoned = true
		s.mu.Unlock()
	}
	return err
}

// ListFolders returns every mailbox the account has, with its delimiter
// and attribute flags.
func (s *Session) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.ListFolders")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	mailboxes := make(chan *goimap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() { done <- s.c.List("", "*", mailboxes) }()

	var folders []*models.Folder
	for m := range mailboxes {
		attrs := make([]string, len(m.Attributes))
		for i, a := range m.Attributes {
			attrs[i] = string(a)
		}
		folders = append(folders, models.NewFolder(s.AccountEmail, m.Name, m.Delimiter, attrs))
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, s.markPoisoned(&Error{Kind: KindConnection, Err: err})
	}
	return folders, nil
}

func (s *Session) CreateFolder(ctx context.Context, name string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.CreateFolder")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)
	span.SetTag("folder", name)

	if err := s.c.Create(name); err != nil {
		tracing.TraceErr(span, err)
		return &Error{Kind: KindFolderExists, Err: err}
	}
	return nil
}

func (s *Session) RenameFolder(ctx context.Context, oldName, newName string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.RenameFolder")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	if err := s.c.Rename(oldName, newName); err != nil {
		tracing.TraceErr(span, err)
		return &Error{Kind: KindFolderNotFound, Err: err}
	}
	return nil
}

func (s *Session) DeleteFolder(ctx context.Context, name string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.DeleteFolder")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	if err := s.c.Delete(name); err != nil {
		tracing.TraceErr(span, err)
		return &Error{Kind: KindFolderNotFound, Err: err}
	}
	return nil
}

// SelectFolder opens a folder and reports its current state.
func (s *Session) SelectFolder(ctx context.Context, name string, readOnly bool) (*FolderInfo, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.SelectFolder")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)
	span.SetTag("folder", name)

	mbox, err := s.c.Select(name, readOnly)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, &Error{Kind: KindFolderNotFound, Err: err}
	}

	flags := make([]string, len(mbox.PermanentFlags))
	copy(flags, mbox.PermanentFlags)

	return &FolderInfo{
		Name:           name,
		Exists:         mbox.Messages,
		Recent:         mbox.Recent,
		Unseen:         mbox.Unseen,
		UIDValidity:    mbox.UidValidity,
		UIDNext:        mbox.UidNext,
		PermanentFlags: flags,
		ReadOnly:       mbox.ReadOnly,
	}, nil
}

// SearchSince returns UIDs for messages with UID > fromUID (fromUID==0 means ALL).
func (s *Session) SearchSince(ctx context.Context, fromUID uint32) ([]uint32, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.SearchSince")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	criteria := goimap.NewSearchCriteria()
	if fromUID > 0 {
		seqSet := new(goimap.SeqSet)
		seqSet.AddRange(fromUID+1, 0)
		criteria.Uid = seqSet
	}

	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, s.markPoisoned(&Error{Kind: KindConnection, Err: err})
	}
	return uids, nil
}

// SearchSubject does a server-side subject search (used by end-to-end
// append/search/fetch scenarios).
func (s *Session) SearchSubject(ctx context.Context, subject string) ([]uint32, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.SearchSubject")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	criteria := goimap.NewSearchCriteria()
	criteria.Header.Add("Subject", subject)
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, s.markPoisoned(&Error{Kind: KindConnection, Err: err})
	}
	return uids, nil
}

// Fetch retrieves full messages for the given UIDs, decoding MIME bodies.
func (s *Session) Fetch(ctx context.Context, uids []uint32) ([]*DecodedMessage, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.Fetch")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)
	span.SetTag("uid.count", len(uids))

	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []goimap.FetchItem{
		goimap.FetchEnvelope,
		goimap.FetchBodyStructure,
		goimap.FetchFlags,
		goimap.FetchUid,
		goimap.FetchInternalDate,
		goimap.FetchRFC822Size,
		goimap.FetchRFC822,
	}

	messages := make(chan *goimap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seqSet, items, messages) }()

	var out []*DecodedMessage
	for msg := range messages {
		decoded, err := decodeMessage(msg)
		if err != nil {
			continue
		}
		out = append(out, decoded)
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return out, s.markPoisoned(&Error{Kind: KindEmailNotFound, UIDs: uids, Err: err})
	}
	return out, nil
}

// Append stores raw RFC 5322 bytes into a folder with the given flags.
func (s *Session) Append(ctx context.Context, folder string, flags []string, body []byte) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.Append")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)
	span.SetTag("folder", folder)

	literal := &byteLiteral{data: body}
	if err := s.c.Append(folder, flags, time.Now(), literal); err != nil {
		tracing.TraceErr(span, err)
		return &Error{Kind: KindFolderNotFound, Err: err}
	}
	return nil
}

// StoreFlags adds, removes, or replaces flags on the given UIDs.
func (s *Session) StoreFlags(ctx context.Context, uids []uint32, op StoreOp, flags []string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.StoreFlags")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	var item goimap.StoreItem
	switch op {
	case StoreAdd:
		item = goimap.FormatFlagsOp(goimap.AddFlags, true)
	case StoreRemove:
		item = goimap.FormatFlagsOp(goimap.RemoveFlags, true)
	default:
		item = goimap.FormatFlagsOp(goimap.SetFlags, true)
	}

	ifaceFlags := make([]interface{}, len(flags))
	for i, f := range flags {
		ifaceFlags[i] = f
	}

	if err := s.c.UidStore(seqSet, item, ifaceFlags, nil); err != nil {
		tracing.TraceErr(span, err)
		return s.markPoisoned(&Error{Kind: KindEmailNotFound, UIDs: uids, Err: err})
	}
	return nil
}

type StoreOp int

const (
	StoreAdd StoreOp = iota
	StoreRemove
	StoreReplace
)

// Move relocates messages to another folder: UIDPLUS MOVE when the server
// supports it, else COPY+STORE(\Deleted)+EXPUNGE.
func (s *Session) Move(ctx context.Context, uids []uint32, destFolder string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.Move")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)
	span.SetTag("dest", destFolder)

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	if s.HasCapability("MOVE") {
		if err := s.c.UidMove(seqSet, destFolder); err != nil {
			tracing.TraceErr(span, err)
			return s.markPoisoned(&Error{Kind: KindEmailNotFound, UIDs: uids, Err: err})
		}
		return nil
	}

	if err := s.c.UidCopy(seqSet, destFolder); err != nil {
		tracing.TraceErr(span, err)
		return s.markPoisoned(&Error{Kind: KindEmailNotFound, UIDs: uids, Err: err})
	}
	if err := s.StoreFlags(ctx, uids, StoreAdd, []string{goimap.DeletedFlag}); err != nil {
		return err
	}
	return s.Expunge(ctx)
}

func (s *Session) Expunge(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.Expunge")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	if err := s.c.Expunge(nil); err != nil {
		tracing.TraceErr(span, err)
		return s.markPoisoned(&Error{Kind: KindConnection, Err: err})
	}
	return nil
}

func (s *Session) Noop(ctx context.Context) error {
	if err := s.c.Noop(); err != nil {
		return s.markPoisoned(&Error{Kind: KindConnection, Err: err})
	}
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "imapsession.Logout")
	defer span.Finish()
	tracing.TagAccount(span, s.AccountEmail)

	return s.c.Logout()
}

// byteLiteral adapts a []byte into the imap.Literal interface APPEND wants.
type byteLiteral struct {
	data []byte
	pos  int
}

func (b *byteLiteral) Len() int { return len(b.data) }

func (b *byteLiteral) Read(p []byte) (int, error) {
	n := copy(p, b.data[b.pos:])
	b.pos += n
	if n == 0 {
		return 0, fmt.Errorf("EOF")
	}
	return n, nil
}
