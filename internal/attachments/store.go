// Package attachments is the filesystem Attachment Store (§4.4): blobs
// land under <dataDir>/<account>/<sanitized-message-id>/<filename>. The
// Upload/Download/Delete methods follow the teacher's ObjectStorageService,
// with the S3 client swapped for os/io; there is no GetPublicURL.
package attachments

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailstack/internal/tracing"
)

// Store implements filesystem-backed attachment storage matching the
// teacher's StorageService interface shape.
type Store struct {
	baseDir string
}

func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Path returns the on-disk path for one attachment without touching disk,
// for callers (cache layer) that only need to record storage_path.
func (s *Store) Path(accountEmail, messageID, filename string) string {
	return filepath.Join(s.baseDir, SanitizeSegment(accountEmail), SanitizeSegment(messageID), SanitizeSegment(filename))
}

// Upload writes data to <account>/<message-id>/<filename>, creating
// parent directories as needed.
func (s *Store) Upload(ctx context.Context, accountEmail, messageID, filename string, data []byte) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachments.Store.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	path := s.Path(accountEmail, messageID, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("attachments: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("attachments: write %s: %w", path, err)
	}
	return path, nil
}

// Download reads the bytes at a previously recorded storage path.
func (s *Store) Download(ctx context.Context, storagePath string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachments.Store.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	data, err := os.ReadFile(storagePath)
	if err != nil {
		return nil, fmt.Errorf("attachments: read %s: %w", storagePath, err)
	}
	return data, nil
}

// Delete removes the file at storagePath; a missing file is not an error
// since the cache row may already be ahead of a previous partial delete.
func (s *Store) Delete(ctx context.Context, storagePath string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachments.Store.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("attachments: remove %s: %w", storagePath, err)
	}
	return nil
}

// DeleteMessageDir removes every attachment for one message in one call,
// used when a message is expunged from the cache.
func (s *Store) DeleteMessageDir(accountEmail, messageID string) error {
	dir := filepath.Join(s.baseDir, SanitizeSegment(accountEmail), SanitizeSegment(messageID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("attachments: remove dir %s: %w", dir, err)
	}
	return nil
}

// WriteZip streams every given (filename, storagePath) pair into a single
// ZIP archive written to w, for the bulk-download REST endpoint.
func (s *Store) WriteZip(w io.Writer, files map[string]string) error {
	zw := zip.NewWriter(w)
	for name, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("attachments: read %s for zip: %w", path, err)
		}
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// invalidChars may not appear in path segments derived from untrusted
// message/account/filename strings, per §4.4's sanitization rule: '<' and
// '>' are stripped, every other character in the set becomes '_'.
const invalidChars = `<>/\:*?"|`

// SanitizeSegment makes s safe as one filesystem path component, per §4.4:
// '<' and '>' are dropped and the rest of invalidChars are replaced by '_'.
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '<' || r == '>' {
			continue
		}
		if strings.ContainsRune(invalidChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "_"
	}
	return out
}

// SynthesizeMessageID builds a fallback message id for messages that
// arrive without one (some MTAs omit Message-ID), per §4.4:
// "rustymail-<sanitized-account>-<uid>-<timestamp>".
func SynthesizeMessageID(accountEmail string, uid uint32) string {
	return fmt.Sprintf("rustymail-%s-%s-%d", SanitizeSegment(accountEmail), strconv.FormatUint(uint64(uid), 10), time.Now().Unix())
}
