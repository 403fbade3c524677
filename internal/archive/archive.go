// Package archive mirrors downloaded notice documents to an FTP server so
// the team keeps a copy of every edital independent of the portal.
//
// The mirror is best-effort: a failed upload is recorded in the run result
// but never aborts a bulletin run.
package archive

import (
	"context"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cwolfbr/indflow/internal/config"
)

// Mirror uploads downloaded notice documents to an FTP archive.
type Mirror struct {
	cfg     config.ArchiveConfig
	timeout time.Duration
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithTimeout overrides the dial timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Mirror) { m.timeout = d }
}

// New creates a Mirror for the configured archive server.
func New(cfg config.ArchiveConfig, opts ...Option) *Mirror {
	m := &Mirror{cfg: cfg, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether an archive host is configured.
func (m *Mirror) Enabled() bool { return m.cfg.Enabled() }

// Store mirrors the given local files under root/<bulletin> on the archive
// server. It returns how many files made it across; on partial failure the
// count still reflects the stored files and the error describes the first
// upload that failed.
func (m *Mirror) Store(ctx context.Context, bulletin int, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	conn, err := m.connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	dir := m.cfg.Root
	if bulletin > 0 {
		dir = path.Join(dir, strconv.Itoa(bulletin))
	}
	mkdirAll(conn, dir)

	stored := 0
	var firstErr error
	for _, local := range paths {
		if err := m.put(conn, dir, local); err != nil {
			zap.L().Warn("archive: upload failed",
				zap.String("file", filepath.Base(local)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}

	zap.L().Info("archive: mirror finished",
		zap.Int("stored", stored),
		zap.Int("requested", len(paths)),
		zap.String("dir", dir))

	return stored, firstErr
}

func (m *Mirror) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(hostAddr(m.cfg.Host), ftp.DialWithTimeout(m.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "archive: dial")
	}

	user, pass := m.cfg.User, m.cfg.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "archive: login")
	}

	return conn, nil
}

func (m *Mirror) put(conn *ftp.ServerConn, dir, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return eris.Wrapf(err, "archive: open %s", local)
	}
	defer f.Close()

	remote := path.Join(dir, filepath.Base(local))
	if err := conn.Stor(remote, f); err != nil {
		return eris.Wrapf(err, "archive: store %s", remote)
	}

	zap.L().Debug("archive: stored", zap.String("remote", remote))
	return nil
}

// mkdirAll creates each segment of dir in turn. Servers answer 550 for a
// directory that already exists, so replies are ignored; a directory that
// truly could not be created surfaces as a Stor failure right after.
func mkdirAll(conn *ftp.ServerConn, dir string) {
	cur := ""
	for _, seg := range strings.Split(dir, "/") {
		if seg == "" {
			continue
		}
		cur = path.Join(cur, seg)
		conn.MakeDir(cur)
	}
}

// hostAddr normalizes the configured host to host:port, defaulting to 21.
func hostAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "21")
	}
	return host
}
