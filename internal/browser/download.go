package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Download captures the file produced by trigger. Chrome writes the download
// under a GUID name in dir; once the browser reports completion the file is
// renamed to its suggested filename and the final path returned. The whole
// capture is bounded by timeout: no download event within it is an error,
// never an indefinite wait.
func (s *Session) Download(ctx context.Context, dir string, timeout time.Duration, trigger func(context.Context) error) (string, error) {
	if s.browserCtx == nil {
		return "", eris.New("browser: session not started")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "browser: create download dir")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", eris.Wrap(err, "browser: resolve download dir")
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	type outcome struct {
		guid     string
		name     string
		canceled bool
	}

	var mu sync.Mutex
	suggested := make(map[string]string)
	done := make(chan outcome, 1)

	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			mu.Lock()
			suggested[e.GUID] = e.SuggestedFilename
			mu.Unlock()
		case *browser.EventDownloadProgress:
			if e.State != browser.DownloadProgressStateCompleted && e.State != browser.DownloadProgressStateCanceled {
				return
			}
			mu.Lock()
			name := suggested[e.GUID]
			mu.Unlock()
			select {
			case done <- outcome{guid: e.GUID, name: name, canceled: e.State == browser.DownloadProgressStateCanceled}:
			default:
			}
		}
	})

	err = chromedp.Run(runCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(absDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		return "", eris.Wrap(err, "browser: set download behavior")
	}

	if err := trigger(runCtx); err != nil {
		return "", eris.Wrap(err, "browser: download trigger")
	}

	select {
	case res := <-done:
		if res.canceled {
			return "", eris.New("browser: download canceled by browser")
		}
		path, err := renameDownload(absDir, res.guid, res.name)
		if err != nil {
			return "", err
		}
		zap.L().Debug("download captured",
			zap.String("file", filepath.Base(path)))
		return path, nil
	case <-runCtx.Done():
		return "", eris.Errorf("browser: no download completed within %s", timeout)
	}
}

// renameDownload moves the GUID-named capture to its suggested filename,
// suffixing a counter on collision.
func renameDownload(dir, guid, name string) (string, error) {
	src := filepath.Join(dir, guid)
	if name == "" {
		return src, nil
	}

	dst := uniquePath(dir, filepath.Base(name))
	if err := os.Rename(src, dst); err != nil {
		return "", eris.Wrap(err, "browser: rename download")
	}
	return dst, nil
}

func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
