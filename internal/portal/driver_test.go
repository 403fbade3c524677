package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwolfbr/indflow/internal/config"
)

// fakeDriver scripts the browser for portal flow tests. Behavior functions
// are optional; their zero values mean "nothing on the page".
type fakeDriver struct {
	visibleFn  func(query string) bool
	countFn    func(query string) int
	textFn     func(query string) string
	textsFn    func(query string) []string
	attrsFn    func(query, attr string) []string
	htmlFn     func(query string) []string
	evalFn     func(expr string, out any) error
	clickFn    func(query string) error
	downloadFn func(dir string, trigger func(context.Context) error) (string, error)
	location   string
	navErr     error

	navigations []string
	clicks      []string
	clicksNth   []string
	clicksAt    []string
	fills       map[string]string
	scrolls     []string
	screenshots []string
	escapes     int
	paces       int
}

var _ Driver = (*fakeDriver)(nil)

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.navigations = append(f.navigations, url)
	return f.navErr
}

func (f *fakeDriver) Visible(_ context.Context, query string, _ time.Duration) bool {
	if f.visibleFn == nil {
		return false
	}
	return f.visibleFn(query)
}

func (f *fakeDriver) Click(_ context.Context, query string) error {
	f.clicks = append(f.clicks, query)
	if f.clickFn != nil {
		return f.clickFn(query)
	}
	return nil
}

func (f *fakeDriver) ClickNth(_ context.Context, query string, idx int) error {
	f.clicksNth = append(f.clicksNth, fmt.Sprintf("%s#%d", query, idx))
	return nil
}

func (f *fakeDriver) ClickAt(_ context.Context, x, y float64) error {
	f.clicksAt = append(f.clicksAt, fmt.Sprintf("%.0f,%.0f", x, y))
	return nil
}

func (f *fakeDriver) Fill(_ context.Context, query, value string) error {
	if f.fills == nil {
		f.fills = make(map[string]string)
	}
	f.fills[query] = value
	return nil
}

func (f *fakeDriver) Text(_ context.Context, query string) (string, error) {
	if f.textFn == nil {
		return "", nil
	}
	return f.textFn(query), nil
}

func (f *fakeDriver) Texts(_ context.Context, query string) ([]string, error) {
	if f.textsFn == nil {
		return nil, nil
	}
	return f.textsFn(query), nil
}

func (f *fakeDriver) Attributes(_ context.Context, query, attr string) ([]string, error) {
	if f.attrsFn == nil {
		return nil, nil
	}
	return f.attrsFn(query, attr), nil
}

func (f *fakeDriver) Count(_ context.Context, query string) (int, error) {
	if f.countFn == nil {
		return 0, nil
	}
	return f.countFn(query), nil
}

func (f *fakeDriver) HTML(_ context.Context, query string) ([]string, error) {
	if f.htmlFn == nil {
		return nil, nil
	}
	return f.htmlFn(query), nil
}

func (f *fakeDriver) Eval(_ context.Context, expr string, out any) error {
	if f.evalFn == nil {
		return nil
	}
	return f.evalFn(expr, out)
}

func (f *fakeDriver) Location(context.Context) (string, error) {
	return f.location, nil
}

func (f *fakeDriver) PressEscape(context.Context) error {
	f.escapes++
	return nil
}

func (f *fakeDriver) ScrollIntoView(_ context.Context, query string) error {
	f.scrolls = append(f.scrolls, query)
	return nil
}

func (f *fakeDriver) Screenshot(_ context.Context, path string) error {
	f.screenshots = append(f.screenshots, path)
	return nil
}

func (f *fakeDriver) Pace(context.Context) {
	f.paces++
}

func (f *fakeDriver) Download(_ context.Context, dir string, _ time.Duration, trigger func(context.Context) error) (string, error) {
	if f.downloadFn == nil {
		return "", errors.New("no download scripted")
	}
	return f.downloadFn(dir, trigger)
}

// setEvalResult writes a scripted Eval value into the caller's out pointer
// the way chromedp would: through JSON.
func setEvalResult(out, value any) {
	if out == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = json.Unmarshal(b, out)
}

// newTestClient builds a Client over the fake with all settle waits zeroed.
func newTestClient(d Driver) *Client {
	c := NewClient(d, config.PortalConfig{
		BaseURL:  "https://portal.example",
		Email:    "licitacoes@indflow.com.br",
		Password: "hunter2",
	}, config.DownloadsConfig{Dir: "downloads"})
	c.wait = waits{}
	return c
}
