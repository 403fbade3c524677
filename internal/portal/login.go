package portal

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Login authenticates against the portal. The login page is a React form, so
// the flow paces itself between keystrokes and confirms the session through
// dashboard landmarks rather than trusting the submit click.
func (c *Client) Login(ctx context.Context) error {
	zap.L().Info("portal: logging in", zap.String("url", c.cfg.BaseURL))

	if err := c.drv.Navigate(ctx, c.cfg.BaseURL); err != nil {
		return eris.Wrap(err, "portal: open login page")
	}
	sleep(ctx, c.wait.settle) // let React render the form
	c.drv.Pace(ctx)

	email, ok := Resolve(ctx, c.drv, loginEmail)
	if !ok {
		return eris.New("portal: login form not found")
	}
	if err := c.drv.Fill(ctx, email.Query, c.cfg.Email); err != nil {
		return eris.Wrap(err, "portal: fill email")
	}
	c.drv.Pace(ctx)

	password, ok := Resolve(ctx, c.drv, loginPassword)
	if !ok {
		return eris.New("portal: password field not found")
	}
	if err := c.drv.Fill(ctx, password.Query, c.cfg.Password); err != nil {
		return eris.Wrap(err, "portal: fill password")
	}
	c.drv.Pace(ctx)

	submit, ok := Resolve(ctx, c.drv, loginSubmit)
	if !ok {
		return eris.New("portal: submit control not found")
	}
	if err := c.drv.Click(ctx, submit.Query); err != nil {
		return eris.Wrap(err, "portal: submit login")
	}

	sleep(ctx, c.wait.settle) // post-login SPA navigation
	c.drv.Pace(ctx)

	if !c.loggedIn(ctx) {
		return eris.New("portal: login not confirmed")
	}
	zap.L().Info("portal: login confirmed")
	return nil
}

// loggedIn checks dashboard landmarks, falling back to the URL no longer
// pointing at a login route.
func (c *Client) loggedIn(ctx context.Context) bool {
	if _, ok := Resolve(ctx, c.drv, loggedInMarker); ok {
		return true
	}
	url, err := c.drv.Location(ctx)
	if err != nil {
		return false
	}
	return !strings.Contains(strings.ToLower(url), "login")
}
