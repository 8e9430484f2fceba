// Package client talks to a running applock daemon's control API.
package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Client wraps resty for the control API.
type Client struct {
	resty *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

type packagesBody struct {
	Packages []domain.AppID `json:"packages"`
}

type protectBody struct {
	Enabled bool `json:"enabled"`
}

type packageBody struct {
	Package domain.AppID `json:"package"`
}

// New creates a client for the daemon listening on addr (host:port),
// authenticating with the install's API token.
func New(addr, token string) *Client {
	r := resty.New().
		SetBaseURL("http://"+addr).
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("User-Agent", "applock-cli").
		SetHeader("Content-Type", "application/json").
		SetAuthToken(token).
		SetError(&apiError{})
	return &Client{resty: r}
}

// Health reports whether the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Get("/health")
	return check(resp, err)
}

// Status returns the engine state.
func (c *Client) Status(ctx context.Context) (domain.EngineStatus, error) {
	var status domain.EngineStatus
	resp, err := c.resty.R().SetContext(ctx).SetResult(&status).Get("/api/status")
	return status, check(resp, err)
}

// Locked returns the locked identifiers.
func (c *Client) Locked(ctx context.Context) ([]domain.AppID, error) {
	var body packagesBody
	resp, err := c.resty.R().SetContext(ctx).SetResult(&body).Get("/api/locked")
	return body.Packages, check(resp, err)
}

// SetLocked replaces the locked identifiers.
func (c *Client) SetLocked(ctx context.Context, ids []domain.AppID) ([]domain.AppID, error) {
	var body packagesBody
	resp, err := c.resty.R().SetContext(ctx).
		SetBody(packagesBody{Packages: ids}).
		SetResult(&body).
		Put("/api/locked")
	return body.Packages, check(resp, err)
}

// AddLocked adds ids to the locked set.
func (c *Client) AddLocked(ctx context.Context, ids ...domain.AppID) ([]domain.AppID, error) {
	current, err := c.Locked(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[domain.AppID]struct{}, len(current)+len(ids))
	for _, id := range append(current, ids...) {
		set[id] = struct{}{}
	}
	return c.SetLocked(ctx, keys(set))
}

// RemoveLocked removes ids from the locked set.
func (c *Client) RemoveLocked(ctx context.Context, ids ...domain.AppID) ([]domain.AppID, error) {
	current, err := c.Locked(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[domain.AppID]struct{}, len(current))
	for _, id := range current {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		delete(set, id)
	}
	return c.SetLocked(ctx, keys(set))
}

// ProtectSettings returns the settings protection flag.
func (c *Client) ProtectSettings(ctx context.Context) (bool, error) {
	var body protectBody
	resp, err := c.resty.R().SetContext(ctx).SetResult(&body).Get("/api/protect-settings")
	return body.Enabled, check(resp, err)
}

// SetProtectSettings stores the settings protection flag.
func (c *Client) SetProtectSettings(ctx context.Context, enabled bool) error {
	resp, err := c.resty.R().SetContext(ctx).SetBody(protectBody{Enabled: enabled}).Put("/api/protect-settings")
	return check(resp, err)
}

// Unlock reports a successful credential entry for id.
func (c *Client) Unlock(ctx context.Context, id domain.AppID) error {
	resp, err := c.resty.R().SetContext(ctx).SetBody(packageBody{Package: id}).Post("/api/unlock")
	return check(resp, err)
}

// ScreenOff revokes all allowances.
func (c *Client) ScreenOff(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Post("/api/screen-off")
	return check(resp, err)
}

// Foreground injects a foreground-change notification.
func (c *Client) Foreground(ctx context.Context, id domain.AppID) error {
	resp, err := c.resty.R().SetContext(ctx).SetBody(packageBody{Package: id}).Post("/api/foreground")
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode(), e.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode())
	}
	return nil
}

func keys(set map[domain.AppID]struct{}) []domain.AppID {
	ids := make([]domain.AppID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
