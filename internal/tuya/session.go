package tuya

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

const (
	// refreshLead is how far before token expiry re-authentication runs.
	refreshLead = 60 * time.Second

	// minRefreshDelay floors the refresh schedule so a token that is
	// already inside its lead window still re-authenticates promptly
	// rather than in the past.
	minRefreshDelay = time.Second

	// authRetryBase and authRetryJitter shape the retry schedule after a
	// failed login: base + random(0..jitter). The jitter avoids
	// synchronized retries across many installations.
	authRetryBase   = 60 * time.Second
	authRetryJitter = 300 * time.Second
)

// loginRequest is the body of the authorized-login call.
type loginRequest struct {
	CountryCode string `json:"country_code"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Schema      string `json:"schema"`
}

// loginResult is the authorized-login response payload.
type loginResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid"`
	ExpireTime   int64  `json:"expire_time"`
	PlatformURL  string `json:"platform_url"`
}

// Authenticate exchanges the configured account credentials for an access
// token. Missing configuration fails immediately with ErrNotConfigured and
// schedules nothing. On success the session is stored, the endpoint
// override (if the platform redirects to another datacenter) is applied,
// and re-authentication is scheduled refreshLead before expiry. On failure
// the access token is cleared and a jittered retry is scheduled.
func (c *Client) Authenticate(ctx context.Context) error {
	if !c.opts.Configured() {
		return ErrNotConfigured
	}

	body := loginRequest{
		CountryCode: c.opts.CountryCode,
		Username:    c.opts.Username,
		Password:    hashPassword(c.opts.Password),
		Schema:      c.opts.AppSchema,
	}

	var res loginResult
	err := c.call(ctx, http.MethodPost, pathLogin, nil, body, &res, false)
	if err != nil {
		c.clearSession(ctx)
		retry := authRetryDelay()
		c.log.Warn("authentication failed",
			"error", err, "retry_in", retry.Round(time.Second))
		c.refresh.Arm(c.sched, retry, c.reauthenticate)
		c.notifySession(err)
		if !errors.Is(err, ErrAuth) {
			err = fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return err
	}

	sess := Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		UID:          res.UID,
		Endpoint:     c.opts.Endpoint,
		ExpiresAt:    time.Now().Add(time.Duration(res.ExpireTime) * time.Second),
	}
	if res.PlatformURL != "" {
		sess.Endpoint = res.PlatformURL
	}

	c.mu.Lock()
	c.session = sess
	c.endpoint = sess.Endpoint
	c.mu.Unlock()

	c.persistSession(ctx, sess)

	delay := refreshDelay(res.ExpireTime)
	c.refresh.Arm(c.sched, delay, c.reauthenticate)
	c.log.Info("authenticated",
		"uid", sess.UID, "endpoint", sess.Endpoint,
		"refresh_in", delay.Round(time.Second))
	c.notifySession(nil)
	return nil
}

// RestoreSession loads a persisted session. A still-valid token is adopted
// and its refresh scheduled; an expired or absent one is ignored and the
// caller should Authenticate. Returns true when a valid session was
// restored.
func (c *Client) RestoreSession(ctx context.Context) bool {
	if c.store == nil {
		return false
	}

	sess, err := c.store.LoadSession(ctx)
	if err != nil {
		c.log.Warn("session restore failed", "error", err)
		return false
	}
	if !sess.Valid() {
		return false
	}

	c.mu.Lock()
	c.session = sess
	if sess.Endpoint != "" {
		c.endpoint = sess.Endpoint
	}
	c.mu.Unlock()

	delay := time.Until(sess.ExpiresAt) - refreshLead
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	c.refresh.Arm(c.sched, delay, c.reauthenticate)
	c.log.Info("session restored",
		"uid", sess.UID, "expires_at", sess.ExpiresAt)
	return true
}

// Close cancels the pending refresh schedule.
func (c *Client) Close() {
	c.refresh.Cancel()
}

// reauthenticate is the scheduled refresh/retry callback.
func (c *Client) reauthenticate() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.Authenticate(ctx); err != nil {
		c.log.Warn("scheduled re-authentication failed", "error", err)
	}
}

// clearSession drops the access token, keeping the endpoint so a retry
// still targets the right datacenter.
func (c *Client) clearSession(ctx context.Context) {
	c.mu.Lock()
	c.session.AccessToken = ""
	c.session.ExpiresAt = time.Time{}
	sess := c.session
	c.mu.Unlock()
	c.persistSession(ctx, sess)
}

func (c *Client) persistSession(ctx context.Context, sess Session) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSession(ctx, sess); err != nil {
		c.log.Warn("session persist failed", "error", err)
	}
}

func (c *Client) notifySession(err error) {
	if c.onSession != nil {
		c.onSession(c.Session(), err)
	}
}

// refreshDelay converts a token lifetime in seconds into the delay before
// re-authentication: expire − 60s, floored so it never lands in the past.
func refreshDelay(expireSeconds int64) time.Duration {
	d := time.Duration(expireSeconds)*time.Second - refreshLead
	if d < minRefreshDelay {
		d = minRefreshDelay
	}
	return d
}

// authRetryDelay returns the jittered delay before retrying a failed login.
func authRetryDelay() time.Duration {
	return authRetryBase + time.Duration(rand.Int63n(int64(authRetryJitter)))
}

// hashPassword applies the platform's required MD5 digest to the account
// password before it is sent in the login body.
func hashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}
