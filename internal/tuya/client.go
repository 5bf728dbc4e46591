package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// API paths consumed by the bridge. Only the calls needed to mirror state
// and issue commands are modeled; this is not a general platform SDK.
const (
	pathLogin      = "/v1.0/iot-01/associated-users/actions/authorized-login"
	pathDevices    = "/v1.0/iot-01/associated-users/devices"
	pathHubConfig  = "/v1.0/open-hub/access/config"
	pathSpecFormat = "/v1.0/devices/%s/specifications"
	pathStatus     = "/v1.0/devices/%s/status"
	pathCommands   = "/v1.0/devices/%s/commands"
)

const (
	// requestTimeout bounds every HTTP call. There is no request-level
	// cancellation beyond it; a late response is processed against
	// current state.
	requestTimeout = 5 * time.Second

	// devicePageSize is the page size for cursor-based device listing.
	devicePageSize = 100

	signMethod = "HMAC-SHA256"
	devLang    = "golang"
	devChannel = "graylogic"
	devVersion = "1.0.0"
)

// Options configures the cloud client.
type Options struct {
	// Endpoint is the regional base URL. The platform may override it
	// after login; the override sticks for the session's lifetime.
	Endpoint string

	// AccessID and AccessKey are the cloud project credentials.
	AccessID  string
	AccessKey string

	// Username, Password and CountryCode identify the end-user account
	// whose devices are mirrored.
	Username    string
	Password    string
	CountryCode string

	// AppSchema selects which mobile app the account belongs to
	// ("tuyaSmart" or "smartlife").
	AppSchema string

	// Lang is the response language for human-readable fields.
	Lang string
}

// Configured reports whether every field required for login is present.
func (o Options) Configured() bool {
	return o.AccessID != "" && o.AccessKey != "" &&
		o.Username != "" && o.Password != "" && o.CountryCode != ""
}

// SessionStore persists session state across restarts. Implementations
// must tolerate Load before any Save (return a zero Session, no error).
type SessionStore interface {
	LoadSession(ctx context.Context) (Session, error)
	SaveSession(ctx context.Context, s Session) error
}

// Client is the signed request pipeline plus the session manager that
// feeds it tokens. All cloud traffic flows through it.
//
// Thread Safety: safe for concurrent use. Session state is guarded by an
// internal mutex; HTTP calls do not hold it.
type Client struct {
	opts  Options
	http  *http.Client
	log   Logger
	sched Scheduler
	store SessionStore

	mu       sync.Mutex
	session  Session
	endpoint string

	refresh   taskSlot
	onSession func(s Session, err error)
}

// NewClient creates a cloud client.
//
// Parameters:
//   - opts: credentials and regional endpoint
//   - sched: delayed-task scheduler (nil uses the real-time scheduler)
//   - store: session persistence (nil disables persistence)
//   - log: logger (nil uses a no-op logger)
func NewClient(opts Options, sched Scheduler, store SessionStore, log Logger) *Client {
	if sched == nil {
		sched = NewScheduler()
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Client{
		opts:     opts,
		http:     &http.Client{Timeout: requestTimeout},
		log:      log,
		sched:    sched,
		store:    store,
		endpoint: opts.Endpoint,
	}
}

// SetOnSession registers a callback invoked after every authentication
// attempt, successful or not. Must be called before Authenticate.
func (c *Client) SetOnSession(fn func(s Session, err error)) {
	c.onSession = fn
}

// Session returns a copy of the current session state.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Authenticated reports whether the client holds an unexpired token.
func (c *Client) Authenticated() bool {
	return c.Session().Valid()
}

// apiEnvelope is the outer wrapper every response arrives in.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	T       int64           `json:"t"`
	Result  json.RawMessage `json:"result"`
}

// Platform error codes that indicate an invalid or expired token.
var authErrorCodes = map[int]bool{
	1010: true, // token invalid
	1011: true, // token expired
	1012: true, // token missing
	1013: true, // permission denied for token
	1106: true, // permission deny
}

// call issues one signed request and decodes result into out (out may be
// nil when only success matters). withToken controls whether the current
// access token participates in signing and headers; the login call runs
// without one.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any, withToken bool) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tuya: encode request body: %w", err)
		}
	}

	token := ""
	if withToken {
		token = c.Session().AccessToken
		if token == "" {
			return ErrNotAuthenticated
		}
	}

	c.mu.Lock()
	endpoint := c.endpoint
	c.mu.Unlock()

	ts := time.Now().UnixMilli()
	nonce := uuid.NewString()
	sig := Sign(SignInput{
		Method:      method,
		Path:        path,
		Query:       query,
		Body:        bodyBytes,
		ClientID:    c.opts.AccessID,
		Secret:      c.opts.AccessKey,
		AccessToken: token,
		Nonce:       nonce,
		Timestamp:   ts,
	})

	reqURL := endpoint + path
	if len(query) > 0 {
		reqURL += encodeSortedQuery(query)
	}

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("tuya: build request: %w", err)
	}

	req.Header.Set("t", strconv.FormatInt(ts, 10))
	req.Header.Set("nonce", nonce)
	req.Header.Set("client_id", c.opts.AccessID)
	req.Header.Set("Signature-Headers", "client_id")
	req.Header.Set("sign", sig)
	req.Header.Set("sign_method", signMethod)
	req.Header.Set("lang", c.opts.Lang)
	req.Header.Set("dev_lang", devLang)
	req.Header.Set("dev_channel", devChannel)
	req.Header.Set("dev_version", devVersion)
	if token != "" {
		req.Header.Set("access_token", token)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s: status %d", ErrTransport, method, path, resp.StatusCode)
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", ErrTransport, method, path, err)
	}

	if !env.Success {
		if authErrorCodes[env.Code] {
			return fmt.Errorf("%w: %s %s: code %d: %s", ErrAuth, method, path, env.Code, env.Msg)
		}
		return fmt.Errorf("%w: %s %s: code %d: %s", ErrTransport, method, path, env.Code, env.Msg)
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%w: %s %s: decode result: %v", ErrTransport, method, path, err)
		}
	}
	return nil
}

// wireDevice is one entry in a device-list page.
type wireDevice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Online    bool   `json:"online"`
	ProductID string `json:"product_id"`
}

// devicePage is one page of the cursor-paginated device list.
type devicePage struct {
	Devices    []wireDevice `json:"devices"`
	HasMore    bool         `json:"has_more"`
	LastRowKey string       `json:"last_row_key"`
	Total      int          `json:"total_devices"`
}

// DevicePager iterates the account's devices one page at a time using the
// platform's last_row_key cursor. Not safe for concurrent use; create one
// pager per listing.
type DevicePager struct {
	c       *Client
	cursor  string
	started bool
	done    bool
}

// Devices begins a fresh paginated listing.
func (c *Client) Devices() *DevicePager {
	return &DevicePager{c: c}
}

// Next fetches the next page. It returns the page's devices and true while
// more pages may follow; (nil, false, nil) signals exhaustion. Any error
// aborts the listing; the pager is not restartable after an error.
func (p *DevicePager) Next(ctx context.Context) ([]Device, bool, error) {
	if p.done {
		return nil, false, nil
	}

	query := url.Values{"size": {strconv.Itoa(devicePageSize)}}
	if p.started && p.cursor != "" {
		query.Set("last_row_key", p.cursor)
	}

	var page devicePage
	if err := p.c.call(ctx, http.MethodGet, pathDevices, query, nil, &page, true); err != nil {
		p.done = true
		return nil, false, err
	}
	p.started = true
	p.cursor = page.LastRowKey
	p.done = !page.HasMore

	devices := make([]Device, len(page.Devices))
	for i, wd := range page.Devices {
		devices[i] = Device{
			ID:         wd.ID,
			Name:       wd.Name,
			Category:   wd.Category,
			ProductKey: wd.ProductID,
			Online:     wd.Online,
		}
	}
	return devices, !p.done, nil
}

// ListDevices drains a paginated listing and returns every device linked
// to the account.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	pager := c.Devices()
	var all []Device
	for {
		page, more, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if !more {
			return all, nil
		}
	}
}

// Specification fetches a device's function/status capability model.
func (c *Client) Specification(ctx context.Context, deviceID string) (Specification, error) {
	var spec Specification
	path := fmt.Sprintf(pathSpecFormat, deviceID)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &spec, true); err != nil {
		return Specification{}, err
	}
	return spec, nil
}

// Status fetches a device's current status list.
func (c *Client) Status(ctx context.Context, deviceID string) ([]StatusEvent, error) {
	var status []StatusEvent
	path := fmt.Sprintf(pathStatus, deviceID)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &status, true); err != nil {
		return nil, err
	}
	return status, nil
}

// SendCommands submits function commands to a device.
func (c *Client) SendCommands(ctx context.Context, deviceID string, commands []Command) error {
	if len(commands) == 0 {
		return nil
	}
	path := fmt.Sprintf(pathCommands, deviceID)
	body := map[string][]Command{"commands": commands}
	return c.call(ctx, http.MethodPost, path, nil, body, nil, true)
}

// hubConfigRequest is the body of the realtime-channel configuration call.
type hubConfigRequest struct {
	UID          string `json:"uid"`
	LinkID       string `json:"link_id"`
	LinkType     string `json:"link_type"`
	Topics       string `json:"topics"`
	EncryptedVer string `json:"msg_encrypted_version"`
}

// HubConfig fetches the realtime channel's broker URL, credentials, and
// topic map. Requires an authenticated session.
func (c *Client) HubConfig(ctx context.Context) (HubConfig, error) {
	sess := c.Session()
	if !sess.Valid() {
		return HubConfig{}, ErrNotAuthenticated
	}

	body := hubConfigRequest{
		UID:          sess.UID,
		LinkID:       uuid.NewString(),
		LinkType:     "mqtt",
		Topics:       "device",
		EncryptedVer: "1.0",
	}

	var cfg HubConfig
	if err := c.call(ctx, http.MethodPost, pathHubConfig, nil, body, &cfg, true); err != nil {
		return HubConfig{}, err
	}
	return cfg, nil
}
