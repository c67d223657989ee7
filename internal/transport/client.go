// Package transport executes the controller's HTTP exchanges with the
// monitoring server. Every operation checks the link first, retries a fixed
// number of times, feeds a cool-down breaker, and counts failures per path.
// A path whose counter passes its threshold restarts the device.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/sweeney/sump-controller/internal/device"
	"github.com/sweeney/sump-controller/internal/logic"
)

// Path selects a failure counter.
type Path int

const (
	PathRequest Path = iota // hello, mission GET and POST
	PathError               // error reports
	PathConnect             // link and liveness probe
	numPaths
)

func (p Path) String() string {
	switch p {
	case PathRequest:
		return "request"
	case PathError:
		return "error"
	case PathConnect:
		return "connect"
	default:
		return "path?"
	}
}

// NoEventID is sent in place of an unset correlation id.
const NoEventID = "None"

const maxResponseBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL     string
	ComponentID string
	Mission     string

	Attempts   int
	RetryDelay time.Duration

	// GetAttempts and GetRetryDelay apply to mission GETs.
	GetAttempts   int
	GetRetryDelay time.Duration

	RequestTimeout  time.Duration
	Cooldown        time.Duration
	ConnectCooldown time.Duration

	RequestThreshold int
	ErrorThreshold   int
	ConnectThreshold int
}

// DefaultOptions returns the production settings for baseURL.
func DefaultOptions(baseURL string) Options {
	return Options{
		BaseURL:          baseURL,
		ComponentID:      "1",
		Mission:          "Pump1Mission",
		Attempts:         3,
		RetryDelay:       2 * time.Second,
		GetAttempts:      5,
		GetRetryDelay:    3 * time.Second,
		RequestTimeout:   10 * time.Second,
		Cooldown:         60 * time.Second,
		ConnectCooldown:  30 * time.Second,
		RequestThreshold: 20,
		ErrorThreshold:   200,
		ConnectThreshold: 40,
	}
}

// Health is a point-in-time view of the transport.
type Health struct {
	LastStatusCode    string
	LastError         string
	ConsecutiveErrors int
	ErrorPathErrors   int
	ConnectErrors     int
	BreakerDeadline   time.Time
	TransactionCount  int
	Address           string
}

// Mission is the payload of an action post.
type Mission struct {
	Action     string
	PumpState  string
	MiscStatus any
}

// Reply is the decoded part of a mission response.
type Reply struct {
	StatusCode int
	EventID    string
	Command    string
}

type missionBody struct {
	Action      string `json:"action"`
	EventID     string `json:"eventId"`
	PumpState   string `json:"pumpState"`
	ComponentID string `json:"componentId"`
	MiscStatus  any    `json:"miscStatus"`
	ErrorCount  string `json:"errorCount"`
}

type errorBody struct {
	Type        string `json:"type"`
	EventID     string `json:"eventId"`
	ComponentID string `json:"componentId"`
	Action      string `json:"action"`
	ErrorCount  string `json:"errorCount"`
	LastError   string `json:"lastError"`
}

type result struct {
	status int
	body   []byte
}

// Client talks to the monitoring server. Not safe for concurrent use:
// it is owned by the poll loop.
type Client struct {
	opts      Options
	http      *http.Client
	link      Link
	restarter device.Restarter
	breaker   *Breaker

	addr         string
	eventID      string
	counts       [numPaths]int
	transactions int
	lastStatus   string
	lastError    string
}

// New creates a Client. now drives the breaker; nil means time.Now.
func New(opts Options, link Link, restarter device.Restarter, now func() time.Time) *Client {
	return &Client{
		opts:      opts,
		http:      &http.Client{Timeout: opts.RequestTimeout},
		link:      link,
		restarter: restarter,
		breaker:   NewBreaker(now),
	}
}

// Healthy reports whether sends should be attempted. See Breaker.Healthy.
func (c *Client) Healthy() bool {
	return c.breaker.Healthy()
}

// Health returns a snapshot of the transport state.
func (c *Client) Health() Health {
	return Health{
		LastStatusCode:    c.lastStatus,
		LastError:         c.lastError,
		ConsecutiveErrors: c.counts[PathRequest],
		ErrorPathErrors:   c.counts[PathError],
		ConnectErrors:     c.counts[PathConnect],
		BreakerDeadline:   c.breaker.Deadline(),
		TransactionCount:  c.transactions,
		Address:           c.addr,
	}
}

// Count returns the failure counter for p.
func (c *Client) Count(p Path) int {
	return c.counts[p]
}

// EventID returns the current correlation id, or "" when none is assigned.
func (c *Client) EventID() string {
	return c.eventID
}

// ResetEventID clears the correlation id at the end of an episode.
func (c *Client) ResetEventID() {
	c.eventID = ""
}

func (c *Client) eventIDOrNone() string {
	if c.eventID == "" {
		return NoEventID
	}
	return c.eventID
}

// Hello performs the startup handshake.
func (c *Client) Hello(ctx context.Context) error {
	const op = "hello"
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	if _, err := c.exchange(ctx, op, http.MethodGet, c.url("/component/hello", nil), nil, c.opts.Attempts, c.opts.RetryDelay); err != nil {
		c.requestFailed(ctx, op, err)
		return err
	}
	c.succeeded(PathRequest)
	return nil
}

// PostMission posts an action. A response eventId becomes the correlation id.
func (c *Client) PostMission(ctx context.Context, m Mission) (Reply, error) {
	const op = "post mission"
	if err := c.ensureConnected(ctx); err != nil {
		return Reply{}, err
	}

	body := missionBody{
		Action:      m.Action,
		EventID:     c.eventIDOrNone(),
		PumpState:   m.PumpState,
		ComponentID: c.opts.ComponentID,
		MiscStatus:  m.MiscStatus,
		ErrorCount:  strconv.Itoa(c.counts[PathRequest]),
	}
	res, err := c.exchange(ctx, op, http.MethodPost, c.url("/component/mission", c.missionQuery()), body, c.opts.Attempts, c.opts.RetryDelay)
	if err != nil {
		c.requestFailed(ctx, op, err)
		return Reply{StatusCode: res.status}, err
	}
	c.succeeded(PathRequest)
	return c.decode(res), nil
}

// GetMission queries the mission with a verb.
func (c *Client) GetMission(ctx context.Context, verb string) (Reply, error) {
	const op = "get mission"
	if err := c.ensureConnected(ctx); err != nil {
		return Reply{}, err
	}

	q := c.missionQuery()
	q.Set("component_id", c.opts.ComponentID)
	q.Set("event_id", c.eventIDOrNone())
	q.Set("verb", verb)
	res, err := c.exchange(ctx, op, http.MethodGet, c.url("/component/mission", q), nil, c.opts.GetAttempts, c.opts.GetRetryDelay)
	if err != nil {
		c.requestFailed(ctx, op, err)
		return Reply{StatusCode: res.status}, err
	}
	c.succeeded(PathRequest)
	return c.decode(res), nil
}

// PostError reports a failure. It needs an established link and does not
// reconnect, so a dead network does not recurse into more error reports.
func (c *Client) PostError(ctx context.Context, action, lastError string) error {
	const op = "post error"
	if c.addr == "" {
		return logic.NewError(logic.KindNetworkUnavailable, op, errors.New("not connected"))
	}

	body := errorBody{
		Type:        "error",
		EventID:     c.eventIDOrNone(),
		ComponentID: c.opts.ComponentID,
		Action:      action,
		ErrorCount:  strconv.Itoa(c.counts[PathRequest]),
		LastError:   lastError,
	}
	if _, err := c.exchange(ctx, op, http.MethodPost, c.url("/component/error", c.missionQuery()), body, c.opts.Attempts, c.opts.RetryDelay); err != nil {
		log.Printf("transport: %s failed: %v", op, err)
		c.breaker.Trip(c.opts.Cooldown)
		c.fail(PathError)
		return err
	}
	c.succeeded(PathError)
	return nil
}

// PostDebug ships buffered log lines. Best effort: failures are returned
// but never counted or fed to the breaker.
func (c *Client) PostDebug(ctx context.Context, lines []string) error {
	const op = "post debug"
	if c.addr == "" {
		return logic.NewError(logic.KindNetworkUnavailable, op, errors.New("not connected"))
	}
	if lines == nil {
		lines = []string{}
	}
	_, err := c.exchange(ctx, op, http.MethodPost, c.url("/component/debug", c.missionQuery()), lines, 1, c.opts.RetryDelay)
	return err
}

// ensureConnected brings the link up if needed and runs the liveness probe.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.addr == "" {
		var addr string
		err := c.retry(ctx, c.opts.Attempts, c.opts.RetryDelay, func(ctx context.Context) error {
			a, err := c.link.Connect(ctx)
			if err != nil {
				log.Printf("transport: connect error: %v", err)
				return retry.RetryableError(err)
			}
			addr = a
			return nil
		})
		if err != nil {
			c.lastStatus = "NOT Connected"
			return c.connectFailed("connect", err)
		}
		c.addr = addr
		c.lastStatus = "Connected"
		log.Printf("transport: connected, address %s", addr)
	}

	err := c.retry(ctx, c.opts.Attempts, c.opts.RetryDelay, func(ctx context.Context) error {
		if err := c.link.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		c.addr = ""
		c.lastStatus = "Ping Fail"
		return c.connectFailed("ping", err)
	}
	c.succeeded(PathConnect)
	return nil
}

func (c *Client) connectFailed(op string, err error) error {
	log.Printf("transport: %s failed: %v", op, err)
	c.lastError = err.Error()
	c.breaker.Trip(c.opts.ConnectCooldown)
	c.fail(PathConnect)
	return logic.NewError(logic.KindNetworkUnavailable, op, err)
}

// requestFailed reports err to the server before tripping the breaker,
// since a successful error report closes it.
func (c *Client) requestFailed(ctx context.Context, op string, err error) {
	log.Printf("transport: %s failed: %v", op, err)
	c.PostError(ctx, op, err.Error())
	if !logic.IsKind(err, logic.KindRemoteRejected) {
		c.addr = ""
	}
	c.breaker.Trip(c.opts.Cooldown)
	c.fail(PathRequest)
}

func (c *Client) succeeded(p Path) {
	c.counts[p] = 0
	c.breaker.Close()
}

func (c *Client) threshold(p Path) int {
	switch p {
	case PathError:
		return c.opts.ErrorThreshold
	case PathConnect:
		return c.opts.ConnectThreshold
	default:
		return c.opts.RequestThreshold
	}
}

// fail counts a failure on p and restarts the device when the count passes
// the threshold. The counter restarts from zero so each crossing restarts once.
func (c *Client) fail(p Path) {
	c.counts[p]++
	limit := c.threshold(p)
	if c.counts[p] <= limit {
		return
	}
	c.counts[p] = 0
	reason := fmt.Sprintf("%s failures exceeded %d", p, limit)
	log.Printf("transport: %s, restarting device", reason)
	if err := c.restarter.Restart(reason); err != nil {
		log.Printf("transport: restart failed: %v", err)
	}
}

// exchange runs one request with retries. Transport errors, 5xx, 408 and 429
// are retried and end in KindRetriesExhausted; other non-2xx responses fail
// at once with KindRemoteRejected.
func (c *Client) exchange(ctx context.Context, op, method, target string, payload any, attempts int, delay time.Duration) (result, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return result{}, logic.NewError(logic.KindOther, op, fmt.Errorf("marshal body: %w", err))
		}
	}

	var res result
	tries := 0
	err := c.retry(ctx, attempts, delay, func(ctx context.Context) error {
		tries++
		r, err := c.attempt(ctx, method, target, data)
		if err != nil {
			c.lastStatus = "E"
			c.lastError = err.Error()
			log.Printf("transport: %s attempt %d: %v", op, tries, err)
			return retry.RetryableError(err)
		}

		c.transactions++
		c.lastStatus = strconv.Itoa(r.status)
		res = r
		if r.status >= 200 && r.status < 300 {
			return nil
		}

		rejected := &logic.Error{Kind: logic.KindRemoteRejected, Op: op, StatusCode: r.status}
		c.lastError = rejected.Error()
		if retryableStatus(r.status) {
			return retry.RetryableError(rejected)
		}
		return rejected
	})

	var rejected *logic.Error
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &rejected) && rejected.Kind == logic.KindRemoteRejected:
		if !retryableStatus(rejected.StatusCode) {
			return res, err
		}
		return res, &logic.Error{
			Kind:       logic.KindRetriesExhausted,
			Op:         op,
			StatusCode: rejected.StatusCode,
			Err:        fmt.Errorf("after %d attempts: %w", tries, err),
		}
	case ctx.Err() != nil:
		return res, logic.NewError(logic.KindTransportException, op, err)
	default:
		return res, logic.NewError(logic.KindRetriesExhausted, op, fmt.Errorf("after %d attempts: %w", tries, err))
	}
}

func (c *Client) attempt(ctx context.Context, method, target string, data []byte) (result, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return result{}, fmt.Errorf("create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return result{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return result{}, fmt.Errorf("read response: %w", err)
	}
	return result{status: resp.StatusCode, body: b}, nil
}

// retry runs fn up to attempts times with a constant delay between attempts.
func (c *Client) retry(ctx context.Context, attempts int, delay time.Duration, fn retry.RetryFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	// NewConstant panics on a non-positive delay.
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
	return retry.Do(ctx, b, fn)
}

func (c *Client) decode(res result) Reply {
	r := Reply{StatusCode: res.status}
	if !gjson.ValidBytes(res.body) {
		return r
	}

	// eventId may arrive as a number or a string.
	if id := gjson.GetBytes(res.body, "eventId"); id.Exists() && id.Type != gjson.Null {
		if s := id.String(); s != "" && s != NoEventID {
			c.eventID = s
			log.Printf("transport: got remote eventId %s", s)
		}
	}
	r.EventID = c.eventID
	r.Command = gjson.GetBytes(res.body, "cmd").String()
	return r
}

func (c *Client) url(path string, q url.Values) string {
	u := strings.TrimRight(c.opts.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) missionQuery() url.Values {
	return url.Values{"mission": {c.opts.Mission}}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
