package nvue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPrefix is the path prefix of the NVUE REST API
	DefaultPrefix = "/nvue_v1"

	// DefaultPollInterval is the pause between two apply-completion polls
	DefaultPollInterval = 1 * time.Second

	// revisionAppliedQuery is the revision every Get reads from
	revisionAppliedQuery = "applied"
)

// Connection is the transport primitive the client is built on. Send performs a
// single HTTP round trip. An error is returned only when no HTTP response was
// received; HTTP error statuses are reported through RawResponse.
type Connection interface {
	Send(ctx context.Context, path string, body []byte, headers map[string]string, method string) (*RawResponse, error)
}

// Client runs NVUE revision transactions over a Connection.
//
// The client keeps no per-transaction state: the revision id of a Set lives
// only for the duration of that call, so one Client may serve concurrent
// transactions. Each of them creates and applies its own revision.
type Client struct {
	conn         Connection
	prefix       string
	headers      map[string]string
	clock        Clock
	pollInterval time.Duration
	logger       *zap.Logger
	observer     Observer
}

// Option configures a Client
type Option func(*Client)

// WithPrefix overrides the API prefix (default "/nvue_v1")
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = strings.TrimRight(prefix, "/")
	}
}

// WithClock replaces the clock used between apply polls
func WithClock(clock Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithPollInterval overrides the pause between apply polls
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an observer for transaction events
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewClient creates a transaction client on top of conn
func NewClient(conn Connection, opts ...Option) *Client {
	c := &Client{
		conn:         conn,
		prefix:       DefaultPrefix,
		headers:      map[string]string{"Content-Type": "application/json"},
		clock:        RealClock{},
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
		observer:     NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prefix returns the API prefix every request path starts with
func (c *Client) Prefix() string {
	return c.prefix
}

type handler func(c *Client, ctx context.Context, req *Request) (*Response, error)

var dispatchTable = map[Operation]handler{
	OpGet:            (*Client).doGet,
	OpSet:            (*Client).doSet,
	OpCreateRevision: (*Client).doCreateRevision,
	OpApplyRevision:  (*Client).doApplyRevision,
}

// Do runs a request through the operation dispatch table
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewValidationError("request is nil")
	}
	h, ok := dispatchTable[req.Operation]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("unsupported operation %s", req.Operation))
	}
	return h(c, ctx, req)
}

func (c *Client) doGet(ctx context.Context, req *Request) (*Response, error) {
	return c.Get(ctx, req.Path)
}

func (c *Client) doSet(ctx context.Context, req *Request) (*Response, error) {
	return c.Set(ctx, req.Path, req.Payload, req.Options)
}

func (c *Client) doCreateRevision(ctx context.Context, _ *Request) (*Response, error) {
	id, err := c.CreateRevision(ctx)
	if err != nil {
		return nil, err
	}
	return NewJSONResponse(id), nil
}

func (c *Client) doApplyRevision(ctx context.Context, req *Request) (*Response, error) {
	return c.ApplyRevision(ctx, req.Options.RevisionID, req.Options.Force, req.Options.Wait)
}

// Get reads path from the applied revision
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	query := url.Values{"rev": {revisionAppliedQuery}}
	return c.send(ctx, OpGet, http.MethodGet, c.resourcePath(path)+"?"+query.Encode(), nil)
}

// Set stages payload in a revision. Without opts.RevisionID a new revision is
// created, patched and applied, and the apply result is returned. With
// opts.RevisionID the existing revision is only patched and left open; the
// patch result is returned and committing is up to the caller.
//
// The patch always targets the API root; path is only used for logging.
func (c *Client) Set(ctx context.Context, path string, payload any, opts Options) (*Response, error) {
	if opts.Wait < 0 {
		return nil, NewValidationError(fmt.Sprintf("wait must be >= 0, got %d", opts.Wait))
	}

	revisionID := opts.RevisionID
	if revisionID == "" {
		id, err := c.CreateRevision(ctx)
		if err != nil {
			return nil, fmt.Errorf("create revision: %w", err)
		}
		revisionID = id
	}

	c.logger.Debug("Staging configuration",
		zap.String("path", path),
		zap.String("revision", revisionID),
		zap.Bool("caller_revision", opts.RevisionID != ""),
	)

	result, err := c.PatchRevision(ctx, revisionID, payload)
	if err != nil {
		return nil, fmt.Errorf("patch revision %s: %w", revisionID, err)
	}

	if opts.RevisionID != "" {
		return result, nil
	}

	return c.ApplyRevision(ctx, revisionID, opts.Force, opts.Wait)
}

// CreateRevision opens a new revision and returns its id. The server answers
// with an object holding exactly one entry keyed by the new id; any other
// shape is reported as a shape error.
func (c *Client) CreateRevision(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, OpCreateRevision, http.MethodPost, c.prefix+"/revision", []byte("{}"))
	if err != nil {
		return "", err
	}

	id, err := revisionIDFrom(resp)
	if err != nil {
		c.observer.RequestFailed(OpCreateRevision, err)
		return "", err
	}

	c.logger.Debug("Revision created", zap.String("revision", id))
	c.observer.RevisionCreated(id)
	return id, nil
}

func revisionIDFrom(resp *Response) (string, error) {
	obj, ok := resp.Object()
	if !ok {
		return "", NewShapeError(fmt.Sprintf("revision create response is not an object: %s", resp))
	}
	if len(obj) != 1 {
		return "", NewShapeError(fmt.Sprintf("revision create response has %d entries, expected exactly 1: %s", len(obj), resp))
	}
	for id := range obj {
		if id == "" {
			break
		}
		return id, nil
	}
	return "", NewShapeError("revision create response has an empty revision id")
}

// PatchRevision stages payload in an open revision and returns the server's
// view of the staged changes
func (c *Client) PatchRevision(ctx context.Context, revisionID string, payload any) (*Response, error) {
	if revisionID == "" {
		return nil, NewValidationError("revision id is required")
	}

	body, err := encodeJSON(payload)
	if err != nil {
		return nil, NewEncodeError("failed to encode payload", err)
	}

	query := url.Values{"rev": {revisionID}}
	resp, err := c.send(ctx, OpSet, http.MethodPatch, c.prefix+"/?"+query.Encode(), body)
	if err != nil {
		return nil, err
	}

	c.observer.RevisionPatched(revisionID)
	return resp, nil
}

type applyRequest struct {
	State      string      `json:"state"`
	AutoPrompt *autoPrompt `json:"auto-prompt,omitempty"`
}

type autoPrompt struct {
	AYS        string `json:"ays"`
	IgnoreFail string `json:"ignore_fail"`
}

// ApplyRevision commits an open revision, then polls it until it reports
// "applied" or wait seconds have passed. The last observed revision document is
// returned; a state other than "applied" is not an error, the caller decides.
func (c *Client) ApplyRevision(ctx context.Context, revisionID string, force bool, wait int) (*Response, error) {
	if revisionID == "" {
		return nil, NewValidationError("revision id is required")
	}
	if wait < 0 {
		return nil, NewValidationError(fmt.Sprintf("wait must be >= 0, got %d", wait))
	}

	req := applyRequest{State: "apply"}
	if force {
		req.AutoPrompt = &autoPrompt{AYS: "ays_yes", IgnoreFail: "ignore_fail_yes"}
	}
	body, err := encodeJSON(req)
	if err != nil {
		return nil, NewEncodeError("failed to encode apply request", err)
	}

	path := c.revisionPath(revisionID)
	c.observer.ApplyRequested(revisionID, force)

	result, err := c.send(ctx, OpApplyRevision, http.MethodPatch, path, body)
	if err != nil {
		return nil, fmt.Errorf("apply revision %s: %w", revisionID, err)
	}

	return c.waitForApply(ctx, revisionID, path, wait, result)
}

func (c *Client) revisionPath(revisionID string) string {
	return c.prefix + "/revision/" + EscapeRevisionID(revisionID)
}

func (c *Client) resourcePath(path string) string {
	return c.prefix + "/" + strings.TrimLeft(path, "/")
}

// send performs one round trip and decodes the result
func (c *Client) send(ctx context.Context, op Operation, method, path string, body []byte) (*Response, error) {
	c.logger.Debug("NVUE request",
		zap.String("operation", op.String()),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("bytes", len(body)),
	)

	raw, err := c.conn.Send(ctx, path, body, c.headers, method)
	if err != nil {
		c.observer.RequestFailed(op, err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	resp, err := DecodeResponse(raw)
	if err != nil {
		c.logger.Debug("NVUE request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", raw.StatusCode),
			zap.Error(err),
		)
		c.observer.RequestFailed(op, err)
		return nil, err
	}

	c.logger.Debug("NVUE response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", raw.StatusCode),
		zap.Bool("json", resp.IsJSON()),
	)
	return resp, nil
}

// encodeJSON serializes v without HTML escaping and without a trailing newline
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
