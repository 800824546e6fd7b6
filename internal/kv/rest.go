package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRESTTimeout = 3 * time.Second

// REST talks to a Redis-compatible REST service (Upstash style):
//
//	GET <base>/get/<key>            -> {"result": "v"} | {"result": null}
//	GET <base>/set/<key>/<v>?EX=<s> -> {"result": "OK"}
//	GET <base>/incr/<key>           -> {"result": 3}
//	GET <base>/del/<key>            -> {"result": 1}
//
// Atomicity of INCR is provided by the service.
type REST struct {
	base    string
	token   string
	client  *http.Client
	timeout time.Duration
	log     *zap.Logger
}

// RESTOption customises a REST store.
type RESTOption func(*REST)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *REST) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout bounds every call in addition to the caller's context.
func WithTimeout(d time.Duration) RESTOption {
	return func(r *REST) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *zap.Logger) RESTOption {
	return func(r *REST) {
		if l != nil {
			r.log = l
		}
	}
}

// NewREST constructs a REST store for the given base URL and bearer token.
func NewREST(baseURL, token string, opts ...RESTOption) *REST {
	r := &REST{
		base:    strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{},
		timeout: defaultRESTTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// call performs one command and returns the raw "result" field.
func (r *REST) call(ctx context.Context, query url.Values, parts ...string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	target := r.base + "/" + strings.Join(escaped, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("kv rest: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out restResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("kv rest: decode: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("kv rest: %s", out.Error)
	}
	return out.Result, nil
}

func (r *REST) warn(op, key string, err error) {
	r.log.Warn("kv rest call failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

// Get implements Store.
func (r *REST) Get(ctx context.Context, key string) (Value, bool) {
	raw, err := r.call(ctx, nil, "get", key)
	if err != nil {
		r.warn("get", key, err)
		return "", false
	}
	return decodeScalar(raw)
}

// Set implements Store.
func (r *REST) Set(ctx context.Context, key, value string, opts ...SetOption) bool {
	o := applySetOptions(opts)
	var q url.Values
	if s := expirySeconds(o.expiry); s > 0 {
		q = url.Values{"EX": []string{strconv.FormatInt(s, 10)}}
	}
	if _, err := r.call(ctx, q, "set", key, value); err != nil {
		r.warn("set", key, err)
		return false
	}
	return true
}

// Incr implements Store.
func (r *REST) Incr(ctx context.Context, key string) int64 {
	raw, err := r.call(ctx, nil, "incr", key)
	if err != nil {
		r.warn("incr", key, err)
		return 0
	}
	v, ok := decodeScalar(raw)
	if !ok {
		return 0
	}
	n, _ := v.Int()
	return n
}

// Delete implements Store.
func (r *REST) Delete(ctx context.Context, key string) int64 {
	raw, err := r.call(ctx, nil, "del", key)
	if err != nil {
		r.warn("del", key, err)
		return 0
	}
	v, ok := decodeScalar(raw)
	if !ok {
		return 0
	}
	n, _ := v.Int()
	return n
}

// decodeScalar turns a JSON string or number into a Value; null and anything else is absent.
func decodeScalar(raw json.RawMessage) (Value, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Value(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return Value(n.String()), true
	}
	return "", false
}
