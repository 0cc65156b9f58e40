// Package proxy implements the credential-injection reverse proxy: it
// routes /<service>/<rest...> requests to the registered upstream, strips
// every client-supplied auth header (regardless of value), injects the real
// credential from the configured store, forwards the request, streams the
// response back, and appends one hash-chained audit entry per routed
// request.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tech4242/aquaman/internal/audit"
	"github.com/tech4242/aquaman/internal/credential"
	"github.com/tech4242/aquaman/internal/cryptoutil"
	"github.com/tech4242/aquaman/internal/log"
	"github.com/tech4242/aquaman/internal/registry"
)

// transientRetryBaseDelay is the base delay before the single retry of a
// credential.KindTransient backend error; sleepWithJitter adds up to this
// again on top, so two concurrent requests hitting the same transient
// fault don't retry in lockstep.
const transientRetryBaseDelay = 250 * time.Millisecond

// PlaceholderValue is the sentinel clients send to mean "the proxy will
// inject the real secret here". The proxy never special-cases it: every
// auth header is stripped and overwritten regardless of what value (if
// any) the client supplied, which is the point.
const PlaceholderValue = "aquaman-proxy-managed"

// hopByHopHeaders are stripped from every forwarded request, per RFC 7230
// §6.1. "Proxy-*" is matched by prefix below rather than enumerated.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Proxy is an http.Handler implementing the request pipeline. One Proxy
// serves one listener (UDS or TCP); construct with New.
type Proxy struct {
	mu sync.RWMutex

	// routable is the registry filtered to allowed_services — the set of
	// services this proxy instance will actually route to.
	routable *registry.Registry
	// authHeaderNames is every auth_header name across the FULL registry
	// (not just routable), so a request to one service can never smuggle
	// in another service's client-supplied auth header.
	authHeaderNames []string

	store    credential.Store
	auditLog *audit.Store

	httpClient *http.Client

	hostmapToken        string
	requestTimeout      time.Duration
	auditFailClosed     bool
	transientRetryDelay time.Duration
}

// Option configures optional Proxy behavior at construction.
type Option func(*Proxy)

// WithHostmapToken requires X-Aquaman-Token on GET /_hostmap to match
// token. Unset (the default) means /_hostmap is unauthenticated, relying
// on the proxy's own loopback-only or 0600-socket binding for protection.
func WithHostmapToken(token string) Option {
	return func(p *Proxy) { p.hostmapToken = token }
}

// WithRequestTimeout bounds the total upstream request duration. Zero (the
// default) means no timeout, since streaming completions can run long.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.requestTimeout = d }
}

// WithAuditFailClosed turns an audit-write failure into a failed request
// instead of the default fail-open (logged to stderr, request still
// served).
func WithAuditFailClosed(failClosed bool) Option {
	return func(p *Proxy) { p.auditFailClosed = failClosed }
}

// WithTransientRetryDelay overrides the base delay before the single retry
// of a KindTransient credential-get error. Defaults to
// transientRetryBaseDelay; tests shrink it to keep the suite fast.
func WithTransientRetryDelay(d time.Duration) Option {
	return func(p *Proxy) { p.transientRetryDelay = d }
}

// New builds a Proxy. full is the complete service registry (used for the
// header-strip allowlist); allowedServices is the operator's configured
// allowlist, which must be non-empty.
func New(full *registry.Registry, allowedServices []string, store credential.Store, auditLog *audit.Store, opts ...Option) (*Proxy, error) {
	if len(allowedServices) == 0 {
		return nil, fmt.Errorf("proxy: allowed_services must be non-empty")
	}
	if store == nil {
		return nil, fmt.Errorf("proxy: credential store is required")
	}

	p := &Proxy{
		routable:            full.FilterAllowed(allowedServices),
		authHeaderNames:     full.AuthHeaderNames(),
		store:               store,
		auditLog:            auditLog,
		transientRetryDelay: transientRetryBaseDelay,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: nil, // never follow HTTP_PROXY/HTTPS_PROXY; connect direct
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 0, // streaming completions may be long
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ServeHTTP dispatches the two special endpoints before falling through to
// path-based service routing.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/_health":
		p.handleHealth(w, r)
	case "/_hostmap":
		p.handleHostmap(w, r)
	default:
		p.handleRoute(w, r)
	}
}

func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (p *Proxy) handleHostmap(w http.ResponseWriter, r *http.Request) {
	if p.hostmapToken != "" {
		got := r.Header.Get("X-Aquaman-Token")
		if !cryptoutil.ConstantTimeEqual([]byte(got), []byte(p.hostmapToken)) {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
	}

	out := make(map[string]string)
	for _, d := range p.routable.All() {
		out[d.Name] = d.UpstreamURL
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// handleRoute implements the core pipeline: route -> strip -> inject ->
// forward -> stream -> audit.
func (p *Proxy) handleRoute(w http.ResponseWriter, r *http.Request) {
	name, restPath := splitServicePath(r.URL.Path)

	service, ok := p.routable.Get(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown_service", map[string]string{"service": name})
		return
	}

	ctx := r.Context()
	if p.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	upstreamURL, err := buildUpstreamURL(service.UpstreamURL, restPath, r.URL.RawQuery)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "invalid_upstream", map[string]string{"service": service.Name})
		return
	}

	proxyHeader := r.Header.Clone()
	p.stripAuthHeaders(proxyHeader)
	stripHopByHop(proxyHeader)

	value, found, err := p.store.Get(ctx, service.Name, service.CredentialKey)
	if err != nil && isTransientBackendError(err) {
		if sleepErr := sleepWithJitter(ctx, p.transientRetryDelay); sleepErr != nil {
			err = sleepErr
		} else {
			value, found, err = p.store.Get(ctx, service.Name, service.CredentialKey)
		}
	}
	if err != nil {
		p.emitCredentialAccess(ctx, r, service, false, err.Error())
		status, code := statusForBackendError(err)
		writeJSONError(w, status, code, map[string]string{"service": service.Name})
		return
	}
	if !found {
		p.emitCredentialAccess(ctx, r, service, false, "credential_missing")
		writeJSONError(w, http.StatusServiceUnavailable, "credential_missing", map[string]string{"service": service.Name})
		return
	}

	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "build_request_failed", map[string]string{"service": service.Name})
		return
	}
	proxyReq.Header = proxyHeader
	proxyReq.Host = upstreamURL.Host
	proxyReq.ContentLength = r.ContentLength

	proxyReq.Header.Set(service.AuthHeader, service.AuthPrefix+value)
	for k, v := range service.ExtraHeaders {
		proxyReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(proxyReq)
	if err != nil {
		status, code := http.StatusBadGateway, "upstream_error"
		if errors.Is(err, context.DeadlineExceeded) {
			status, code = http.StatusGatewayTimeout, "upstream_timeout"
		} else if errors.Is(ctx.Err(), context.Canceled) {
			status, code = http.StatusBadGateway, "client_cancelled"
		}
		p.emitCredentialAccess(ctx, r, service, false, code)
		writeJSONError(w, status, code, map[string]string{"service": service.Name})
		return
	}
	defer resp.Body.Close()

	if err := p.emitCredentialAccess(ctx, r, service, true, ""); err != nil && p.auditFailClosed {
		writeJSONError(w, http.StatusInternalServerError, "audit_write_failed", map[string]string{"service": service.Name})
		return
	}

	streamResponse(w, resp)
}

// sleepWithJitter blocks for base plus a random extra delay in [0, base),
// returning early with ctx.Err() if ctx is done first.
func sleepWithJitter(ctx context.Context, base time.Duration) error {
	delay := base + time.Duration(rand.Int63n(int64(base)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// splitServicePath extracts the first path segment (the service name) and
// the remaining path (forwarded to the upstream verbatim).
func splitServicePath(path string) (service, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	name, remainder, _ := strings.Cut(trimmed, "/")
	name = strings.ToLower(name)
	if remainder != "" {
		remainder = "/" + remainder
	}
	return name, remainder
}

func buildUpstreamURL(upstream, restPath, rawQuery string) (*url.URL, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url %q: %w", upstream, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + restPath
	u.RawQuery = rawQuery
	return u, nil
}

// stripAuthHeaders removes every header name any registered service uses
// as its auth_header, case-insensitively, regardless of which service the
// request targets — this is what keeps one service's credential header
// from leaking into a request routed to a different service.
func (p *Proxy) stripAuthHeaders(h http.Header) {
	for _, name := range p.authHeaderNames {
		h.Del(name)
	}
}

// stripHopByHop removes connection-scoped headers that must never be
// forwarded, plus anything prefixed "Proxy-".
func stripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	for name := range h {
		if strings.HasPrefix(strings.ToLower(name), "proxy-") {
			h.Del(name)
		}
	}
}

// streamResponse copies resp's status, headers and body to w using an
// explicit read/flush loop (not a bare io.Copy) so SSE and chunked
// completions are relayed incrementally end-to-end rather than buffered.
func streamResponse(w http.ResponseWriter, resp *http.Response) {
	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// emitCredentialAccess appends exactly one credential_access entry per
// routed request. Audit write failures are fail-open by
// default (logged to stderr, request still served) unless
// WithAuditFailClosed(true) was set — the error is returned either way so
// the caller can decide.
func (p *Proxy) emitCredentialAccess(ctx context.Context, r *http.Request, service registry.Descriptor, success bool, reason string) error {
	if p.auditLog == nil {
		return nil
	}

	data := map[string]any{
		"operation":      "use",
		"service":        service.Name,
		"credential_key": service.CredentialKey,
		"method":         r.Method,
		"path":           r.URL.Path,
		"success":        success,
	}
	if reason != "" {
		data["error"] = reason
	}

	if _, err := p.auditLog.Append(ctx, audit.EntryCredentialAccess, "", "", data); err != nil {
		log.Error("audit append failed", "subsystem", "proxy", "service", service.Name, "error", err)
		return err
	}
	return nil
}
