// Package httpclient provides the HTTP client used for playlist fetches,
// with per-URL proxy routing and optional browser-like TLS fingerprints.
package httpclient

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"

	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
)

const defaultFetchTimeout = 30 * time.Second

// Client picks an outbound route per playlist URL: a fingerprinted TLS
// client for listed domains, a configured transport route, the global proxy,
// or a direct connection. Routed clients are built lazily and pooled.
type Client struct {
	direct      *http.Client
	utlsClient  *http.Client // browser-like TLS fingerprint for CDNs that reject Go's handshake
	routes      []config.TransportRoute
	globalProxy string
	utlsDomains []string
	timeout     time.Duration
	log         *logging.Logger

	mu     sync.RWMutex
	routed map[routeKey]*http.Client
}

// routeKey identifies a pooled client. An empty proxy means direct.
type routeKey struct {
	proxy    string
	insecure bool
}

var _ interfaces.HTTPClient = (*Client)(nil)

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 60 * time.Second,
	}
}

func newPooledTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext:           newDialer().DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// New creates a client from the outbound transport settings in cfg. Only the
// first entry of GlobalProxies is used.
func New(cfg *config.Config, log *logging.Logger) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	c := &Client{
		routes:      cfg.TransportRoutes,
		utlsDomains: lowerAll(cfg.UTLSDomains),
		timeout:     timeout,
		log:         log.WithComponent("httpclient"),
		routed:      make(map[routeKey]*http.Client),
	}
	if len(cfg.GlobalProxies) > 0 {
		c.globalProxy = cfg.GlobalProxies[0]
	}

	c.direct = c.wrap(newPooledTransport(timeout))
	c.utlsClient = c.createUTLSClient()

	return c
}

func (c *Client) wrap(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   c.timeout,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// createUTLSClient creates an HTTP client with browser-like TLS fingerprinting.
func (c *Client) createUTLSClient() *http.Client {
	return c.wrap(newUTLSRoundTripper(nil))
}

// utlsRoundTripper dials one fingerprinted TLS connection per request and
// speaks HTTP/2 or HTTP/1.1 over it, depending on ALPN. The connection lives
// exactly as long as the response body.
type utlsRoundTripper struct {
	dialer *net.Dialer
	h2     *http2.Transport
	base   *utls.Config
	hello  utls.ClientHelloID
}

// newUTLSRoundTripper creates a round tripper presenting a Chrome hello.
// base, if set, supplies verification settings such as RootCAs.
func newUTLSRoundTripper(base *utls.Config) *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: newDialer(),
		h2:     &http2.Transport{},
		base:   base,
		hello:  utls.HelloChrome_120,
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	conn, err := t.handshake(req)
	if err != nil {
		return nil, err
	}

	if conn.ConnectionState().NegotiatedProtocol != http2.NextProtoTLS {
		return roundTripHTTP1(conn, req)
	}

	cc, err := t.h2.NewClientConn(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("http2 client conn: %w", err)
	}
	resp, err := cc.RoundTrip(req)
	if err != nil {
		cc.Close()
		return nil, err
	}
	// Closing the body tears down the h2 connection and its read loop.
	resp.Body = &closeWithBody{ReadCloser: resp.Body, closer: cc}
	return resp, nil
}

// handshake dials the request's host and completes a fingerprinted TLS
// handshake, offering h2 and http/1.1.
func (t *utlsRoundTripper) handshake(req *http.Request) (*utls.UConn, error) {
	host := req.URL.Hostname()
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}

	raw, err := t.dialer.DialContext(req.Context(), "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}

	cfg := &utls.Config{}
	if t.base != nil {
		cfg = t.base.Clone()
	}
	cfg.ServerName = host

	conn := utls.UClient(raw, cfg, t.hello)
	if err := conn.HandshakeContext(req.Context()); err != nil {
		raw.Close()
		return nil, fmt.Errorf("utls handshake with %s: %w", host, err)
	}
	return conn, nil
}

func roundTripHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}

	resp.Body = &closeWithBody{ReadCloser: resp.Body, closer: conn}
	return resp, nil
}

// closeWithBody releases the underlying connection when the body is closed.
type closeWithBody struct {
	io.ReadCloser
	closer io.Closer
}

func (b *closeWithBody) Close() error {
	bodyErr := b.ReadCloser.Close()
	if err := b.closer.Close(); err != nil {
		return err
	}
	return bodyErr
}

// needsUTLS reports whether targetURL mentions one of the fingerprinted domains.
func (c *Client) needsUTLS(targetURL string) bool {
	lower := strings.ToLower(targetURL)
	for _, domain := range c.utlsDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}

// Do sends req through the client selected for its URL.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.getClientForURL(req.URL.String()).Do(req)
}

// CloseIdleConnections closes idle connections on every pooled client.
func (c *Client) CloseIdleConnections() {
	c.direct.CloseIdleConnections()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, client := range c.routed {
		client.CloseIdleConnections()
	}
}

// getClientForURL applies, in order: utls domains, the first matching
// transport route, the global proxy, then a direct connection.
func (c *Client) getClientForURL(targetURL string) *http.Client {
	if c.needsUTLS(targetURL) {
		c.log.Debug("using utls client", "url", targetURL)
		return c.utlsClient
	}

	for _, route := range c.routes {
		if !strings.Contains(targetURL, route.URLPattern) {
			continue
		}
		c.log.Debug("matched transport route",
			"url", targetURL,
			"pattern", route.URLPattern,
			"proxy", route.Proxy,
			"direct", route.Direct,
		)

		key := routeKey{insecure: route.DisableSSL}
		if !route.Direct {
			key.proxy = route.Proxy
		}
		if key == (routeKey{}) {
			if route.Direct {
				return c.direct
			}
			// A route that neither proxies nor disables TLS falls through.
			continue
		}
		return c.routedClient(key)
	}

	if c.globalProxy != "" {
		c.log.Debug("using global proxy", "url", targetURL, "proxy", c.globalProxy)
		return c.routedClient(routeKey{proxy: c.globalProxy})
	}

	return c.direct
}

// routedClient returns the pooled client for key, creating it on first use.
func (c *Client) routedClient(key routeKey) *http.Client {
	c.mu.RLock()
	client, ok := c.routed[key]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.routed[key]; ok {
		return client
	}

	client, err := c.buildRoutedClient(key)
	if err != nil {
		c.log.Error("unusable proxy, falling back to direct connection", "proxy", key.proxy, "error", err)
		return c.direct
	}
	c.routed[key] = client
	c.log.Debug("created routed client", "proxy", key.proxy, "insecure", key.insecure)
	return client
}

func (c *Client) buildRoutedClient(key routeKey) (*http.Client, error) {
	transport := newPooledTransport(c.timeout)
	if key.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in per route
	}
	if key.proxy == "" {
		return c.wrap(transport), nil
	}

	proxyURL, err := url.Parse(key.proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer for %s has no context support", proxyURL.Host)
		}
		transport.DialContext = contextDialer.DialContext
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	return c.wrap(transport), nil
}

// ParseHeaderParams collects request headers passed as h_-prefixed query
// parameters, so h_User_Agent=x becomes User-Agent: x. Only the first value
// of a repeated parameter is kept.
func ParseHeaderParams(query url.Values) map[string]string {
	headers := make(map[string]string)
	for key, values := range query {
		name, ok := strings.CutPrefix(key, "h_")
		if !ok || len(values) == 0 {
			continue
		}
		headers[strings.ReplaceAll(name, "_", "-")] = values[0]
	}
	return headers
}
