package httpclient

import (
	"bufio"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
	"io"
	"net"
	"net/http"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// utlsRoundTripper dials with a Chrome TLS fingerprint and speaks HTTP/2 or HTTP/1.1 depending on ALPN
type utlsRoundTripper struct {
	dialer   proxy.ContextDialer
	insecure bool
	h2       *http2.Transport
}

func newUTLSRoundTripper(dialer proxy.ContextDialer, insecure bool) *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer:   dialer,
		insecure: insecure,
		h2:       &http2.Transport{},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{
		ServerName:         req.URL.Hostname(),
		InsecureSkipVerify: t.insecure,
	}, utls.HelloChrome_120)
	if err := uconn.HandshakeContext(req.Context()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		cc, err := t.h2.NewClientConn(uconn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return cc.RoundTrip(req)
	}

	return roundTripHTTP1(uconn, req)
}

func roundTripHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	resp.Body = &connCloser{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// connCloser closes the single-use connection once the body is done
type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	_ = c.ReadCloser.Close()
	return c.conn.Close()
}
