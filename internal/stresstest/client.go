package stresstest

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/swarmcli/internal/types"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
)

// buildHTTPClient creates the client shared by all users of a test, with a
// connection pool sized to the number of users
func buildHTTPClient(config *types.TestConfig) (*http.Client, error) {
	poolSize := config.UserCount
	if poolSize < 1 {
		poolSize = 1
	}

	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.GetRequestTimeout(),
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if config.TLS != nil {
		tlsCfg, err := buildTLSConfig(config.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   config.GetRequestTimeout(),
		Transport: transport,
	}, nil
}

func buildTLSConfig(tlsConfig *types.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
	}

	// Client certificate for mTLS
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}

// buildRequest creates the request for an endpoint. Global headers are set
// first so endpoint headers override them on collision.
func buildRequest(ctx context.Context, host string, endpoint *Endpoint, globalHeaders map[string]string) (*http.Request, error) {
	target := strings.TrimRight(host, "/") + "/" + strings.TrimLeft(endpoint.URL(), "/")

	if endpoint.Method() == types.MethodGet && len(endpoint.Params()) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid url %q: %w", target, err)
		}
		query := u.Query()
		for key, value := range endpoint.Params() {
			query.Set(key, value)
		}
		u.RawQuery = query.Encode()
		target = u.String()
	}

	var body io.Reader
	if endpoint.Method().HasBody() && endpoint.Body() != "" {
		body = bytes.NewBufferString(endpoint.Body())
	}

	req, err := http.NewRequestWithContext(ctx, string(endpoint.Method()), target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range globalHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range endpoint.Headers() {
		req.Header.Set(key, value)
	}

	return req, nil
}

// isSuccess classifies a response status
func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 400
}
