// Package network builds the HTTP clients shared by the harvester, the
// metadata resolver, and the download workers. Clients are constructed
// explicitly and injected; nothing in the pipeline reaches for a global.
package network

import (
	"net"
	"net/http"
	"time"
)

// CreateTransferTransport creates an HTTP transport tuned for streaming
// large media files: generous connection pooling and explicit connect and
// response-header timeouts.
func CreateTransferTransport() *http.Transport {
	return &http.Transport{
		// Connection pooling settings for better reuse
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     30,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,

		DisableKeepAlives:  false,
		DisableCompression: false,
		ForceAttemptHTTP2:  true,

		// Dialer settings for connection establishment
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second, // Connection timeout
			KeepAlive: 30 * time.Second, // Keep-alive probe interval
		}).DialContext,

		// Buffer sizes for better throughput
		WriteBufferSize: 64 * 1024, // 64KB write buffer
		ReadBufferSize:  64 * 1024, // 64KB read buffer
	}
}

// CreateTransferClient creates the HTTP client used by download workers.
// The overall timeout must cover a full media file transfer.
func CreateTransferClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Minute // Default timeout for large downloads
	}

	return &http.Client{
		Transport: CreateTransferTransport(),
		Timeout:   timeout,
	}
}

// CreateAPIClient creates the HTTP client used for catalog pages and
// metadata lookups: small JSON responses, short timeouts, retry on
// transient statuses.
func CreateAPIClient(timeout time.Duration, maxRetries int) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       10,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ForceAttemptHTTP2:     true,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		WriteBufferSize: 16 * 1024, // 16KB
		ReadBufferSize:  16 * 1024, // 16KB
	}

	return &http.Client{
		Transport: &RetryingRoundTripper{
			Base:       transport,
			MaxRetries: maxRetries,
			RetryDelay: 500 * time.Millisecond,
		},
		Timeout: timeout,
	}
}
