package common

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const defaultRPCTimeout = 30 * time.Second

// NewHttpClient returns the HTTP/2-capable client for JSON-RPC calls. Every
// call goes to the one RPC host, so the idle pool is sized for that host.
func NewHttpClient(requestTimeout time.Duration) (*http.Client, error) {
	if requestTimeout <= 0 {
		requestTimeout = defaultRPCTimeout
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   requestTimeout,
	}, nil
}
