package httputil

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a whole outbound request, body included.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client for calls to external APIs.
func NewClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = 5 * time.Second
	transport.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: transport,
	}
}
