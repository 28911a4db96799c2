package shared

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClientFactory hands out pooled HTTP clients keyed by timeout so every
// registry and document call shares connections within the process.
type HTTPClientFactory struct {
	defaultTimeout time.Duration
	insecureTLS    bool
	mutex          sync.RWMutex
	clients        map[string]*http.Client
}

// NewHTTPClientFactory creates a new HTTP client factory. insecureTLS disables
// certificate verification, which the registry's :8443 endpoints have required.
func NewHTTPClientFactory(defaultTimeout time.Duration, insecureTLS bool) *HTTPClientFactory {
	return &HTTPClientFactory{
		defaultTimeout: defaultTimeout,
		insecureTLS:    insecureTLS,
		clients:        make(map[string]*http.Client),
	}
}

// CreateOptimizedHTTPClient creates an HTTP client with connection pooling and optimized settings
func (f *HTTPClientFactory) CreateOptimizedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}

	clientKey := fmt.Sprintf("timeout_%d", timeout.Milliseconds())

	f.mutex.RLock()
	if client, exists := f.clients[clientKey]; exists {
		f.mutex.RUnlock()
		return client
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if client, exists := f.clients[clientKey]; exists {
		return client
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: f.newTransport(),
	}
	f.clients[clientKey] = client

	logrus.WithFields(logrus.Fields{
		"component":    "HTTPClientFactory",
		"timeout":      timeout,
		"client_key":   clientKey,
		"insecure_tls": f.insecureTLS,
	}).Debug("Created new optimized HTTP client")

	return client
}

// Transport returns a fresh transport with the factory's pooling and TLS settings,
// for callers (such as colly collectors) that manage their own client.
func (f *HTTPClientFactory) Transport() *http.Transport {
	return f.newTransport()
}

func (f *HTTPClientFactory) newTransport() *http.Transport {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: f.defaultTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if f.insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // registry certificate chain is incomplete
	}
	return transport
}

// SetBrowserLikeHeaders configures HTTP request headers to mimic browser behavior
func SetBrowserLikeHeaders(request *http.Request, acceptHeader string) {
	request.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	request.Header.Set("Accept", acceptHeader)
	request.Header.Set("Accept-Language", "cs-CZ,cs;q=0.9,en;q=0.8")
	request.Header.Set("Cache-Control", "no-cache")
}

// CleanupAllClients closes idle connections of every cached client
func (f *HTTPClientFactory) CleanupAllClients() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for key, client := range f.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
		delete(f.clients, key)
	}

	logrus.WithField("component", "HTTPClientFactory").Debug("Cleaned up all cached HTTP clients")
}
