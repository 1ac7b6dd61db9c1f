package engine

import (
	"encoding/base64"
	"net"
	"net/http"
	"time"
)

// headerTransport injects the fixed default headers every engine request
// carries: Basic-Auth credentials and the CSRF token (or its sentinel).
type headerTransport struct {
	base          http.RoundTripper
	authorization string
	csrfToken     string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", t.authorization)
	r.Header.Set("X-Kopia-Csrf-Token", t.csrfToken)
	return t.base.RoundTrip(r)
}

// newEngineClient builds the pre-configured HTTP client for one instance.
// Client.Timeout stays 0: every request must carry a context-based deadline.
func newEngineClient(user, password, csrfToken string) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
	return &http.Client{
		Transport: headerTransport{base: tr, authorization: auth, csrfToken: csrfToken},
		Timeout:   0,
	}
}
