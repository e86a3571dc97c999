package ports

import "net/http"

// HTTPClient is the transport the gateway client sends its calls through.
// Tests substitute a recorder; production uses the pooled client from pkg/http.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
