package webhook

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"
)

// commonClientHeadersToIgnore are never forwarded as wire headers when the
// forwarding policy selects every client header. They are still embedded in
// POST bodies.
var commonClientHeadersToIgnore = [14]string{
	"Accept",
	"Accept-Datetime",
	"Accept-Encoding",
	"Accept-Language",
	"Cache-Control",
	"Connection",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"DNT",
	"Host",
	"Origin",
	"Referer",
	"User-Agent",
}

var ignoredHeaders = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{}, len(commonClientHeadersToIgnore))
	for _, header := range commonClientHeadersToIgnore {
		set[strings.ToLower(header)] = struct{}{}
	}
	return set
})

func ignoreHeader(name string) bool {
	_, ok := ignoredHeaders()[strings.ToLower(name)]
	return ok
}

// Request is the outbound request shape sent to the auth hook.
// It is either a GetRequest or a PostRequest.
type Request interface {
	isRequest()
}

// GetRequest carries the headers of a GET call.
type GetRequest struct {
	Headers http.Header
}

// PostRequest carries the headers and JSON body of a POST call.
type PostRequest struct {
	Headers http.Header
	Body    PostBody
}

// PostBody is the JSON body of a POST call.
type PostBody struct {
	Headers map[string]string `json:"headers"`
}

func (GetRequest) isRequest()  {}
func (PostRequest) isRequest() {}

func newPostBody() PostBody {
	return PostBody{Headers: map[string]string{}}
}

// BuildRequestV1 builds the request of a v1 auth hook. GET forwards every
// client header but the common ones; POST sends no header and embeds every
// client header in the body.
func BuildRequestV1(method AuthHookMethod, clientHeaders http.Header) (Request, error) {
	switch method {
	case MethodPost:
		body := newPostBody()
		for name, values := range clientHeaders {
			if err := embedHeader(body.Headers, name, values); err != nil {
				return nil, err
			}
		}
		return PostRequest{Headers: http.Header{}, Body: body}, nil
	case MethodGet:
		headers := http.Header{}
		for name, values := range clientHeaders {
			if !ignoreHeader(name) {
				headers[http.CanonicalHeaderKey(name)] = cloneValues(values)
			}
		}
		return GetRequest{Headers: headers}, nil
	default:
		return nil, internalError("build auth hook request", fmt.Errorf("unknown auth hook method %q", method))
	}
}

// BuildRequestV3 builds the request of a v3 auth hook. Without a
// customHeadersConfig it falls back to the v1 behaviour for the same method.
func BuildRequestV3(config AuthHookConfigV3, clientHeaders http.Header) (Request, error) {
	switch config := config.(type) {
	case GETConfig:
		if config.CustomHeadersConfig == nil {
			return BuildRequestV1(MethodGet, clientHeaders)
		}
		return GetRequest{Headers: filterHeaders(config.CustomHeadersConfig.Headers, clientHeaders, true)}, nil
	case POSTConfig:
		if config.CustomHeadersConfig == nil {
			return BuildRequestV1(MethodPost, clientHeaders)
		}
		custom := config.CustomHeadersConfig
		headers := filterHeaders(custom.Headers, clientHeaders, true)
		body := newPostBody()
		if custom.Body != nil && custom.Body.Headers != nil {
			// the caller opted in explicitly, common headers are kept
			for name, values := range filterHeaders(custom.Body.Headers, clientHeaders, false) {
				if err := embedHeader(body.Headers, name, values); err != nil {
					return nil, err
				}
			}
		}
		return PostRequest{Headers: headers, Body: body}, nil
	default:
		return nil, internalError("build auth hook request", unsupportedConfig(config))
	}
}

// filterHeaders applies a forwarding policy. A nil policy forwards nothing.
// Additional headers override forwarded ones of the same name.
func filterHeaders(config *Headers, clientHeaders http.Header, ignoreCommonHeaders bool) http.Header {
	headers := http.Header{}
	if config == nil {
		return headers
	}
	if config.Forward.IsAll() {
		for name, values := range clientHeaders {
			if ignoreCommonHeaders && ignoreHeader(name) {
				continue
			}
			headers[http.CanonicalHeaderKey(name)] = cloneValues(values)
		}
	} else {
		for _, wanted := range config.Forward.Items() {
			if values := lookupHeader(clientHeaders, wanted); len(values) > 0 {
				headers[http.CanonicalHeaderKey(wanted)] = cloneValues(values)
			}
		}
	}
	for name, value := range config.Additional {
		headers[http.CanonicalHeaderKey(name)] = []string{value}
	}
	return headers
}

func lookupHeader(headers http.Header, name string) []string {
	if values, ok := headers[http.CanonicalHeaderKey(name)]; ok {
		return values
	}
	for key, values := range headers {
		if strings.EqualFold(key, name) {
			return values
		}
	}
	return nil
}

func embedHeader(dst map[string]string, name string, values []string) error {
	value := ""
	if len(values) > 0 {
		value = values[0]
	}
	if !utf8.ValidString(value) {
		return internalError("build auth hook request", &HeaderValueError{Name: name})
	}
	dst[strings.ToLower(name)] = value
	return nil
}

func cloneValues(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func unsupportedConfig(config AuthHookConfigV3) error {
	return fmt.Errorf("unsupported auth hook config %T", config)
}
