package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clientHeaders() http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Origin", "http://example.com")
	headers.Set("User-Agent", "curl/8.0")
	headers.Set("Foo", "baz")
	headers.Set("X-Api-Key", "secret")
	return headers
}

func TestBuildRequestV1(t *testing.T) {
	t.Run("GET forwards every header but the common ones", func(t *testing.T) {
		request, err := BuildRequestV1(MethodGet, clientHeaders())
		require.NoError(t, err)

		get, ok := request.(GetRequest)
		require.True(t, ok)
		assert.Equal(t, http.Header{
			"Foo":       {"baz"},
			"X-Api-Key": {"secret"},
		}, get.Headers)
	})

	t.Run("GET keeps every value of a repeated header", func(t *testing.T) {
		headers := http.Header{"X-Forwarded-For": {"10.0.0.1", "10.0.0.2"}}
		request, err := BuildRequestV1(MethodGet, headers)
		require.NoError(t, err)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, request.(GetRequest).Headers.Values("X-Forwarded-For"))
	})

	t.Run("POST embeds every header in the body", func(t *testing.T) {
		request, err := BuildRequestV1(MethodPost, clientHeaders())
		require.NoError(t, err)

		post, ok := request.(PostRequest)
		require.True(t, ok)
		assert.Empty(t, post.Headers)
		assert.Equal(t, map[string]string{
			"content-type": "application/json",
			"origin":       "http://example.com",
			"user-agent":   "curl/8.0",
			"foo":          "baz",
			"x-api-key":    "secret",
		}, post.Body.Headers)
	})

	t.Run("POST without headers sends an empty map", func(t *testing.T) {
		request, err := BuildRequestV1(MethodPost, http.Header{})
		require.NoError(t, err)
		assert.NotNil(t, request.(PostRequest).Body.Headers)
		assert.Empty(t, request.(PostRequest).Body.Headers)
	})

	t.Run("unknown method is rejected", func(t *testing.T) {
		for _, method := range []AuthHookMethod{"", "GET", "Delete"} {
			request, err := BuildRequestV1(method, clientHeaders())
			require.Error(t, err)
			assert.Nil(t, request)
			assert.True(t, IsInternal(err))
		}
	})

	t.Run("POST rejects a non UTF-8 header value", func(t *testing.T) {
		headers := http.Header{"X-Binary": {"\xff\xfe"}}
		_, err := BuildRequestV1(MethodPost, headers)
		require.Error(t, err)
		assert.True(t, IsInternal(err))

		var headerErr *HeaderValueError
		require.ErrorAs(t, err, &headerErr)
		assert.Equal(t, "X-Binary", headerErr.Name)
	})
}

func TestBuildRequestV3(t *testing.T) {
	for _, test := range []struct {
		name            string
		config          AuthHookConfigV3
		expectedHeaders http.Header
		expectedBody    map[string]string
	}{
		{
			name:   "GET without custom headers config falls back to v1",
			config: GETConfig{URL: EnvironmentValue{Value: "http://auth-hook"}},
			expectedHeaders: http.Header{
				"Foo":       {"baz"},
				"X-Api-Key": {"secret"},
			},
		},
		{
			name:            "GET without headers policy forwards nothing",
			config:          GETConfig{CustomHeadersConfig: &GETHeadersConfig{}},
			expectedHeaders: http.Header{},
		},
		{
			name: "GET forwarding all headers skips the common ones",
			config: GETConfig{CustomHeadersConfig: &GETHeadersConfig{
				Headers: &Headers{Forward: All[string]()},
			}},
			expectedHeaders: http.Header{
				"Foo":       {"baz"},
				"X-Api-Key": {"secret"},
			},
		},
		{
			name: "GET forwarding a list keeps listed common headers",
			config: GETConfig{CustomHeadersConfig: &GETHeadersConfig{
				Headers: &Headers{Forward: List("user-agent", "foo", "missing")},
			}},
			expectedHeaders: http.Header{
				"User-Agent": {"curl/8.0"},
				"Foo":        {"baz"},
			},
		},
		{
			name: "GET additional headers override forwarded ones",
			config: GETConfig{CustomHeadersConfig: &GETHeadersConfig{
				Headers: &Headers{
					Forward:    List("Foo"),
					Additional: map[string]string{"foo": "bar", "X-Static": "1"},
				},
			}},
			expectedHeaders: http.Header{
				"Foo":      {"bar"},
				"X-Static": {"1"},
			},
		},
		{
			name: "POST without custom headers config falls back to v1",
			config: POSTConfig{
				URL: EnvironmentValue{Value: "http://auth-hook"},
			},
			expectedHeaders: http.Header{},
			expectedBody: map[string]string{
				"content-type": "application/json",
				"origin":       "http://example.com",
				"user-agent":   "curl/8.0",
				"foo":          "baz",
				"x-api-key":    "secret",
			},
		},
		{
			name:            "POST with empty custom headers config sends an empty body",
			config:          POSTConfig{CustomHeadersConfig: &POSTHeadersConfig{}},
			expectedHeaders: http.Header{},
			expectedBody:    map[string]string{},
		},
		{
			name: "POST body headers never skip the common ones",
			config: POSTConfig{CustomHeadersConfig: &POSTHeadersConfig{
				Headers: &Headers{Forward: List("x-api-key")},
				Body: &BodyConfig{Headers: &Headers{
					Forward:    All[string](),
					Additional: map[string]string{"Foo": "overridden"},
				}},
			}},
			expectedHeaders: http.Header{"X-Api-Key": {"secret"}},
			expectedBody: map[string]string{
				"content-type": "application/json",
				"origin":       "http://example.com",
				"user-agent":   "curl/8.0",
				"foo":          "overridden",
				"x-api-key":    "secret",
			},
		},
		{
			name: "POST body with an empty list embeds only additional headers",
			config: POSTConfig{CustomHeadersConfig: &POSTHeadersConfig{
				Body: &BodyConfig{Headers: &Headers{
					Forward:    List[string](),
					Additional: map[string]string{"X-Tenant": "acme"},
				}},
			}},
			expectedHeaders: http.Header{},
			expectedBody:    map[string]string{"x-tenant": "acme"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			request, err := BuildRequestV3(test.config, clientHeaders())
			require.NoError(t, err)

			switch request := request.(type) {
			case GetRequest:
				assert.Nil(t, test.expectedBody)
				assert.Equal(t, test.expectedHeaders, request.Headers)
			case PostRequest:
				assert.Equal(t, test.expectedHeaders, request.Headers)
				assert.Equal(t, test.expectedBody, request.Body.Headers)
			default:
				t.Fatalf("unexpected request %T", request)
			}
		})
	}
}

func TestBuildRequestV3DoesNotAliasClientHeaders(t *testing.T) {
	headers := clientHeaders()
	request, err := BuildRequestV3(GETConfig{CustomHeadersConfig: &GETHeadersConfig{
		Headers: &Headers{Forward: All[string]()},
	}}, headers)
	require.NoError(t, err)

	request.(GetRequest).Headers["Foo"][0] = "changed"
	assert.Equal(t, "baz", headers.Get("Foo"))
}

func TestIgnoreHeader(t *testing.T) {
	assert.Len(t, ignoredHeaders(), len(commonClientHeadersToIgnore))
	for _, name := range []string{"accept", "ACCEPT-ENCODING", "Dnt", "host", "content-md5"} {
		assert.True(t, ignoreHeader(name), name)
	}
	for _, name := range []string{"Authorization", "Cookie", "X-Hasura-Role"} {
		assert.False(t, ignoreHeader(name), name)
	}
}
