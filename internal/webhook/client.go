// Package webhook authenticates requests by consulting an operator-supplied
// HTTP endpoint (the auth hook) with the client headers.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matthisholleville/authgate/internal/identity"
	"github.com/matthisholleville/authgate/internal/metrics"
	"github.com/matthisholleville/authgate/internal/session"
	"github.com/matthisholleville/authgate/internal/telemetry"
	"github.com/matthisholleville/authgate/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	requestTimeout  = 60 * time.Second
	maxResponseSize = 1 << 20 // 1 MiB
)

// Authenticator calls auth hooks. It is safe for concurrent use; the only
// shared state is the HTTP client connection pool.
type Authenticator struct {
	client *http.Client
	logger logger.Logger
}

// NewAuthenticator creates an Authenticator. A nil client uses a dedicated default one.
func NewAuthenticator(client *http.Client, log logger.Logger) *Authenticator {
	if client == nil {
		client = &http.Client{}
	}
	return &Authenticator{client: client, logger: log}
}

// Authenticate authenticates a request against the auth hook described by config.
func (a *Authenticator) Authenticate(ctx context.Context, config *AuthConfig, clientHeaders http.Header) (identity.Identity, error) {
	switch config.Version {
	case VersionV1:
		return a.AuthenticateV1(ctx, config.V1, clientHeaders, config.AllowRoleEmulationBy)
	case VersionV3:
		return a.AuthenticateV3(ctx, config.V3, clientHeaders, config.AllowRoleEmulationBy)
	default:
		return nil, internalError("authenticate", fmt.Errorf("unsupported auth config version %q", config.Version))
	}
}

// AuthenticateV1 authenticates a request against a v1 auth hook.
func (a *Authenticator) AuthenticateV1(
	ctx context.Context,
	config *AuthHookConfig,
	clientHeaders http.Header,
	emulationRole *session.Role,
) (identity.Identity, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerWebhook, "webhook_authenticate_request")
	defer span.End()

	id, err := a.authenticateV1(ctx, config, clientHeaders, emulationRole)
	telemetry.RecordError(span, err)
	return id, err
}

func (a *Authenticator) authenticateV1(
	ctx context.Context,
	config *AuthHookConfig,
	clientHeaders http.Header,
	emulationRole *session.Role,
) (identity.Identity, error) {
	if config == nil || config.URL == nil {
		return nil, internalError("authenticate", &InvalidURLError{Err: fmt.Errorf("missing auth hook url")})
	}
	request, err := BuildRequestV1(config.Method, clientHeaders)
	if err != nil {
		return nil, err
	}
	return a.makeAuthHookRequest(ctx, config.URL, request, emulationRole)
}

// AuthenticateV3 authenticates a request against a v3 auth hook.
func (a *Authenticator) AuthenticateV3(
	ctx context.Context,
	config AuthHookConfigV3,
	clientHeaders http.Header,
	emulationRole *session.Role,
) (identity.Identity, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerWebhook, "webhook_authenticate_request")
	defer span.End()

	id, err := a.authenticateV3(ctx, config, clientHeaders, emulationRole)
	telemetry.RecordError(span, err)
	return id, err
}

func (a *Authenticator) authenticateV3(
	ctx context.Context,
	config AuthHookConfigV3,
	clientHeaders http.Header,
	emulationRole *session.Role,
) (identity.Identity, error) {
	if config == nil {
		return nil, internalError("authenticate", fmt.Errorf("missing auth hook config"))
	}
	request, err := BuildRequestV3(config, clientHeaders)
	if err != nil {
		return nil, err
	}
	hookURL, err := resolveHookURL(config)
	if err != nil {
		return nil, internalError("resolve auth hook url", err)
	}
	return a.makeAuthHookRequest(ctx, hookURL, request, emulationRole)
}

func (a *Authenticator) makeAuthHookRequest(
	ctx context.Context,
	hookURL *url.URL,
	request Request,
	emulationRole *session.Role,
) (identity.Identity, error) {
	log := logger.FromContext(ctx, a.logger)

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	httpRequest, err := newHTTPRequest(ctx, hookURL, request)
	if err != nil {
		return nil, internalError("build auth hook request", err)
	}
	method := httpRequest.Method

	start := time.Now()
	response, err := a.send(ctx, httpRequest)
	metrics.WebhookDurationHistogram.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WebhookRequestsCounter.WithLabelValues(method, metrics.ResultError).Inc()
		log.Error("Error while making the authentication HTTP request to the webhook",
			zap.String("url", hookURL.Redacted()), zap.Error(err))
		return nil, internalError("request auth hook", err)
	}
	defer response.Body.Close()

	id, err := interpretResponse(response, emulationRole)
	switch {
	case err == nil:
		metrics.WebhookRequestsCounter.WithLabelValues(method, metrics.ResultAuthenticated).Inc()
		log.Debug("Request authenticated by the webhook", zap.String("url", hookURL.Redacted()))
	case errors.Is(err, ErrAuthenticationFailed):
		metrics.WebhookRequestsCounter.WithLabelValues(method, metrics.ResultDenied).Inc()
		log.Info("The webhook denied the request", zap.String("url", hookURL.Redacted()))
	default:
		metrics.WebhookRequestsCounter.WithLabelValues(method, metrics.ResultError).Inc()
		log.Error("Invalid webhook response", zap.String("url", hookURL.Redacted()),
			zap.Int("status", response.StatusCode), zap.Error(err))
	}
	return id, err
}

func (a *Authenticator) send(ctx context.Context, httpRequest *http.Request) (*http.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerWebhook, "request_to_webhook",
		attribute.String(telemetry.AttrWebhookURL, httpRequest.URL.Redacted()),
		attribute.String(telemetry.AttrWebhookMethod, httpRequest.Method),
	)
	defer span.End()

	response, err := a.client.Do(httpRequest.WithContext(ctx))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrWebhookStatusCode, response.StatusCode))
	return response, nil
}

// newHTTPRequest renders a Request. Trace headers are set first so that the
// policy-selected headers win on conflicts.
func newHTTPRequest(ctx context.Context, hookURL *url.URL, request Request) (*http.Request, error) {
	var (
		method  string
		body    io.Reader
		headers http.Header
	)
	switch request := request.(type) {
	case GetRequest:
		method = http.MethodGet
		headers = request.Headers
	case PostRequest:
		payload, err := json.Marshal(request.Body)
		if err != nil {
			return nil, err
		}
		method = http.MethodPost
		body = bytes.NewReader(payload)
		headers = request.Headers
	default:
		return nil, fmt.Errorf("unsupported auth hook request %T", request)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, hookURL.String(), body)
	if err != nil {
		return nil, err
	}
	for name, values := range telemetry.TraceHeaders(ctx) {
		httpRequest.Header[name] = values
	}
	for name, values := range headers {
		httpRequest.Header[http.CanonicalHeaderKey(name)] = values
	}
	if method == http.MethodPost && httpRequest.Header.Get("Content-Type") == "" {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	return httpRequest, nil
}

func interpretResponse(response *http.Response, emulationRole *session.Role) (identity.Identity, error) {
	switch response.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrAuthenticationFailed
	case http.StatusOK:
		payload, err := decodeResponseBody(response.Body)
		if err != nil {
			return nil, internalError("decode auth hook response", err)
		}
		return identityFromResponse(payload, emulationRole)
	default:
		return nil, internalError("interpret auth hook response", &UnexpectedStatusError{StatusCode: response.StatusCode})
	}
}

// decodeResponseBody reads a single JSON object. Numbers are kept as
// json.Number so session variable values are forwarded unchanged.
func decodeResponseBody(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(body, maxResponseSize))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the JSON value")
	}
	return payload, nil
}

// identityFromResponse turns a 200 response body into an Identity. Keys that
// are not valid session variable names are dropped.
func identityFromResponse(payload map[string]any, emulationRole *session.Role) (identity.Identity, error) {
	vars := make(session.Variables, len(payload))
	for key, value := range payload {
		name, err := session.ParseVariableName(key)
		if err != nil {
			continue
		}
		vars[name] = session.NewVariableValue(value)
	}

	roleValue, ok := vars.Get(session.RoleVariable)
	if !ok {
		return nil, internalError("interpret auth hook response", ErrRoleSessionVariableNotFound)
	}
	roleName, ok := roleValue.AsString()
	if !ok {
		return nil, internalError("interpret auth hook response", ErrRoleSessionVariableMustBeString)
	}
	role := session.NewRole(roleName)

	if emulationRole != nil && *emulationRole == role {
		return identity.RoleEmulationEnabled{Role: role}, nil
	}

	id, err := identity.NewSpecific(role, map[session.Role]identity.RoleAuthorization{
		role: {
			Role:               role,
			SessionVariables:   vars,
			AllowedFromRequest: identity.SomeVariables(),
		},
	})
	if err != nil {
		return nil, internalError("interpret auth hook response", err)
	}
	return id, nil
}
