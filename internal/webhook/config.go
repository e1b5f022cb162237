package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/matthisholleville/authgate/internal/session"
)

// decodeStrict decodes a single JSON value and rejects unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after the JSON value")
	}
	return nil
}

func parseHookURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("URL must be absolute")
	}
	return u, nil
}

// AuthHookMethod is the HTTP method of a v1 auth hook.
type AuthHookMethod string

const (
	MethodGet  AuthHookMethod = "Get"
	MethodPost AuthHookMethod = "Post"
)

func (m *AuthHookMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch AuthHookMethod(s) {
	case MethodGet, MethodPost:
		*m = AuthHookMethod(s)
		return nil
	}
	return fmt.Errorf("unknown auth hook method %q, expected %q or %q", s, MethodGet, MethodPost)
}

// AuthHookConfig is the legacy (v1) configuration of the authentication webhook.
type AuthHookConfig struct {
	URL    *url.URL
	Method AuthHookMethod
}

type authHookConfigJSON struct {
	URL    string         `json:"url"`
	Method AuthHookMethod `json:"method"`
}

func (c AuthHookConfig) MarshalJSON() ([]byte, error) {
	raw := ""
	if c.URL != nil {
		raw = c.URL.String()
	}
	return json.Marshal(authHookConfigJSON{URL: raw, Method: c.Method})
}

func (c *AuthHookConfig) UnmarshalJSON(data []byte) error {
	var raw authHookConfigJSON
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	if raw.Method == "" {
		return errors.New("missing field `method`")
	}
	u, err := parseHookURL(raw.URL)
	if err != nil {
		return fmt.Errorf("invalid auth hook url: %w", err)
	}
	c.URL = u
	c.Method = raw.Method
	return nil
}

// EnvironmentValue is either a literal value or the name of an environment
// variable holding it.
type EnvironmentValue struct {
	Value        string `json:"value,omitempty"`
	ValueFromEnv string `json:"valueFromEnv,omitempty"`
}

func (e *EnvironmentValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value        *string `json:"value"`
		ValueFromEnv *string `json:"valueFromEnv"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Value != nil && raw.ValueFromEnv == nil:
		*e = EnvironmentValue{Value: *raw.Value}
	case raw.ValueFromEnv != nil && raw.Value == nil:
		*e = EnvironmentValue{ValueFromEnv: *raw.ValueFromEnv}
	default:
		return errors.New("exactly one of `value` or `valueFromEnv` must be set")
	}
	return nil
}

// Resolve returns the literal value or reads it from the environment.
func (e EnvironmentValue) Resolve() (string, error) {
	if e.ValueFromEnv == "" {
		return e.Value, nil
	}
	value, ok := os.LookupEnv(e.ValueFromEnv)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", e.ValueFromEnv)
	}
	return value, nil
}

// Headers selects the client headers sent to the auth hook and the static
// headers added on top of them.
type Headers struct {
	Forward    AllOrList[string] `json:"forward"`
	Additional map[string]string `json:"additional,omitempty"`
}

func (h *Headers) UnmarshalJSON(data []byte) error {
	type plain Headers
	raw := plain{Forward: All[string]()}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	for name := range raw.Additional {
		if !validHeaderName(name) {
			return fmt.Errorf("invalid additional header name %q", name)
		}
	}
	*h = Headers(raw)
	return nil
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n:()<>@,;\\\"/[]?={}")
}

// AuthHookConfigV3 is the current configuration of the authentication webhook.
// It is either a GETConfig or a POSTConfig.
type AuthHookConfigV3 interface {
	HookURL() EnvironmentValue
	HTTPMethod() string
}

// GETConfig configures a GET auth hook.
type GETConfig struct {
	URL                 EnvironmentValue  `json:"url"`
	CustomHeadersConfig *GETHeadersConfig `json:"customHeadersConfig,omitempty"`
}

// GETHeadersConfig configures the headers sent to a GET auth hook.
type GETHeadersConfig struct {
	Headers *Headers `json:"headers,omitempty"`
}

// POSTConfig configures a POST auth hook.
type POSTConfig struct {
	URL                 EnvironmentValue   `json:"url"`
	CustomHeadersConfig *POSTHeadersConfig `json:"customHeadersConfig,omitempty"`
}

// POSTHeadersConfig configures the headers and body sent to a POST auth hook.
type POSTHeadersConfig struct {
	Headers *Headers    `json:"headers,omitempty"`
	Body    *BodyConfig `json:"body,omitempty"`
}

// BodyConfig configures the headers embedded in the POST body.
type BodyConfig struct {
	Headers *Headers `json:"headers,omitempty"`
}

func (c GETConfig) HookURL() EnvironmentValue  { return c.URL }
func (c POSTConfig) HookURL() EnvironmentValue { return c.URL }
func (GETConfig) HTTPMethod() string           { return "GET" }
func (POSTConfig) HTTPMethod() string          { return "POST" }

type getConfigFields GETConfig
type postConfigFields POSTConfig

type taggedGET struct {
	Method string `json:"method"`
	getConfigFields
}

type taggedPOST struct {
	Method string `json:"method"`
	postConfigFields
}

func (c GETConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedGET{Method: "GET", getConfigFields: getConfigFields(c)})
}

func (c POSTConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(taggedPOST{Method: "POST", postConfigFields: postConfigFields(c)})
}

// ParseAuthHookConfigV3 decodes a v3 auth hook configuration tagged by "method".
func ParseAuthHookConfigV3(data []byte) (AuthHookConfigV3, error) {
	var tag struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}
	switch tag.Method {
	case "GET":
		var raw taggedGET
		if err := decodeStrict(data, &raw); err != nil {
			return nil, err
		}
		if raw.URL == (EnvironmentValue{}) {
			return nil, errors.New("missing field `url`")
		}
		return GETConfig(raw.getConfigFields), nil
	case "POST":
		var raw taggedPOST
		if err := decodeStrict(data, &raw); err != nil {
			return nil, err
		}
		if raw.URL == (EnvironmentValue{}) {
			return nil, errors.New("missing field `url`")
		}
		return POSTConfig(raw.postConfigFields), nil
	case "":
		return nil, errors.New("missing field `method`")
	default:
		return nil, fmt.Errorf("unknown variant `%s`, expected `GET` or `POST`", tag.Method)
	}
}

// Config versions.
const (
	VersionV1 = "v1"
	VersionV3 = "v3"
)

// AuthConfig is the webhook authentication configuration document.
type AuthConfig struct {
	Version              string
	V1                   *AuthHookConfig
	V3                   AuthHookConfigV3
	AllowRoleEmulationBy *session.Role
}

type authConfigJSON struct {
	Version              string          `json:"version"`
	Webhook              json.RawMessage `json:"webhook"`
	AllowRoleEmulationBy *string         `json:"allowRoleEmulationBy,omitempty"`
}

// ParseAuthConfig decodes and validates an auth configuration document.
func ParseAuthConfig(data []byte) (*AuthConfig, error) {
	var raw authConfigJSON
	if err := decodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if len(raw.Webhook) == 0 {
		return nil, errors.New("invalid auth config: missing field `webhook`")
	}

	config := &AuthConfig{Version: raw.Version}
	if raw.AllowRoleEmulationBy != nil {
		role := session.NewRole(*raw.AllowRoleEmulationBy)
		config.AllowRoleEmulationBy = &role
	}

	switch raw.Version {
	case VersionV1:
		var hook AuthHookConfig
		if err := json.Unmarshal(raw.Webhook, &hook); err != nil {
			return nil, fmt.Errorf("invalid v1 webhook config: %w", err)
		}
		config.V1 = &hook
	case VersionV3:
		hook, err := ParseAuthHookConfigV3(raw.Webhook)
		if err != nil {
			return nil, fmt.Errorf("invalid v3 webhook config: %w", err)
		}
		if _, err := resolveHookURL(hook); err != nil {
			return nil, fmt.Errorf("invalid v3 webhook config: %w", err)
		}
		config.V3 = hook
	default:
		return nil, fmt.Errorf("invalid auth config: unsupported version %q", raw.Version)
	}
	return config, nil
}

// LoadAuthConfig reads an auth configuration document from a JSON file.
func LoadAuthConfig(path string) (*AuthConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read auth config %s: %w", path, err)
	}
	return ParseAuthConfig(data)
}

func resolveHookURL(config AuthHookConfigV3) (*url.URL, error) {
	raw, err := config.HookURL().Resolve()
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Err: err}
	}
	u, err := parseHookURL(raw)
	if err != nil {
		return nil, &InvalidURLError{URL: raw, Err: err}
	}
	return u, nil
}
