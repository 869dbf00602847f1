// Package client talks to a running bridge server over HTTP. It is used
// by the CLI and by the plan runner; every failure to reach the server
// is reported as BRIDGE_UNAVAILABLE so callers can tell connectivity
// problems from operation failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// DefaultBridgeURL is where a locally started bridge listens.
const DefaultBridgeURL = "http://127.0.0.1:41749"

// EnvBridgeURL overrides the bridge address.
const EnvBridgeURL = "HARNESS_BLENDER_BRIDGE_URL"

type BridgeClient struct {
	baseURL    string
	authSecret string
	httpClient *http.Client
}

// NewBridgeClient resolves the server address from the argument, the
// environment, then the default, in that order.
func NewBridgeClient(baseURL string) *BridgeClient {
	if baseURL == "" {
		baseURL = os.Getenv(EnvBridgeURL)
	}
	if baseURL == "" {
		baseURL = DefaultBridgeURL
	}
	return &BridgeClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// SetAuthSecret enables per-call bearer tokens signed with secret.
func (c *BridgeClient) SetAuthSecret(secret string) {
	c.authSecret = secret
}

func (c *BridgeClient) BaseURL() string {
	return c.baseURL
}

// Call performs one RPC. timeout bounds the whole round trip; zero means
// the context's own deadline applies.
func (c *BridgeClient) Call(ctx context.Context, method string, params map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	body, err := json.Marshal(protocol.Request{ID: method, Method: method, Params: params})
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidInput, "Parameters are not JSON-serializable: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authSecret != "" {
		token, err := c.mintToken(method)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req)
}

// Health probes GET /health with a short timeout of its own and returns
// the raw payload. Anything that stops a payload arriving counts as the
// bridge being unreachable.
func (c *BridgeClient) Health(ctx context.Context) (map[string]any, error) {
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(hctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeBridgeUnavailable, "Bridge call failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeBridgeUnavailable, "Bridge call failed: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, protocol.NewError(protocol.CodeBridgeUnavailable, "Bridge call failed: %v", err)
	}
	return payload, nil
}

func (c *BridgeClient) do(req *http.Request) (map[string]any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeBridgeUnavailable, "Bridge call failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeBridgeUnavailable, "Bridge call failed: %v", err)
	}
	var envelope protocol.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, protocol.NewError(protocol.CodeError, "Invalid response from bridge: %v", err)
	}
	if !envelope.OK {
		code := protocol.CodeError
		message := "Bridge call failed"
		if envelope.Error != nil {
			if envelope.Error.Code != "" {
				code = envelope.Error.Code
			}
			if envelope.Error.Message != "" {
				message = envelope.Error.Message
			}
		}
		return nil, protocol.NewError(code, "%s", message)
	}
	if envelope.ProtocolVersion != protocol.ProtocolVersion {
		return nil, protocol.NewError(protocol.CodeError, "Protocol mismatch: expected %s, got %v", protocol.ProtocolVersion, envelope.ProtocolVersion)
	}
	return envelope.Result, nil
}

// mintToken signs a short-lived token naming the method it covers.
func (c *BridgeClient) mintToken(method string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"method": method,
		"iat":    now.Unix(),
		"exp":    now.Add(time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.authSecret))
}
