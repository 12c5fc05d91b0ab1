package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

const (
	pathBoot                = "/boot"
	pathExchangeToken       = "/exchange-token"
	pathTenantUserExchange  = "/tenant-users/exchange-token"
	pathTenantUserSignUp    = "/tenant-users/signup"
	pathTenantUserEnsure    = "/tenant-users/ensure-table"
	anonExchangeTimeout     = 15 * time.Second
	userExchangeTimeout     = 15 * time.Second
	ensureStorageTimeout    = 30 * time.Second
	defaultTransportTimeout = 30 * time.Second
)

// ExchangedToken is the result of a successful exchange call.
type ExchangedToken struct {
	AccessToken string
	ExpiresAt   *time.Time
}

// SignUpRequest is the payload for the gateway's primary signup endpoint.
type SignUpRequest struct {
	Email    string
	Password string
	Profile  map[string]any
}

// Gateway issues the exchange service's network operations. Implementations
// classify failures as transport or application so callers can branch:
// transport failures demote the tier, some application failures surface.
type Gateway interface {
	ExchangeAnonToken(ctx context.Context) (*ExchangedToken, error)
	ExchangeUserToken(ctx context.Context, bearer string) (*ExchangedToken, error)
	ExchangeTenantUserToken(ctx context.Context, bearer string) (*ExchangedToken, error)
	SignUp(ctx context.Context, req SignUpRequest) error
	EnsureStorage(ctx context.Context) error
}

// GatewayError captures a classified failure from the exchange service.
// Status == 0 means no response arrived: the server was unreachable, the
// call timed out, or the request never left the client. Otherwise the
// server responded with a non-2xx status and a body.
type GatewayError struct {
	Op          string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "gateway error"
	}

	if e.Description != "" {
		return fmt.Sprintf("gateway %s failed: %s", e.Op, e.Description)
	}
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s failed: status %d", e.Op, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s failed", e.Op)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient reports whether the failure is transport level: no response
// arrived, so the server cannot have rejected the request.
func (e *GatewayError) Transient() bool {
	return e != nil && e.Status == 0
}

// HTTPGateway implements Gateway over JSON POSTs to the remote control
// endpoint.
type HTTPGateway struct {
	config     Config
	httpClient *http.Client
	logger     Logger
}

// NewHTTPGateway creates a gateway bound to the given config.
func NewHTTPGateway(cfg Config, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		config:     cfg,
		httpClient: &http.Client{Timeout: defaultTransportTimeout},
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// GatewayOption customizes HTTPGateway construction.
type GatewayOption func(*HTTPGateway)

// WithGatewayHTTPClient overrides the transport client.
func WithGatewayHTTPClient(client *http.Client) GatewayOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithGatewayLogger overrides the logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *HTTPGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// ExchangeAnonToken trades the configured tenant context for a scoped
// anonymous token.
func (g *HTTPGateway) ExchangeAnonToken(ctx context.Context) (*ExchangedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, anonExchangeTimeout)
	defer cancel()

	return g.exchange(ctx, "anon_exchange", pathBoot, "")
}

// ExchangeUserToken trades a user bearer token for a user scoped token.
func (g *HTTPGateway) ExchangeUserToken(ctx context.Context, bearer string) (*ExchangedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, userExchangeTimeout)
	defer cancel()

	return g.exchange(ctx, "user_exchange", pathExchangeToken, bearer)
}

// ExchangeTenantUserToken trades a user bearer token for a tenant-user
// scoped token.
func (g *HTTPGateway) ExchangeTenantUserToken(ctx context.Context, bearer string) (*ExchangedToken, error) {
	ctx, cancel := context.WithTimeout(ctx, userExchangeTimeout)
	defer cancel()

	return g.exchange(ctx, "tenant_user_exchange", pathTenantUserExchange, bearer)
}

// SignUp calls the dedicated signup endpoint. The transport default bounds
// the call; failures are classified, never thrown raw.
func (g *HTTPGateway) SignUp(ctx context.Context, req SignUpRequest) error {
	body := g.contextBody()
	body["email"] = req.Email
	body["password"] = req.Password
	for k, v := range req.Profile {
		if k == "email" || k == "password" {
			continue
		}
		body[k] = v
	}

	_, err := g.post(ctx, "signup", pathTenantUserSignUp, body, "")
	return err
}

// EnsureStorage is the idempotent "supporting storage exists" provisioning
// call. Fire-and-forget at boot; callers log failures and move on.
func (g *HTTPGateway) EnsureStorage(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ensureStorageTimeout)
	defer cancel()

	_, err := g.post(ctx, "ensure_storage", pathTenantUserEnsure, g.contextBody(), "")
	return err
}

func (g *HTTPGateway) exchange(ctx context.Context, op, path, bearer string) (*ExchangedToken, error) {
	raw, err := g.post(ctx, op, path, g.contextBody(), bearer)
	if err != nil {
		return nil, err
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &GatewayError{Op: op, Status: http.StatusOK, Code: "invalid_response", Description: "failed to decode exchange response", Err: err}
	}

	if payload.AccessToken == "" {
		return nil, ErrMalformedResponse
	}

	var expiresAt *time.Time
	if payload.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
		expiresAt = &t
	} else if exp := unverifiedExpiry(payload.AccessToken); exp != nil {
		expiresAt = exp
	}

	return &ExchangedToken{AccessToken: payload.AccessToken, ExpiresAt: expiresAt}, nil
}

// contextBody builds the tenant identification body: only the signed
// context when one is configured, otherwise the raw tenant/project pair.
// Never both.
func (g *HTTPGateway) contextBody() map[string]any {
	if g.config.HasSignedContext() {
		return map[string]any{"signedContext": g.config.SignedContext}
	}
	return map[string]any{
		"tenantId":  g.config.TenantID,
		"projectId": g.config.ProjectID,
	}
}

func (g *HTTPGateway) post(ctx context.Context, op, path string, body map[string]any, bearer string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &GatewayError{Op: op, Code: "encode_request", Err: err, Description: "failed to encode request body"}
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &GatewayError{Op: op, Code: "build_request", Err: err, Description: "failed to build request"}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	if g.config.Debug {
		g.logger.Debug("gateway %s POST %s\n%s", op, url, print.MaybePrettyJSON(body))
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, description := parseGatewayError(raw)
		return nil, &GatewayError{Op: op, Status: resp.StatusCode, Code: code, Description: description}
	}

	return raw, nil
}

// parseGatewayError extracts the error code/description from a non-2xx
// body. Bodies come in a few shapes: {"error": "..."}, {"error": {"code":
// ..., "message": ...}}, or {"message": "..."}.
func parseGatewayError(raw []byte) (string, string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", strings.TrimSpace(string(raw))
	}

	if len(envelope.Error) > 0 {
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil {
			return "", msg
		}

		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil {
			return nested.Code, nested.Message
		}
	}

	if envelope.Message != "" {
		return "", envelope.Message
	}

	return "", strings.TrimSpace(string(raw))
}
