package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/lineproto-gateway/internal/telemetry"
	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// HTTPClient is the production Client: a thin JSON-RPC wrapper over the
// backend's loopback HTTP endpoint, in the same shape as this
// repository's other local-process RPC clients — a shared *http.Client
// with a cookie jar and no client-wide timeout (each call is bounded by
// its context), POSTing a JSON envelope and decoding a
// {"result","error"} reply.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client

	mu       sync.Mutex
	handlers map[NotificationKind]func(data []byte)
}

// NewHTTPClient builds a client bound to a backend that has already
// completed its handshake (host/port and bearer token known).
func NewHTTPClient(port, token string) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		baseURL: fmt.Sprintf("http://localhost:%s/rpc", port),
		token:   token,
		http: &http.Client{
			Jar:     jar,
			Timeout: 0, // per-call timeout is governed by the caller's context
		},
		handlers: make(map[NotificationKind]func(data []byte)),
	}
}

func (c *HTTPClient) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	ctx, span := telemetry.StartSpan(ctx, "backend.rpc", attribute.String("rpc.method", method))
	defer span.End()

	err := c.doCall(ctx, method, result, params...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *HTTPClient) doCall(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	req := wireformat.Request{
		Method: method,
		Params: params,
		Token:  c.token,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	httpReq.Header.Set("Content-type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	defer resp.Body.Close()

	var envelope wireformat.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	if envelope.Error != "" {
		return &Error{Op: method, Reason: envelope.Error}
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(envelope.Result)
	if err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return &Error{Op: method, Reason: err.Error()}
	}
	return nil
}

func (c *HTTPClient) Config(ctx context.Context, host, port, dbDir, schemaDir, attachmentDir string, useTLS bool) error {
	return c.call(ctx, "Config", nil, map[string]interface{}{
		"FlowServHost":          host,
		"FlowServPort":          port,
		"FlowLocalDatabaseDir":  dbDir,
		"FlowLocalSchemaDir":    schemaDir,
		"FlowAttachmentDir":     attachmentDir,
		"FlowUseTLS":            useTLS,
	})
}

func (c *HTTPClient) StartUp(ctx context.Context, username, serverURI string) error {
	var out struct{}
	if err := c.call(ctx, "StartUp", &out, map[string]interface{}{
		"EmailAddress": username,
		"ServerURI":    serverURI,
	}); err != nil {
		return &InitError{Op: "StartUp", Err: err}
	}
	return nil
}

func (c *HTTPClient) EnumerateLocalAccounts(ctx context.Context) ([]wireformat.AccountIdentifier, error) {
	var out []wireformat.AccountIdentifier
	if err := c.call(ctx, "EnumerateLocalAccounts", &out); err != nil {
		return nil, &InitError{Op: "EnumerateLocalAccounts", Err: err}
	}
	return out, nil
}

func (c *HTTPClient) EnumerateOrgs(ctx context.Context) ([]wireformat.Org, error) {
	var out []wireformat.Org
	err := c.call(ctx, "EnumerateOrgs", &out)
	return out, err
}

func (c *HTTPClient) EnumerateChannels(ctx context.Context, orgID string) ([]wireformat.Channel, error) {
	var out []wireformat.Channel
	err := c.call(ctx, "EnumerateChannels", &out, map[string]interface{}{"OrgID": orgID})
	return out, err
}

func (c *HTTPClient) EnumerateChannelMembers(ctx context.Context, channelID string) ([]wireformat.Member, error) {
	var out []wireformat.Member
	err := c.call(ctx, "EnumerateChannelMembers", &out, map[string]interface{}{"ChannelID": channelID})
	return out, err
}

func (c *HTTPClient) EnumerateMessages(ctx context.Context, orgID, channelID string, filters MessageFilters) ([]wireformat.Message, error) {
	var out []wireformat.Message
	params := map[string]interface{}{"OrgID": orgID, "ChannelID": channelID}
	if filters.Limit > 0 {
		params["Limit"] = filters.Limit
	}
	err := c.call(ctx, "EnumerateMessages", &out, params)
	return out, err
}

func (c *HTTPClient) GetChannel(ctx context.Context, channelID string) (wireformat.Channel, error) {
	var out wireformat.Channel
	err := c.call(ctx, "GetChannel", &out, map[string]interface{}{"ChannelID": channelID})
	return out, err
}

func (c *HTTPClient) GetPeer(ctx context.Context, username string) (wireformat.Peer, error) {
	var out wireformat.Peer
	err := c.call(ctx, "GetPeer", &out, map[string]interface{}{"Username": username})
	return out, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, orgID, channelID, text string, otherData map[string]interface{}) (string, error) {
	var out struct {
		MessageID string `json:"MessageID"`
	}
	params := map[string]interface{}{
		"OrgID":     orgID,
		"ChannelID": channelID,
		"Text":      text,
	}
	if otherData != nil {
		params["OtherData"] = otherData
	}
	if err := c.call(ctx, "SendMessage", &out, params); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *HTTPClient) NewDirectConversation(ctx context.Context, orgID, memberAccountID string) (string, error) {
	var out struct {
		ChannelID string `json:"ChannelID"`
	}
	if err := c.call(ctx, "NewDirectConversation", &out, map[string]interface{}{
		"OrgID":           orgID,
		"MemberAccountID": memberAccountID,
	}); err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

func (c *HTTPClient) RegisterCallback(kind NotificationKind, handler func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = handler
}

func (c *HTTPClient) UnregisterCallback(kind NotificationKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, kind)
}

// ProcessOneNotification asks the backend (via the blocking
// WaitForNotification RPC) for the oldest unseen notification, bounded
// by timeout. A timeout is not an error: it means nothing arrived.
func (c *HTTPClient) ProcessOneNotification(ctx context.Context, timeout time.Duration) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var envelope wireformat.NotificationEnvelope
	err := c.call(callCtx, "WaitForNotification", &envelope)
	if err != nil {
		if callCtx.Err() != nil {
			// Deadline exceeded: no notification was waiting, not a
			// failure of the call itself.
			return false, nil
		}
		return false, err
	}
	if envelope.Type == "" {
		return false, nil
	}

	c.mu.Lock()
	handler := c.handlers[NotificationKind(envelope.Type)]
	c.mu.Unlock()
	if handler == nil {
		return true, nil
	}
	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		return true, &Error{Op: "WaitForNotification", Reason: err.Error()}
	}
	handler(raw)
	return true, nil
}

func (c *HTTPClient) Terminate() error {
	return c.call(context.Background(), "Terminate", nil)
}
