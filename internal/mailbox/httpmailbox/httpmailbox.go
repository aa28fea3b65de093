// Package httpmailbox is a remote, HTTP-backed implementation of
// mailbox.Client: a doJSON request helper wrapping non-2xx responses in a
// typed APIError{Status, Code, Message}, with bearer-token auth against the
// namespace/identity/room/message endpoints of a mailbox service.
package httpmailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adamavenir/coord/internal/coorderr"
	"github.com/adamavenir/coord/internal/mailbox"
)

// Client talks to a remote deaddrop mailbox service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a remote mailbox client rooted at baseURL.
func New(baseURL string) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// NormalizeBaseURL validates and trims a mailbox service base URL.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", coorderr.New(coorderr.KindMailboxTransport, "mailbox url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindMailboxTransport, "invalid mailbox url", err)
	}
	if parsed.Scheme == "" {
		return "", coorderr.New(coorderr.KindMailboxTransport, "mailbox url must include scheme (https://)")
	}
	return strings.TrimRight(value, "/"), nil
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doJSON performs one request, translating non-2xx responses and transport
// failures into *coorderr.CoordError, per spec's "network and backend
// errors surface as a single recoverable error kind; authorization errors
// as a distinct kind."
func (c *Client) doJSON(ctx context.Context, method, path string, bearer string, reqBody, respBody any) error {
	endpoint, err := c.buildURL(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return coorderr.Wrap(coorderr.KindMailboxTransport, "marshal request body", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "build request", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "mailbox request failed", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "read mailbox response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return coorderr.Newf(coorderr.KindMailboxAuth, "mailbox rejected credentials (%d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var payload errorPayload
		msg := strings.TrimSpace(string(respData))
		if err := json.Unmarshal(respData, &payload); err == nil && payload.Message != "" {
			msg = payload.Message
		}
		return coorderr.Newf(coorderr.KindMailboxTransport, "mailbox error (%d): %s", resp.StatusCode, msg)
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	if err := json.Unmarshal(respData, respBody); err != nil {
		return coorderr.Wrap(coorderr.KindMailboxTransport, "decode mailbox response", err)
	}
	return nil
}

func (c *Client) buildURL(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindMailboxTransport, "parse base url", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", coorderr.Wrap(coorderr.KindMailboxTransport, "parse path", err)
	}
	return base.ResolveReference(ref).String(), nil
}

type namespaceResponse struct {
	ID     string `json:"ns"`
	Secret string `json:"ns_secret"`
}

func (c *Client) CreateNamespace(ctx context.Context, displayName string) (mailbox.Namespace, error) {
	var resp namespaceResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/namespaces", "", map[string]string{"display_name": displayName}, &resp)
	if err != nil {
		return mailbox.Namespace{}, err
	}
	return mailbox.Namespace{ID: resp.ID, Secret: resp.Secret}, nil
}

type identityResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func (c *Client) CreateIdentity(ctx context.Context, ns mailbox.Namespace, displayName string) (mailbox.Identity, error) {
	var resp identityResponse
	reqBody := map[string]string{"ns": ns.ID, "ns_secret": ns.Secret, "display_name": displayName}
	err := c.doJSON(ctx, http.MethodPost, "/v1/identities", "", reqBody, &resp)
	if err != nil {
		return mailbox.Identity{}, err
	}
	return mailbox.Identity{ID: resp.ID, Secret: resp.Secret}, nil
}

type roomResponse struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
}

func (c *Client) CreateRoom(ctx context.Context, ns mailbox.Namespace, creatorSecret, displayName string) (mailbox.Room, error) {
	var resp roomResponse
	reqBody := map[string]string{"ns": ns.ID, "creator_secret": creatorSecret, "display_name": displayName}
	err := c.doJSON(ctx, http.MethodPost, "/v1/rooms", creatorSecret, reqBody, &resp)
	if err != nil {
		return mailbox.Room{}, err
	}
	return mailbox.Room{ID: resp.RoomID, DisplayName: resp.DisplayName}, nil
}

func (c *Client) AddRoomMember(ctx context.Context, ns mailbox.Namespace, roomID, identityID, secret string) error {
	path := fmt.Sprintf("/v1/rooms/%s/members", url.PathEscape(roomID))
	reqBody := map[string]string{"ns": ns.ID, "identity_id": identityID}
	return c.doJSON(ctx, http.MethodPost, path, secret, reqBody, nil)
}

type roomMembersResponse struct {
	Members []mailbox.RoomMember `json:"members"`
}

func (c *Client) ListRoomMembers(ctx context.Context, ns mailbox.Namespace, roomID, secret string) ([]mailbox.RoomMember, error) {
	path := fmt.Sprintf("/v1/rooms/%s/members?ns=%s", url.PathEscape(roomID), url.QueryEscape(ns.ID))
	var resp roomMembersResponse
	if err := c.doJSON(ctx, http.MethodGet, path, secret, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Members, nil
}

type roomsResponse struct {
	Rooms []mailbox.Room `json:"rooms"`
}

func (c *Client) ListRooms(ctx context.Context, ns mailbox.Namespace, secret string) ([]mailbox.Room, error) {
	path := fmt.Sprintf("/v1/rooms?ns=%s", url.QueryEscape(ns.ID))
	var resp roomsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, secret, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (c *Client) SendMessage(ctx context.Context, ns mailbox.Namespace, toID string, body []byte, fromSecret, contentType string) error {
	reqBody := map[string]any{
		"ns":           ns.ID,
		"to":           toID,
		"body":         body,
		"content_type": contentType,
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/messages", fromSecret, reqBody, nil)
}

func (c *Client) SendRoomMessage(ctx context.Context, ns mailbox.Namespace, roomID string, body []byte, secret, contentType string) error {
	path := fmt.Sprintf("/v1/rooms/%s/messages", url.PathEscape(roomID))
	reqBody := map[string]any{
		"ns":           ns.ID,
		"body":         body,
		"content_type": contentType,
	}
	return c.doJSON(ctx, http.MethodPost, path, secret, reqBody, nil)
}

// envelopeWire accepts either naming a mailbox service may use for the
// sender (`sender_id`/`from`) and the timestamp (`created_at`/`timestamp`).
type envelopeWire struct {
	SenderID     string `json:"sender_id"`
	From         string `json:"from"`
	Body         []byte `json:"body"`
	ContentType  string `json:"content_type"`
	Timestamp    string `json:"created_at"`
	TimestampAlt string `json:"timestamp"`
}

type inboxResponse struct {
	Messages []envelopeWire `json:"messages"`
}

func (c *Client) GetInbox(ctx context.Context, ns mailbox.Namespace, identityID, secret, since string) ([]mailbox.RawEnvelope, error) {
	path := fmt.Sprintf("/v1/identities/%s/inbox?ns=%s", url.PathEscape(identityID), url.QueryEscape(ns.ID))
	if since != "" {
		path += "&since=" + url.QueryEscape(since)
	}
	var resp inboxResponse
	if err := c.doJSON(ctx, http.MethodGet, path, secret, nil, &resp); err != nil {
		return nil, err
	}
	return toRawEnvelopes(resp.Messages), nil
}

func (c *Client) GetRoomMessages(ctx context.Context, ns mailbox.Namespace, roomID, secret, since string) ([]mailbox.RawEnvelope, error) {
	path := fmt.Sprintf("/v1/rooms/%s/messages?ns=%s", url.PathEscape(roomID), url.QueryEscape(ns.ID))
	if since != "" {
		path += "&since=" + url.QueryEscape(since)
	}
	var resp inboxResponse
	if err := c.doJSON(ctx, http.MethodGet, path, secret, nil, &resp); err != nil {
		return nil, err
	}
	return toRawEnvelopes(resp.Messages), nil
}

func toRawEnvelopes(wire []envelopeWire) []mailbox.RawEnvelope {
	out := make([]mailbox.RawEnvelope, 0, len(wire))
	for _, w := range wire {
		if w.SenderID == "" {
			w.SenderID = w.From
		}
		if w.Timestamp == "" {
			w.Timestamp = w.TimestampAlt
		}
		out = append(out, mailbox.RawEnvelope{
			SenderID:    w.SenderID,
			Body:        w.Body,
			ContentType: w.ContentType,
			Timestamp:   w.Timestamp,
		})
	}
	return out
}
