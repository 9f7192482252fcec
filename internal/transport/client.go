package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
)

// Client talks to a cipherstore server, signing mutations as Identity
type Client struct {
	Base     string
	HTTP     *http.Client
	Identity *crypto.Identity
}

// NewClient creates a client for the server at base
func NewClient(base string, id *crypto.Identity) *Client {
	return &Client{Base: base, HTTP: http.DefaultClient, Identity: id}
}

// StoreEncryptedData writes caller's record. The server derives the caller
// from the signature; a caller other than the client's identity is sent as
// an explicit target and refused.
func (c *Client) StoreEncryptedData(ctx context.Context, caller account.Address, b core.Bundle) error {
	req := storeRequest{Bundle: b}
	if caller != c.Identity.Address() {
		req.Account = &caller
	}
	return c.post(ctx, "/v1/records", req)
}

// UpdateEncryptionKey rotates caller's key reference
func (c *Client) UpdateEncryptionKey(ctx context.Context, caller, newKey account.Address) error {
	req := keyRequest{EncryptionKey: newKey}
	if caller != c.Identity.Address() {
		req.Account = &caller
	}
	return c.post(ctx, "/v1/records/key", req)
}

// GetEncryptedUserData reads any account's record
func (c *Client) GetEncryptedUserData(ctx context.Context, addr account.Address) (core.EncryptedRecord, error) {
	var rec core.EncryptedRecord
	err := c.get(ctx, "/v1/records/"+url.PathEscape(addr.String()), &rec)
	return rec, err
}

// Events reads the server's event log after the given sequence number
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]core.Event, error) {
	return c.WaitEvents(ctx, after, limit, 0)
}

// WaitEvents is Events, except that the server holds the request for up to
// wait until an event past after is committed
func (c *Client) WaitEvents(ctx context.Context, after uint64, limit int, wait time.Duration) ([]core.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if wait > 0 {
		q.Set("wait", wait.String())
	}

	var resp eventsResponse
	if err := c.get(ctx, "/v1/events?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) post(ctx context.Context, path string, in any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	Sign(req, c.Identity, body)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return responseError("post", path, resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return responseError("get", path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError maps a failed response back onto the core error taxonomy.
// Only JSON error bodies written by a cipherstore server are mapped; a
// plain 404 from a wrong base URL stays a generic error.
func responseError(op, path string, resp *http.Response) error {
	var body errorResponse
	fromServer := json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != ""
	if !fromServer {
		return fmt.Errorf("%s %s%s: %s", op, resp.Request.URL.Host, resp.Request.URL.Path, resp.Status)
	}
	msg := body.Error

	var kind error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind = core.ErrMalformedInput
	case resp.StatusCode == http.StatusForbidden:
		kind = core.ErrAuthorizationViolation
	case resp.StatusCode == http.StatusNotFound && path == "/v1/records/key":
		kind = core.ErrNoRecord
	case resp.StatusCode == http.StatusUnauthorized:
		kind = ErrUnauthenticated
	default:
		return fmt.Errorf("%s %s: %s", op, path, msg)
	}
	return fmt.Errorf("%s %s: %w (%s)", op, path, kind, msg)
}

var _ core.RecordService = (*Client)(nil)
