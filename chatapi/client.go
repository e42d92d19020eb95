// Package chatapi is a thin client over the Telegram-shaped Bot API used
// by the bot driver and its modules: long-poll GetUpdates, and
// SendMessage for replies. Transient network and 5xx failures are
// retried with backoff; a non-ok response from the platform itself
// (an invalid chat ID, a malformed request) is returned as *APIError
// without retrying, since retrying it would never succeed.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bytedance/gopkg/lang/mcache"
)

const defaultBaseURL = "https://api.telegram.org"

// Client calls a Telegram-shaped Bot API over HTTPS.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	retryAttempts uint
	retryDelay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the *http.Client used for requests. The
// default is http.DefaultClient's timeout-free transport wrapped with a
// 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API origin, for testing against a local
// server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetry overrides the retry attempt count and base delay applied to
// transport-level and 5xx failures.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// New constructs a Client authenticated with token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:         token,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		retryAttempts: 5,
		retryDelay:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// defaultRespBufSize is the scratch buffer size used when a response
// carries no Content-Length, e.g. a chunked reply.
const defaultRespBufSize = 4096

// readResponseBody reads resp.Body through an mcache-pooled scratch
// buffer rather than growing a fresh slice per call, since every chatapi
// call reads a whole response into memory before decoding it. The
// pooled buffer is always freed before returning; the bytes handed back
// are a fresh copy, since the pool can reuse the backing array the
// moment it's freed.
func readResponseBody(resp *http.Response) ([]byte, error) {
	size := defaultRespBufSize
	if resp.ContentLength > 0 {
		size = int(resp.ContentLength)
	}

	buf := mcache.Malloc(size)
	defer mcache.Free(buf)

	n, err := io.ReadFull(resp.Body, buf)
	switch err {
	case nil:
		// buf was filled exactly; there may still be more (a low
		// Content-Length estimate, or none at all) — drain the rest.
		rest, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		out := make([]byte, n+len(rest))
		copy(out, buf[:n])
		copy(out[n:], rest)
		return out, nil
	case io.EOF, io.ErrUnexpectedEOF:
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	default:
		return nil, err
	}
}

// call issues method with the given JSON body and decodes the envelope's
// result into out. Transport errors and 5xx responses are retried;
// anything else returns immediately.
func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chatapi: encode %s request: %w", method, err)
	}

	var env apiEnvelope
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			raw, err := readResponseBody(resp)
			if err != nil {
				return err
			}

			if resp.StatusCode >= 500 {
				return fmt.Errorf("chatapi: %s: server error %d", method, resp.StatusCode)
			}

			env = apiEnvelope{}
			if err := json.Unmarshal(raw, &env); err != nil {
				return retry.Unrecoverable(fmt.Errorf("chatapi: decode %s response: %w", method, err))
			}
			if !env.OK {
				return retry.Unrecoverable(&APIError{Code: env.ErrorCode, Description: env.Description})
			}
			return nil
		},
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return err
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("chatapi: decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetUpdatesRequest parameters the long-poll.
//
// See: https://core.telegram.org/bots/api#getupdates
type GetUpdatesRequest struct {
	Offset         int64 `json:"offset,omitempty"`
	Limit          int   `json:"limit,omitempty"`
	TimeoutSeconds int   `json:"timeout,omitempty"`
}

// GetUpdates long-polls for new updates starting at req.Offset.
//
// See: https://core.telegram.org/bots/api#getupdates
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessageRequest parameters a reply.
//
// See: https://core.telegram.org/bots/api#sendmessage
type SendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool   `json:"disable_notification,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

// SendMessage sends req.Text into req.ChatID, returning the sent
// message.
//
// See: https://core.telegram.org/bots/api#sendmessage
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.ChatID == 0 {
		return nil, ErrInvalidArgument
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
