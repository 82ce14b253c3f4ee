// Package engine is the HTTP client for the platform engine's internal API.
// The engine owns the search index, the knowledge graph and the file store;
// the background subsystem only consumes it, through the small set of calls
// below.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/loomhq/loom/server/contexts/ctxerr"
	"github.com/loomhq/loom/server/loom"
	"github.com/loomhq/loom/server/search"
)

const (
	defaultTimeout = 30 * time.Second

	maxRetries   = 3
	retryBackoff = 300 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	// BaseURL is the engine's internal API root, e.g. http://engine:4000.
	BaseURL string
	// Token authenticates this process to the internal API.
	Token string
	// Timeout bounds each request. Zero means defaultTimeout.
	Timeout time.Duration
}

// Client calls the engine over HTTP. It implements the collaborator
// interfaces of the retention executor, the task runner and the search
// adapter.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string
}

var _ search.Client = (*Client)(nil)

// NewClient validates the options and returns a ready Client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse engine base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid engine base url %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		token:   opts.Token,
	}, nil
}

type paginateRequest struct {
	UserID           string            `json:"user_id,omitempty"`
	Index            string            `json:"index,omitempty"`
	Path             string            `json:"path,omitempty"`
	Filters          *loom.FilterGroup `json:"filters,omitempty"`
	First            int               `json:"first"`
	After            string            `json:"after,omitempty"`
	Before           *time.Time        `json:"before,omitempty"`
	NotModifiedSince *time.Time        `json:"not_modified_since,omitempty"`
}

// Paginate fetches one page of elements matching the request.
func (c *Client) Paginate(ctx context.Context, req search.Request) (*loom.ElementConnection, error) {
	body := paginateRequest{
		Index:            req.Target.Index,
		Path:             req.Target.Path,
		Filters:          req.Filters,
		First:            req.First,
		After:            req.After,
		Before:           req.Before,
		NotModifiedSince: req.NotModifiedSince,
	}
	if req.User != nil {
		body.UserID = req.User.ID
	}

	var conn loom.ElementConnection
	if err := c.do(ctx, http.MethodPost, "/internal/search/paginate", body, &conn, true); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "engine paginate")
	}
	return &conn, nil
}

type deleteElementRequest struct {
	ActorID     string `json:"actor_id,omitempty"`
	InternalID  string `json:"internal_id"`
	EntityType  string `json:"entity_type"`
	ForceDelete bool   `json:"force_delete"`
}

// DeleteByInternalID force-deletes a graph entity, cascading per the engine's
// rules.
func (c *Client) DeleteByInternalID(ctx context.Context, actor *loom.User, internalID, entityType string, forceDelete bool) error {
	body := deleteElementRequest{
		InternalID:  internalID,
		EntityType:  entityType,
		ForceDelete: forceDelete,
	}
	if actor != nil {
		body.ActorID = actor.ID
	}
	if err := c.do(ctx, http.MethodPost, "/internal/elements/delete", body, nil, true); err != nil {
		return ctxerr.Wrap(ctx, err, "engine delete element")
	}
	return nil
}

type deleteFileRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	ID      string `json:"id"`
}

// DeleteFile removes a stored file or pending workbench by id.
func (c *Client) DeleteFile(ctx context.Context, actor *loom.User, id string) error {
	body := deleteFileRequest{ID: id}
	if actor != nil {
		body.ActorID = actor.ID
	}
	if err := c.do(ctx, http.MethodPost, "/internal/files/delete", body, nil, true); err != nil {
		return ctxerr.Wrap(ctx, err, "engine delete file")
	}
	return nil
}

type executeActionRequest struct {
	ActorID   string                 `json:"actor_id,omitempty"`
	Type      loom.ActionType        `json:"type"`
	Context   map[string]interface{} `json:"context,omitempty"`
	ElementID string                 `json:"element_id"`
}

// ExecuteAction applies one task action to one element. Actions are not
// idempotent, so a timed-out request is never re-sent; the element is
// reported failed and the runner records the error instead.
func (c *Client) ExecuteAction(ctx context.Context, actor *loom.User, action loom.TaskAction, elementID string) error {
	body := executeActionRequest{
		Type:      action.Type,
		Context:   action.Context,
		ElementID: elementID,
	}
	if actor != nil {
		body.ActorID = actor.ID
	}
	if err := c.do(ctx, http.MethodPost, "/internal/actions/execute", body, nil, false); err != nil {
		return ctxerr.Wrapf(ctx, err, "engine execute action %s", action.Type)
	}
	return nil
}

// statusError is an engine response with a non-2xx status.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.status, e.body)
}

// do sends one request, retrying 5xx responses with a constant backoff.
// Timed-out requests may have been applied server side, so they are retried
// only when the call is idempotent.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, idempotent bool) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			var netErr net.Error
			if idempotent && errors.As(err, &netErr) && netErr.Timeout() {
				// retryable error
				return err
			}
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			// 500+ status, can be worth retrying
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &statusError{status: resp.StatusCode, body: string(b)}
		}
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(loom.NewNotFoundError("Element", ""))
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(&statusError{status: resp.StatusCode, body: string(b)})
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	boff := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryBackoff), uint64(maxRetries)), ctx)
	return backoff.Retry(op, boff)
}
