// request_executor.go
// -------------------
// The dispatch pipeline: resolve a token, build the HTTP request, send it
// through the rate limiter (Helix calls only), retry transient failures with
// exponential backoff, recover from a 401 with at most one refresh, classify
// the result, and publish an observability event on success.
package twitchbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SendRequest dispatches one API call and returns the raw response on
// success (2xx). Non-2xx responses surface as *APIError, except a 401 that
// survives the single refresh-and-retry attempt, which surfaces as
// *InvalidTokenError.
func (c *Client) SendRequest(ctx context.Context, req APIRequest) (*APIResponse, error) {
	rt, err := c.resolveToken(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch(ctx, req, rt)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Unauthenticated {
		if rt.refreshed {
			return nil, &InvalidTokenError{Err: newAPIError(req, resp)}
		}
		fresh, refreshErr := c.refreshAfter401(ctx, rt)
		if refreshErr != nil {
			return nil, &InvalidTokenError{Err: refreshErr}
		}
		c.logger.Debug("retrying after token refresh", "url", req.URL, "user", rt.userID())
		rt.token = fresh
		rt.refreshed = true
		resp, err = c.dispatch(ctx, req, rt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, &InvalidTokenError{Err: newAPIError(req, resp)}
		}
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(req, resp)
	}

	c.emitRequestEvent(RequestEvent{Request: req, StatusCode: resp.StatusCode, UserID: rt.userID()})
	return resp, nil
}

// dispatch runs the retry loop around the rate-limited send. Transport
// errors and 5xx responses are retried up to the attempt budget; everything
// else is returned to the caller for classification.
func (c *Client) dispatch(ctx context.Context, req APIRequest, rt *resolvedToken) (*APIResponse, error) {
	send := func(ctx context.Context) (*APIResponse, error) {
		return c.doHTTP(ctx, req, rt)
	}
	op := send
	if req.callType() == CallTypeHelix {
		op = func(ctx context.Context) (*APIResponse, error) {
			return c.limiter.Do(ctx, rt.userID(), send)
		}
	}

	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		resp, err := op(ctx)
		if err == nil && resp.StatusCode < 500 {
			if attempt > 1 {
				c.logger.Debug("request succeeded after retry", "url", req.URL, "attempt", attempt)
			}
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = newAPIError(req, resp)
		}
		if attempt >= c.maxAttempts {
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, lastErr)
		}
		c.logger.Debug("transient request failure, backing off",
			"url", req.URL, "attempt", attempt, "backoff", backoff, "error", lastErr)
		select {
		case <-c.clock.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

// doHTTP performs a single HTTP exchange for the given descriptor and token.
func (c *Client) doHTTP(ctx context.Context, req APIRequest, rt *resolvedToken) (*APIResponse, error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), target, bodyReader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Client-Id", c.authProvider.ClientID())
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if rt.token != nil {
		scheme := c.authProvider.AuthorizationType()
		if scheme == "" {
			scheme = "Bearer"
		}
		httpReq.Header.Set("Authorization", scheme+" "+rt.token.Value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &APIResponse{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) buildURL(req APIRequest) (string, error) {
	var base string
	switch req.callType() {
	case CallTypeHelix:
		base = c.baseURL
	case CallTypeAuth:
		base = c.authBaseURL
	case CallTypeCustom:
		base = ""
	default:
		return "", &ConfigError{Reason: fmt.Sprintf("unknown call type %q", req.Type)}
	}

	target := req.URL
	if base != "" {
		target = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(req.URL, "/")
	}
	if len(req.Query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parsing request URL %q: %w", target, err)
		}
		q := u.Query()
		for key, values := range req.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}
	return target, nil
}
