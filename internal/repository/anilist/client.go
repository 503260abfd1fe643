package anilist

import (
	"context"
	"errors"
	"fmt"
	"github.com/machinebox/graphql"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is the generic AniList client for making queries to the AniList graphql API.  Calls are spaced at
// least minInterval apart to stay inside the public rate limit.
type Client struct {
	client      *graphql.Client
	minInterval time.Duration

	mu   sync.Mutex
	next time.Time
}

func NewClient(endpoint string, minInterval time.Duration, httpClient *http.Client) *Client {
	var opts []graphql.ClientOption
	if httpClient != nil {
		opts = append(opts, graphql.WithHTTPClient(httpClient))
	}
	return &Client{
		client:      graphql.NewClient(endpoint, opts...),
		minInterval: minInterval,
	}
}

func (c *Client) Query(ctx context.Context, query string, variables map[string]interface{}, result interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req := graphql.NewRequest(query)
	for key, value := range variables {
		req.Var(key, value)
	}

	if err := c.client.Run(ctx, req, result); err != nil {
		if isNetworkError(err) {
			return NetworkError{Err: err}
		}
		return err
	}
	return nil
}

// wait reserves the next free call slot and sleeps until it arrives
func (c *Client) wait(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}

	c.mu.Lock()
	now := time.Now()
	slot := c.next
	if slot.Before(now) {
		slot = now
	}
	c.next = slot.Add(c.minInterval)
	c.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

func isNetworkError(err error) bool {
	var netErr *url.Error
	return errors.As(err, &netErr) && (netErr.Timeout() ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "i/o timeout"))
}

// isNotFound recognises the error AniList returns for an unknown id
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Not Found")
}
