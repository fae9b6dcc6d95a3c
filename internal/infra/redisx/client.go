// Package redisx wraps a go-redis client with tenant-friendly key
// namespacing and hosts the Redis-backed collaborators: the equipment status
// mirror and the vessel timeline stream.
//
// All keys are namespaced as {namespace}:{parts...}, e.g.
// cellar:t1:lotseq:2026 or cellar:t1:vessel:<id>.
package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "cellar"

// Client provides namespaced Redis operations. It is safe for concurrent use.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a client over the supplied options.
func NewClient(opts *redis.Options, namespace string) (*Client, error) {
	if opts == nil {
		return nil, errors.New("redis options required")
	}
	return Wrap(redis.NewClient(opts), namespace), nil
}

// Wrap namespaces an existing go-redis client.
func Wrap(rdb *redis.Client, namespace string) *Client {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Client{rdb: rdb, namespace: namespace}
}

// Key joins parts under the client namespace.
func (c *Client) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Redis exposes the underlying client.
func (c *Client) Redis() *redis.Client { return c.rdb }

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close closes the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }
