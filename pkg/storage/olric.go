package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	olriclib "github.com/olric-data/olric"
)

// Olric stores entries in a DMap on an Olric cluster, so several processes
// can share one session record.
type Olric struct {
	client  olriclib.Client
	dm      olriclib.DMap
	timeout time.Duration
}

// OlricOptions configures NewOlric.
type OlricOptions struct {
	// Servers is a list of Olric server addresses (e.g., ["localhost:3320"])
	// If empty, defaults to ["localhost:3320"]
	Servers []string

	// DMap is the distributed map name. Defaults to "snowball".
	DMap string

	// Timeout is the timeout for client operations
	// If zero, defaults to 10 seconds
	Timeout time.Duration
}

// NewOlric creates a cluster client and opens the DMap.
func NewOlric(opts OlricOptions) (*Olric, error) {
	servers := opts.Servers
	if len(servers) == 0 {
		servers = []string{"localhost:3320"}
	}

	client, err := olriclib.NewClusterClient(servers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Olric cluster client: %w", err)
	}

	name := opts.DMap
	if name == "" {
		name = "snowball"
	}
	dm, err := client.NewDMap(name)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("failed to create DMap: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Olric{client: client, dm: dm, timeout: timeout}, nil
}

func (o *Olric) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	gr, err := o.dm.Get(ctx, key)
	if err != nil {
		if isOlricNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("olric get %q: %w", key, err)
	}
	v, err := gr.String()
	if err != nil {
		return "", false, fmt.Errorf("olric decode %q: %w", key, err)
	}
	return v, true, nil
}

func (o *Olric) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := o.dm.Put(ctx, key, value); err != nil {
		return fmt.Errorf("olric put %q: %w", key, err)
	}
	return nil
}

func (o *Olric) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if _, err := o.dm.Delete(ctx, key); err != nil && !isOlricNotFound(err) {
		return fmt.Errorf("olric delete %q: %w", key, err)
	}
	return nil
}

// Close closes the Olric client connection
func (o *Olric) Close() error {
	if o.client == nil {
		return nil
	}
	return o.client.Close(context.Background())
}

// Check for key not found error - handle both wrapped and direct errors
func isOlricNotFound(err error) bool {
	return errors.Is(err, olriclib.ErrKeyNotFound) || strings.Contains(err.Error(), "key not found")
}
