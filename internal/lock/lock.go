// Package lock provides distributed mutual exclusion over Redis.
//
// Two uses: the scheduler leadership lock (one well-known key, renewed
// every tick) and per-device collection locks (one key per device, held
// for the duration of a single collection attempt).
package lock

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection with a stable holder identity
type Client struct {
	rdb    *redis.Client
	holder string
}

// NewClient creates a lock client whose holder id is the current PID
func NewClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:    rdb,
		holder: strconv.Itoa(os.Getpid()),
	}
}

// NewClientWithHolder creates a lock client with an explicit holder id
func NewClientWithHolder(rdb *redis.Client, holder string) *Client {
	return &Client{rdb: rdb, holder: holder}
}

// Holder returns this client's holder identity
func (c *Client) Holder() string {
	return c.holder
}

// DeviceKey builds the per-device collection lock key
func DeviceKey(deviceID uint) string {
	return fmt.Sprintf("lock:device:%d", deviceID)
}

// Acquire attempts a non-blocking SET NX EX. Returns true when this
// client now holds the lock.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, c.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w", key, err)
	}
	return ok, nil
}

// Renew extends the TTL if and only if this client still holds the lock
func (c *Client) Renew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	current, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock renew %s: %w", key, err)
	}
	if current != c.holder {
		return false, nil
	}

	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("lock renew %s: %w", key, err)
	}
	return true, nil
}

// Release deletes the lock if this client still holds it
func (c *Client) Release(ctx context.Context, key string) error {
	current, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock release %s: %w", key, err)
	}
	if current != c.holder {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// CurrentHolder returns the holder id recorded on the lock, or empty
// string if the lock is not held.
func (c *Client) CurrentHolder(ctx context.Context, key string) (string, error) {
	holder, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock inspect %s: %w", key, err)
	}
	return holder, nil
}

// ForceClear unconditionally deletes the lock, returning the previous
// holder. Administrative recovery only.
func (c *Client) ForceClear(ctx context.Context, key string) (string, error) {
	holder, err := c.CurrentHolder(ctx, key)
	if err != nil {
		return "", err
	}
	if holder == "" {
		return "", nil
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return "", fmt.Errorf("lock clear %s: %w", key, err)
	}
	return holder, nil
}

// ClearStale deletes the lock when its recorded holder process is no
// longer alive on this host. Returns true when a stale lock was cleared.
// Prevents permanent lockout after a hard crash.
func (c *Client) ClearStale(ctx context.Context, key string) (bool, error) {
	holder, err := c.CurrentHolder(ctx, key)
	if err != nil || holder == "" {
		return false, err
	}

	if HolderAlive(holder) {
		return false, nil
	}

	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return false, fmt.Errorf("lock clear stale %s: %w", key, err)
	}
	return true, nil
}

// HolderAlive reports whether the holder, interpreted as a PID on this
// host, still refers to a running process. Non-numeric holders cannot be
// verified and are treated as alive.
func HolderAlive(holder string) bool {
	pid, err := strconv.Atoi(holder)
	if err != nil {
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 only checks process existence
	return proc.Signal(syscall.Signal(0)) == nil
}
