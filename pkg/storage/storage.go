// Package storage provides the durable key/value store used to persist
// sessions and cached signing sessions between process restarts.
package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/logging"
)

// Storage is a synchronous string key/value store. Get reports a missing key
// with ok=false and a nil error.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// GetJSON decodes the value at key into out. A nil store, a missing key, or a
// corrupt value all report ok=false; corrupt values are also returned as err.
func GetJSON(s Storage, key string, out interface{}) (bool, error) {
	if s == nil {
		return false, nil
	}
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key. A nil store is a no-op.
func SetJSON(s Storage, key string, v interface{}) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.Set(key, string(data))
}

// Remove deletes key from s, tolerating a nil store.
func Remove(s Storage, key string) error {
	if s == nil {
		return nil
	}
	return s.Remove(key)
}

// Close releases backend resources when the store holds any.
func Close(s Storage) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Logged wraps a store so that backend failures are logged once and then
// treated as a miss. Callers that only need best-effort persistence use it.
type Logged struct {
	Storage
	logger *logging.ColoredLogger
}

// NewLogged wraps s. A nil s yields nil so absence stays detectable.
func NewLogged(s Storage, logger *zap.Logger) Storage {
	if s == nil {
		return nil
	}
	return &Logged{Storage: s, logger: logging.Wrap(logger)}
}

func (l *Logged) Get(key string) (string, bool, error) {
	v, ok, err := l.Storage.Get(key)
	if err != nil {
		l.logger.ComponentWarn(logging.ComponentStorage, "storage read failed", zap.String("key", key), zap.Error(err))
		return "", false, nil
	}
	return v, ok, nil
}

func (l *Logged) Set(key, value string) error {
	if err := l.Storage.Set(key, value); err != nil {
		l.logger.ComponentWarn(logging.ComponentStorage, "storage write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (l *Logged) Remove(key string) error {
	if err := l.Storage.Remove(key); err != nil {
		l.logger.ComponentWarn(logging.ComponentStorage, "storage remove failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the wrapped store.
func (l *Logged) Close() error {
	return Close(l.Storage)
}
