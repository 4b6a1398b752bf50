package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/snowball/pkg/config"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
)

// Open builds the backend selected by cfg.
func Open(cfg config.StorageConfig, logger *zap.Logger) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch cfg.Backend {
	case "", config.BackendMemory:
		s = NewMemory()
	case config.BackendFile:
		path := cfg.Path
		if path == "" {
			if path, err = config.DefaultPath("storage.json"); err != nil {
				return nil, err
			}
		}
		s, err = NewFile(path, cfg.EncryptionKey)
	case config.BackendSQLite:
		path := cfg.Path
		if path == "" {
			if path, err = config.DefaultPath("storage.db"); err != nil {
				return nil, err
			}
		}
		s, err = NewSQLite(path, "snowball")
	case config.BackendRedis:
		s, err = NewRedis(RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Timeout: cfg.Timeout})
	case config.BackendOlric:
		s, err = NewOlric(OlricOptions{Servers: cfg.OlricServers, DMap: cfg.DMap, Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logging.Wrap(logger).ComponentDebug(logging.ComponentStorage, "storage opened", zap.String("backend", cfg.Backend))
	return s, nil
}
