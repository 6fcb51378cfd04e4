package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SupportChat/internal/config"
	"SupportChat/internal/session"
)

var (
	ErrMalformed     = errors.New("stored conversation is malformed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Store is the durable mirror of the conversation log under a single key
type Store interface {
	// Load returns an empty log when nothing is stored
	Load(ctx context.Context) (session.Log, error)
	// Save overwrites the stored log
	Save(ctx context.Context, log session.Log) error
	// Remove deletes the stored log; removing a missing key is not an error
	Remove(ctx context.Context) error
	Close() error
}

// New opens the store selected by cfg.Driver
func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.Path, cfg.Key)
	case config.StorageFile:
		return NewFileStore(cfg.Dir, cfg.Key)
	case config.StorageRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix+cfg.Key)
	case config.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

func encodeLog(log session.Log) ([]byte, error) {
	if log == nil {
		log = session.Log{}
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return raw, nil
}

func decodeLog(raw []byte) (session.Log, error) {
	var log session.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if log == nil {
		return session.Log{}, nil
	}
	for i, turn := range log {
		if turn.Role != session.RoleUser && turn.Role != session.RoleModel {
			return nil, fmt.Errorf("%w: turn %d has role %q", ErrMalformed, i, turn.Role)
		}
	}
	return log, nil
}
