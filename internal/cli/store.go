package cli

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/aretw0/weave/internal/adapters/file"
	"github.com/aretw0/weave/internal/config"
	"github.com/aretw0/weave/pkg/adapters/bolt"
	"github.com/aretw0/weave/pkg/adapters/memory"
	"github.com/aretw0/weave/pkg/adapters/redis"
	"github.com/aretw0/weave/pkg/persistence/middleware"
	"github.com/aretw0/weave/pkg/ports"
	"github.com/aretw0/weave/pkg/session"
)

// Persistence is the configured store plus what the session manager needs around it.
type Persistence struct {
	Store  ports.StateStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend connection, if any.
func (p *Persistence) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// ManagerOptions returns the session options for the store (distributed locking).
func (p *Persistence) ManagerOptions() []session.Option {
	if p.Locker == nil {
		return nil
	}
	return []session.Option{session.WithLocker(p.Locker)}
}

// BuildStore opens the configured backend and wraps it with the persistence
// middlewares (ephemeral keys first, then encryption).
func BuildStore(cfg config.StoreConfig, logger *slog.Logger) (*Persistence, error) {
	p := &Persistence{}
	switch cfg.Backend {
	case "", "memory":
		p.Store = memory.NewStore()
	case "file":
		p.Store = file.New(cfg.Path)
	case "redis":
		var opts []redis.Option
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
		}
		rs := redis.New(cfg.Redis.Addr, "", 0, opts...)
		p.Store, p.close = rs, rs.Close
		if cfg.Redis.Lock {
			prefix := cfg.Redis.Prefix
			if prefix == "" {
				prefix = redis.DefaultPrefix
			}
			p.Locker = redis.NewLocker(rs.Client(), prefix)
		}
	case "bolt":
		bs, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		p.Store, p.close = bs, bs.Close
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	var mws []middleware.Middleware
	if len(cfg.Ephemeral) > 0 {
		mw, err := middleware.NewEphemeralMiddleware(cfg.Ephemeral...)
		if err != nil {
			p.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		mws = append(mws, mw)
	}
	p.Store = middleware.Chain(p.Store, mws...)

	logger.Debug("store ready", "backend", cfg.Backend, "middlewares", len(mws), "locking", p.Locker != nil)
	return p, nil
}
