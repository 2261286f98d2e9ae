package cmd

import (
	"context"
	"errors"
	"fmt"

	"mixflow/cache"
	"mixflow/config"
	"mixflow/core/artist"
	"mixflow/core/track"
	"mixflow/db"
	"mixflow/logger"
	"mixflow/model"
	"mixflow/repository"
	"mixflow/storage"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// loadConfig reads the configuration and starts the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	err = logger.InitLogger(logger.Config{
		Level:       logger.LogLevel(cfg.LogLevel),
		OutputPath:  cfg.LogFile,
		MaxSize:     cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAge:      cfg.LogMaxAgeDays,
		Compress:    cfg.LogCompress,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// app holds the process-wide connections shared by the commands.
type app struct {
	cfg *config.Config
	db  *gorm.DB

	store   storage.Store
	local   *storage.LocalStore // nil for the minio backend
	minio   *storage.MinioStore // nil for the local backend
	redis   *redis.Client       // nil when the stat cache is disabled
	stats   *cache.StatCache
	watcher *storage.Watcher

	users   repository.UserRepository
	artists repository.ArtistRepository
	tracks  repository.TrackRepository
	streams repository.StreamRepository
}

// newApp connects the database and the file store. When Redis is
// configured, stats go through the cache, which is only served while the
// local directory watcher or the bucket notification listener is running.
func newApp(ctx context.Context, cfg *config.Config, migrate bool) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.db = gdb
	if migrate {
		if err := db.AutoMigrateModels(gdb, model.All()...); err != nil {
			return nil, err
		}
	}

	switch cfg.StorageBackend {
	case config.StorageMinio:
		a.minio, err = storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		a.store = a.minio
	default:
		a.local, err = storage.NewLocalStore(cfg.UploadDir)
		a.store = a.local
	}
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}

	if addr := cfg.RedisAddr(); addr != "" {
		a.redis, err = cache.ConnectRedis(ctx, cache.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		a.stats = cache.NewStatCache(a.redis, cfg.StatCacheTTL)
		cached := storage.NewCachedStore(a.store, a.stats)
		a.store = cached
		switch {
		case a.local != nil:
			if a.watcher, err = storage.NewWatcher(ctx, a.local, cached); err != nil {
				return nil, fmt.Errorf("watch upload dir: %w", err)
			}
			go a.watcher.Run(ctx)
		case a.minio != nil:
			go storage.NewBucketWatcher(a.minio, cached).Run(ctx)
		}
		logger.Info("file stat cache enabled", logger.String("redis", addr), logger.Duration("ttl", cfg.StatCacheTTL))
	}

	a.users = repository.NewGormUserRepository(gdb)
	a.artists = repository.NewGormArtistRepository(gdb)
	a.tracks = repository.NewGormTrackRepository(gdb)
	a.streams = repository.NewGormStreamRepository(gdb)
	ok = true
	return a, nil
}

func (a *app) artistService() *artist.Service {
	return artist.NewService(a.users, a.artists, a.tracks)
}

func (a *app) trackService() *track.Service {
	return track.NewService(a.tracks, a.artistService(), a.store)
}

// Close releases every connection, in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, db.Close(a.db))
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn("error while closing resources", logger.ErrorField(err))
	}
	return err
}
