package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/cache"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/config"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/events"
	"github.com/illmade-knight/go-comiccache/pkg/fetcher"
	"github.com/illmade-knight/go-comiccache/pkg/imagecache"
	"github.com/illmade-knight/go-comiccache/pkg/metrics"
	"github.com/illmade-knight/go-comiccache/pkg/prefetch"
	"github.com/illmade-knight/go-comiccache/pkg/settings"
	"github.com/illmade-knight/go-comiccache/pkg/store"
	"github.com/illmade-knight/go-comiccache/pkg/viewer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// runtime holds every component of a running cache, built from one Config.
type runtime struct {
	cfg         *config.Config
	logger      zerolog.Logger
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics

	store     *store.TwoTier
	fetcher   fetcher.Fetcher
	publisher events.Publisher
	cache     *imagecache.ImageCache
	scheduler *prefetch.Scheduler
	loader    settings.Loader
	app       *viewer.App

	// closers release clients the components do not own, in order.
	closers []io.Closer
}

func (r *runtime) clientOptions() []option.ClientOption {
	if r.cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(r.cfg.CredentialsFile)}
}

// newRuntime wires the components. On error everything already built is released.
func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (rt *runtime, err error) {
	rt = &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheMetrics, err := metrics.NewCacheMetrics(rt.registry)
	if err != nil {
		return rt, fmt.Errorf("failed to register cache metrics: %w", err)
	}
	if rt.httpMetrics, err = metrics.NewHTTPMetrics(rt.registry); err != nil {
		return rt, fmt.Errorf("failed to register http metrics: %w", err)
	}

	loc, locErr := cfg.Location()
	if locErr != nil {
		logger.Warn().Err(locErr).Msg("Falling back to UTC.")
	}

	disk, err := rt.newDurableTier(ctx)
	if err != nil {
		return rt, err
	}
	memory, err := rt.newMemoryTier()
	if err != nil {
		_ = disk.Close()
		return rt, err
	}
	if rt.store, err = store.New(memory, disk, logger); err != nil {
		return rt, err
	}

	if rt.fetcher, err = fetcher.New(ctx, fetcher.Config{
		Location:        cfg.ImagesURL(),
		Timeout:         cfg.Cache.FetchTimeout,
		CredentialsFile: cfg.CredentialsFile,
	}, logger); err != nil {
		return rt, fmt.Errorf("failed to create fetcher: %w", err)
	}

	if rt.publisher, err = rt.newPublisher(ctx); err != nil {
		return rt, err
	}

	if rt.cache, err = imagecache.New(ctx, imagecache.Config{
		PastWindow: cfg.Cache.PastWindow,
		Location:   loc,
	}, rt.store, rt.fetcher, imagecache.Options{
		Publisher: rt.publisher,
		Metrics:   cacheMetrics,
	}, logger); err != nil {
		return rt, err
	}

	if rt.scheduler, err = prefetch.New(rt.cache, prefetch.Config{
		PastWindow:   cfg.Cache.PastWindow,
		FutureWindow: cfg.Cache.FutureWindow,
		Workers:      cfg.Cache.Workers,
	}, logger); err != nil {
		return rt, err
	}

	if rt.loader, err = rt.newLoader(ctx); err != nil {
		return rt, err
	}
	rt.app = viewer.NewApp(rt.loader, rt.cache, rt.scheduler, viewer.Window{
		Past:   cfg.Cache.PastWindow,
		Future: cfg.Cache.FutureWindow,
	}, logger)
	return rt, nil
}

func (r *runtime) newDurableTier(ctx context.Context) (blobstore.Store, error) {
	switch r.cfg.Cache.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, r.clientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		s, err := blobstore.NewGCSStore(blobstore.GCSStoreConfig{
			BucketName:   r.cfg.GCS.Bucket,
			ObjectPrefix: r.cfg.GCS.Prefix,
		}, blobstore.NewGCSClientAdapter(client), client, r.logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := blobstore.NewRedisStore(ctx, blobstore.RedisConfig{
			Addr:      r.cfg.Redis.Addr,
			Password:  r.cfg.Redis.Password,
			DB:        r.cfg.Redis.DB,
			KeyPrefix: r.cfg.Redis.KeyPrefix,
			TTL:       r.cfg.Redis.TTL,
		}, r.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFilesystem:
		s, err := blobstore.NewLocalStore(r.cfg.Cache.Dir, r.logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", r.cfg.Cache.Backend)
}

func (r *runtime) newMemoryTier() (store.MemoryTier, error) {
	if r.cfg.Cache.MemoryItems == 0 {
		return cache.NewInMemoryPresenceCache[datekey.Key, *comic.Blob](), nil
	}
	lru, err := cache.NewInMemoryLRUCache[datekey.Key, *comic.Blob](r.cfg.Cache.MemoryItems, func(key datekey.Key) {
		r.logger.Debug().Str("key", key.String()).Msg("Evicted from memory tier.")
	})
	if err != nil {
		return nil, err
	}
	return lru, nil
}

func (r *runtime) newPublisher(ctx context.Context) (events.Publisher, error) {
	if r.cfg.Events.TopicID == "" {
		return events.NewLogPublisher(r.logger), nil
	}
	client, err := pubsub.NewClient(ctx, r.cfg.ProjectID, r.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	r.closers = append(r.closers, client)
	publisher, err := events.NewPubSubPublisher(ctx, client, r.cfg.Events.TopicID, r.logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

func (r *runtime) newLoader(ctx context.Context) (settings.Loader, error) {
	switch r.cfg.Settings.Source {
	case config.SourceFile:
		return settings.FileLoader{Path: r.cfg.Settings.File}, nil
	case config.SourceFirestore:
		client, err := firestore.NewClient(ctx, r.cfg.ProjectID, r.clientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		r.closers = append(r.closers, client)
		loader, err := settings.NewFirestoreLoader(client, r.cfg.Settings.Collection, r.cfg.Settings.Document, r.logger)
		if err != nil {
			return nil, err
		}
		return loader, nil
	}
	return settings.NewHTTPLoader(r.cfg.SettingsURL(), nil, r.cfg.Cache.FetchTimeout, r.logger), nil
}

// Close stops background work and releases every component, bounded by ctx.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	if r.scheduler != nil {
		errs = append(errs, r.scheduler.Stop(ctx))
	}
	if r.cache != nil {
		errs = append(errs, r.cache.Close(ctx))
	}
	if r.publisher != nil {
		errs = append(errs, r.publisher.Stop(ctx))
	}
	if r.fetcher != nil {
		errs = append(errs, r.fetcher.Close())
	}
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
