package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/sepich/image-cache/pkg/cache"
	"github.com/sepich/image-cache/pkg/config"
	"github.com/sepich/image-cache/pkg/fetch"
	"github.com/sepich/image-cache/pkg/logging"
	"github.com/sepich/image-cache/pkg/metrics"
	"github.com/sepich/image-cache/pkg/mux"
	"github.com/sepich/image-cache/pkg/render"
	"github.com/sepich/image-cache/pkg/service"
	"github.com/sepich/image-cache/pkg/storage"
	"github.com/sepich/image-cache/pkg/transform"
)

const appName = "image-cache"

func main() {
	flags := config.NewFlags(appName)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flags.ShowVersion {
		fmt.Println(version.Print(appName))
		return
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Exiting")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"version": version.Info(),
		"backend": cfg.Storage.Backend,
		"bucket":  cfg.Storage.Bucket,
		"cache":   cfg.Cache.Dir,
	}).Info("Starting " + appName)

	observer, err := metrics.NewPrometheusObserver(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	client, err := storage.New(ctx, storage.Options{
		Backend:   cfg.Storage.Backend,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		PathStyle: cfg.Storage.PathStyle,
		ProjectID: cfg.Storage.ProjectID,
		KeyFile:   cfg.Storage.KeyFile,
		BaseURL:   cfg.Storage.BaseURL,
		Timeout:   cfg.Storage.Timeout,
		Dir:       cfg.Storage.Dir,

		MaxObjectBytes: cfg.Storage.MaxObjectBytes,
	})
	if err != nil {
		return err
	}

	fileCache, err := cache.NewFileCache(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	imager := transform.NewImaging(cfg.Cache.Quality)
	imager.MaxPixels = cfg.Render.MaxPixels
	transformer := transform.NewPool(imager, cfg.Render.Workers)
	coordinator, err := fetch.New(fetch.Options{
		Cache:          fileCache,
		Client:         client,
		Transformer:    transformer,
		Width:          cfg.Cache.Width,
		ObjectName:     cfg.Storage.ObjectName,
		FetchTimeout:   cfg.Storage.Timeout,
		MaxObjectBytes: cfg.Storage.MaxObjectBytes,
		Logger:         logger,
		Observer:       observer,
	})
	if err != nil {
		return err
	}

	renderer := render.New(transformer, observer)
	fallback, err := render.LoadFallback(ctx, renderer, cfg.Fallback)
	if err != nil {
		return err
	}

	router := mux.NewRouter(&service.ImageService{
		Resolver: coordinator,
		Renderer: renderer,
		Fallback: fallback,
		Logger:   logger,
		Observer: observer,
	}, mux.Options{
		MaxDimension: cfg.Render.MaxDimension,
		Metrics:      promhttp.Handler(),
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("listen", cfg.Listen).Info("Listening over HTTP")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
