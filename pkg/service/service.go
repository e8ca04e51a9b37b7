package service

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/sepich/image-cache/pkg/fetch"
	"github.com/sepich/image-cache/pkg/logging"
	"github.com/sepich/image-cache/pkg/metrics"
	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/render"
)

const proxiedBy = "image-cache"

// Values of the X-Cache response header.
const (
	CacheHit      = "HIT"
	CacheMiss     = "MISS"
	CacheFallback = "FALLBACK"
)

type Service interface {
	GetImage(ctx context.Context, key *model.LogicalKey, dims model.Dimensions, isHead bool, w http.ResponseWriter)
}

type Resolver interface {
	Resolve(ctx context.Context, key model.LogicalKey) (*fetch.Resolution, error)
}

type Renderer interface {
	Render(ctx context.Context, sourcePath string, dims model.Dimensions) (*render.Rendition, error)
}

// ImageService always answers with an image: resolution failures are served the
// fallback asset with status 200. Only a fallback that cannot be rendered yields 500.
type ImageService struct {
	Resolver Resolver
	Renderer Renderer
	Fallback *render.Fallback
	Logger   logrus.FieldLogger
	Observer metrics.Observer
}

var _ Service = &ImageService{}

func (s *ImageService) GetImage(ctx context.Context, key *model.LogicalKey, dims model.Dimensions, isHead bool, w http.ResponseWriter) {
	w.Header().Add(model.HeaderProxiedBy, proxiedBy)
	log := logging.FromContext(ctx, s.logger()).WithFields(logging.RequestFields(*key, dims))

	cacheStatus := CacheHit
	source := s.Fallback.Path
	shared := false
	res, err := s.Resolver.Resolve(ctx, *key)
	if err != nil {
		cacheStatus = CacheFallback
		s.observer().RecordFallback(fetch.Outcome(err))
	} else {
		source = res.Path
		shared = res.Shared
		if res.Source == fetch.SourceRemote {
			cacheStatus = CacheMiss
		}
	}

	rendition, err := s.Renderer.Render(ctx, source, dims)
	if err != nil && cacheStatus != CacheFallback {
		log.WithFields(logrus.Fields{"stage": "render", "path": source, "error": err.Error()}).
			Error("Failed to render cached image, serving fallback")
		s.observer().RecordFallback("render_failed")
		cacheStatus = CacheFallback
		rendition, err = s.Renderer.Render(ctx, s.Fallback.Path, dims)
	}
	if err != nil {
		log.WithFields(logrus.Fields{"stage": "render_fallback", "path": s.Fallback.Path, "error": err.Error()}).
			Error("Failed to render fallback image")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set(model.HeaderContentType, rendition.ContentType)
	w.Header().Set(model.HeaderContentLength, strconv.Itoa(rendition.ContentLength))
	w.Header().Set(model.HeaderCacheStatus, cacheStatus)
	w.WriteHeader(http.StatusOK)
	log.WithFields(logrus.Fields{
		"cache":  cacheStatus,
		"shared": shared,
		"bytes":  rendition.ContentLength,
	}).Debug("Served image")
	if isHead {
		return
	}
	if _, err := w.Write(rendition.Body); err != nil {
		log.WithError(err).Debug("Client went away while writing response")
	}
}

func (s *ImageService) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func (s *ImageService) observer() metrics.Observer {
	if s.Observer == nil {
		return metrics.Nop
	}
	return s.Observer
}
