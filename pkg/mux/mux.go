package mux

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/sepich/image-cache/pkg/logging"
	"github.com/sepich/image-cache/pkg/model"
	"github.com/sepich/image-cache/pkg/service"
)

// A path segment: anything but a slash, not starting with a dot.
const segmentPattern = "[^/.][^/]*"

type Options struct {
	// MaxDimension clamps the width and height query parameters. Zero disables clamping.
	MaxDimension int
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  logrus.FieldLogger
}

func NewRouter(services service.Service, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID(opts.Logger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/{folder:"+segmentPattern+"}/{subfolder:"+segmentPattern+"}/{name:"+segmentPattern+"}", func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		key := &model.LogicalKey{
			Folder:    vars["folder"],
			Subfolder: vars["subfolder"],
			Name:      vars["name"],
		}
		query := r.URL.Query()
		dims := model.Dimensions{
			Width:  parseDimension(query.Get("width"), opts.MaxDimension),
			Height: parseDimension(query.Get("height"), opts.MaxDimension),
		}

		services.GetImage(r.Context(), key, dims, r.Method == http.MethodHead, w)
	}).Methods(http.MethodGet, http.MethodHead)

	return r
}

// parseDimension treats anything that is not a positive integer as absent.
func parseDimension(raw string, max int) int {
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func requestID(logger logrus.FieldLogger) mux.MiddlewareFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(model.HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(model.HeaderRequestID, id)
			ctx := logging.WithRequestID(r.Context(), id)

			logging.FromContext(ctx, logger).WithFields(logrus.Fields{
				"method":      r.Method,
				"uri":         r.RequestURI,
				"remote_addr": r.RemoteAddr,
			}).Debug("Received HTTP request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
