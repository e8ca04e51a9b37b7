package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/sepich/image-cache/pkg/model"
)

type ctxKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns logger with the request id of ctx attached, if any.
func FromContext(ctx context.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	if id := RequestID(ctx); id != "" {
		return logger.WithField("request_id", id)
	}
	return logger
}

// RequestFields describes an image request; dims are left out when unconstrained.
func RequestFields(key model.LogicalKey, dims model.Dimensions) logrus.Fields {
	fields := logrus.Fields{
		"key": key.String(),
	}
	if !dims.IsZero() {
		fields["dims"] = dims.String()
	}
	return fields
}

// StageFields describes a failed pipeline stage.
func StageFields(key model.LogicalKey, stage string, err error) logrus.Fields {
	return logrus.Fields{
		"key":   key.String(),
		"stage": stage,
		"error": err.Error(),
	}
}
