package service

import (
	"go-gin-lucky-draw/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type serviceMetrics struct {
	redemptions   metric.Int64Counter
	prizesAwarded metric.Int64Counter
	pendingQueued metric.Int64Counter
}

func newServiceMetrics() *serviceMetrics {
	meter := otel.Meter(instrumentationName)

	counter := func(name, description string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(description))
		if err != nil {
			logger.WithComponent("service").Warn("create counter failed", zap.String("name", name), zap.Error(err))
			return noop.Int64Counter{}
		}
		return c
	}

	return &serviceMetrics{
		redemptions:   counter("luckydraw.redemptions", "Redemption attempts by outcome"),
		prizesAwarded: counter("luckydraw.prizes.awarded", "Tickets issued by prize"),
		pendingQueued: counter("luckydraw.tickets.pending", "Tickets deferred to the pending-issue queue"),
	}
}

func metricAttrs(kv ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(kv...)
}
