package main

import (
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func provideMeter(meta loader.ServiceMetadata) metric.Meter {
	return otel.GetMeterProvider().Meter(meta.Name)
}
