package server

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/bionicotaku/lingo-services-outreach/internal/controllers"
	loader "github.com/bionicotaku/lingo-services-outreach/internal/infrastructure/config_loader"

	"github.com/bionicotaku/lingo-utils/observability"
	obsTrace "github.com/bionicotaku/lingo-utils/observability/tracing"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/metadata"
	"github.com/go-kratos/kratos/v2/middleware/metrics"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"go.opentelemetry.io/otel/metric"
)

const readinessTimeout = 2 * time.Second

// ReadinessChecker 报告下游依赖是否可用。
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// NewHTTPServer 构造 Kratos HTTP Server，挂载中间件链、业务路由与健康检查。
// metricsCfg 可为空，此时默认记录请求指标。
func NewHTTPServer(cfg *loader.Config, metricsCfg *observability.MetricsConfig, meter metric.Meter, outreach *controllers.OutreachHandler, tracking *controllers.TrackingHandler, ready ReadinessChecker, logger log.Logger) *http.Server {
	chain := []middleware.Middleware{
		recovery.Recovery(),
		obsTrace.Server(),
		metadata.Server(
			metadata.WithPropagatedPrefix("x-md-"),
		),
	}
	metricsEnabled := metricsCfg == nil || metricsCfg.Enabled
	if metricsEnabled && meter != nil {
		if mw, err := serverMetrics(meter); err != nil {
			log.NewHelper(logger).Warnf("http server metrics disabled: %v", err)
		} else {
			chain = append(chain, mw)
		}
	}
	chain = append(chain, logging.Server(logger))

	mws := []http.ServerOption{http.Middleware(chain...)}
	c := cfg.Server.HTTP
	if c.Network != "" {
		mws = append(mws, http.Network(c.Network))
	}
	if c.Addr != "" {
		mws = append(mws, http.Address(c.Addr))
	}
	if c.Timeout > 0 {
		mws = append(mws, http.Timeout(c.Timeout.Std()))
	}

	srv := http.NewServer(mws...)

	srv.Handle("/healthz", stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
	}))
	srv.Handle("/readyz", readinessHandler(ready, logger))

	controllers.RegisterOutreachHTTPServer(srv, outreach)
	controllers.RegisterTrackingHTTPServer(srv, tracking)
	return srv
}

func serverMetrics(meter metric.Meter) (middleware.Middleware, error) {
	requests, err := metrics.DefaultRequestsCounter(meter, metrics.DefaultServerRequestsCounterName)
	if err != nil {
		return nil, err
	}
	seconds, err := metrics.DefaultSecondsHistogram(meter, metrics.DefaultServerSecondsHistogramName)
	if err != nil {
		return nil, err
	}
	return metrics.Server(
		metrics.WithRequests(requests),
		metrics.WithSeconds(seconds),
	), nil
}

func readinessHandler(ready ReadinessChecker, logger log.Logger) stdhttp.Handler {
	helper := log.NewHelper(logger)
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if ready == nil {
			w.WriteHeader(stdhttp.StatusOK)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if err := ready.Ping(ctx); err != nil {
			helper.WithContext(ctx).Warnf("readiness check failed: %v", err)
			w.WriteHeader(stdhttp.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		w.WriteHeader(stdhttp.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}
