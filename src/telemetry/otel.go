package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"
)

// shutdownChain runs registered cleanups once, in order, joining their errors.
type shutdownChain struct {
	funcs []func(context.Context) error
}

func (c *shutdownChain) add(fn func(context.Context) error) {
	c.funcs = append(c.funcs, fn)
}

func (c *shutdownChain) shutdown(ctx context.Context) error {
	var err error
	for _, fn := range c.funcs {
		err = errors.Join(err, fn(ctx))
	}
	c.funcs = nil
	return err
}

// Setup bootstraps the OpenTelemetry pipeline. Exporter endpoints come from the
// standard OTEL_EXPORTER_OTLP_* variables. If it does not return an error,
// call shutdown for cleanup.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	chain := &shutdownChain{}
	shutdown = chain.shutdown

	handleErr := func(inErr error) {
		err = errors.Join(inErr, chain.shutdown(ctx))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry.Setup: resource: %w", err)
	}

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, fmt.Errorf("telemetry.Setup: trace exporter: %w", err)
	}

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)
	chain.add(tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		handleErr(fmt.Errorf("telemetry.Setup: metric exporter: %w", err))
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	chain.add(meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		handleErr(fmt.Errorf("telemetry.Setup: runtime metrics: %w", err))
		return nil, err
	}

	log.Infof("telemetry enabled for %s", serviceName)
	return shutdown, nil
}

// InstallLogHook records log entries at Info and above on the active span.
// A nil logger means the standard logger.
func InstallLogHook(logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	logger.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
		log.InfoLevel,
	)))
}
