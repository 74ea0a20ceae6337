package metrics

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Setup installs an SDK meter provider that exports to w every interval,
// registers it globally and binds the counters to it. Call the returned
// shutdown on exit to flush the last collection.
func Setup(w io.Writer, interval time.Duration) (func(context.Context) error, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	if err := Init(mp); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return mp.Shutdown, nil
}
