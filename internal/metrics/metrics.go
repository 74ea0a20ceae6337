// Package metrics records quest lifecycle and ledger counters. Instruments
// start on the global OpenTelemetry meter provider; Init rebinds them to the
// provider installed by Setup.
package metrics

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fetchquest/backend"

// Counter names.
const (
	TransitionsName     = "fetchquest.task.transitions"
	LedgerMutationsName = "fetchquest.ledger.mutations"
)

type instruments struct {
	transitions     metric.Int64Counter
	ledgerMutations metric.Int64Counter
}

var current atomic.Pointer[instruments]

func init() {
	if err := Init(otel.GetMeterProvider()); err != nil {
		panic(err)
	}
}

// Init creates the counters on mp and makes them the ones recorded to.
func Init(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)
	transitions, err := meter.Int64Counter(TransitionsName,
		metric.WithDescription("Quest lifecycle operations by outcome"))
	if err != nil {
		return fmt.Errorf("create %s: %w", TransitionsName, err)
	}
	ledgerMutations, err := meter.Int64Counter(LedgerMutationsName,
		metric.WithDescription("Reward ledger profile writes"))
	if err != nil {
		return fmt.Errorf("create %s: %w", LedgerMutationsName, err)
	}
	current.Store(&instruments{transitions: transitions, ledgerMutations: ledgerMutations})
	return nil
}

// TaskTransition counts one lifecycle operation; result is "ok" or "error".
func TaskTransition(ctx context.Context, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	current.Load().transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// LedgerMutation counts one successful ledger write.
func LedgerMutation(ctx context.Context, op string) {
	current.Load().ledgerMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
