// Package telemetry times and logs named pipeline stages.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Observer receives the duration and outcome of each tracked stage.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(stage string, elapsed time.Duration, err error)

// ObserveStage implements Observer.
func (f ObserverFunc) ObserveStage(stage string, elapsed time.Duration, err error) {
	f(stage, elapsed, err)
}

// TrackOperation logs the lifecycle of a named operation and reports its
// duration to observer. logger and observer may be nil.
func TrackOperation(ctx context.Context, logger hclog.Logger, observer Observer, name string, fn func(context.Context) error) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	start := time.Now()
	logger.Debug(fmt.Sprintf("%s.start", name))

	err := fn(ctx)

	dur := time.Since(start)
	if observer != nil {
		observer.ObserveStage(name, dur, err)
	}
	if err != nil {
		logger.Debug(fmt.Sprintf("%s.fail", name), "duration_ms", dur.Seconds()*1000, "error", err)
		return err
	}

	logger.Debug(fmt.Sprintf("%s.success", name), "duration_ms", dur.Seconds()*1000)
	return nil
}
