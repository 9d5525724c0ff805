package ro

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/ro"
)

// ShutdownSignals are the OS signals that trigger graceful shutdown.
var ShutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

// GracefulShutdown creates an Observable that emits the first shutdown signal
// received and then completes.
//
// Example:
//
//	shutdown := GracefulShutdown()
//	shutdown.Subscribe(ro.NewObserver(
//	    func(sig os.Signal) { log.Info().Msgf("received %v", sig) },
//	    func(err error) { log.Error().Err(err).Msg("shutdown error") },
//	    func() { log.Info().Msg("shutdown complete") },
//	))
func GracefulShutdown() ro.Observable[os.Signal] {
	return GracefulShutdownWithSignals(ShutdownSignals...)
}

// GracefulShutdownWithSignals is GracefulShutdown for a custom signal set.
// The subscriber's context bounds the wait.
func GracefulShutdownWithSignals(signals ...os.Signal) ro.Observable[os.Signal] {
	return ro.NewObservableWithContext(func(ctx context.Context, observer ro.Observer[os.Signal]) ro.Teardown {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)

		go func() {
			select {
			case sig := <-ch:
				observer.NextWithContext(ctx, sig)
				observer.CompleteWithContext(ctx)
			case <-ctx.Done():
				observer.ErrorWithContext(ctx, ctx.Err())
			}
		}()

		return func() {
			signal.Stop(ch)
		}
	})
}

// WaitForShutdown blocks until a shutdown signal is received or ctx is
// canceled.
func WaitForShutdown(ctx context.Context) (os.Signal, error) {
	return WaitForShutdownWith(ctx, ShutdownSignals...)
}

// WaitForShutdownWith is WaitForShutdown for a custom signal set.
func WaitForShutdownWith(ctx context.Context, signals ...os.Signal) (os.Signal, error) {
	results, _, err := ro.CollectWithContext(ctx, GracefulShutdownWithSignals(signals...))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ctx.Err()
	}
	return results[0], nil
}
