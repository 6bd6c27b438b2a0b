package worker

import (
	"context"
	"log"
	"time"

	"stayflow/utils"
)

// DispatchWorker is an optional in-process stand-in for the external cron
// caller: it invokes the dispatcher on a fixed interval. Deployments that
// hit /cron/dispatch from a real scheduler leave it disabled.
type DispatchWorker struct {
	Dispatcher *utils.Dispatcher
	Interval   time.Duration
	Logger     *log.Logger
}

func NewDispatchWorker(dispatcher *utils.Dispatcher, interval time.Duration, logger *log.Logger) *DispatchWorker {
	return &DispatchWorker{
		Dispatcher: dispatcher,
		Interval:   interval,
		Logger:     logger,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			summary, err := dw.Dispatcher.Run(ctx, time.Now())
			if err != nil {
				dw.Logger.Printf("Dispatch run failed: %v", err)
				continue
			}
			if summary.Processed > 0 {
				dw.Logger.Printf("Dispatch run: processed=%d sent=%d skipped=%d failed=%d",
					summary.Processed, summary.Sent, summary.Skipped, summary.Failed)
			}
		}
	}
}
