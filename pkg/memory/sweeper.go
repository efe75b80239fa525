package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sentinelai/sentinel/pkg/logger"
)

// Sweeper runs the retention schedule against a Service: whenever the
// cron expression fires, entries older than Retention are removed.
type Sweeper struct {
	svc       *Service
	schedule  string
	retention time.Duration
	poll      time.Duration
	gron      *gronx.Gronx

	// OnSweep, if set, is called after each sweep with the number of
	// entries removed.
	OnSweep func(removed int)

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewSweeper(svc *Service, schedule string, retention time.Duration) *Sweeper {
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Sweeper{
		svc:       svc,
		schedule:  schedule,
		retention: retention,
		poll:      time.Minute,
		gron:      gronx.New(),
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling the schedule. Invalid expressions are reported
// once and the sweeper stays idle.
func (sw *Sweeper) Start(ctx context.Context) {
	if !sw.gron.IsValid(sw.schedule) {
		logger.ErrorCF("memory", "invalid retention schedule, sweeper disabled", map[string]interface{}{
			"schedule": sw.schedule,
		})
		return
	}

	sw.wg.Add(1)
	go sw.run(ctx)
}

func (sw *Sweeper) run(ctx context.Context) {
	defer sw.wg.Done()

	ticker := time.NewTicker(sw.poll)
	defer ticker.Stop()

	var lastFired time.Time
	for {
		select {
		case <-sw.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// One firing per schedule minute.
			minute := now.Truncate(time.Minute)
			if minute.Equal(lastFired) {
				continue
			}
			due, err := sw.gron.IsDue(sw.schedule, minute)
			if err != nil || !due {
				continue
			}
			lastFired = minute
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	removed := sw.svc.ClearOldMemories(ctx, sw.retention)
	logger.InfoCF("memory", "retention sweep complete", map[string]interface{}{
		"removed":   removed,
		"retention": sw.retention.String(),
	})
	if sw.OnSweep != nil {
		sw.OnSweep(removed)
	}
}

func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopCh)
		sw.wg.Wait()
	})
}
