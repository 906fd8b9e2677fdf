package dashboard

import (
	"context"
	"time"
)

// Poller keeps the loader's state fresh by loading at start and then on
// every tick. Page requests then read Loader.Current.
type Poller struct {
	loader   *Loader
	interval time.Duration
}

func NewPoller(loader *Loader, interval time.Duration) *Poller {
	return &Poller{loader: loader, interval: interval}
}

// Run blocks until ctx is done. It always returns nil so it can sit in an
// errgroup next to the HTTP server.
func (p *Poller) Run(ctx context.Context) error {
	p.loader.Load(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.loader.Load(ctx)
		}
	}
}
