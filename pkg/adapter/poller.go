package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/events"
)

// ScanFunc performs one enumeration pass and returns the payload to publish
// as results. A returned error is emitted wrapped in *ScanError.
type ScanFunc func(ctx context.Context, opts Options) (any, error)

// Poller is an Adapter that runs a ScanFunc on a fixed interval while at least
// one owner has it started. StartScan and StopScan are reference counted: the
// first start spawns the polling goroutine with that caller's options, the
// last stop cancels it.
type Poller struct {
	id       string
	interval time.Duration
	scan     ScanFunc

	results events.Emitter[any]
	errs    events.Emitter[error]

	mu     sync.Mutex
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Adapter = (*Poller)(nil)

// NewPoller returns a stopped poller. interval is used when the options do
// not carry an "interval" entry.
func NewPoller(id string, interval time.Duration, scan ScanFunc) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{id: id, interval: interval, scan: scan}
}

func (p *Poller) ID() string { return p.id }

// StartScan implements Adapter.
func (p *Poller) StartScan(opts Options) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs++
	if p.refs > 1 {
		log.Debug().Str("adapter", p.id).Int("refs", p.refs).Msg("adapter already scanning")
		return p
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	interval := opts.Duration("interval", p.interval)
	go p.run(ctx, opts, interval, done)
	log.Info().Str("adapter", p.id).Dur("interval", interval).Msg("adapter scan started")
	return p
}

// StopScan implements Adapter.
func (p *Poller) StopScan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs == 0 {
		return
	}
	p.refs--
	if p.refs > 0 {
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	log.Info().Str("adapter", p.id).Msg("adapter scan stopped")
}

// Scanning reports whether the polling goroutine is requested to run.
func (p *Poller) Scanning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs > 0
}

// Wait blocks until the most recently started polling goroutine has exited.
// It must not be called from a results or error listener.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) OnResults(fn func(any)) events.ListenerID { return p.results.On(fn) }

func (p *Poller) OnError(fn func(error)) events.ListenerID { return p.errs.On(fn) }

func (p *Poller) RemoveListener(id events.ListenerID) bool {
	if p.results.Off(id) {
		return true
	}
	return p.errs.Off(id)
}

func (p *Poller) run(ctx context.Context, opts Options, interval time.Duration, done chan struct{}) {
	defer close(done)

	p.pass(ctx, opts)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx, opts)
		}
	}
}

func (p *Poller) pass(ctx context.Context, opts Options) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("adapter", p.id).Interface("panic", r).Msg("adapter scan panicked")
			if ctx.Err() == nil {
				p.errs.Emit(&ScanError{Adapter: p.id, Err: errors.Errorf("%s: scan panicked: %v", p.id, r)})
			}
		}
	}()

	start := time.Now()
	payload, err := p.scan(ctx, opts)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("adapter", p.id).Msg("adapter scan failed")
		p.errs.Emit(&ScanError{Adapter: p.id, Err: err})
		return
	}
	log.Debug().Str("adapter", p.id).Dur("elapsed", time.Since(start)).Msg("adapter scan pass")
	p.results.Emit(payload)
}
