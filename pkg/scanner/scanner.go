// Package scanner aggregates several discovery adapters into one event stream.
//
// A Scanner subscribes to adapters resolved from its configuration, starts and
// stops them together, and re-emits every adapter results payload and error
// unchanged to its own listeners. It never interprets payloads.
//
// Subscribing or unsubscribing while the scanner is running only changes the
// subscription set: a newly subscribed adapter is started by the next Start,
// and an adapter unsubscribed mid-scan keeps running until Stop, which always
// stops and detaches every adapter the last Start attached. Once a listener
// has received Stop it receives no further results or errors from the
// adapters that Stop detached.
package scanner

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/events"
)

// Config selects the adapters a Scanner uses.
type Config struct {
	// Options maps adapter id to the options passed to StartScan. Every key
	// subscribes the scanner to that adapter.
	Options map[string]adapter.Options
	// Adapters optionally supplies adapter instances that take precedence
	// over the registry for the same id. Entries without an Options key are
	// ignored.
	Adapters map[string]adapter.Adapter
}

// attachment records the listeners a Start registered on one adapter so Stop
// can remove exactly those.
type attachment struct {
	adapter  adapter.Adapter
	handle   adapter.Handle
	detached atomic.Bool

	mu       sync.Mutex
	attached bool
	results  events.ListenerID
	errs     events.ListenerID
}

// delivery is what the scanner emitter carries. att is set for forwarded
// adapter events, which are dropped once their attachment is detached.
type delivery struct {
	ev  Event
	att *attachment
}

// Scanner fans in events from subscribed adapters.
type Scanner struct {
	options map[string]adapter.Options

	mu            sync.Mutex
	subscriptions map[string]adapter.Adapter
	order         []string
	scanning      bool
	attached      map[string]*attachment
	attachOrder   []string

	events events.Emitter[delivery]
}

// New builds a Scanner subscribed to every adapter named in cfg.Options.
// Adapters are resolved from cfg.Adapters first and reg second; if any id
// cannot be resolved New returns *UnknownAdapterError and no Scanner. An
// adapter whose ID differs from its configured id yields
// *AdapterIDMismatchError.
func New(reg *adapter.Registry, cfg Config) (*Scanner, error) {
	ids := make([]string, 0, len(cfg.Options))
	for id := range cfg.Options {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	resolved := make([]adapter.Adapter, 0, len(ids))
	for _, id := range ids {
		a := cfg.Adapters[id]
		if a == nil {
			a, _ = reg.Get(id)
		}
		if a == nil {
			return nil, &UnknownAdapterError{ID: id}
		}
		if got := a.ID(); got != id {
			return nil, &AdapterIDMismatchError{ID: id, AdapterID: got}
		}
		resolved = append(resolved, a)
	}

	s := &Scanner{
		options:       make(map[string]adapter.Options, len(cfg.Options)),
		subscriptions: make(map[string]adapter.Adapter, len(resolved)),
		attached:      make(map[string]*attachment),
	}
	for id, opts := range cfg.Options {
		s.options[id] = opts
	}
	for _, a := range resolved {
		if err := s.Subscribe(a); err != nil {
			return nil, err
		}
	}
	log.Debug().Strs("adapters", ids).Msg("scanner initialized")
	return s, nil
}

// On registers a listener for every scanner event. A listener handles one
// event at a time; it never receives an adapter's results or errors after it
// has received the Stop that detached that adapter.
func (s *Scanner) On(fn func(Event)) events.ListenerID {
	if fn == nil {
		return s.events.On(nil)
	}
	return s.events.On(func(d delivery) {
		if d.att != nil && d.att.detached.Load() {
			return
		}
		fn(d.ev)
	})
}

// Off removes a listener registered with On.
func (s *Scanner) Off(id events.ListenerID) bool {
	return s.events.Off(id)
}

// Subscribe adds a to the subscription set. It fails with
// *AlreadySubscribedError if an adapter with the same id is subscribed, in
// which case the existing subscription is left untouched.
func (s *Scanner) Subscribe(a adapter.Adapter) error {
	if a == nil {
		return errors.New("scanner: subscribe nil adapter")
	}
	id := a.ID()
	s.mu.Lock()
	if _, exists := s.subscriptions[id]; exists {
		s.mu.Unlock()
		return &AlreadySubscribedError{ID: id}
	}
	s.subscriptions[id] = a
	s.order = append(s.order, id)
	s.mu.Unlock()

	log.Debug().Str("adapter", id).Msg("scanner subscribed")
	s.events.Emit(delivery{ev: Subscribe{ID: id, Adapter: a}})
	return nil
}

// Unsubscribe removes the adapter with the given id. Unknown ids are ignored.
func (s *Scanner) Unsubscribe(id string) *Scanner {
	s.mu.Lock()
	if _, exists := s.subscriptions[id]; !exists {
		s.mu.Unlock()
		return s
	}
	delete(s.subscriptions, id)
	s.order = removeID(s.order, id)
	s.mu.Unlock()

	log.Debug().Str("adapter", id).Msg("scanner unsubscribed")
	s.events.Emit(delivery{ev: Unsubscribe{ID: id}})
	return s
}

// UnsubscribeAdapter removes a by its id.
func (s *Scanner) UnsubscribeAdapter(a adapter.Adapter) *Scanner {
	if a == nil {
		return s
	}
	return s.Unsubscribe(a.ID())
}

// Start starts every subscribed adapter and begins forwarding its events.
// Calling Start while scanning does nothing. Adapter listeners are attached
// after the scanner lock is released, so a handle may deliver synchronously
// from OnResults or OnError.
func (s *Scanner) Start() *Scanner {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return s
	}
	started := make([]*attachment, 0, len(s.order))
	for _, id := range s.order {
		a := s.subscriptions[id]
		handle := a.StartScan(s.options[id])
		if handle == nil {
			log.Warn().Str("adapter", id).Msg("adapter returned no handle")
			handle = nopHandle{}
		}
		att := &attachment{adapter: a, handle: handle}
		s.attached[id] = att
		s.attachOrder = append(s.attachOrder, id)
		started = append(started, att)
	}
	s.scanning = true
	s.mu.Unlock()

	log.Info().Int("adapters", len(started)).Msg("scanner started")
	s.events.Emit(delivery{ev: Start{}})
	for _, att := range started {
		s.attach(att)
	}
	return s
}

// Stop stops every adapter started by the last Start and removes the
// listeners Start attached. Calling Stop while idle does nothing. Stop may be
// called from inside a listener.
func (s *Scanner) Stop() *Scanner {
	s.mu.Lock()
	if !s.scanning {
		s.mu.Unlock()
		return s
	}
	stopped := make([]*attachment, 0, len(s.attachOrder))
	for _, id := range s.attachOrder {
		att := s.attached[id]
		att.detached.Store(true)
		att.adapter.StopScan()
		delete(s.attached, id)
		stopped = append(stopped, att)
	}
	s.attachOrder = nil
	s.scanning = false
	s.mu.Unlock()

	for _, att := range stopped {
		s.detach(att)
	}
	log.Info().Msg("scanner stopped")
	s.events.Emit(delivery{ev: Stop{}})
	return s
}

func (s *Scanner) attach(att *attachment) {
	results := att.handle.OnResults(s.forwardResults(att))
	errs := att.handle.OnError(s.forwardError(att))

	att.mu.Lock()
	att.results, att.errs = results, errs
	att.attached = true
	att.mu.Unlock()

	// A Stop that ran while the listeners were being added could not remove them.
	if att.detached.Load() {
		s.detach(att)
	}
}

func (s *Scanner) detach(att *attachment) {
	att.mu.Lock()
	if !att.attached {
		att.mu.Unlock()
		return
	}
	att.attached = false
	results, errs := att.results, att.errs
	att.mu.Unlock()

	att.handle.RemoveListener(results)
	att.handle.RemoveListener(errs)
}

// Scanning reports whether the scanner is started.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Subscriptions returns the subscribed adapter ids in subscription order.
func (s *Scanner) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Adapter returns the subscribed adapter with the given id.
func (s *Scanner) Adapter(id string) (adapter.Adapter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.subscriptions[id]
	return a, ok
}

func (s *Scanner) forwardResults(att *attachment) func(any) {
	return func(payload any) {
		if att.detached.Load() {
			return
		}
		s.events.Emit(delivery{ev: Results{Payload: payload}, att: att})
	}
}

func (s *Scanner) forwardError(att *attachment) func(error) {
	return func(err error) {
		if att.detached.Load() {
			return
		}
		s.events.Emit(delivery{ev: Error{Err: err}, att: att})
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

type nopHandle struct{}

func (nopHandle) OnResults(func(any)) events.ListenerID { return 0 }
func (nopHandle) OnError(func(error)) events.ListenerID { return 0 }
func (nopHandle) RemoveListener(events.ListenerID) bool { return false }
