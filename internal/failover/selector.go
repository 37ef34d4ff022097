package failover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VolDesk/internal/domain/models"
	"VolDesk/internal/domain/repository"
	applogger "VolDesk/pkg/logger"
)

// State is the selector's position in the failover state machine.
type State int32

const (
	Probing State = iota
	UsingRemote
	UsingLocal
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case UsingRemote:
		return "using_remote"
	case UsingLocal:
		return "using_local"
	default:
		return "unknown"
	}
}

// Config holds selector timing knobs.
type Config struct {
	ProbeTimeout   time.Duration // bound on a single remote ping
	HealthInterval time.Duration // period of the background re-probe
	RequestTimeout time.Duration // per-call bound for remote operations
}

// Selector owns the active-backend handle. It probes the remote at startup,
// re-probes on a fixed interval, and routes every storage operation through
// Do, which retries exactly once against the local backend when the remote
// raises a connectivity error mid-operation. The active handle is mutated
// only inside promote/demote; every operation sees one consistent backend
// for its whole duration.
type Selector struct {
	remote  repository.Backend
	local   repository.Backend
	cfg     Config
	log     *applogger.Logger
	metrics repository.Metrics

	mu     sync.RWMutex
	state  State
	active repository.Backend

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a selector. The local backend is active until the first probe
// says otherwise, so Do is always routable.
func New(remote, local repository.Backend, cfg Config, log *applogger.Logger, metrics repository.Metrics) *Selector {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	return &Selector{
		remote:  remote,
		local:   local,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		state:   Probing,
		active:  local,
		stopCh:  make(chan struct{}),
	}
}

// Start runs the initial probe and launches the background health loop.
func (s *Selector) Start(ctx context.Context) {
	if s.probeRemote(ctx) {
		s.promote(ctx, true)
	} else {
		s.demoteInitial()
	}

	s.wg.Add(1)
	go s.healthLoop()
}

// Stop terminates the health loop.
func (s *Selector) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// State returns the current failover state.
func (s *Selector) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentName returns the active backend's name ("remote" or "local").
func (s *Selector) CurrentName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Name()
}

// Do runs fn against the active backend. If the active backend is the
// remote and fn fails with a connectivity error (including an ambiguous
// timeout after the request was sent), the selector demotes to local and
// retries fn once; the idempotent natural-key upsert makes a duplicate
// attempt a no-op overwrite. A connectivity failure on local too surfaces
// as ErrStorageUnavailable. Non-connectivity errors surface unchanged.
func (s *Selector) Do(ctx context.Context, fn func(ctx context.Context, b repository.Backend) error) error {
	b := s.current()

	err := s.run(ctx, b, fn)
	if err == nil {
		return nil
	}
	if !models.IsConnectivity(err) {
		return err
	}

	if b == s.remote {
		s.demote(err)
		lerr := s.run(ctx, s.local, fn)
		if lerr == nil {
			return nil
		}
		if models.IsConnectivity(lerr) {
			return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, lerr)
		}
		return lerr
	}

	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}

func (s *Selector) current() repository.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// run bounds remote calls with the configured request timeout. Local calls
// are disk-bound and carry no extra deadline.
func (s *Selector) run(ctx context.Context, b repository.Backend, fn func(ctx context.Context, b repository.Backend) error) error {
	if b == s.remote {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
		return fn(rctx, b)
	}
	return fn(ctx, b)
}

func (s *Selector) healthLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *Selector) check() {
	ctx := context.Background()
	reachable := s.probeRemote(ctx)

	switch s.State() {
	case UsingRemote:
		if !reachable {
			s.demote(fmt.Errorf("health probe failed"))
		}
	case UsingLocal, Probing:
		if reachable {
			s.promote(ctx, false)
		}
	}
}

func (s *Selector) probeRemote(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if err := s.remote.Ping(pctx); err != nil {
		s.log.Debug("remote probe failed", applogger.Error(err))
		return false
	}
	return true
}

// promote switches the active handle to remote. Schema init runs before the
// flip so the first routed operation never races table creation.
func (s *Selector) promote(ctx context.Context, initial bool) {
	ictx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if err := s.remote.Init(ictx); err != nil {
		s.log.Warn("remote schema init failed, staying on local", applogger.Error(err))
		return
	}

	s.mu.Lock()
	if s.state == UsingRemote {
		s.mu.Unlock()
		return
	}
	s.state = UsingRemote
	s.active = s.remote
	s.mu.Unlock()

	s.metrics.SetActiveBackend("remote")
	if initial {
		s.log.Info("remote backend reachable, using remote")
	} else {
		s.metrics.RecordFailover("local_to_remote")
		s.log.Info("remote backend recovered, switched back to remote")
	}
}

// demote switches the active handle to local after a remote failure.
func (s *Selector) demote(cause error) {
	s.mu.Lock()
	if s.state == UsingLocal {
		s.mu.Unlock()
		return
	}
	s.state = UsingLocal
	s.active = s.local
	s.mu.Unlock()

	s.metrics.SetActiveBackend("local")
	s.metrics.RecordFailover("remote_to_local")
	s.log.Warn("remote backend unreachable, failing over to local", applogger.Error(cause))
}

func (s *Selector) demoteInitial() {
	s.mu.Lock()
	s.state = UsingLocal
	s.active = s.local
	s.mu.Unlock()

	s.metrics.SetActiveBackend("local")
	s.log.Warn("remote backend unreachable at startup, using local")
}
