// Package stage implements the Stage component: the registry that
// composes every other subsystem (NetSystem, Directory, Router,
// Pipeline, ResponseTracker, ExecutionSystem, Transport, Serializer) and
// owns their combined start/stop lifecycle plus the cooperative tick loop.
package stage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roasbeef/subtrate/internal/orbitcore/capability"
	"github.com/roasbeef/subtrate/internal/orbitcore/clock"
	"github.com/roasbeef/subtrate/internal/orbitcore/cluster"
	"github.com/roasbeef/subtrate/internal/orbitcore/directory"
	"github.com/roasbeef/subtrate/internal/orbitcore/execution"
	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/pipeline"
	"github.com/roasbeef/subtrate/internal/orbitcore/pool"
	"github.com/roasbeef/subtrate/internal/orbitcore/router"
	"github.com/roasbeef/subtrate/internal/orbitcore/serializer"
	"github.com/roasbeef/subtrate/internal/orbitcore/tracker"
	"github.com/roasbeef/subtrate/internal/orbitcore/transport"
	"github.com/roasbeef/subtrate/internal/orbitcore/wire"
)

// status tracks the Stage's own lifecycle, independent of any individual
// handler's state machine.
type status uint32

const (
	statusStopped status = iota
	statusStarting
	statusRunning
	statusStopping
)

// ErrorHandler is the single process-wide sink for errors raised by
// background tasks (tick, unmatched responses) that have no caller waiting
// on them — always passed in explicitly rather than an ambient singleton.
type ErrorHandler func(source string, err error)

// Config enumerates the Stage's configurable parameters.
type Config struct {
	ClusterName  string
	NodeIdentity netid.NodeIdentity
	Mode         netid.NodeMode

	TickRateMillis       int64
	TimeToLiveMillis     int64
	MessageTimeoutMillis int64
	PipelineBufferCount  int
	MailboxCapacity      int

	// ShutdownDeadline bounds how long Stop() waits for in-flight
	// handlers to deactivate before forcing cancellation.
	ShutdownDeadline time.Duration

	ErrorHandler ErrorHandler
}

// DefaultConfig fills in reasonable defaults for every field not already
// set.
func DefaultConfig() Config {
	return Config{
		TickRateMillis:       1000,
		TimeToLiveMillis:     600_000,
		MessageTimeoutMillis: 10_000,
		PipelineBufferCount:  10_000,
		MailboxCapacity:      128,
		ShutdownDeadline:     10 * time.Second,
		ErrorHandler:         func(string, error) {},
	}
}

// Stage composes every subsystem and owns their combined lifecycle. It is
// built in two phases: New wires the registry (addressable definitions
// may still be registered after construction, via Register),
// and Start() performs the capability scan / pipeline bring-up that needs
// every component to already exist.
type Stage struct {
	cfg Config

	clk        clock.Clock
	netSystem  *netid.NetSystem
	registry   *capability.Registry
	membership *cluster.Membership
	trk        *tracker.Tracker
	execSystem *execution.System
	pipe       *pipeline.Pipeline

	cpuPool *pool.Scope
	ioPool  *pool.Scope

	st status

	tickCancel context.CancelFunc
	tickDone   chan struct{}
}

// New builds a Stage from its external collaborators. The Stage never
// starts or stops the backend or the transport; their owner does.
func New(cfg Config, backend directory.AddressableDirectory,
	tp transport.Transport) *Stage {

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(string, error) {}
	}

	clk := clock.NewSystemClock()
	netSystem := netid.NewNetSystem(netid.NetSystemConfig{
		ClusterName:  cfg.ClusterName,
		NodeIdentity: cfg.NodeIdentity,
		Mode:         cfg.Mode,
	})
	registry := capability.NewRegistry()
	membership := cluster.New()
	dir := directory.New(backend, cfg.NodeIdentity)
	routerImpl := router.New(dir, registry, membership, cfg.NodeIdentity)
	trk := tracker.New(clk)
	ser := serializer.NewGobSerializer()

	s := &Stage{
		cfg:        cfg,
		clk:        clk,
		netSystem:  netSystem,
		registry:   registry,
		membership: membership,
		trk:        trk,
		cpuPool:    pool.NewCPUScope(func(src string, err error) { cfg.ErrorHandler(src, err) }),
		ioPool:     pool.NewIOScope(func(src string, err error) { cfg.ErrorHandler(src, err) }),
	}

	removeIfLocal := func(ctx context.Context, ref netid.AddressableReference) {
		if err := dir.RemoveIfLocal(ctx, ref); err != nil {
			cfg.ErrorHandler("execution.removeIfLocal", err)
		}
	}

	s.execSystem = execution.New(registry, clk, removeIfLocal, execution.Config{
		MailboxCapacity:  cfg.MailboxCapacity,
		TimeToLiveMillis: cfg.TimeToLiveMillis,
	})

	s.pipe = pipeline.New(cfg.PipelineBufferCount, s.execSystem,
		&pipeline.IdentityStep{LocalNode: cfg.NodeIdentity, Clock: clk},
		&pipeline.ResponseTrackingStep{
			Tracker:              trk,
			DefaultTimeoutMillis: cfg.MessageTimeoutMillis,
		},
		&pipeline.RoutingStep{Router: routerImpl},
		&pipeline.LocalDispatchStep{
			LocalNode:  cfg.NodeIdentity,
			Dispatcher: s.execSystem,
		},
		&pipeline.SerializationStep{Serializer: ser},
		&pipeline.TransportStep{Transport: tp},
	)

	tp.SetReceiveHandler(func(ctx context.Context, _ netid.NodeIdentity, payload []byte) {
		if err := s.pipe.SubmitInboundBytes(ctx, payload); err != nil {
			cfg.ErrorHandler("pipeline.inbound", err)
		}
	})

	return s
}

// Register installs an addressable interface's definition and factory.
// Must be called before Start(), since the capability scan it stands in
// for happens once at start-up.
func (s *Stage) Register(def capability.Definition, factory capability.Factory) {
	s.registry.Register(def, factory)
}

// AddPeer registers a remote node's known capabilities with the cluster
// membership view the Router consults.
func (s *Stage) AddPeer(node netid.NodeIdentity, capabilities []string) {
	s.membership.AddPeer(node, capabilities)
}

// Invoke submits an outbound invocation through the pipeline and awaits its
// Completion — the mechanism ActorProxy method calls are built on.
func (s *Stage) Invoke(ctx context.Context,
	invocation wire.AddressableInvocation, timeoutMillis int64) (any, error) {

	if timeoutMillis == 0 {
		def, ok := s.registry.Definition(invocation.Reference.InterfaceID)
		if ok {
			timeoutMillis = def.TimeoutMillis
		}
	}

	msg := &wire.Message{
		Kind:          wire.KindRequestInvocation,
		Invocation:    invocation,
		Completion:    wire.NewCompletion(),
		TimeoutMillis: timeoutMillis,
	}

	if err := s.pipe.SubmitOutbound(ctx, msg); err != nil {
		return nil, err
	}

	result := msg.Completion.Future().Await(ctx)
	return result.Unpack()
}

// Start transitions STOPPED -> STARTING -> RUNNING: publishes this node's
// capability list from the registered definitions, then launches the tick
// task.
func (s *Stage) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32((*uint32)(&s.st), uint32(statusStopped), uint32(statusStarting)) {
		return fmt.Errorf("stage: cannot start from non-stopped state")
	}

	s.netSystem.SetStatus(netid.StatusStarting)

	capabilities := s.registry.InterfaceIDs()
	s.netSystem.SetCapabilities(capabilities)
	s.membership.AddPeer(s.cfg.NodeIdentity, capabilities)

	tickCtx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickDone = make(chan struct{})
	go s.runTickLoop(tickCtx)

	s.netSystem.SetStatus(netid.StatusRunning)
	atomic.StoreUint32((*uint32)(&s.st), uint32(statusRunning))

	log.InfoS(ctx, "Stage started",
		"node", s.cfg.NodeIdentity, "capabilities", capabilities)

	return nil
}

// runTickLoop drives the periodic maintenance pass: response-tracker sweep
// runs before the execution-system sweep, each tick.
func (s *Stage) runTickLoop(ctx context.Context) {
	defer close(s.tickDone)

	interval := time.Duration(s.cfg.TickRateMillis) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := s.clk.Now()

			s.trk.OnTick()
			s.execSystem.OnTick()

			elapsed := s.clk.Now() - start
			if elapsed > s.cfg.TickRateMillis {
				log.WarnS(ctx, "Slow tick", nil,
					"elapsed_ms", elapsed, "budget_ms", s.cfg.TickRateMillis)
			}
		}
	}
}

// Stop transitions RUNNING -> STOPPING -> STOPPED: deactivates every
// handler in parallel bounded by ShutdownDeadline, cancels the tick task,
// then stops the worker pools. It does not stop the transport.
func (s *Stage) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32((*uint32)(&s.st), uint32(statusRunning), uint32(statusStopping)) {
		return fmt.Errorf("stage: cannot stop from non-running state")
	}

	s.netSystem.SetStatus(netid.StatusStopping)

	s.execSystem.Shutdown(s.cfg.ShutdownDeadline)

	if s.tickCancel != nil {
		s.tickCancel()
		<-s.tickDone
	}

	s.cpuPool.Stop()
	s.ioPool.Stop()

	s.netSystem.SetStatus(netid.StatusStopped)
	atomic.StoreUint32((*uint32)(&s.st), uint32(statusStopped))

	log.InfoS(ctx, "Stage stopped", "node", s.cfg.NodeIdentity)

	return nil
}

// NetSystem returns the Stage's local node identity/status view, for
// introspection (e.g. orbitmcp, orbitdocs).
func (s *Stage) NetSystem() *netid.NetSystem { return s.netSystem }

// ActiveCount returns the number of currently active local handlers.
func (s *Stage) ActiveCount() int { return s.execSystem.ActiveCount() }

// PendingResponses returns the number of in-flight tracked responses.
func (s *Stage) PendingResponses() int { return s.trk.Pending() }
