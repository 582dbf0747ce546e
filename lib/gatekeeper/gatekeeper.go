// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package gatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gladiatordan/ResourceTracker/lib/clock"
	"github.com/gladiatordan/ResourceTracker/lib/dbexec"
	"github.com/gladiatordan/ResourceTracker/lib/queue"
	"github.com/gladiatordan/ResourceTracker/lib/role"
	"github.com/gladiatordan/ResourceTracker/lib/taxonomy"
	"github.com/gladiatordan/ResourceTracker/lib/wire"
)

// Actions the gatekeeper serves.
const (
	ActionGetResourceData = "get_resource_data"
	ActionGetTaxonomyData = "get_taxonomy_data"
	ActionAddResource     = "add_resource"
	ActionUpdateResource  = "update_resource"
	ActionRetireResource  = "retire_resource"
	ActionSetUserRole     = "set_user_role"
	ActionSyncUser        = "sync_user"
	ActionReloadCache     = "reload_cache"
)

// State is the gatekeeper's lifecycle phase.
type State int32

const (
	StateHydrating State = iota
	StateReady
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateHydrating:
		return "HYDRATING"
	case StateReady:
		return "READY"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// DefaultRefreshInterval is how often the mutable permission datasets
// are rebuilt from the database.
const DefaultRefreshInterval = 30 * time.Second

// DefaultHydrationTimeout bounds each hydration dataset load.
const DefaultHydrationTimeout = 30 * time.Second

// opTimeout bounds a single database round trip inside a handler.
const opTimeout = 10 * time.Second

// publishTimeout bounds a reply or alert publish to the fabric.
const publishTimeout = 5 * time.Second

// Config configures a Gatekeeper.
type Config struct {
	// Commands is the inbound packet channel, fed by the router.
	// Required.
	Commands <-chan wire.Packet

	// DB is the executor's command channel. Required.
	DB chan<- dbexec.Command

	// Client is the queue-fabric client replies and alerts are
	// published through. Required.
	Client *queue.Client

	// Logger is the structured logger. Required.
	Logger *slog.Logger

	// Clock drives the refresh ticker and operation timeouts. Nil
	// means the real clock.
	Clock clock.Clock

	// RefreshInterval overrides DefaultRefreshInterval when positive.
	RefreshInterval time.Duration

	// HydrationTimeout overrides DefaultHydrationTimeout when
	// positive.
	HydrationTimeout time.Duration

	// Registerer receives the gatekeeper's metrics. Nil means the
	// metrics are created but not registered (tests).
	Registerer prometheus.Registerer
}

// handlerFunc processes one authorized packet and returns the reply
// data or a domain error.
type handlerFunc func(ctx context.Context, pkt wire.Packet, power int) (any, error)

// Gatekeeper is the validation actor. Construct with New, then run
// Serve; Ready() is closed once hydration succeeds and commands are
// being accepted.
type Gatekeeper struct {
	commands         <-chan wire.Packet
	db               chan<- dbexec.Command
	client           *queue.Client
	logger           *slog.Logger
	clk              clock.Clock
	refreshInterval  time.Duration
	hydrationTimeout time.Duration

	state atomic.Int32
	ready chan struct{}

	// Loop-owned caches. Only the serve loop (and pre-READY
	// hydration) touches these.
	auth      *authState
	nodes     map[int64]taxonomy.Node
	validity  map[int64]struct{}
	labels    map[string]int64
	resources map[string]map[int64]map[string]any

	// refreshed delivers off-loop rebuilds of the permission
	// datasets into the loop.
	refreshed  chan *authState
	refreshing atomic.Bool

	dispatch map[string]handlerFunc
	sanitize *bluemonday.Policy

	handled         *prometheus.CounterVec
	refreshFailures prometheus.Counter
}

// New creates a gatekeeper. Call Serve to hydrate and start.
func New(config Config) (*Gatekeeper, error) {
	if config.Commands == nil {
		return nil, errors.New("gatekeeper: Commands is required")
	}
	if config.DB == nil {
		return nil, errors.New("gatekeeper: DB is required")
	}
	if config.Client == nil {
		return nil, errors.New("gatekeeper: Client is required")
	}
	if config.Logger == nil {
		return nil, errors.New("gatekeeper: Logger is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	refreshInterval := config.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	hydrationTimeout := config.HydrationTimeout
	if hydrationTimeout <= 0 {
		hydrationTimeout = DefaultHydrationTimeout
	}

	factory := promauto.With(config.Registerer)
	g := &Gatekeeper{
		commands:         config.Commands,
		db:               config.DB,
		client:           config.Client,
		logger:           config.Logger,
		clk:              clk,
		refreshInterval:  refreshInterval,
		hydrationTimeout: hydrationTimeout,
		ready:            make(chan struct{}),
		auth:             newAuthState(),
		nodes:            make(map[int64]taxonomy.Node),
		validity:         make(map[int64]struct{}),
		labels:           make(map[string]int64),
		resources:        make(map[string]map[int64]map[string]any),
		refreshed:        make(chan *authState, 1),
		sanitize:         bluemonday.StrictPolicy(),
		handled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_commands_total",
			Help: "Commands processed, by action and reply status.",
		}, []string{"action", "status"}),
		refreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_refresh_failures_total",
			Help: "Periodic permission refreshes that failed.",
		}),
	}
	g.dispatch = map[string]handlerFunc{
		ActionGetResourceData: g.handleGetResourceData,
		ActionGetTaxonomyData: g.handleGetTaxonomyData,
		ActionAddResource:     g.handleAddResource,
		ActionUpdateResource:  g.handleUpdateResource,
		ActionRetireResource:  g.handleRetireResource,
		ActionSetUserRole:     g.handleSetUserRole,
		ActionSyncUser:        g.handleSyncUser,
		ActionReloadCache:     g.handleReloadCache,
	}
	return g, nil
}

// State reports the gatekeeper's lifecycle phase.
func (g *Gatekeeper) State() State { return State(g.state.Load()) }

// Ready returns a channel closed once hydration has completed and the
// gatekeeper is serving commands.
func (g *Gatekeeper) Ready() <-chan struct{} { return g.ready }

// Serve hydrates the caches and then processes commands until ctx is
// cancelled. A hydration failure is fatal: the gatekeeper never
// reaches READY and Serve returns the error.
func (g *Gatekeeper) Serve(ctx context.Context) error {
	g.state.Store(int32(StateHydrating))
	if err := g.hydrate(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		g.logger.Error("hydration failed", "error", err)
		return err
	}

	g.state.Store(int32(StateReady))
	close(g.ready)
	g.logger.Info("gatekeeper ready",
		"servers", len(g.auth.servers),
		"taxonomy_nodes", len(g.nodes),
		"valid_types", len(g.validity),
	)

	ticker := g.clk.NewTicker(g.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.state.Store(int32(StateStopping))
			g.logger.Info("gatekeeper stopping")
			g.state.Store(int32(StateStopped))
			return nil

		case pkt := <-g.commands:
			g.handle(ctx, pkt)

		case <-ticker.C:
			g.startRefresh(ctx)

		case auth := <-g.refreshed:
			g.auth = auth
		}
	}
}

// handle processes one packet end to end: permission gate, dispatch,
// reply delivery, metrics.
func (g *Gatekeeper) handle(ctx context.Context, pkt wire.Packet) {
	reply := g.process(ctx, pkt)
	g.handled.WithLabelValues(pkt.Action, reply.Status).Inc()

	if pkt.ReplyTo == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := g.client.Publish(pubCtx, pkt.ReplyTo, reply); err != nil {
		g.logger.Error("failed to publish reply",
			"channel", pkt.ReplyTo,
			"correlation_id", pkt.ID,
			"error", err,
		)
	}
}

// process runs the gate and handler under panic recovery. A panic in
// any handler is logged with its stack and answered with a generic
// internal error; the loop keeps serving.
func (g *Gatekeeper) process(ctx context.Context, pkt wire.Packet) (reply wire.Reply) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("handler panicked",
				"action", pkt.Action,
				"correlation_id", pkt.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			reply = wire.ErrorReply(pkt.ID, "internal server error")
		}
	}()

	handler, ok := g.dispatch[pkt.Action]
	if !ok {
		return wire.ErrorReply(pkt.ID, "unknown action: "+pkt.Action)
	}

	power := g.callerPower(pkt)
	if err := g.authorize(pkt.Action, power); err != nil {
		g.logger.Warn("permission denied",
			"action", pkt.Action,
			"server_id", serverOf(pkt),
			"power", power,
		)
		return wire.ErrorReply(pkt.ID, err.Error())
	}

	data, err := handler(ctx, pkt, power)
	if err != nil {
		g.logFailure(pkt, err)
		return wire.ErrorReply(pkt.ID, err.Error())
	}
	return wire.SuccessReply(pkt.ID, data)
}

// logFailure logs a handler error at a level matching its kind:
// domain rejections are routine, anything else is an operational
// problem.
func (g *Gatekeeper) logFailure(pkt wire.Packet, err error) {
	var (
		ve ValidationError
		pe PermissionError
	)
	if errors.As(err, &ve) || errors.As(err, &pe) {
		g.logger.Warn("command rejected",
			"action", pkt.Action,
			"server_id", serverOf(pkt),
			"error", err,
		)
		return
	}
	g.logger.Error("command failed",
		"action", pkt.Action,
		"server_id", serverOf(pkt),
		"error", err,
	)
}

// callerPower computes the caller's effective power for the packet's
// tenant. The superadmin set is authoritative over any role the packet
// claims; anonymous packets rank as GUEST.
func (g *Gatekeeper) callerPower(pkt wire.Packet) int {
	uc := pkt.UserContext
	if uc == nil || uc.UserID == "" {
		return role.PowerGuest
	}
	if _, ok := g.auth.superadmins[uc.UserID]; ok {
		return role.PowerSuperadmin
	}

	// Parse failures leave the zero Role, which ranks as GUEST.
	global, _ := role.Parse(uc.GlobalRole)
	grant := g.auth.grants[uc.UserID][serverOf(pkt)]
	return role.Effective(global, grant)
}

// authorize applies the persisted permission table. Actions the table
// does not mention require SUPERADMIN; sync_user is exempt because it
// is how a user first comes to exist.
func (g *Gatekeeper) authorize(action string, power int) error {
	if action == ActionSyncUser {
		return nil
	}
	required, ok := g.auth.permissions[action]
	if !ok {
		required = role.PowerSuperadmin
	}
	if power < required {
		return PermissionError("permission denied")
	}
	return nil
}

// startRefresh kicks off an off-loop rebuild of the permission
// datasets, unless one is already running.
func (g *Gatekeeper) startRefresh(ctx context.Context) {
	if !g.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer g.refreshing.Store(false)
		auth, err := g.loadAuthState(ctx)
		if err != nil {
			if ctx.Err() == nil {
				g.refreshFailures.Inc()
				g.logger.Warn("permission refresh failed", "error", err)
			}
			return
		}
		select {
		case g.refreshed <- auth:
		case <-ctx.Done():
		}
	}()
}

// runDB sends one command to the executor and awaits its reply.
func (g *Gatekeeper) runDB(ctx context.Context, mode dbexec.Mode, statements []dbexec.Statement, timeout time.Duration) (dbexec.Result, error) {
	sink := make(dbexec.ChanSink, 1)
	cmd := dbexec.Command{
		ID:         wire.NewID(),
		Mode:       mode,
		Statements: statements,
		Reply:      sink,
	}

	select {
	case g.db <- cmd:
	case <-g.clk.After(timeout):
		return dbexec.Result{}, errors.New("database queue is saturated")
	case <-ctx.Done():
		return dbexec.Result{}, ctx.Err()
	}

	select {
	case reply := <-sink:
		if !reply.OK() {
			return dbexec.Result{}, errors.New(reply.Error)
		}
		result, ok := reply.Data.(dbexec.Result)
		if !ok {
			return dbexec.Result{}, errors.New("unexpected reply shape from executor")
		}
		return result, nil
	case <-g.clk.After(timeout):
		return dbexec.Result{}, errors.New("database timed out")
	case <-ctx.Done():
		return dbexec.Result{}, ctx.Err()
	}
}

// serverOf returns the packet's tenant, defaulting like NewPacket.
func serverOf(pkt wire.Packet) string {
	if pkt.ServerID == "" {
		return wire.DefaultServerID
	}
	return pkt.ServerID
}
