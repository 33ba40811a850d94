// Package agent runs one node agent invocation: it loads the node credentials, obtains an access
// token, inventories the hardware and reports it in a heartbeat, then stores the rotated token
// returned by the server.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/exalsius/node-agent/internal/constants"
	"github.com/exalsius/node-agent/internal/credentials"
	"github.com/exalsius/node-agent/internal/hardware"
	"github.com/exalsius/node-agent/internal/heartbeat"
)

// CredentialStore loads and updates the persisted node credentials.
type CredentialStore interface {
	LoadOrCreate(o credentials.Overrides) (credentials.Record, error)
	PersistValue(key, value string) error
}

// TokenRefresher exchanges a refresh token for an access token.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken, clientID, clientDomain string) (string, error)
}

// Collector inventories the local hardware.
type Collector interface {
	Collect(ctx context.Context) (hardware.Inventory, error)
	Details() hardware.Details
}

// Sender reports the inventory to the control plane.
type Sender interface {
	Send(ctx context.Context, nodeID, apiURL, accessToken string, inv hardware.Inventory) (heartbeat.Response, error)
}

// Agent walks a single run through its states. It never retries.
type Agent struct {
	log *slog.Logger

	store     CredentialStore
	refresher TokenRefresher
	collector Collector
	sender    Sender

	skipHeartbeat   bool
	metricsTextfile string
	now             func() time.Time
}

type options struct {
	log             *slog.Logger
	skipHeartbeat   bool
	metricsTextfile string
	now             func() time.Time
}

// Options represents an optional function to override Agent default values.
type Options func(*options)

// New returns a new Agent running with the given components.
func New(store CredentialStore, refresher TokenRefresher, collector Collector, sender Sender, args ...Options) Agent {
	opts := options{
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}

	return Agent{
		log:             opts.log,
		store:           store,
		refresher:       refresher,
		collector:       collector,
		sender:          sender,
		skipHeartbeat:   opts.skipHeartbeat,
		metricsTextfile: opts.metricsTextfile,
		now:             opts.now,
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger slog.Handler) Options {
	return func(o *options) {
		o.log = slog.New(logger)
	}
}

// WithSkipHeartbeat only collects the hardware inventory, without touching credentials or the network.
func WithSkipHeartbeat(skip bool) Options {
	return func(o *options) {
		o.skipHeartbeat = skip
	}
}

// WithMetricsTextfile writes the run outcome as prometheus metrics to path after every run.
func WithMetricsTextfile(path string) Options {
	return func(o *options) {
		o.metricsTextfile = path
	}
}

// Run executes one agent run with the given credential overrides.
// Any failure is returned as a *RunError naming the state which failed.
func (a Agent) Run(ctx context.Context, o credentials.Overrides) (err error) {
	r := run{Agent: a, state: StateStart}
	defer func() {
		r.finish(err)
	}()

	a.log.Info("Starting node agent", "version", constants.Version)
	a.logDetails()

	if a.skipHeartbeat {
		if err := r.collect(ctx); err != nil {
			return err
		}
		a.log.Info("Hardware collected (heartbeat skipped by flag)", "inventory", r.inv)
		return nil
	}

	r.enter(StateLoadCredentials)
	rec, err := a.store.LoadOrCreate(o)
	if err != nil {
		return r.fail(err)
	}

	token, err := r.accessToken(ctx, rec)
	if err != nil {
		return err
	}

	if err := r.collect(ctx); err != nil {
		return err
	}

	r.enter(StateSendHeartbeat)
	resp, err := a.sender.Send(ctx, rec.NodeID, rec.APIURL, token, r.inv)
	if err != nil {
		return r.fail(err)
	}
	a.log.Info("Heartbeat accepted", "node_id", resp.NodeID, "expires_in", resp.NextAccessTokenExpiresIn)

	r.enter(StatePersistToken)
	key := credentials.KeyAuthToken
	if rec.RefreshMode() {
		key = credentials.KeyAccessToken
	}
	if err := a.store.PersistValue(key, resp.NextAccessToken); err != nil {
		a.log.Error("Heartbeat was accepted but the rotated token could not be stored, the node must be re-enrolled", "key", key, "error", err)
		return r.fail(&RotationError{Key: key, Err: err})
	}

	r.enter(StateDone)
	a.log.Info("Node agent run completed")
	return nil
}

func (a Agent) logDetails() {
	d := a.collector.Details()
	a.log.Debug("Host details", "os", d.OS, "kernel", d.Kernel, "ethernet", len(d.Ethernet))
}

// run is the state of a single Agent.Run call.
type run struct {
	Agent

	state State
	inv   hardware.Inventory
}

func (r *run) enter(s State) {
	r.log.Debug("Entering state", "state", s)
	r.state = s
}

func (r *run) fail(err error) error {
	return &RunError{State: r.state, Err: err}
}

// accessToken returns the token to authenticate the heartbeat with.
// In rotation mode it is the stored token, in refresh mode it is exchanged from the stored refresh token.
func (r *run) accessToken(ctx context.Context, rec credentials.Record) (string, error) {
	r.enter(StateRefreshToken)
	if !rec.RefreshMode() {
		r.log.Info("No Auth0 client configured, using the stored access token")
		return rec.AuthToken, nil
	}

	token, err := r.refresher.RefreshAccessToken(ctx, rec.AuthToken, rec.Auth0ClientID, rec.Auth0ClientDomain)
	if err != nil {
		return "", r.fail(err)
	}
	r.log.Info("Obtained a new access token", "domain", rec.Auth0ClientDomain)
	return token, nil
}

func (r *run) collect(ctx context.Context) (err error) {
	r.enter(StateCollectInventory)
	r.inv, err = r.collector.Collect(ctx)
	if err != nil {
		return r.fail(err)
	}
	return nil
}

// finish logs the run outcome and exports it as metrics.
func (r *run) finish(err error) {
	var failed State
	var runErr *RunError
	if errors.As(err, &runErr) {
		failed = runErr.State
		r.enter(StateFailed)
	}

	if r.metricsTextfile == "" {
		return
	}
	if wErr := newRunMetrics().write(r.metricsTextfile, failed, r.inv.GPUCount, r.now()); wErr != nil {
		r.log.Warn("Failed to write run metrics", "path", r.metricsTextfile, "error", wErr)
	}
}
