// Package telemetry reports anonymous usage events for the MCP server.
//
// Events are buffered until the hashed device id is resolved, then sent in
// batches through the management API. A failed send keeps the events in the
// EventCache and they are retried, ahead of newer events, on the next emit.
//
// # What is sent
//
//   - A device id: HMAC-SHA256 of the host identifier, never the raw value
//   - Server name and version, client name and version
//   - Platform, architecture and OS version
//   - A random per-session id
//   - Whether API credentials and a connection string are configured (booleans only)
//   - Per tool call: tool name, category, duration, result and error kind
//
// # How to disable
//
// Set MDB_MCP_TELEMETRY=disabled, or DO_NOT_TRACK=1.
package telemetry

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/sony/gobreaker"

	mcperrors "github.com/mongodb-labs/atlas-mcp-server/internal/errors"
	"github.com/mongodb-labs/atlas-mcp-server/internal/metrics"
	"github.com/mongodb-labs/atlas-mcp-server/internal/utils"
)

const (
	// DefaultDeviceIDTimeout bounds the machine identity lookup.
	DefaultDeviceIDTimeout = 3 * time.Second

	// sendTimeout is the maximum time for a single batch send.
	sendTimeout = 10 * time.Second
)

var nowFn = time.Now

// Sender delivers a batch of events to the telemetry backend.
type Sender interface {
	SendEvents(ctx context.Context, events []Event) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, events []Event) error

// SendEvents calls f.
func (f SenderFunc) SendEvents(ctx context.Context, events []Event) error {
	return f(ctx, events)
}

// SessionInfo exposes the per-session values merged into common properties.
type SessionInfo interface {
	ID() string
	ClientInfo() (name, version string)
}

// Config holds the static configuration for the telemetry pipeline.
type Config struct {
	ServerName    string
	ServerVersion string

	// Enabled is consulted on every emit so runtime opt-outs are honoured.
	Enabled func() bool

	DeviceIDTimeout            time.Duration
	AtlasAuthConfigured        bool
	ConnectionStringConfigured bool
}

// Option customises a Telemetry instance.
type Option func(*Telemetry)

// WithMachineID replaces the host identity lookup.
func WithMachineID(fn MachineIDFunc) Option {
	return func(t *Telemetry) {
		if fn != nil {
			t.machineID = fn
		}
	}
}

// WithBreakerSettings replaces the circuit breaker guarding sends.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(t *Telemetry) {
		t.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

// Telemetry composes the event cache, device identity and a Sender into
// the buffer, retry and flush pipeline.
type Telemetry struct {
	cfg       Config
	session   SessionInfo
	sender    Sender
	cache     *EventCache
	breaker   *gobreaker.CircuitBreaker
	machineID MachineIDFunc

	mu        sync.RWMutex
	buffering bool
	static    map[string]any

	// sendMu serialises snapshot, send and clear so one cycle owns the cached events.
	sendMu sync.Mutex

	resolveOnce sync.Once
	resolved    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the pipeline in buffering mode and starts device id resolution.
func New(cfg Config, session SessionInfo, sender Sender, cache *EventCache, opts ...Option) *Telemetry {
	if cache == nil {
		cache = NewEventCache()
	}
	if cfg.DeviceIDTimeout <= 0 {
		cfg.DeviceIDTimeout = DefaultDeviceIDTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Telemetry{
		cfg:       cfg,
		session:   session,
		sender:    sender,
		cache:     cache,
		machineID: HostMachineID,
		buffering: true,
		resolved:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	t.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings())
	for _, opt := range opts {
		opt(t)
	}
	t.static = staticProperties(ctx, cfg)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.resolveDeviceID()
	}()

	return t
}

func defaultBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "telemetry",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Debug().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Telemetry circuit breaker changed state")
		},
	}
}

func staticProperties(ctx context.Context, cfg Config) map[string]any {
	osVersion, err := host.KernelVersionWithContext(ctx)
	if err != nil || osVersion == "" {
		osVersion = runtime.Version()
	}
	return map[string]any{
		"mcp_server_version":       cfg.ServerVersion,
		"mcp_server_name":          cfg.ServerName,
		"platform":                 runtime.GOOS,
		"arch":                     runtime.GOARCH,
		"os_type":                  runtime.GOOS,
		"os_version":               osVersion,
		"config_atlas_auth":        strconv.FormatBool(cfg.AtlasAuthConfigured),
		"config_connection_string": strconv.FormatBool(cfg.ConnectionStringConfigured),
	}
}

// resolveDeviceID races the machine id lookup against the configured timeout.
func (t *Telemetry) resolveDeviceID() {
	raw, err := utils.FirstOf(t.ctx, t.cfg.DeviceIDTimeout, func(ctx context.Context) (string, error) {
		return t.machineID(ctx)
	})

	deviceID := UnknownDeviceID
	switch {
	case err == nil:
		deviceID = HashDeviceID(raw)
	case errors.Is(err, utils.ErrTimedOut):
		log.Debug().Dur("timeout", t.cfg.DeviceIDTimeout).Msg("Device id lookup timed out")
	default:
		log.Debug().Err(err).Msg("Device id lookup failed")
	}

	if t.setDeviceID(deviceID) {
		t.flush(t.ctx)
	}
}

// setDeviceID records the device id and leaves buffering mode. Only the first call has any effect.
func (t *Telemetry) setDeviceID(id string) bool {
	won := false
	t.resolveOnce.Do(func() {
		t.mu.Lock()
		t.static["device_id"] = id
		t.buffering = false
		t.mu.Unlock()
		close(t.resolved)
		won = true
	})
	return won
}

// DeviceIDResolved is closed once the device id is known.
func (t *Telemetry) DeviceIDResolved() <-chan struct{} {
	return t.resolved
}

// DeviceID waits for resolution and returns the device id. If ctx ends first it
// returns UnknownDeviceID without affecting the pending resolution.
func (t *Telemetry) DeviceID(ctx context.Context) string {
	select {
	case <-t.resolved:
	case <-ctx.Done():
		return UnknownDeviceID
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, _ := t.static["device_id"].(string)
	return id
}

// IsBuffering reports whether events are still being held for device id resolution.
func (t *Telemetry) IsBuffering() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buffering
}

// IsEnabled reports whether events are currently accepted.
func (t *Telemetry) IsEnabled() bool {
	return t.cfg.Enabled == nil || t.cfg.Enabled()
}

// CommonProperties returns the fields merged into every event, read fresh on each call.
func (t *Telemetry) CommonProperties() map[string]any {
	t.mu.RLock()
	props := make(map[string]any, len(t.static)+3)
	for k, v := range t.static {
		props[k] = v
	}
	t.mu.RUnlock()

	if t.session != nil {
		if id := t.session.ID(); id != "" {
			props["session_id"] = id
		}
		if name, version := t.session.ClientInfo(); name != "" {
			props["mcp_client_name"] = name
			props["mcp_client_version"] = version
		}
	}
	return props
}

// EmitEvents sends events, or caches them while buffering or after a failed send.
// It never returns an error; failures are logged and retried on the next emit.
func (t *Telemetry) EmitEvents(ctx context.Context, events []Event) {
	if !t.IsEnabled() {
		log.Debug().Int("events", len(events)).Msg("Telemetry is disabled, skipping events")
		return
	}

	// The buffering check and the append share the lock so resolution cannot slip between them.
	t.mu.RLock()
	if t.buffering {
		t.cache.Append(events...)
		t.mu.RUnlock()
		metrics.SetTelemetryCached(t.cache.Len())
		log.Debug().Int("events", len(events)).Msg("Buffering telemetry events until device id is resolved")
		return
	}
	t.mu.RUnlock()

	t.emit(ctx, events)
}

// flush sends whatever is cached.
func (t *Telemetry) flush(ctx context.Context) {
	if !t.IsEnabled() {
		return
	}
	t.emit(ctx, nil)
}

func (t *Telemetry) emit(ctx context.Context, events []Event) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	cached, mark := t.cache.Snapshot()
	if len(cached)+len(events) == 0 {
		return
	}

	common := t.CommonProperties()
	batch := make([]Event, 0, len(cached)+len(events))
	for _, e := range cached {
		batch = append(batch, e.withCommon(common))
	}
	for _, e := range events {
		batch = append(batch, e.withCommon(common))
	}

	log.Debug().
		Int("events", len(batch)).
		Int("cached", len(cached)).
		Msg("Attempting to send telemetry events")

	err := t.send(ctx, batch)
	metrics.RecordTelemetrySend(len(batch), err)
	if err != nil {
		t.cache.Append(events...)
		metrics.SetTelemetryCached(t.cache.Len())
		log.Warn().
			Err(mcperrors.New(mcperrors.KindTelemetrySendFailure, "send_events", err)).
			Int("cached", t.cache.Len()).
			Msg("Failed to send telemetry events, caching for retry")
		return
	}

	t.cache.ClearThrough(mark)
	metrics.SetTelemetryCached(t.cache.Len())
	log.Debug().Int("events", len(batch)).Msg("Sent telemetry events")
}

func (t *Telemetry) send(ctx context.Context, batch []Event) error {
	if t.sender == nil {
		return mcperrors.ErrTelemetrySendFailure
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.sender.SendEvents(sendCtx, batch)
	})
	return err
}

// Close forces device id resolution to UnknownDeviceID if still pending, then
// flushes the cache. It returns once the flush completes or ctx ends.
func (t *Telemetry) Close(ctx context.Context) {
	t.setDeviceID(UnknownDeviceID)
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Timed out waiting for device id resolution during telemetry shutdown")
		return
	}

	t.flush(ctx)
}
