package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/metrics"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/registry"
)

const (
	minSerialLength = 6

	provisionalSubtitle = "온라인 · 자동 모드 · 약풍 (목업)"
	provisionalAQI      = 30
	provisionalAQILabel = "좋음"

	// isoMillis matches the lastUpdated format of locally registered devices.
	isoMillis = "2006-01-02T15:04:05.000Z"
)

// Listing is a resolved device list.
type Listing struct {
	Devices []model.DeviceRecord `json:"devices"`
	// UsingFallback is set when the list is based on example data because
	// the remote source failed, is unavailable or returned nothing.
	UsingFallback bool `json:"usingFallback"`
}

// Devices serves the device list and the registration flows.
type Devices struct {
	remote   model.DeviceAPI
	sessions model.SessionStore
	queue    model.ProvisionalQueue
	fallback []model.DeviceRecord
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// issued is the sequence number of the latest remote request.
	issued atomic.Uint64

	mu     sync.RWMutex
	latest registry.Remote
	// latestToken is the session token latest was fetched with. The cache
	// only applies while the same token is signed in.
	latestToken string
}

// NewDevices creates a Devices service. Until the first Refresh the remote
// source counts as unavailable.
func NewDevices(
	remote model.DeviceAPI,
	sessions model.SessionStore,
	queue model.ProvisionalQueue,
	fallback []model.DeviceRecord,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Devices {
	return &Devices{
		remote:   remote,
		sessions: sessions,
		queue:    queue,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		latest:   registry.RemoteUnavailable(),
	}
}

// Refresh fetches the remote list. The result is kept only if no newer
// request was issued while it was in flight and the session token is still
// the one it was fetched with; the returned value is the remote state in
// effect afterwards.
func (d *Devices) Refresh(ctx context.Context) registry.Remote {
	seq := d.issued.Add(1)
	token := sessionToken(d.sessions.Get())
	result := d.fetch(ctx, token)

	d.mu.Lock()
	defer d.mu.Unlock()

	if current := sessionToken(d.sessions.Get()); seq != d.issued.Load() || token != current {
		d.metrics.RemoteFetch(metrics.ResultStale)
		d.logger.Debug("Devices service: discarding stale remote response",
			"seq", seq)
		return d.latestFor(current)
	}

	d.latest = result
	d.latestToken = token
	return result
}

func (d *Devices) fetch(ctx context.Context, token string) registry.Remote {
	if !d.remote.Configured() || token == "" {
		return registry.RemoteUnavailable()
	}

	devices, err := d.remote.ListDevices(ctx, token)
	if err != nil {
		d.metrics.RemoteFetch(metrics.ResultError)
		d.logger.Warn("Devices service: remote fetch failed, using example data",
			"error", err.Error())
		return registry.RemoteFailed(err)
	}

	d.metrics.RemoteFetch(metrics.ResultOK)
	return registry.RemoteOK(devices)
}

// List resolves the device list from the last remote result, the local
// queue and the fallback seed.
func (d *Devices) List(ctx context.Context) Listing {
	remote := d.currentRemote()
	devices := registry.Resolve(remote, d.queue.List(ctx), d.fallback)

	if remote.Usable() {
		d.metrics.Resolve(metrics.BaseRemote)
	} else {
		d.metrics.Resolve(metrics.BaseFallback)
	}

	if err := registry.CheckUnique(devices); err != nil {
		d.logger.Error("Devices service: resolved list violates id uniqueness",
			"error", err.Error())
	}

	return Listing{Devices: devices, UsingFallback: !remote.Usable()}
}

func (d *Devices) currentRemote() registry.Remote {
	token := sessionToken(d.sessions.Get())

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latestFor(token)
}

// latestFor returns the cached result if it belongs to token. Callers hold mu.
func (d *Devices) latestFor(token string) registry.Remote {
	if token == "" || token != d.latestToken {
		return registry.RemoteUnavailable()
	}
	return d.latest
}

func sessionToken(sess model.Session) string {
	if !sess.Authenticated() {
		return ""
	}
	return *sess.Token
}

// RegisterQR queues a device added by scanning its QR code.
func (d *Devices) RegisterQR(ctx context.Context, room model.RoomType) (model.DeviceRecord, error) {
	if !room.Valid() {
		return model.DeviceRecord{}, fmt.Errorf("%w: %q", model.ErrInvalidRoomType, room)
	}

	rec := d.provisional(registry.PrefixQR, provisionalSubtitle, room)
	if err := d.queue.Append(ctx, rec); err != nil {
		return model.DeviceRecord{}, fmt.Errorf("failed to queue device: %w", err)
	}

	d.logger.Info("Devices service: device queued from QR",
		"id", rec.ID,
		"room", room)

	return rec, nil
}

// RegisterSerial registers a device by serial number: with the backend when
// it is configured and the user is signed in, otherwise in the local queue.
func (d *Devices) RegisterSerial(ctx context.Context, serial string, room model.RoomType) (model.DeviceRecord, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return model.DeviceRecord{}, fmt.Errorf("%w: empty", model.ErrInvalidSerial)
	}
	if utf8.RuneCountInString(serial) < minSerialLength {
		return model.DeviceRecord{}, fmt.Errorf("%w: shorter than %d characters", model.ErrInvalidSerial, minSerialLength)
	}
	if !room.Valid() {
		return model.DeviceRecord{}, fmt.Errorf("%w: %q", model.ErrInvalidRoomType, room)
	}

	sess := d.sessions.Get()
	if d.remote.Configured() && sess.Authenticated() {
		return d.registerRemote(ctx, *sess.Token, serial, room)
	}

	rec := d.provisional(registry.PrefixSerial, provisionalSubtitle+" · S/N "+serial, room)
	if err := d.queue.Append(ctx, rec); err != nil {
		return model.DeviceRecord{}, fmt.Errorf("failed to queue device: %w", err)
	}

	d.logger.Info("Devices service: device queued from serial",
		"id", rec.ID,
		"room", room)

	return rec, nil
}

func (d *Devices) registerRemote(ctx context.Context, token, serial string, room model.RoomType) (model.DeviceRecord, error) {
	rec, err := d.remote.RegisterDevice(ctx, token, serial, room)
	if err != nil {
		if !errors.Is(err, model.ErrInvalidSerial) && !errors.Is(err, model.ErrDeviceAlreadyRegistered) {
			d.logger.Error("Devices service: remote registration failed",
				"error", err.Error())
		}
		return model.DeviceRecord{}, err
	}

	// Add the new device to the cached list; any fetch still in flight
	// predates it and is discarded.
	d.issued.Add(1)
	d.mu.Lock()
	if cached := d.latestFor(token); cached.Err == nil {
		devices := make([]model.DeviceRecord, 0, len(cached.Devices)+1)
		devices = append(devices, cached.Devices...)
		d.latest = registry.RemoteOK(append(devices, rec))
	} else {
		d.latest = registry.RemoteOK([]model.DeviceRecord{rec})
	}
	d.latestToken = token
	d.mu.Unlock()

	d.logger.Info("Devices service: device registered",
		"id", rec.ID,
		"room", room)

	return rec, nil
}

// Remove drops a locally queued device.
func (d *Devices) Remove(ctx context.Context, id string) error {
	if err := d.queue.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}
	return nil
}

func (d *Devices) provisional(prefix, subtitle string, room model.RoomType) model.DeviceRecord {
	now := d.now()
	return model.DeviceRecord{
		ID:          registry.NewProvisionalID(prefix, now),
		Name:        registry.PlaceholderName,
		Subtitle:    subtitle,
		LastUpdated: now.UTC().Format(isoMillis),
		AQI:         provisionalAQI,
		AQILabel:    provisionalAQILabel,
		RoomType:    room,
	}
}
