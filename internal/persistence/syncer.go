package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jkallio/tourguide/pkg/api"
)

// DefaultDebounce is the coalescing window for remote progress pushes.
const DefaultDebounce = 500 * time.Millisecond

// Syncer pushes local progress to the remote API in the background.
//
// Notify marks the pair dirty; a worker goroutine coalesces notifications
// over the debounce window and performs one push per burst. Push failures
// are never fatal: they are logged and retried on the next cycle.
type Syncer struct {
	remote   RemoteClient
	local    ProgressStore
	clientID string
	configID string
	debounce time.Duration
	log      *slog.Logger

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
}

// NewSyncer creates and starts a Syncer. debounce <= 0 selects the default.
func NewSyncer(remote RemoteClient, local ProgressStore, clientID, configID string, debounce time.Duration, log *slog.Logger) *Syncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Syncer{
		remote:   remote,
		local:    local,
		clientID: clientID,
		configID: configID,
		debounce: debounce,
		log:      log.With(slog.String("configuration", configID), slog.String("client_id", clientID)),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Notify schedules a push. Safe to call from any goroutine; calls during an
// open debounce window coalesce into one push.
func (s *Syncer) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close flushes a pending push synchronously and stops the worker. Safe to
// call more than once.
func (s *Syncer) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Syncer) loop() {
	defer close(s.done)

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	dirty := false

	for {
		select {
		case <-s.stop:
			if dirty {
				s.push()
			}
			return

		case <-s.notify:
			if !dirty {
				dirty = true
				timer.Reset(s.debounce)
			}

		case <-timer.C:
			dirty = false
			if !s.push() {
				// Retry on the next cycle.
				dirty = true
				timer.Reset(s.debounce)
			}
		}
	}
}

func (s *Syncer) push() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := s.local.LoadProgress(ctx, s.clientID, s.configID)
	if err != nil {
		s.log.Warn("progress load for sync failed", slog.Any("error", err))
		return false
	}
	if err := s.remote.PushProgress(ctx, entries); err != nil {
		s.log.Warn("progress push failed, will retry", slog.Any("error", err))
		return false
	}
	s.log.Debug("progress pushed", slog.Int("entries", len(entries)))
	return true
}

// LoadRemote fetches the configuration and the server's progress for the
// pair, then re-persists both locally. Server progress wins over whatever
// the local cache held.
func LoadRemote(ctx context.Context, remote RemoteClient, stores Persistence, clientID string) (*api.Configuration, error) {
	cfg, progress, err := remote.FetchConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	if stores.Configurations != nil {
		if err := stores.Configurations.SaveConfiguration(ctx, cfg); err != nil {
			return nil, err
		}
	}
	if progress == nil {
		progress = make(api.ProgressMap)
	}
	if err := stores.Progress.ReplaceProgress(ctx, clientID, cfg.ID, progress); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsSyncFailure reports whether err came from a remote progress push.
func IsSyncFailure(err error) bool {
	return errors.Is(err, api.ErrProgressSyncFailed)
}
