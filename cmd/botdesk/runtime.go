// ABOUTME: Wires config, storage, broadcaster and remote client for every subcommand
// ABOUTME: One runtime per process; each chat window opens its own view on top of it

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/2389/botdesk/internal/broadcast"
	"github.com/2389/botdesk/internal/client"
	"github.com/2389/botdesk/internal/config"
	"github.com/2389/botdesk/internal/kv"
	"github.com/2389/botdesk/internal/logging"
	"github.com/2389/botdesk/internal/pipeline"
	"github.com/2389/botdesk/internal/store"
	"github.com/2389/botdesk/internal/view"
)

type runtime struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger

	storage *kv.Storage
	bus     *broadcast.Broadcaster
	remote  *client.Client
}

// openRuntime loads configuration and opens the durable store.
func openRuntime() (*runtime, error) {
	configPath := config.Path()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// stderr keeps log lines out of the chat transcript and exported pages.
	logger := logging.New(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	return newRuntime(configPath, cfg, logger)
}

func newRuntime(configPath string, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	backend, err := kv.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	storage := kv.New(backend, logger)

	rt := &runtime{
		configPath: configPath,
		cfg:        cfg,
		logger:     logger,
		storage:    storage,
		bus:        broadcast.New(storage, store.Routes(), logger),
		remote:     client.New(cfg.Remote.BaseURL, cfg.Remote.Timeout, logger),
	}

	logger.Debug("runtime opened",
		"config", configPath,
		"driver", cfg.Storage.Driver,
		"path", cfg.Storage.Path,
		"remote", cfg.Remote.BaseURL,
	)
	return rt, nil
}

// watch follows writes made by other botdesk processes until ctx ends.
func (rt *runtime) watch(ctx context.Context) {
	if rt.cfg.Storage.PollInterval <= 0 || rt.cfg.Storage.Driver == kv.DriverMemory {
		return
	}
	go func() {
		if err := rt.storage.Watch(ctx, rt.cfg.Storage.PollInterval); err != nil && ctx.Err() == nil {
			rt.logger.Warn("storage watch stopped", "error", err)
		}
	}()
}

func (rt *runtime) openView(ctx context.Context, onNotice func(pipeline.Notice)) (*view.View, error) {
	return view.Open(ctx, view.Options{
		Storage:     rt.storage,
		Broadcaster: rt.bus,
		Remote:      rt.remote,
		Pipeline: pipeline.Config{
			AllowedExtensions:  rt.cfg.Attachments.AllowedExtensions,
			MaxAttachmentBytes: rt.cfg.Attachments.MaxBytes,
			Suggestions:        rt.cfg.Suggestions,
		},
		OnNotice: onNotice,
		Logger:   rt.logger,
	})
}

func (rt *runtime) Close() {
	rt.bus.Close()
	if err := rt.storage.Close(); err != nil {
		rt.logger.Warn("closing storage", "error", err)
	}
}

// stores opens the stores directly for one-shot subcommands that need no
// session. Writes still notify any open view through the broadcaster.
func (rt *runtime) stores() (*store.ConversationStore, *store.ProfileStore) {
	area := rt.storage.View("cli-" + uuid.NewString())
	return store.NewConversationStore(area, rt.bus, rt.logger),
		store.NewProfileStore(area, rt.bus, rt.logger)
}
