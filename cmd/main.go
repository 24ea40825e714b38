package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"smartcastbridge/internal/api"
	"smartcastbridge/internal/apps"
	"smartcastbridge/internal/clock"
	"smartcastbridge/internal/config"
	"smartcastbridge/internal/device"
	"smartcastbridge/internal/library"
	"smartcastbridge/internal/platform"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	env, err := config.LoadEnv()
	if err != nil {
		logger.Fatal("Invalid environment", zap.Error(err))
	}

	devices, err := config.LoadDevices(env.ConfigDir, logger)
	if err != nil {
		logger.Fatal("Failed to load device config", zap.Error(err))
	}

	logger.Info("Starting SmartCast bridge",
		zap.String("platform_url", env.PlatformURL),
		zap.Int("devices", len(devices)))

	// Connect to the platform
	client := platform.NewClient(env.PlatformURL, env.PlatformToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to platform", zap.Error(err))
	}
	defer client.Disconnect()

	logger.Info("Connected to platform")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewRealClock()

	// The app catalog is shared by every TV entity; speakers have no apps.
	var catalog *apps.Coordinator
	if anyTV(devices) {
		store := apps.NewFileStore(apps.DefaultStorePath(env.ConfigDir))
		catalog = apps.NewCoordinator(apps.CatalogURL,
			&http.Client{Timeout: 30 * time.Second}, store, clk, logger)
		go catalog.Run(ctx)
	}

	var entities []*device.Entity
	var subscriptions []platform.Subscription
	for _, d := range devices {
		entity, sub, err := startDevice(ctx, d, client, catalog, clk, env.PollInterval, logger)
		if err != nil {
			logger.Error("Failed to start device",
				zap.String("device", d.Name), zap.Error(err))
			continue
		}
		entities = append(entities, entity)
		subscriptions = append(subscriptions, sub)
	}
	if len(entities) == 0 {
		logger.Fatal("No devices started")
	}
	defer func() {
		for _, sub := range subscriptions {
			if err := sub.Unsubscribe(); err != nil {
				logger.Warn("Failed to unsubscribe", zap.Error(err))
			}
		}
	}()

	// Diagnostics server
	diag := api.NewServer(entities, logger, env.DiagPort)
	if err := diag.Start(); err != nil {
		logger.Fatal("Failed to start diagnostics server", zap.Error(err))
	}
	defer diag.Stop()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bridge running. Press Ctrl+C to exit.",
		zap.Duration("poll_interval", env.PollInterval))

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")
}

func anyTV(devices []config.DeviceConfig) bool {
	for _, d := range devices {
		if d.DeviceClass == "tv" {
			return true
		}
	}
	return false
}

// startDevice brings one configured device online: detect capabilities,
// build the entity, subscribe to its commands, and start its loop.
func startDevice(ctx context.Context, cfg config.DeviceConfig, client *platform.Client,
	catalog *apps.Coordinator, clk clock.Clock, pollInterval time.Duration,
	logger *zap.Logger) (*device.Entity, platform.Subscription, error) {

	deviceLogger := logger.With(zap.String("device", cfg.Name))

	session := device.NewSession(cfg.Host, cfg.AccessToken, cfg.Timeout(), client.SessionClient())
	direct := session.DirectClient(deviceLogger)

	lib, err := library.New(cfg.Host, cfg.AccessToken, cfg.Timeout(), deviceLogger)
	if err != nil {
		deviceLogger.Warn("Vendor SDK unusable for this device; continuing without it",
			zap.Error(err))
		lib = library.Unavailable(deviceLogger)
	}

	deviceLogger.Info("Detecting device capabilities")
	matrix := device.NewDetector(direct, lib, clk, deviceLogger).Run(ctx)

	class := device.ClassTV
	if cfg.DeviceClass == "speaker" {
		class = device.ClassSpeaker
	}

	opts := device.EntityOptions{
		Name:           cfg.Name,
		UniqueID:       cfg.Host,
		Class:          class,
		VolumeStep:     cfg.VolumeStep,
		Matrix:         matrix,
		Direct:         direct,
		Library:        lib,
		AppsInclude:    cfg.Apps.Include,
		AppsExclude:    cfg.Apps.Exclude,
		AdditionalApps: cfg.AdditionalApps(),
		Publisher:      client,
		Clock:          clk,
		Logger:         deviceLogger,
	}
	if class == device.ClassTV {
		opts.AppTr = lib
		if catalog != nil {
			opts.AppsSource = catalog
		}
	}
	// Playback keys only exist on the vendor SDK; without a binding the
	// entity treats them as unsupported instead of erroring every press.
	if library.Factory != nil {
		opts.MediaTr = lib
	}
	entity := device.NewEntity(opts)
	entity.Refresh(ctx)

	// Commands are queued and served by the same goroutine that polls, so
	// one device never runs a poll and a command concurrently.
	commands := make(chan platform.CommandEvent, 16)
	sub, err := client.SubscribeCommands(entity.EntityID(), func(cmd platform.CommandEvent) {
		select {
		case commands <- cmd:
		default:
			deviceLogger.Warn("Command queue full; dropping command",
				zap.String("command", cmd.Command))
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	go runDevice(ctx, entity, commands, clk, pollInterval, deviceLogger)

	return entity, sub, nil
}

// runDevice is the per-device loop: periodic refresh interleaved with
// queued commands.
func runDevice(ctx context.Context, entity *device.Entity, commands <-chan platform.CommandEvent,
	clk clock.Clock, pollInterval time.Duration, logger *zap.Logger) {

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			handleCommand(ctx, entity, cmd, logger)
		case <-clk.After(pollInterval):
			entity.Refresh(ctx)
		}
	}
}

func handleCommand(ctx context.Context, entity *device.Entity, cmd platform.CommandEvent, logger *zap.Logger) {
	logger.Debug("Handling command",
		zap.String("command", cmd.Command), zap.Any("data", cmd.Data))

	var err error
	switch cmd.Command {
	case "turn_on":
		entity.TurnOn(ctx)
	case "turn_off":
		entity.TurnOff(ctx)
	case "volume_up":
		err = entity.VolumeUp(ctx)
	case "volume_down":
		err = entity.VolumeDown(ctx)
	case "volume_set":
		if level, ok := cmd.Data["volume_level"].(float64); ok {
			err = entity.SetVolume(ctx, level)
		} else {
			err = fmt.Errorf("volume_set requires numeric volume_level")
		}
	case "volume_mute":
		if muted, ok := cmd.Data["is_volume_muted"].(bool); ok {
			err = entity.SetMute(ctx, muted)
		} else {
			err = fmt.Errorf("volume_mute requires boolean is_volume_muted")
		}
	case "media_play":
		err = entity.MediaPlay(ctx)
	case "media_pause":
		err = entity.MediaPause(ctx)
	case "media_next_track":
		err = entity.MediaNextTrack(ctx)
	case "media_previous_track":
		err = entity.MediaPreviousTrack(ctx)
	case "select_source":
		if source, ok := cmd.Data["source"].(string); ok {
			err = entity.SelectSource(ctx, source)
		} else {
			err = fmt.Errorf("select_source requires string source")
		}
	case "select_sound_mode":
		if mode, ok := cmd.Data["sound_mode"].(string); ok {
			err = entity.SelectSoundMode(ctx, mode)
		} else {
			err = fmt.Errorf("select_sound_mode requires string sound_mode")
		}
	case "update_setting":
		settingType, _ := cmd.Data["setting_type"].(string)
		name, _ := cmd.Data["setting_name"].(string)
		if settingType == "" || name == "" {
			err = fmt.Errorf("update_setting requires setting_type and setting_name")
			break
		}
		err = entity.UpdateSetting(ctx, settingType, name, cmd.Data["value"])
	default:
		logger.Warn("Unknown command", zap.String("command", cmd.Command))
		return
	}

	if err != nil {
		logger.Error("Command failed",
			zap.String("command", cmd.Command), zap.Error(err))
	}
}
