package main

import (
	"context"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	redisstore "github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/auth"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/prompt"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// host bundles the wired engine with everything a command needs around it.
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *arbor.Engine
	handlers []string
	cleanup  func()
}

// newHost loads configuration, assembles storage and sign-in, and builds
// the engine around the onboarding flow. Callers must run cleanup.
func newHost(cmd *cobra.Command) (*host, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger := logging.New(level)

	store, opts, cleanup, err := buildStorage(cfg, level, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, arbor.WithStorage(store), arbor.WithLogger(logger))
	if level <= slog.LevelDebug {
		opts = append(opts, arbor.WithHooks(observability.NewLogging(logger)))
	}

	handlers, handlerIDs := buildSignIn(cfg, logger)
	if len(handlers) > 0 {
		opts = append(opts, arbor.WithSignIn(handlers...))
	}

	var profile *state.Property[string]
	root := onboardingFlow(func() *state.Property[string] { return profile })

	engine, err := arbor.New(root, opts...)
	if err != nil {
		cleanup()
		return nil, err
	}
	profile = state.NewProperty[string](engine.UserState(), "profile.name")

	return &host{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		handlers: handlerIDs,
		cleanup:  cleanup,
	}, nil
}

// loadConfig reads the config file and applies the persistent flag
// overrides on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		cfg.Storage.Driver = config.DriverRedis
		cfg.Storage.Redis.Address = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildStorage assembles the configured backend and wraps it in the
// middleware chain. The returned options carry the distributed locker when
// the config asks for one; cleanup closes the redis client.
func buildStorage(cfg *config.Config, level slog.Level, logger *slog.Logger) (ports.Storage, []arbor.Option, func(), error) {
	var store ports.Storage
	var opts []arbor.Option
	cleanup := func() {}

	switch cfg.Storage.Driver {
	case config.DriverRedis:
		rc := cfg.Storage.Redis
		client := goredis.NewClient(&goredis.Options{
			Addr:     rc.Address,
			Password: rc.Password,
			DB:       rc.DB,
		})
		var storeOpts []redisstore.Option
		if ttl := rc.TTL.Std(); ttl > 0 {
			storeOpts = append(storeOpts, redisstore.WithTTL(ttl))
		}
		if rc.Prefix != "" {
			storeOpts = append(storeOpts, redisstore.WithPrefix(rc.Prefix))
		}
		store = redisstore.NewFromClient(client, storeOpts...)
		cleanup = func() { _ = client.Close() }
		if rc.Lock {
			opts = append(opts, arbor.WithLocker(redisstore.NewLocker(client, "")))
		}
		logger.Info("using redis storage", "address", rc.Address, "db", rc.DB)
	case config.DriverFile:
		fs := file.New(cfg.Storage.File.Dir)
		store = fs
		logger.Info("using file storage", "dir", fs.Dir())
	default:
		store = memory.NewStore()
	}

	// Masking runs before tracing so debug logs never show raw secrets,
	// and encryption seals last so the backend only sees ciphertext.
	var mws []middleware.Middleware
	if len(cfg.Storage.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewRedaction(cfg.Storage.RedactPatterns))
	}
	if level <= slog.LevelDebug {
		mws = append(mws, middleware.NewTrace(logger))
	}
	active, fallbacks, err := cfg.Storage.Keys()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryption(active, fallbacks...))
	}
	if len(mws) > 0 {
		store = middleware.Chain(mws...)(store)
	}
	return store, opts, cleanup, nil
}

// buildSignIn turns the configured OAuth connections into sign-in handlers
// sharing one token service client.
func buildSignIn(cfg *config.Config, logger *slog.Logger) ([]*auth.Handler, []string) {
	ac := cfg.Auth
	if ac.Endpoint == "" || len(ac.Connections) == 0 {
		return nil, nil
	}
	client := auth.NewClient(ac.Endpoint, ac.AppID)
	handlers := make([]*auth.Handler, 0, len(ac.Connections))
	ids := make([]string, 0, len(ac.Connections))
	for _, conn := range ac.Connections {
		id := conn.HandlerID()
		flow := auth.NewFlow(auth.FlowSettings{
			Connection: conn.Name,
			Title:      conn.Title,
			Text:       conn.Text,
			Timeout:    conn.Timeout.Std(),
		}, client, auth.WithLogger(logger))
		handlers = append(handlers, &auth.Handler{
			ID:   id,
			Flow: flow,
			OnSuccess: func(ctx context.Context, t *turn.Context, _ *auth.TokenResponse) error {
				_, err := t.SendText(ctx, "Signed in to "+id+".")
				return err
			},
		})
		ids = append(ids, id)
	}
	return handlers, ids
}

// onboardingFlow is the demo conversation every command hosts: ask for a
// name, offer to remember it in user state, and greet returning users by
// name. The profile property is wired after the engine exists, hence the
// getter indirection.
func onboardingFlow(profile func() *state.Property[string]) dialog.Dialog {
	steps := []dialog.WaterfallStep{
		func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
			if prop := profile(); prop != nil {
				if known, err := prop.Get(ctx, step.Turn()); err == nil && known != "" {
					if _, err := step.Turn().SendText(ctx, "Welcome back, "+known+"!"); err != nil {
						return dialog.TurnResult{}, err
					}
					step.Values["name"] = known
					step.Values["known"] = true
					return step.Next(ctx, nil)
				}
			}
			return step.Begin(ctx, "name", &prompt.Options{
				Prompt:      activity.NewMessage("Hi! What should I call you?"),
				RetryPrompt: activity.NewMessage("Two characters or more, please. What should I call you?"),
			})
		},
		func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
			if known, _ := step.Values["known"].(bool); known {
				return step.Next(ctx, false)
			}
			name, _ := step.Result.(string)
			name = strings.TrimSpace(name)
			step.Values["name"] = name
			return step.Begin(ctx, "remember", &prompt.Options{
				Prompt: activity.NewMessage("Nice to meet you, " + name + "! Should I remember your name?"),
			})
		},
		func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
			name, _ := step.Values["name"].(string)
			known, _ := step.Values["known"].(bool)
			remember, _ := step.Result.(bool)
			switch {
			case known:
				// Returning user, nothing to save.
			case remember:
				if prop := profile(); prop != nil {
					if err := prop.Set(ctx, step.Turn(), name); err != nil {
						return dialog.TurnResult{}, err
					}
				}
				if _, err := step.Turn().SendText(ctx, "Saved. I'll recognize you next time."); err != nil {
					return dialog.TurnResult{}, err
				}
			default:
				if _, err := step.Turn().SendText(ctx, "No problem, I'll ask again next time."); err != nil {
					return dialog.TurnResult{}, err
				}
			}
			return step.End(ctx, name)
		},
	}

	nameValidator := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
		text, _ := vc.Recognized.Value.(string)
		return vc.Recognized.Succeeded && len(strings.TrimSpace(text)) >= 2, nil
	}

	return dialog.NewComponent("onboarding").
		AddDialog(dialog.NewWaterfall("onboarding-steps", steps...)).
		AddDialog(prompt.Text("name").WithValidator(nameValidator)).
		AddDialog(prompt.Confirm("remember"))
}
