// Package app composes the client out of its pieces: profile resolution,
// credentials, the REST client, the socket manager and the TUI.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/api"
	"github.com/hosthub/hubchat/internal/config"
	"github.com/hosthub/hubchat/internal/lock"
	"github.com/hosthub/hubchat/internal/logging"
	"github.com/hosthub/hubchat/internal/session"
	"github.com/hosthub/hubchat/internal/transport"
	"github.com/hosthub/hubchat/internal/tui"
)

// Params holds the resolved invocation options passed to the fx module.
type Params struct {
	Profile   string
	APIURL    string // optional override; empty = config value
	SocketURL string // optional override; empty = config value
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("hubchat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideSession,
			provideLock,
			provideAPIClient,
			provideManager,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideConfig(p Params, logger *zap.Logger) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("config unreadable, using defaults", zap.Error(err))
		}
		cfg = config.Default()
	}
	if p.APIURL != "" {
		cfg.APIURL = p.APIURL
	}
	if p.SocketURL != "" {
		cfg.SocketURL = p.SocketURL
	}
	return cfg
}

func provideSession(p Params, logger *zap.Logger) (*session.Session, error) {
	sess, err := session.Load(session.CredentialsPath(p.Profile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q is not logged in, run hubchat-auth first", p.Profile)
		}
		return nil, err
	}
	if sess.Expired(time.Now()) {
		logger.Warn("auth token is expired, backend will reject requests",
			zap.String("user_id", sess.UserID))
	}
	return sess, nil
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.LockPath(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideAPIClient(cfg *config.Config, sess *session.Session, logger *zap.Logger) *api.Client {
	return api.New(cfg.APIURL, sess, logger.Named("api"))
}

func provideManager(cfg *config.Config, sess *session.Session, logger *zap.Logger) *transport.Manager {
	return transport.New(cfg.SocketURL, sess, logger.Named("transport"))
}

func provideApp(c *api.Client, m *transport.Manager, sess *session.Session, p Params, logger *zap.Logger) *tui.App {
	return tui.NewApp(c, m, sess.UserID, p.Profile, logger.Named("tui"))
}

func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, ui *tui.App, m *transport.Manager, sess *session.Session, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The connect attempt must not block startup, and a failure is
			// not fatal: the TUI shows DISCONNECTED and the user decides.
			go m.Connect(context.Background(), sess.UserID)

			ui.SetOnExit(func() {
				_ = sd.Shutdown()
			})
			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("ui terminated", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			m.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
