package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coinchat-client/internal/bot"
	"github.com/vovakirdan/coinchat-client/internal/config"
	"github.com/vovakirdan/coinchat-client/internal/core"
	"github.com/vovakirdan/coinchat-client/internal/transport"
	transporthttp "github.com/vovakirdan/coinchat-client/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// App wires the chat client, the sample bot and the optional status server.
type App struct {
	cfg    config.Config
	client *core.Client
	bot    *bot.DiceBot
	server *stdhttp.Server
	clock  clock.Clock
	log    *zerolog.Logger

	registerOnce sync.Once
	mu           sync.Mutex
	stop         context.CancelFunc
}

// Option customizes an App.
type Option func(*appOptions)

type appOptions struct {
	clock        clock.Clock
	newTransport func() transport.Transport
}

// WithClock drives the pump and the register delay from c.
func WithClock(c clock.Clock) Option {
	return func(o *appOptions) { o.clock = c }
}

// WithTransport overrides how connections are built.
func WithTransport(fn func() transport.Transport) Option {
	return func(o *appOptions) { o.newTransport = fn }
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger, opts ...Option) (*App, error) {
	o := appOptions{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	client, err := core.NewClient(core.Options{
		Username:     cfg.Username,
		Password:     cfg.Password,
		Session:      cfg.Session,
		Endpoint:     cfg.Endpoint,
		Insecure:     cfg.Insecure,
		PumpInterval: cfg.PumpInterval,
		Clock:        o.clock,
		NewTransport: o.newTransport,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}

	a := &App{
		cfg:    cfg,
		client: client,
		clock:  o.clock,
		log:    logger,
	}
	a.bot = bot.New(client,
		bot.WithAdmins(cfg.Admins...),
		bot.WithShutdown(a.requestStop),
		bot.WithLogger(logger),
	)
	if cfg.StatusAddr != "" {
		a.server = transporthttp.NewServer(cfg.StatusAddr, client, logger)
	}
	return a, nil
}

// Client exposes the underlying chat client.
func (a *App) Client() *core.Client {
	return a.client
}

// Run connects, logs in, joins the configured rooms and blocks until ctx is
// cancelled, an admin asks the bot to stop, or the status server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.stop = cancel
	a.mu.Unlock()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("status server listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	if !a.client.Connect(a.onConnected) {
		a.shutdownServer()
		return errors.New("connect not started")
	}

	var runErr error
	select {
	case runErr = <-serverErr:
		a.log.Error().Err(runErr).Msg("status server failed")
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down")
	a.client.Disconnect()
	a.shutdownServer()
	return runErr
}

func (a *App) onConnected() {
	err := a.client.Login(func() {
		for _, room := range a.cfg.Rooms {
			if a.client.Join(room) {
				a.log.Info().Str("room", room).Msg("joined room")
			}
		}
		// Attach the bot late so the backlog replayed on join is ignored.
		a.clock.AfterFunc(a.cfg.RegisterDelay, a.registerBot)
	})
	if err != nil {
		a.log.Error().Err(err).Msg("login failed")
	}
}

func (a *App) registerBot() {
	a.registerOnce.Do(func() {
		if err := a.client.Register(a.bot); err != nil {
			a.log.Error().Err(err).Msg("register bot")
			return
		}
		a.log.Info().Msg("bot attached")
	})
}

func (a *App) requestStop() {
	a.mu.Lock()
	stop := a.stop
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (a *App) shutdownServer() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to stop status server")
	}
}
