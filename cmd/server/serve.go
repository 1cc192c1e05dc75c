package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	httpdelivery "signalbot-backend/internal/delivery/http"
	"signalbot-backend/internal/delivery/websocket"
	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/fcm"
	"signalbot-backend/internal/infrastructure/mirror"
	"signalbot-backend/internal/infrastructure/notify"
	"signalbot-backend/internal/infrastructure/presetfile"
	"signalbot-backend/internal/infrastructure/terminal"
	"signalbot-backend/internal/repository"
	"signalbot-backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, websocket feed and terminal sync",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	log := a.log

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	presets, err := presetfile.LoadDir(a.cfg.PresetsPath)
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	tokens := repository.NewTokenRepository()
	fcmClient, err := fcm.NewClient(ctx, fcm.Config{
		CredentialsPath: a.cfg.Firebase.CredentialsPath,
		CredentialsJSON: a.cfg.Firebase.CredentialsJSON,
	}, log)
	if err != nil {
		return fmt.Errorf("init firebase: %w", err)
	}

	var transports []domain.Transport
	if a.cfg.Email.Enabled {
		transports = append(transports, notify.NewEmailTransport(notify.EmailConfig{
			Host:      a.cfg.Email.Server,
			Port:      a.cfg.Email.Port,
			UseTLS:    a.cfg.Email.UseTLS,
			Username:  a.cfg.Email.Username,
			Password:  a.cfg.Email.Password,
			Recipient: a.cfg.Email.Recipient,
		}))
	}
	if a.cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramTransport(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("init telegram: %w", err)
		}
		transports = append(transports, tg)
	}
	var push httpdelivery.PushTester
	if fcmClient.IsEnabled() {
		pt := notify.NewPushTransport(fcmClient, tokens, log)
		transports = append(transports, pt)
		push = pt
	}
	notifier := usecase.NewNotifier(log, a.m, transports...)

	var term usecase.Terminal
	var termClient *terminal.Client
	if a.cfg.Live() {
		termClient = terminal.NewClient(a.cfg.Terminal.Host, a.cfg.Terminal.Port, a.cfg.Terminal.Timeout(), log)
		defer termClient.Close()
		term = termClient
	}

	fanout := usecase.NewFanOut(a.m)
	bot := usecase.NewSignalBot(usecase.SignalBotDeps{
		Store:    store,
		Notifier: notifier,
		FanOut:   fanout,
		Terminal: term,
		Log:      log,
		Metrics:  a.m,
	}, usecase.Options{
		SimulationMode:     a.cfg.SimulationMode,
		NotifyInSimulation: a.cfg.NotifyInSimulation,
	})

	hub := websocket.NewHandler(bot, log, a.m)
	fanout.Add(hub)
	if a.cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
		defer rdb.Close()
		mr := mirror.NewRedisMirror(rdb, "", log)
		fanout.Add(mr)
		go mr.Run(ctx)
	}

	if err := bot.Init(ctx, presets); err != nil {
		return fmt.Errorf("init signal bot: %w", err)
	}
	if err := bot.SeedSampleSignals(ctx); err != nil {
		log.Warn().Err(err).Msg("seeding sample signals failed")
	}

	syncLoop := usecase.NewSyncLoop(bot, a.cfg.SyncInterval, log)
	if err := syncLoop.Start(ctx); err != nil {
		return err
	}
	defer syncLoop.Stop()

	if termClient != nil {
		go func() {
			err := termClient.Subscribe(ctx, func(s domain.Signal) {
				if _, err := bot.IngestSignal(ctx, s, usecase.OriginSubscription); err != nil {
					log.Warn().Err(err).Str("symbol", s.Symbol).Msg("dropping pushed signal")
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("signal subscription stopped")
			}
		}()
	}

	router := httpdelivery.NewRouter(httpdelivery.RouterDeps{
		Bot:       bot,
		Simulator: usecase.NewSimulator(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		Notifier:  notifier,
		Tokens:    tokens,
		Push:      push,
		WS:        hub.Handle,
		Metrics:   a.m.Handler(),
		Auth: httpdelivery.AuthConfig{
			Enabled:  a.cfg.Auth.Enabled,
			Username: a.cfg.Auth.Username,
			Password: a.cfg.Auth.Password,
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              a.cfg.Web.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Bool("simulation", a.cfg.SimulationMode).
			Strs("transports", notifier.Transports()).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	hub.Close()
	bot.Wait()
	return nil
}
