package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Rentora/internal/auth"
	"github.com/markdave123-py/Rentora/internal/bot"
	"github.com/markdave123-py/Rentora/internal/config"
	"github.com/markdave123-py/Rentora/internal/core"
	"github.com/markdave123-py/Rentora/internal/core/broker"
	db "github.com/markdave123-py/Rentora/internal/core/database"
	"github.com/markdave123-py/Rentora/internal/core/extractor"
	"github.com/markdave123-py/Rentora/internal/core/llm"
	"github.com/markdave123-py/Rentora/internal/core/locker"
	"github.com/markdave123-py/Rentora/internal/core/memstore"
	"github.com/markdave123-py/Rentora/internal/core/nlu"
	objectclient "github.com/markdave123-py/Rentora/internal/core/object-client"
	"github.com/markdave123-py/Rentora/internal/delivery"
	"github.com/markdave123-py/Rentora/internal/leads"
	"github.com/markdave123-py/Rentora/internal/notification"
	"github.com/markdave123-py/Rentora/internal/services"
	"github.com/markdave123-py/Rentora/internal/session"
	"github.com/markdave123-py/Rentora/internal/transport"
	"github.com/markdave123-py/Rentora/internal/transport/telegram"
	"github.com/markdave123-py/Rentora/internal/transport/whatsapp"
)

type App struct {
	cfg *config.Config
	log *slog.Logger

	Store      core.Store
	Engine     *bot.Engine
	Serial     *session.Serializer
	Dispatcher *notification.Dispatcher
	Telegram   *telegram.Adapter
	WhatsApp   *whatsapp.Adapter
	Server     *Server

	worker   *leads.Worker
	consumer *broker.Consumer
	closers  []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AIAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if !cfg.TelegramEnabled() && !cfg.WhatsAppEnabled() {
		logger.Warn("no chat transport configured, serving HTTP only")
	}

	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, log: logger}
	if err := a.build(appCtx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.log

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	var mirror *objectclient.Mirror
	if cfg.MediaMirror {
		obj, err := objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		mirror = objectclient.NewMirror(obj)
		logger.Info("media mirroring enabled", "bucket", cfg.BucketName)
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim)
	if err != nil {
		return fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)
	generator, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return fmt.Errorf("couldn't initialize the llm: %w", err)
	}
	a.closers = append(a.closers, generator.Close)

	loc, err := time.LoadLocation(cfg.CalendarTimezone)
	if err != nil {
		logger.Warn("unknown CALENDAR_TIMEZONE, using UTC", "timezone", cfg.CalendarTimezone, "err", err)
		loc = time.UTC
	}
	oracle := nlu.NewGeminiOracle(generator, embedder, loc, time.Now, logger)

	var lock locker.Locker = locker.NewLocal()
	if cfg.RedisURL != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		r := locker.NewRedis(client, logger)
		a.closers = append(a.closers, r.Close)
		lock = r
	}

	var mailer delivery.Mailer
	if cfg.SMTPEnabled() {
		m, err := delivery.NewSMTPMailer(cfg, logger)
		if err != nil {
			return fmt.Errorf("smtp: %w", err)
		}
		mailer = m
	}
	var cal delivery.Calendar
	if cfg.CalendarEnabled() {
		c, err := delivery.NewGoogleCalendar(ctx, cfg)
		if err != nil {
			return fmt.Errorf("calendar: %w", err)
		}
		cal = c
	}

	queue := notification.NewQueue(store, uuid.NewString, logger)
	recorder := leads.NewRecorder(store, store, queue, cfg.LeadRenotifyAfter, logger)
	journal, err := a.journal(cfg, recorder, logger)
	if err != nil {
		return err
	}

	var login *auth.LoginLinks
	if cfg.JWTSecret != "" && cfg.FrontendURL != "" {
		login = auth.NewLoginLinks(auth.NewIssuer(cfg.JWTSecret, nil), cfg.FrontendURL)
	}

	var draftMedia bot.MediaStore
	if mirror.Enabled() {
		draftMedia = mirror
	}

	mux := transport.NewMux()
	router := bot.NewRouter(bot.Config{
		BotUsername:     cfg.BotUsername,
		FrontendURL:     cfg.FrontendURL,
		WhatsAppNumber:  cfg.WhatsAppNumber,
		Location:        loc,
		MeetingDuration: cfg.MeetingDuration,
		NLUTimeout:      cfg.NLUTimeout,
		EmailTimeout:    cfg.EmailTimeout,
	}, bot.Deps{
		Sessions:  store,
		Listings:  store,
		Leads:     store,
		Meetings:  store,
		Accounts:  services.NewAccountService(store, uuid.NewString, cfg.WhatsAppCountryCode, logger),
		Oracle:    oracle,
		Notify:    queue,
		Journal:   journal,
		Mailer:    mailer,
		Calendar:  cal,
		Brochures: services.NewBrochureService(extractor.NewDocconvExtractor(false), mirror, logger),
		Media:     draftMedia,
		Login:     login,
		Sender:    mux,
		Logger:    logger,
	})
	a.Serial = session.NewSerializer(logger)
	a.Engine = bot.NewEngine(router, a.Serial, mux, logger)

	media := transport.NewMedia(resty.New().SetTimeout(time.Minute), mirror, logger)
	if cfg.TelegramEnabled() {
		tg, err := telegram.New(cfg.TelegramToken, a.Engine, media, logger)
		if err != nil {
			return err
		}
		if cfg.BotUsername == "" {
			logger.Warn("BOT_USERNAME is empty, share links will be incomplete", "bot_username", tg.Username())
		}
		mux.Register(tg)
		a.Telegram = tg
	}
	if cfg.WhatsAppEnabled() {
		a.WhatsApp = whatsapp.New(whatsapp.Config{
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneID,
			VerifyToken:   cfg.WhatsAppVerifyToken,
			BaseURL:       cfg.WhatsAppAPIBase,
			CountryCode:   cfg.WhatsAppCountryCode,
		}, a.Engine, media, logger)
		mux.Register(a.WhatsApp)
	}

	a.Dispatcher = notification.NewDispatcher(store, store, mux, mailer, lock, notification.DispatcherConfig{
		Interval:    cfg.NotifyInterval,
		BatchSize:   cfg.NotifyBatch,
		MaxAttempts: cfg.NotifyMaxAttempts,
	}, logger)

	a.Server = NewServer(cfg, a, logger)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.Store, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		return memstore.New(), nil
	}
	client, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")
	return client, nil
}

// journal picks where lead history is written: through RabbitMQ when it is
// configured, otherwise on an in-process worker, or inline with the chat
// handler when LEAD_JOURNAL=direct.
func (a *App) journal(cfg *config.Config, rec *leads.Recorder, logger *slog.Logger) (leads.Journal, error) {
	if cfg.RabbitMQURL == "" {
		if cfg.LeadJournal == config.JournalDirect {
			logger.Info("lead journal runs inline")
			return leads.NewDirect(rec), nil
		}
		a.worker = leads.NewWorker(rec)
		return a.worker, nil
	}
	pub, err := broker.NewPublisher(broker.PublisherConfig{
		URL:          cfg.RabbitMQURL,
		ExchangeName: cfg.LeadExchange,
		Durable:      true,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)

	consumer, err := broker.NewConsumer(broker.ConsumerConfig{
		URL:          cfg.RabbitMQURL,
		QueueName:    cfg.LeadQueue,
		ExchangeName: cfg.LeadExchange,
		RoutingKey:   leads.RoutingKey(),
	}, leads.Handler(rec), logger)
	if err != nil {
		return nil, err
	}
	a.consumer = consumer
	a.closers = append(a.closers, consumer.Close)
	return leads.NewAMQPJournal(pub, logger), nil
}

// Run starts the background workers, the chat transports and the HTTP server
// and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.Telegram != nil && a.cfg.TelegramWebhookURL != "" {
		if err := a.Telegram.SetWebhook(a.cfg.TelegramWebhookURL); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.worker != nil {
		a.worker.Start(ctx)
	}
	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("lead journal consumer: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.Dispatcher.Run(ctx)
		return nil
	})

	if a.Telegram != nil && a.cfg.TelegramWebhookURL == "" {
		g.Go(func() error {
			a.Telegram.Poll(ctx)
			return nil
		})
	}

	g.Go(func() error { return a.Server.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.drain()
	return err
}

// drain lets queued chat events finish before the lead journal stops, since
// handling an event may record lead history.
func (a *App) drain() {
	a.Engine.Wait()
	if a.worker != nil {
		a.worker.Stop()
	}
	a.log.Info("background work drained")
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}
