package app

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"

	"github.com/medqueue/pharmacy/internal/events"
	"github.com/medqueue/pharmacy/internal/mongo"
	"github.com/medqueue/pharmacy/internal/pharmacy"
	"github.com/medqueue/pharmacy/pkg"
	"github.com/medqueue/pharmacy/pkg/event"
)

const (
	AppName    = "pharmacy"
	AppVersion = "0.1.0"
)

// App encapsulates the pharmacy worklist service
type App struct {
	config *apt.Config
	logger apt.Logger
	micro  *apt.Micro
	repo   *mongo.PrescriptionRepo
}

// New creates a new pharmacy service application
func New(config *apt.Config, logger apt.Logger) (*App, error) {
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize sets up all dependencies and components
func (a *App) Initialize(ctx context.Context) error {
	a.repo = mongo.NewPrescriptionRepo(a.config, a.logger)

	natsURL, _ := a.config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	// The worklist's own update topic can run over JetStream so a restart
	// replays state instead of hitting the bulk snapshot.
	var pharmacyStream *pkg.NATSStream
	var queueSubscriber *pkg.NATSSubscriber
	var intentPublisher aptevents.Publisher

	streamEnabled, _ := a.config.GetString("nats.stream.enabled")
	if streamEnabled == "true" {
		streamCfg := pkg.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   "PHARMACY_EVENTS",
			Topic:        event.PharmacyPrescriptionsTopic,
			ConsumerName: "pharmacy-worklist",
			MaxAge:       24 * time.Hour,
		}
		var err error
		pharmacyStream, err = pkg.NewNATSStream(streamCfg)
		if err != nil {
			return err
		}
		a.logger.Info("NATS stream initialized for persistent worklist events")

		queueSubscriber, err = pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}

		publisher, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		intentPublisher = publisher
	} else {
		publisher, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		intentPublisher = publisher

		queueSubscriber, err = pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
	}

	var streamForCache aptevents.StreamConsumer
	if pharmacyStream != nil {
		streamForCache = pharmacyStream
	}
	worklist := pharmacy.NewWorklistStateCache(streamForCache, a.repo, a.logger)

	viewStream := pharmacy.NewViewStreamServer(worklist, a.logger)
	worklist.SetStreamServer(viewStream)

	dispatcher := pharmacy.NewDispatcher(worklist, intentPublisher, a.logger)

	role, _ := a.config.GetString("queue.role")
	hospitalID, _ := a.config.GetString("queue.hospital_id")
	reconciler := events.NewQueueSubscriber(queueSubscriber, worklist, intentPublisher, role, hospitalID, a.logger)

	handler := pharmacy.NewHandler(pharmacy.HandlerDeps{
		Cache:      worklist,
		Dispatcher: dispatcher,
		Stream:     viewStream,
	}, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})

	lifecycles := []interface{}{a.repo, reconciler}

	// Warm the worklist after the repo is started, seeding demo data first
	// when enabled.
	warmLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			demoEnabled, _ := a.config.GetString("demo.seed.enabled")
			if demoEnabled == "true" {
				if err := pharmacy.ApplyDemoSeeds(ctx, a.repo, worklist, a.repo.GetDatabase(), a.logger); err != nil {
					a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
				}
			}
			if err := worklist.Warm(ctx); err != nil {
				a.logger.Info("failed to warm worklist", "error", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, warmLifecycle)

	if pharmacyStream != nil {
		streamLifecycle := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return pharmacyStream.Close() },
		}
		lifecycles = append(lifecycles, streamLifecycle)
	}
	if queueSubscriber != nil {
		subscriberLifecycle := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return queueSubscriber.Close() },
		}
		lifecycles = append(lifecycles, subscriberLifecycle)
	}

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// Run starts the application
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}
