package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/streadway/amqp"

	"github.com/hexamarkco/kifersaude-sub002/internal/config"
	"github.com/hexamarkco/kifersaude-sub002/internal/controller"
	"github.com/hexamarkco/kifersaude-sub002/internal/db"
	"github.com/hexamarkco/kifersaude-sub002/internal/gateway"
	"github.com/hexamarkco/kifersaude-sub002/internal/handler"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/registry"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

type App struct {
	Log      *logger.Logger
	DB       *sql.DB
	Cfg      *config.Config
	Router   http.Handler
	Repos    Repos
	Services Services
	AMQP     *amqp.Connection

	closers []func() error
}

type Repos struct {
	Peers     repository.PeerRepositoryInterface
	Chats     repository.ChatRepositoryInterface
	Messages  repository.MessageRepositoryInterface
	Scheduled repository.ScheduledMessageRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
}

type Services struct {
	Chats     *service.ChatService
	Peers     *service.PeerResolver
	Sender    *service.Sender
	Webhook   *service.WebhookService
	Scheduler *service.SchedulerService
	Campaigns *service.CampaignService
}

// New connects to Postgres (and RabbitMQ when AMQP_URL is set) and wires
// every repository, service and route.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a := &App{Log: log, DB: conn, Cfg: cfg}
	a.closers = append(a.closers, conn.Close)

	gw, err := gateway.NewZAPIClient(gateway.Config{
		BaseURL:       cfg.ZAPIBaseURL,
		InstanceID:    cfg.ZAPIInstanceID,
		Token:         cfg.ZAPIToken,
		ClientToken:   cfg.ZAPIClientToken,
		RatePerSecond: cfg.ZAPIRatePerSecond,
		Timeout:       cfg.ZAPITimeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init z-api client: %w", err)
	}

	events, err := a.wireEvents()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Repos = wireRepos(conn)
	a.Services = wireServices(cfg, log, a.Repos, gw, events)
	a.Router = wireRouter(cfg, log, a.Services)
	return a, nil
}

// wireEvents publishes to the AMQP exchange when a broker is configured and
// otherwise to an in-process queue that only logs what it sees.
func (a *App) wireEvents() (queue.Publisher, error) {
	if a.Cfg.AMQPURL == "" {
		q := queue.NewInMemoryQueue(a.Log)
		for _, topic := range []string{
			queue.TopicMessageReceived,
			queue.TopicMessageSent,
			queue.TopicScheduledProcessed,
			queue.TopicCampaignTarget,
		} {
			topic := topic
			q.Subscribe(topic, func(payload any) error {
				a.Log.Debug("Event", "topic", topic, "payload", payload)
				return nil
			})
		}
		a.closers = append(a.closers, func() error { q.Wait(); return nil })
		return q, nil
	}

	conn, err := amqp.Dial(a.Cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	a.AMQP = conn
	a.closers = append(a.closers, conn.Close)

	pub, err := queue.NewAMQPPublisher(conn, a.Cfg.EventsExchange)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

func wireRepos(conn *sql.DB) Repos {
	return Repos{
		Peers:     &repository.PeerRepository{DB: conn},
		Chats:     &repository.ChatRepository{DB: conn},
		Messages:  &repository.MessageRepository{DB: conn},
		Scheduled: &repository.ScheduledMessageRepository{DB: conn},
		Campaigns: &repository.CampaignRepository{DB: conn},
	}
}

func wireServices(cfg *config.Config, log *logger.Logger, repos Repos, gw gateway.Client, events queue.Publisher) Services {
	reg := registry.NewOutgoingRegistry(cfg.RegistryTTL)
	chats := &service.ChatService{Chats: repos.Chats, Messages: repos.Messages}
	peers := &service.PeerResolver{Peers: repos.Peers, Log: log}
	sender := &service.Sender{Gateway: gw, Chats: chats, Registry: reg, Events: events, Log: log}

	return Services{
		Chats:  chats,
		Peers:  peers,
		Sender: sender,
		Webhook: &service.WebhookService{
			Chats:    chats,
			Peers:    peers,
			Registry: reg,
			Events:   events,
			Log:      log,
		},
		Scheduler: &service.SchedulerService{Repo: repos.Scheduled, Sender: sender, Events: events, Log: log},
		Campaigns: &service.CampaignService{
			Repo:     repos.Campaigns,
			Messages: repos.Messages,
			Sender:   sender,
			Events:   events,
			Log:      log,
			Location: cfg.Location(),
		},
	}
}

func wireRouter(cfg *config.Config, log *logger.Logger, s Services) http.Handler {
	return handler.NewRouter(handler.Controllers{
		Webhook:   &controller.WebhookController{Service: s.Webhook, Log: log},
		Messages:  &controller.MessageController{Sender: s.Sender, Log: log},
		Schedules: &controller.ScheduleController{Service: s.Scheduler, BatchLimit: cfg.ScheduleBatchLimit, Log: log},
		Campaigns: &controller.CampaignController{CampaignService: s.Campaigns, BatchLimit: cfg.CampaignBatchLimit, Log: log},
	}, cfg.CronSecret, log)
}

// NewWorker builds a batch worker fed from jobs.
func (a *App) NewWorker(jobs <-chan string) *service.Worker {
	w := service.NewWorker(a.Services.Scheduler, a.Services.Campaigns, jobs, a.Log)
	w.ScheduleLimit = a.Cfg.ScheduleBatchLimit
	w.CampaignLimit = a.Cfg.CampaignBatchLimit
	return w
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
	a.Log.Sync()
}
