package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"

	"github.com/hexamarkco/kifersaude-sub002/internal/app"
	"github.com/hexamarkco/kifersaude-sub002/internal/config"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
)

type jobRunner interface {
	Run(ctx context.Context, job string) (int, error)
}

func main() {
	enqueue := flag.String("enqueue", "", "publish one job by name to the jobs queue and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if cfg.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	if *enqueue != "" {
		if err := publishOnce(cfg, *enqueue); err != nil {
			log.Fatal("Failed to enqueue job", "job", *enqueue, "error", err)
		}
		log.Info("Job enqueued", "job", *enqueue, "queue", cfg.JobsQueue)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Startup failed", "error", err)
	}
	defer a.Close()

	ch, err := a.AMQP.Channel()
	if err != nil {
		log.Fatal("Failed to open a channel", "error", err)
	}
	defer ch.Close()

	msgs, err := queue.ConsumeJobs(ch, cfg.JobsQueue)
	if err != nil {
		log.Fatal("Failed to register consumer", "error", err)
	}

	worker := a.NewWorker(nil)
	log.Info("Worker running, waiting for jobs", "queue", cfg.JobsQueue)
	for {
		select {
		case <-ctx.Done():
			log.Info("Worker stopped")
			return
		case d, ok := <-msgs:
			if !ok {
				log.Warn("Jobs channel closed by broker")
				return
			}
			handleDelivery(ctx, worker, d, log)
		}
	}
}

// handleDelivery runs one job and settles the delivery. A failed job is
// requeued once; a second failure or an undecodable body is acked so it
// cannot loop forever.
func handleDelivery(ctx context.Context, runner jobRunner, d amqp.Delivery, log *logger.Logger) {
	job, err := queue.DecodeJob(d.Body)
	if err != nil {
		log.Warn("Invalid job", "error", err)
		d.Ack(false)
		return
	}

	n, err := runner.Run(ctx, job.Job)
	if err != nil {
		if !d.Redelivered {
			log.Warn("Job failed; requeueing", "job", job.Job, "error", err)
			d.Nack(false, true)
			return
		}
		log.Error("Job failed after redelivery", "job", job.Job, "error", err)
		d.Ack(false)
		return
	}
	log.Debug("Job done", "job", job.Job, "records", n)
	d.Ack(false)
}

func publishOnce(cfg *config.Config, name string) error {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(cfg.JobsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.JobsQueue, err)
	}
	return queue.PublishJob(ch, cfg.JobsQueue, name)
}
