package main

import (
	"context"
	"errors"
	"testing"

	"github.com/streadway/amqp"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

type ackRecorder struct {
	acks     int
	nacks    int
	requeued bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}

type stubRunner struct {
	jobs []string
	err  error
}

func (r *stubRunner) Run(ctx context.Context, job string) (int, error) {
	r.jobs = append(r.jobs, job)
	return 1, r.err
}

func delivery(body string, redelivered bool) (amqp.Delivery, *ackRecorder) {
	rec := &ackRecorder{}
	return amqp.Delivery{Acknowledger: rec, Body: []byte(body), Redelivered: redelivered}, rec
}

func TestHandleDeliveryRunsJob(t *testing.T) {
	runner := &stubRunner{}
	d, rec := delivery(`{"job":"process_scheduled"}`, false)
	handleDelivery(context.Background(), runner, d, logger.Nop())

	if len(runner.jobs) != 1 || runner.jobs[0] != "process_scheduled" {
		t.Fatalf("unexpected jobs %v", runner.jobs)
	}
	if rec.acks != 1 || rec.nacks != 0 {
		t.Errorf("expected a single ack, got %+v", rec)
	}
}

func TestHandleDeliveryAcksInvalidBody(t *testing.T) {
	runner := &stubRunner{}
	for _, body := range []string{`not json`, `{}`} {
		d, rec := delivery(body, false)
		handleDelivery(context.Background(), runner, d, logger.Nop())
		if rec.acks != 1 {
			t.Errorf("%q: expected ack, got %+v", body, rec)
		}
	}
	if len(runner.jobs) != 0 {
		t.Errorf("invalid bodies must not run, got %v", runner.jobs)
	}
}

func TestHandleDeliveryRequeuesOnce(t *testing.T) {
	runner := &stubRunner{err: errors.New("db down")}

	d, rec := delivery(`{"job":"process_campaigns"}`, false)
	handleDelivery(context.Background(), runner, d, logger.Nop())
	if rec.nacks != 1 || !rec.requeued || rec.acks != 0 {
		t.Errorf("first failure should requeue, got %+v", rec)
	}

	d, rec = delivery(`{"job":"process_campaigns"}`, true)
	handleDelivery(context.Background(), runner, d, logger.Nop())
	if rec.acks != 1 || rec.nacks != 0 {
		t.Errorf("redelivered failure should be acked, got %+v", rec)
	}
}
