package jobs_test

import (
	"testing"

	"github.com/hexamarkco/kifersaude-sub002/internal/jobs"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

func TestNewTickerRejectsBadSpec(t *testing.T) {
	if _, err := jobs.NewTicker("every minute", make(chan string, 1), logger.Nop(), "process_scheduled"); err == nil {
		t.Fatal("expected an error for an invalid spec")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	ch := make(chan string, 1)
	ticker, err := jobs.NewTicker("0 * * * * *", ch, logger.Nop(), "process_scheduled", "process_campaigns")
	if err != nil {
		t.Fatal(err)
	}

	if !ticker.Enqueue("process_scheduled") {
		t.Fatal("first enqueue should succeed")
	}
	if ticker.Enqueue("process_campaigns") {
		t.Fatal("enqueue on a full queue should be dropped")
	}
	if got := <-ch; got != "process_scheduled" {
		t.Errorf("unexpected job %q", got)
	}
}

func TestStartStop(t *testing.T) {
	ticker, err := jobs.NewTicker("0 * * * * *", make(chan string, 2), logger.Nop(), "process_scheduled")
	if err != nil {
		t.Fatal(err)
	}
	ticker.Start()
	ticker.Stop()
}
