package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
	"github.com/hexamarkco/kifersaude-sub002/internal/testutil"
)

func newCampaignEngine(f *fixture) (*service.CampaignService, *testutil.CampaignRepo) {
	repo := testutil.NewCampaignRepo()
	return &service.CampaignService{
		Repo:     repo,
		Messages: f.store,
		Sender:   f.sender,
		Events:   f.events,
		Log:      logger.Nop(),
		Location: time.UTC,
	}, repo
}

func messageStep(body string) *model.CampaignStep {
	return &model.CampaignStep{StepType: model.StepMessage, Config: model.StepConfig{Message: &model.MessageStepConfig{Body: body}}}
}

func imageStep(url string) *model.CampaignStep {
	return &model.CampaignStep{StepType: model.StepAttachment, Config: model.StepConfig{Attachment: &model.AttachmentStepConfig{AttachmentType: "image", Payload: url}}}
}

func durationWait(seconds int) *model.CampaignStep {
	return &model.CampaignStep{StepType: model.StepWaitCondition, Config: model.StepConfig{Wait: &model.WaitStepConfig{Strategy: model.WaitDuration, DurationSeconds: intPtr(seconds)}}}
}

func replyWait(timeout *int) *model.CampaignStep {
	return &model.CampaignStep{StepType: model.StepWaitCondition, Config: model.StepConfig{Wait: &model.WaitStepConfig{Strategy: model.WaitReply, TimeoutSeconds: timeout}}}
}

func runTick(t *testing.T, svc *service.CampaignService, now time.Time) []service.CampaignResult {
	t.Helper()
	results, err := svc.ProcessPendingTargets(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("tick at %s: %v", now, err)
	}
	return results
}

func TestCampaignThreeStepFlow(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Name: "Boas-vindas", Status: model.CampaignRunning},
		messageStep("{{saudacao}}, bem-vindo à {{campanha_nome}}"),
		imageStep("https://cdn.example.com/banner.png"),
		durationWait(60),
	)
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	tick1 := baseTime
	res := runTick(t, svc, tick1)
	if len(res) != 1 || res[0].Status != service.ResultSent {
		t.Fatalf("tick 1: unexpected results %+v", res)
	}
	target := repo.Target("t-1")
	if target.CurrentStepIndex != 1 || target.Status != model.TargetInProgress {
		t.Fatalf("tick 1: expected step 1 in_progress, got %d %s", target.CurrentStepIndex, target.Status)
	}
	if target.ChatID == nil {
		t.Fatal("tick 1: chat id should be set from the send")
	}
	if got := f.gateway.Texts[0].Message; got != "Boa tarde, bem-vindo à Boas-vindas" {
		t.Errorf("unexpected rendered text %q", got)
	}

	tick2 := tick1.Add(time.Minute)
	runTick(t, svc, tick2)
	target = repo.Target("t-1")
	if len(f.gateway.Media) != 1 || f.gateway.Media[0].Kind != "image" {
		t.Fatalf("tick 2: expected one image send, got %+v", f.gateway.Media)
	}
	if target.Status != model.TargetWaiting || target.CurrentStepIndex != 2 {
		t.Fatalf("tick 2: expected waiting on step 2, got %s %d", target.Status, target.CurrentStepIndex)
	}
	if target.WaitUntil == nil || !target.WaitUntil.Equal(tick2.Add(60*time.Second)) {
		t.Fatalf("tick 2: unexpected wait_until %v", target.WaitUntil)
	}

	res = runTick(t, svc, tick2.Add(30*time.Second))
	if len(res) != 0 || repo.Target("t-1").Status != model.TargetWaiting {
		t.Fatalf("tick 3: a wait that is not due should not be listed, got %+v", res)
	}

	runTick(t, svc, tick2.Add(61*time.Second))
	target = repo.Target("t-1")
	if target.Status != model.TargetCompleted || target.WaitUntil != nil || target.ConditionState != nil {
		t.Fatalf("tick 4: expected completed with cleared wait, got %+v", target)
	}
	if f.gateway.TextCount() != 1 || len(f.gateway.Media) != 1 {
		t.Errorf("no extra sends expected, got %d texts %d media", f.gateway.TextCount(), len(f.gateway.Media))
	}
}

func TestCampaignReplyWaitAdvancesOnInbound(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning},
		messageStep("Podemos falar?"),
		replyWait(nil),
		messageStep("Obrigado pela resposta"),
	)
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	runTick(t, svc, baseTime)
	target := repo.Target("t-1")
	if target.Status != model.TargetWaiting || target.ConditionState == nil || target.ConditionState.Type != model.WaitReply {
		t.Fatalf("expected reply wait entered, got %+v", target)
	}
	if !target.ConditionState.StartedAt.Equal(baseTime) {
		t.Errorf("unexpected startedAt %v", target.ConditionState.StartedAt)
	}

	res := runTick(t, svc, baseTime.Add(time.Minute))
	if res[0].Status != service.ResultWaiting {
		t.Fatalf("no reply yet: expected waiting, got %+v", res)
	}

	replyAt := baseTime.Add(2 * time.Minute)
	if _, err := f.chats.InsertMessage(context.Background(), service.MessageInput{
		ChatID: *target.ChatID, FromMe: false, Status: "RECEIVED", Text: strPtr("sim"), Moment: &replyAt,
	}); err != nil {
		t.Fatal(err)
	}

	runTick(t, svc, baseTime.Add(3*time.Minute))
	target = repo.Target("t-1")
	if target.Status != model.TargetCompleted {
		t.Fatalf("expected completed after reply, got %s at step %d", target.Status, target.CurrentStepIndex)
	}
	if f.gateway.TextCount() != 2 {
		t.Errorf("expected follow-up message, got %d sends", f.gateway.TextCount())
	}
}

func TestCampaignReplyWaitTimesOut(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning},
		messageStep("Oi"),
		replyWait(intPtr(120)),
	)
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	runTick(t, svc, baseTime)
	runTick(t, svc, baseTime.Add(time.Minute))
	if repo.Target("t-1").Status != model.TargetWaiting {
		t.Fatal("expected waiting before the timeout")
	}
	runTick(t, svc, baseTime.Add(3*time.Minute))
	if repo.Target("t-1").Status != model.TargetCompleted {
		t.Fatal("expected completion after the timeout")
	}
}

func TestCampaignReplyWaitWithoutChatAdvances(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, replyWait(nil))
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	res := runTick(t, svc, baseTime)
	if res[0].Status != service.ResultSent || repo.Target("t-1").Status != model.TargetCompleted {
		t.Fatalf("expected immediate advance, got %+v", res)
	}
}

func TestCampaignWithoutStepsCompletes(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "empty", Status: model.CampaignRunning})
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "empty", Phone: "5511987654321"})

	runTick(t, svc, baseTime)
	if repo.Target("t-1").Status != model.TargetCompleted {
		t.Fatalf("expected completed, got %s", repo.Target("t-1").Status)
	}
	if f.gateway.TextCount() != 0 {
		t.Error("no sends expected")
	}
}

func TestCampaignFailureIsolation(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning},
		messageStep("Olá"),
		&model.CampaignStep{StepType: "poll"},
	)
	repo.AddTarget(&model.CampaignTarget{ID: "bad", CampaignID: "camp-1", Phone: "5511987654321", CurrentStepIndex: 1})
	repo.AddTarget(&model.CampaignTarget{ID: "good", CampaignID: "camp-1", Phone: "5511987654322"})

	res := runTick(t, svc, baseTime)
	if len(res) != 2 {
		t.Fatalf("expected two results, got %+v", res)
	}
	bad := repo.Target("bad")
	if bad.Status != model.TargetFailed || bad.LastError == nil {
		t.Errorf("expected bad target failed with error, got %+v", bad)
	}
	if good := repo.Target("good"); good.CurrentStepIndex != 1 {
		t.Errorf("good target should advance, got %+v", good)
	}
}

func TestCampaignGatewayFailureMarksTargetFailed(t *testing.T) {
	f := newFixture()
	f.gateway.Err = errors.New("gateway unavailable")
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, messageStep("Olá"))
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	res := runTick(t, svc, baseTime)
	if res[0].Status != service.ResultFailed || res[0].Error != "gateway unavailable" {
		t.Fatalf("unexpected result %+v", res)
	}
	target := repo.Target("t-1")
	if target.Status != model.TargetFailed || *target.LastError != "gateway unavailable" {
		t.Errorf("unexpected target %+v", target)
	}

	res = runTick(t, svc, baseTime.Add(time.Minute))
	if len(res) != 0 {
		t.Errorf("failed targets are not reprocessed, got %+v", res)
	}
}

// racingRepo touches every listed target before the engine can claim it.
type racingRepo struct {
	*testutil.CampaignRepo
}

func (r racingRepo) ListProcessableTargets(ctx context.Context, now time.Time, limit int) ([]*model.CampaignTarget, error) {
	targets, err := r.CampaignRepo.ListProcessableTargets(ctx, now, limit)
	for _, t := range targets {
		r.Touch(t.ID, t.UpdatedAt.Add(time.Second))
	}
	return targets, err
}

func TestCampaignSkipsTargetChangedByAnotherRun(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	svc.Repo = racingRepo{repo}
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, messageStep("Olá"))
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	res := runTick(t, svc, baseTime)
	if len(res) != 1 || res[0].Status != service.ResultSkipped {
		t.Fatalf("expected skipped, got %+v", res)
	}
	if f.gateway.TextCount() != 0 {
		t.Error("a lost claim must not send")
	}
	if target := repo.Target("t-1"); target.CurrentStepIndex != 0 || target.Status != model.TargetPending {
		t.Errorf("target should be untouched, got %+v", target)
	}
}

func TestCampaignStepsLoadedOncePerBatch(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, messageStep("Olá"))
	for i, phone := range []string{"5511987654321", "5511987654322", "5511987654323"} {
		repo.AddTarget(&model.CampaignTarget{ID: fmt.Sprintf("t-%d", i), CampaignID: "camp-1", Phone: phone})
	}

	res := runTick(t, svc, baseTime)
	if len(res) != 3 || f.gateway.TextCount() != 3 {
		t.Fatalf("expected three sends, got %+v", res)
	}
	if repo.StepLoads != 1 {
		t.Errorf("expected steps loaded once, got %d", repo.StepLoads)
	}
}

func TestCampaignBatchLimit(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, messageStep("Olá"))
	for i := 0; i < 5; i++ {
		repo.AddTarget(&model.CampaignTarget{ID: fmt.Sprintf("t-%d", i), CampaignID: "camp-1", Phone: fmt.Sprintf("551198765432%d", i)})
	}

	res, err := svc.ProcessPendingTargets(context.Background(), baseTime, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 || res[0].TargetID != "t-0" || res[1].TargetID != "t-1" {
		t.Fatalf("expected the two oldest targets, got %+v", res)
	}
}

func TestCampaignStepLoadErrorFailsTargets(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, messageStep("Olá"))
	repo.FailSteps["camp-1"] = errors.New("steps unavailable")
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	res := runTick(t, svc, baseTime)
	if res[0].Status != service.ResultFailed {
		t.Fatalf("expected failure, got %+v", res)
	}
	if repo.Target("t-1").Status != model.TargetFailed {
		t.Error("target should be marked failed")
	}
}

func TestCampaignIgnoresPausedCampaigns(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: "paused"}, messageStep("Olá"))
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	if res := runTick(t, svc, baseTime); len(res) != 0 {
		t.Fatalf("paused campaign should not be processed, got %+v", res)
	}
	repo.SetCampaignStatus("camp-1", model.CampaignRunning)
	if res := runTick(t, svc, baseTime); len(res) != 1 {
		t.Fatalf("running campaign should be processed, got %+v", res)
	}
}

func TestCampaignDefaultWaitIsSixtySeconds(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning},
		&model.CampaignStep{StepType: model.StepWaitCondition},
	)
	repo.AddTarget(&model.CampaignTarget{ID: "t-1", CampaignID: "camp-1", Phone: "5511987654321"})

	runTick(t, svc, baseTime)
	target := repo.Target("t-1")
	if target.WaitUntil == nil || !target.WaitUntil.Equal(baseTime.Add(60*time.Second)) {
		t.Fatalf("expected 60s default wait, got %v", target.WaitUntil)
	}
}

func TestCampaignLongWaitsDoNotStarveOtherTargets(t *testing.T) {
	f := newFixture()
	svc, repo := newCampaignEngine(f)
	repo.AddCampaign(&model.Campaign{ID: "camp-1", Status: model.CampaignRunning}, durationWait(86400), messageStep("Oi de novo"))
	for i := 0; i < 25; i++ {
		repo.AddTarget(&model.CampaignTarget{ID: fmt.Sprintf("w-%02d", i), CampaignID: "camp-1", Phone: fmt.Sprintf("55119876543%02d", i)})
	}
	if res := runTick(t, svc, baseTime); len(res) != 25 {
		t.Fatalf("expected 25 targets to enter the wait, got %d", len(res))
	}

	repo.AddCampaign(&model.Campaign{ID: "camp-2", Status: model.CampaignRunning}, messageStep("Bem-vindo"))
	repo.AddTarget(&model.CampaignTarget{ID: "fresh", CampaignID: "camp-2", Phone: "5521987654321", UpdatedAt: baseTime.Add(30 * time.Second)})

	res := runTick(t, svc, baseTime.Add(time.Minute))
	if len(res) != 1 || res[0].TargetID != "fresh" || res[0].Status != service.ResultSent {
		t.Fatalf("expected only the fresh target to run, got %+v", res)
	}
	if got := repo.Target("fresh"); got.Status != model.TargetCompleted {
		t.Errorf("fresh target should complete, got %s at step %d", got.Status, got.CurrentStepIndex)
	}
	if got := repo.Target("w-00"); got.Status != model.TargetWaiting {
		t.Errorf("waiting target should be untouched, got %s", got.Status)
	}
}
