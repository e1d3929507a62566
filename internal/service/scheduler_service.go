package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/model"
	"github.com/hexamarkco/kifersaude-sub002/internal/queue"
	"github.com/hexamarkco/kifersaude-sub002/internal/repository"
)

// SchedulerService stores future sends and dispatches the due ones.
type SchedulerService struct {
	Repo   repository.ScheduledMessageRepositoryInterface
	Sender MessageSender
	Events queue.Publisher
	Log    *logger.Logger
	Now    func() time.Time
}

// ScheduleResult reports the outcome for one claimed record.
type ScheduleResult struct {
	ID     string                `json:"id"`
	Status model.ScheduledStatus `json:"status"`
	Error  string                `json:"error,omitempty"`
}

func (s *SchedulerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SchedulerService) Schedule(ctx context.Context, chatID, phone, message string, sendAt time.Time) (*model.ScheduledMessage, error) {
	chatID = strings.TrimSpace(chatID)
	phone = strings.TrimSpace(phone)
	message = strings.TrimSpace(message)
	switch {
	case chatID == "":
		return nil, appErrors.NewValidation("chatId", "is required")
	case phone == "":
		return nil, appErrors.NewValidation("phone", "is required")
	case message == "":
		return nil, appErrors.NewValidation("message", "must not be empty")
	case sendAt.IsZero():
		return nil, appErrors.NewValidation("scheduledSendAt", "is required")
	}

	m := &model.ScheduledMessage{
		ChatID:          chatID,
		Phone:           phone,
		Message:         message,
		ScheduledSendAt: sendAt.UTC(),
		Status:          model.ScheduledPending,
	}
	if err := s.Repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create scheduled message: %w", err)
	}
	s.Log.Info("Scheduled WhatsApp message", "id", m.ID, "chat_id", chatID, "send_at", m.ScheduledSendAt)
	return m, nil
}

func (s *SchedulerService) ListByChat(ctx context.Context, chatID string) ([]*model.ScheduledMessage, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, appErrors.NewValidation("chatId", "is required")
	}
	return s.Repo.ListByChat(ctx, chatID)
}

// Cancel cancels a pending or processing record. It returns false for a
// record already in a terminal state.
func (s *SchedulerService) Cancel(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, appErrors.NewValidation("id", "is required")
	}
	cancelled, err := s.Repo.Cancel(ctx, id, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("cancel scheduled message %s: %w", id, err)
	}
	if cancelled {
		return true, nil
	}
	existing, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, appErrors.NewNotFound("scheduled message", id)
	}
	return false, nil
}

// ProcessDue claims and sends up to limit due records, one at a time.
// Records claimed by a concurrent run are skipped and not reported; a claim
// that fails with an error is reported with the record still pending.
func (s *SchedulerService) ProcessDue(ctx context.Context, now time.Time, limit int) ([]ScheduleResult, error) {
	if limit <= 0 {
		limit = 50
	}
	due, err := s.Repo.ListDue(ctx, now, limit)
	if err != nil {
		return nil, err
	}

	results := []ScheduleResult{}
	for _, m := range due {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, ok := s.processOne(ctx, m, now)
		if !ok {
			continue
		}
		results = append(results, res)
		if s.Events != nil {
			if err := s.Events.Publish(ctx, queue.TopicScheduledProcessed, res); err != nil {
				s.Log.Warn("Failed to publish scheduled event", "id", m.ID, "error", err)
			}
		}
	}
	return results, nil
}

func (s *SchedulerService) processOne(ctx context.Context, m *model.ScheduledMessage, now time.Time) (ScheduleResult, bool) {
	log := s.Log.With("scheduled_id", m.ID)

	claimed, err := s.Repo.Claim(ctx, m.ID, now)
	if err != nil {
		log.Error("Failed to claim scheduled message", "error", err)
		return ScheduleResult{ID: m.ID, Status: model.ScheduledPending, Error: "claim: " + err.Error()}, true
	}
	if !claimed {
		log.Debug("Scheduled message already claimed")
		return ScheduleResult{}, false
	}

	if _, sendErr := s.Sender.SendText(ctx, m.Phone, m.Message); sendErr != nil {
		log.Warn("Scheduled send failed", "error", sendErr)
		if err := s.Repo.MarkFailed(ctx, m.ID, s.now(), sendErr.Error()); err != nil {
			log.Error("Failed to record scheduled failure; record stays processing", "error", err)
		}
		return ScheduleResult{ID: m.ID, Status: model.ScheduledFailed, Error: sendErr.Error()}, true
	}

	res := ScheduleResult{ID: m.ID, Status: model.ScheduledSent}
	if err := s.Repo.MarkSent(ctx, m.ID, s.now()); err != nil {
		log.Error("Failed to record scheduled send; record stays processing", "error", err)
		res.Error = fmt.Sprintf("sent but not recorded: %v", err)
	}
	return res, true
}
