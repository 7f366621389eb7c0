package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"remindify/internal/config"
	"remindify/internal/models"
	"remindify/internal/storage"
)

const (
	maxSubjectLength = 120
	minBodyLength    = 5
)

// ReminderInput is what a sender provides when creating a reminder.
type ReminderInput struct {
	RecipientID uint      `json:"recipientId"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// ReminderUpdate replaces the editable fields of a reminder.
type ReminderUpdate struct {
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// ReminderListFilter selects the recipient's reminders. Status is "", "all" or a ReminderStatus.
type ReminderListFilter struct {
	Status     string
	UnreadOnly bool
}

// SentReminder is a reminder as listed for its sender.
type SentReminder struct {
	models.Reminder
	Recipient *models.UserBasicInfo `json:"recipient"`
}

// ReminderService creates and manages reminders. Senders own content; recipients own
// status, read flag and snoozing.
type ReminderService interface {
	Create(ctx context.Context, senderID uint, input ReminderInput) (*models.Reminder, error)
	Get(ctx context.Context, reminderID, actingUserID uint) (*models.ReminderWithSender, error)
	ListReceived(ctx context.Context, recipientID uint, filter ReminderListFilter) ([]*models.ReminderWithSender, error)
	ListSent(ctx context.Context, senderID uint) ([]*SentReminder, error)
	Snooze(ctx context.Context, reminderID, actingUserID uint, d time.Duration) (*models.Reminder, error)
	MarkDone(ctx context.Context, reminderID, actingUserID uint) (*models.Reminder, error)
	MarkRead(ctx context.Context, reminderID, actingUserID uint) (*models.Reminder, error)
	Update(ctx context.Context, reminderID, actingUserID uint, update ReminderUpdate) (*models.Reminder, error)
	Delete(ctx context.Context, reminderID, actingUserID uint) error
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
}

type reminderService struct {
	reminderRepo storage.ReminderRepository
	userRepo     storage.UserRepository
	connRepo     storage.ConnectionRepository
	cfg          config.ReminderConfig
	now          func() time.Time
}

// NewReminderService creates a new ReminderService.
func NewReminderService(
	reminderRepo storage.ReminderRepository,
	userRepo storage.UserRepository,
	connRepo storage.ConnectionRepository,
	cfg config.ReminderConfig,
) ReminderService {
	return &reminderService{
		reminderRepo: reminderRepo,
		userRepo:     userRepo,
		connRepo:     connRepo,
		cfg:          cfg,
		now:          time.Now,
	}
}

func validateContent(subject, body string, scheduledAt time.Time) (string, string, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" {
		return "", "", invalidInput("subject is required")
	}
	if utf8.RuneCountInString(subject) > maxSubjectLength {
		return "", "", invalidInput("subject must be at most %d characters", maxSubjectLength)
	}
	if utf8.RuneCountInString(body) < minBodyLength {
		return "", "", invalidInput("body must be at least %d characters", minBodyLength)
	}
	if scheduledAt.IsZero() {
		return "", "", invalidInput("scheduled time is required")
	}
	return subject, body, nil
}

func (s *reminderService) Create(ctx context.Context, senderID uint, input ReminderInput) (*models.Reminder, error) {
	// 1. Validate content
	subject, body, err := validateContent(input.Subject, input.Body, input.ScheduledAt)
	if err != nil {
		return nil, err
	}
	if input.RecipientID == 0 {
		return nil, invalidInput("recipient is required")
	}
	if input.RecipientID == senderID {
		return nil, ErrSelfReference
	}

	// 2. Recipient must exist
	if _, err := s.userRepo.GetBasicInfoByID(ctx, input.RecipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, input.RecipientID)
		}
		return nil, storageErr("get recipient", err)
	}

	// 3. Optionally restrict reminders to the sender's circle
	if s.cfg.RequireConnection {
		conn, err := s.connRepo.FindByPair(ctx, senderID, input.RecipientID)
		if err != nil {
			return nil, storageErr("find connection", err)
		}
		if conn == nil || !conn.IsAccepted() {
			return nil, fmt.Errorf("%w: recipient is not in your circle", ErrNotAuthorized)
		}
	}

	reminder := &models.Reminder{
		SenderID:    senderID,
		RecipientID: input.RecipientID,
		Subject:     subject,
		Body:        body,
		ScheduledAt: input.ScheduledAt.UTC(),
		Status:      models.ReminderStatusPending,
	}
	if err := s.reminderRepo.Create(ctx, reminder); err != nil {
		return nil, storageErr("create reminder", err)
	}

	log.Printf("Reminder %d created by user %d for user %d", reminder.ID, senderID, input.RecipientID)
	return reminder, nil
}

func (s *reminderService) Get(ctx context.Context, reminderID, actingUserID uint) (*models.ReminderWithSender, error) {
	reminder, err := s.getReminder(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if reminder.SenderID != actingUserID && reminder.RecipientID != actingUserID {
		return nil, ErrNotAuthorized
	}
	sender, err := s.userRepo.GetBasicInfoByID(ctx, reminder.SenderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storageErr("get sender", err)
	}
	return &models.ReminderWithSender{
		Reminder: *reminder,
		Sender:   sender,
		Due:      reminder.IsDue(s.now(), s.cfg.DueWindow),
	}, nil
}

func (s *reminderService) ListReceived(ctx context.Context, recipientID uint, filter ReminderListFilter) ([]*models.ReminderWithSender, error) {
	repoFilter := storage.ReminderFilter{UnreadOnly: filter.UnreadOnly}
	switch status := strings.ToLower(strings.TrimSpace(filter.Status)); status {
	case "", "all":
	default:
		if !models.ReminderStatus(status).Valid() {
			return nil, invalidInput("unknown status %q", filter.Status)
		}
		repoFilter.Status = models.ReminderStatus(status)
	}

	reminders, err := s.reminderRepo.ListForRecipient(ctx, recipientID, repoFilter)
	if err != nil {
		return nil, storageErr("list received reminders", err)
	}

	senderIDs := make([]uint, 0, len(reminders))
	for i := range reminders {
		senderIDs = append(senderIDs, reminders[i].SenderID)
	}
	senders, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, senderIDs)
	if err != nil {
		return nil, storageErr("load reminder senders", err)
	}

	now := s.now()
	result := make([]*models.ReminderWithSender, 0, len(reminders))
	for i := range reminders {
		r := reminders[i]
		result = append(result, &models.ReminderWithSender{
			Reminder: r,
			Sender:   senders[r.SenderID],
			Due:      r.IsDue(now, s.cfg.DueWindow),
		})
	}
	return result, nil
}

func (s *reminderService) ListSent(ctx context.Context, senderID uint) ([]*SentReminder, error) {
	reminders, err := s.reminderRepo.ListBySender(ctx, senderID)
	if err != nil {
		return nil, storageErr("list sent reminders", err)
	}

	recipientIDs := make([]uint, 0, len(reminders))
	for i := range reminders {
		recipientIDs = append(recipientIDs, reminders[i].RecipientID)
	}
	recipients, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, recipientIDs)
	if err != nil {
		return nil, storageErr("load reminder recipients", err)
	}

	result := make([]*SentReminder, 0, len(reminders))
	for i := range reminders {
		result = append(result, &SentReminder{
			Reminder:  reminders[i],
			Recipient: recipients[reminders[i].RecipientID],
		})
	}
	return result, nil
}

// Snooze pushes the reminder d into the future from now.
func (s *reminderService) Snooze(ctx context.Context, reminderID, actingUserID uint, d time.Duration) (*models.Reminder, error) {
	if d <= 0 || (s.cfg.MaxSnooze > 0 && d > s.cfg.MaxSnooze) {
		return nil, invalidInput("snooze must be positive and at most %s", s.cfg.MaxSnooze)
	}
	reminder, err := s.recipientReminder(ctx, reminderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if reminder.Status == models.ReminderStatusDone {
		return nil, ErrInvalidState
	}

	guard := storage.ReminderGuard{RecipientID: actingUserID, NotStatus: models.ReminderStatusDone}
	return s.applyUpdate(ctx, "snooze reminder", reminderID, guard, map[string]any{
		"scheduled_at": s.now().Add(d).UTC(),
		"status":       models.ReminderStatusSnoozed,
	})
}

// MarkDone also marks the reminder read. Repeating it is harmless.
func (s *reminderService) MarkDone(ctx context.Context, reminderID, actingUserID uint) (*models.Reminder, error) {
	reminder, err := s.recipientReminder(ctx, reminderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if reminder.Status == models.ReminderStatusDone && reminder.Read {
		return reminder, nil
	}

	return s.applyUpdate(ctx, "mark reminder done", reminderID, storage.ReminderGuard{RecipientID: actingUserID}, map[string]any{
		"status":  models.ReminderStatusDone,
		"is_read": true,
	})
}

func (s *reminderService) MarkRead(ctx context.Context, reminderID, actingUserID uint) (*models.Reminder, error) {
	reminder, err := s.recipientReminder(ctx, reminderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if reminder.Read {
		return reminder, nil
	}

	return s.applyUpdate(ctx, "mark reminder read", reminderID, storage.ReminderGuard{RecipientID: actingUserID}, map[string]any{
		"is_read": true,
	})
}

// Update lets the sender edit a reminder that is not done yet. The edited reminder shows
// up as unread and pending again for the recipient.
func (s *reminderService) Update(ctx context.Context, reminderID, actingUserID uint, update ReminderUpdate) (*models.Reminder, error) {
	subject, body, err := validateContent(update.Subject, update.Body, update.ScheduledAt)
	if err != nil {
		return nil, err
	}
	reminder, err := s.senderReminder(ctx, reminderID, actingUserID)
	if err != nil {
		return nil, err
	}
	if reminder.Status == models.ReminderStatusDone {
		return nil, ErrInvalidState
	}

	guard := storage.ReminderGuard{SenderID: actingUserID, NotStatus: models.ReminderStatusDone}
	return s.applyUpdate(ctx, "update reminder", reminderID, guard, map[string]any{
		"subject":      subject,
		"body":         body,
		"scheduled_at": update.ScheduledAt.UTC(),
		"status":       models.ReminderStatusPending,
		"is_read":      false,
	})
}

// applyUpdate writes fields only while guard still holds and returns the stored row.
// A write that lost to a concurrent delete or state change reports NotFound or InvalidState.
func (s *reminderService) applyUpdate(ctx context.Context, op string, reminderID uint, guard storage.ReminderGuard, fields map[string]any) (*models.Reminder, error) {
	applied, err := s.reminderRepo.UpdateFields(ctx, reminderID, guard, fields)
	if err != nil {
		return nil, storageErr(op, err)
	}
	reminder, err := s.getReminder(ctx, reminderID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: reminder %d changed concurrently", ErrInvalidState, reminderID)
	}
	return reminder, nil
}

func (s *reminderService) Delete(ctx context.Context, reminderID, actingUserID uint) error {
	if _, err := s.senderReminder(ctx, reminderID, actingUserID); err != nil {
		return err
	}
	if err := s.reminderRepo.Delete(ctx, reminderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: reminder %d", ErrNotFound, reminderID)
		}
		return storageErr("delete reminder", err)
	}
	log.Printf("Reminder %d deleted by user %d", reminderID, actingUserID)
	return nil
}

func (s *reminderService) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	n, err := s.reminderRepo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, storageErr("count unread reminders", err)
	}
	return n, nil
}

func (s *reminderService) getReminder(ctx context.Context, id uint) (*models.Reminder, error) {
	reminder, err := s.reminderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reminder %d", ErrNotFound, id)
		}
		return nil, storageErr("get reminder", err)
	}
	return reminder, nil
}

func (s *reminderService) recipientReminder(ctx context.Context, id, actingUserID uint) (*models.Reminder, error) {
	reminder, err := s.getReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder.RecipientID != actingUserID {
		return nil, ErrNotAuthorized
	}
	return reminder, nil
}

func (s *reminderService) senderReminder(ctx context.Context, id, actingUserID uint) (*models.Reminder, error) {
	reminder, err := s.getReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if reminder.SenderID != actingUserID {
		return nil, ErrNotAuthorized
	}
	return reminder, nil
}
