package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"remindify/internal/config"
	"remindify/internal/models"
	"remindify/internal/storage"
)

const publishTimeout = 5 * time.Second

// CooldownTracker remembers declined requests. Implemented on Redis.
type CooldownTracker interface {
	Start(ctx context.Context, requesterID, recipientID uint, d time.Duration) error
	Active(ctx context.Context, requesterID, recipientID uint) (bool, error)
}

// CircleMember is one accepted connection seen from the listing user's side.
type CircleMember struct {
	ConnectionID uint                  `json:"connectionId"`
	User         *models.UserBasicInfo `json:"user"`
	Label        string                `json:"label"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// PendingDirection tells whether a pending request was received or sent by the listing user.
type PendingDirection string

const (
	PendingIncoming PendingDirection = "incoming"
	PendingOutgoing PendingDirection = "outgoing"
)

// PendingRequest is one pending connection seen from the listing user's side.
// User is always the other party.
type PendingRequest struct {
	ConnectionID uint                  `json:"connectionId"`
	User         *models.UserBasicInfo `json:"user"`
	Label        string                `json:"label"`
	Direction    PendingDirection      `json:"direction"`
	CreatedAt    time.Time             `json:"createdAt"`
}

// ConnectionService manages the circle connection lifecycle:
// pending -> accepted via accept, and row deletion via reject, cancel or remove.
// The acting user is always passed in explicitly.
type ConnectionService interface {
	SendRequest(ctx context.Context, requesterID uint, targetUsername, label string) (*models.Connection, error)
	AcceptRequest(ctx context.Context, connectionID, actingUserID uint) (*models.Connection, error)
	RejectRequest(ctx context.Context, connectionID, actingUserID uint) error
	CancelRequest(ctx context.Context, connectionID, actingUserID uint) error
	// RemoveConnection deletes the accepted connection between the two users.
	// It is a no-op if they are not connected at all.
	RemoveConnection(ctx context.Context, actingUserID, otherUserID uint) error
	Relabel(ctx context.Context, connectionID, actingUserID uint, label string) (*models.Connection, error)
	ListAcceptedMembers(ctx context.Context, userID uint) ([]*CircleMember, error)
	ListPendingIncoming(ctx context.Context, userID uint) ([]*PendingRequest, error)
	ListPendingOutgoing(ctx context.Context, userID uint) ([]*PendingRequest, error)
}

type connectionService struct {
	userRepo  storage.UserRepository
	connRepo  storage.ConnectionRepository
	publisher EventPublisher
	cooldown  CooldownTracker
	cfg       config.CircleConfig
}

// NewConnectionService creates a new ConnectionService. publisher and cooldown may be nil.
func NewConnectionService(
	userRepo storage.UserRepository,
	connRepo storage.ConnectionRepository,
	publisher EventPublisher,
	cooldown CooldownTracker,
	cfg config.CircleConfig,
) ConnectionService {
	return &connectionService{
		userRepo:  userRepo,
		connRepo:  connRepo,
		publisher: publisher,
		cooldown:  cooldown,
		cfg:       cfg,
	}
}

func (s *connectionService) SendRequest(ctx context.Context, requesterID uint, targetUsername, label string) (*models.Connection, error) {
	// 1. Validate input
	username := CanonicalUsername(targetUsername)
	if username == "" {
		return nil, invalidInput("target username is required")
	}
	label, err := s.normalizeLabel(label, true)
	if err != nil {
		return nil, err
	}

	// 2. Resolve the target
	target, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return nil, storageErr("resolve target user", err)
	}

	// 3. No requests to oneself
	if target.ID == requesterID {
		return nil, ErrSelfReference
	}

	// 4. Respect a recent rejection
	if s.cooldownEnabled() {
		active, err := s.cooldown.Active(ctx, requesterID, target.ID)
		if err != nil {
			log.Printf("Cooldown check %d -> %d failed, allowing request: %v", requesterID, target.ID, err)
		} else if active {
			return nil, ErrCooldownActive
		}
	}

	// 5. At most one connection per pair, in either direction
	existing, err := s.connRepo.FindByPair(ctx, requesterID, target.ID)
	if err != nil {
		return nil, storageErr("find existing connection", err)
	}
	if existing != nil {
		return nil, ErrDuplicateConnection
	}

	// 6. Insert; the pair index catches a concurrent request that passed step 5
	conn := &models.Connection{
		RequesterID: requesterID,
		RecipientID: target.ID,
		Status:      models.ConnectionStatusPending,
		Label:       label,
	}
	if err := s.connRepo.Create(ctx, conn); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateConnection
		}
		return nil, storageErr("create connection", err)
	}

	log.Printf("Circle request %d sent by user %d to user %d", conn.ID, requesterID, target.ID)
	s.publish(ctx, models.ConnectionEventRequested, conn, requesterID)
	return conn, nil
}

func (s *connectionService) AcceptRequest(ctx context.Context, connectionID, actingUserID uint) (*models.Connection, error) {
	conn, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.RecipientID != actingUserID {
		return nil, ErrNotAuthorized
	}
	if !conn.IsPending() {
		return nil, ErrInvalidState
	}

	applied, err := s.connRepo.TransitionStatus(ctx, conn.ID, models.ConnectionStatusPending, models.ConnectionStatusAccepted)
	if err != nil {
		return nil, storageErr("accept connection", err)
	}
	if !applied {
		return nil, s.lostRace(ctx, conn.ID)
	}

	accepted, err := s.getConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	log.Printf("Circle request %d accepted by user %d", conn.ID, actingUserID)
	s.publish(ctx, models.ConnectionEventAccepted, accepted, actingUserID)
	return accepted, nil
}

func (s *connectionService) RejectRequest(ctx context.Context, connectionID, actingUserID uint) error {
	conn, err := s.deletePending(ctx, connectionID, actingUserID, func(c *models.Connection) uint { return c.RecipientID })
	if err != nil {
		return err
	}

	if s.cooldownEnabled() {
		if err := s.cooldown.Start(ctx, conn.RequesterID, conn.RecipientID, s.cfg.RerequestCooldown); err != nil {
			log.Printf("Failed to start re-request cooldown for connection %d: %v", conn.ID, err)
		}
	}

	log.Printf("Circle request %d rejected by user %d", conn.ID, actingUserID)
	s.publish(ctx, models.ConnectionEventRejected, conn, actingUserID)
	return nil
}

func (s *connectionService) CancelRequest(ctx context.Context, connectionID, actingUserID uint) error {
	conn, err := s.deletePending(ctx, connectionID, actingUserID, func(c *models.Connection) uint { return c.RequesterID })
	if err != nil {
		return err
	}

	log.Printf("Circle request %d cancelled by user %d", conn.ID, actingUserID)
	s.publish(ctx, models.ConnectionEventCancelled, conn, actingUserID)
	return nil
}

// deletePending removes a pending row on behalf of the one party allowed to do so.
func (s *connectionService) deletePending(ctx context.Context, connectionID, actingUserID uint, allowed func(*models.Connection) uint) (*models.Connection, error) {
	conn, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if allowed(conn) != actingUserID {
		return nil, ErrNotAuthorized
	}
	if !conn.IsPending() {
		return nil, ErrInvalidState
	}

	applied, err := s.connRepo.DeleteWithStatus(ctx, conn.ID, models.ConnectionStatusPending)
	if err != nil {
		return nil, storageErr("delete pending connection", err)
	}
	if !applied {
		return nil, s.lostRace(ctx, conn.ID)
	}
	return conn, nil
}

func (s *connectionService) RemoveConnection(ctx context.Context, actingUserID, otherUserID uint) error {
	if actingUserID == otherUserID {
		return ErrSelfReference
	}

	conn, err := s.connRepo.FindByPair(ctx, actingUserID, otherUserID)
	if err != nil {
		return storageErr("find connection", err)
	}
	if conn == nil {
		return nil
	}
	if !conn.IsAccepted() {
		return ErrInvalidState
	}

	applied, err := s.connRepo.DeleteWithStatus(ctx, conn.ID, models.ConnectionStatusAccepted)
	if err != nil {
		return storageErr("delete connection", err)
	}
	if !applied {
		// The other party removed it first, or it was replaced by a new pending request.
		current, err := s.connRepo.FindByPair(ctx, actingUserID, otherUserID)
		if err != nil {
			return storageErr("find connection", err)
		}
		if current == nil {
			return nil
		}
		return ErrInvalidState
	}

	log.Printf("Connection %d between users %d and %d removed by user %d", conn.ID, actingUserID, otherUserID, actingUserID)
	s.publish(ctx, models.ConnectionEventRemoved, conn, actingUserID)
	return nil
}

func (s *connectionService) Relabel(ctx context.Context, connectionID, actingUserID uint, label string) (*models.Connection, error) {
	conn, err := s.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.Involves(actingUserID) {
		return nil, ErrNotAuthorized
	}
	if !conn.IsAccepted() {
		return nil, ErrInvalidState
	}
	label, err = s.normalizeLabel(label, false)
	if err != nil {
		return nil, err
	}

	applied, err := s.connRepo.UpdateLabel(ctx, conn.ID, label)
	if err != nil {
		return nil, storageErr("update label", err)
	}
	if !applied {
		return nil, s.lostRace(ctx, conn.ID)
	}

	updated, err := s.getConnection(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.ConnectionEventRelabeled, updated, actingUserID)
	return updated, nil
}

func (s *connectionService) ListAcceptedMembers(ctx context.Context, userID uint) ([]*CircleMember, error) {
	conns, err := s.connRepo.ListAccepted(ctx, userID)
	if err != nil {
		return nil, storageErr("list accepted connections", err)
	}
	users, err := s.counterparts(ctx, userID, conns)
	if err != nil {
		return nil, err
	}

	members := make([]*CircleMember, 0, len(conns))
	for i := range conns {
		c := &conns[i]
		other, ok := users[c.Counterpart(userID)]
		if !ok {
			log.Printf("Connection %d points at missing user %d, skipping", c.ID, c.Counterpart(userID))
			continue
		}
		members = append(members, &CircleMember{
			ConnectionID: c.ID,
			User:         other,
			Label:        c.Label,
			CreatedAt:    c.CreatedAt,
		})
	}

	slices.SortStableFunc(members, func(a, b *CircleMember) int {
		return cmp.Or(
			cmp.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label)),
			cmp.Compare(a.User.Username, b.User.Username),
		)
	})
	return members, nil
}

func (s *connectionService) ListPendingIncoming(ctx context.Context, userID uint) ([]*PendingRequest, error) {
	conns, err := s.connRepo.ListPendingIncoming(ctx, userID)
	if err != nil {
		return nil, storageErr("list incoming requests", err)
	}
	return s.toPending(ctx, userID, conns, PendingIncoming)
}

func (s *connectionService) ListPendingOutgoing(ctx context.Context, userID uint) ([]*PendingRequest, error) {
	conns, err := s.connRepo.ListPendingOutgoing(ctx, userID)
	if err != nil {
		return nil, storageErr("list outgoing requests", err)
	}
	return s.toPending(ctx, userID, conns, PendingOutgoing)
}

// toPending keeps the repository's creation-time order.
func (s *connectionService) toPending(ctx context.Context, userID uint, conns []models.Connection, dir PendingDirection) ([]*PendingRequest, error) {
	users, err := s.counterparts(ctx, userID, conns)
	if err != nil {
		return nil, err
	}

	result := make([]*PendingRequest, 0, len(conns))
	for i := range conns {
		c := &conns[i]
		other, ok := users[c.Counterpart(userID)]
		if !ok {
			continue
		}
		result = append(result, &PendingRequest{
			ConnectionID: c.ID,
			User:         other,
			Label:        c.Label,
			Direction:    dir,
			CreatedAt:    c.CreatedAt,
		})
	}
	return result, nil
}

func (s *connectionService) counterparts(ctx context.Context, userID uint, conns []models.Connection) (map[uint]*models.UserBasicInfo, error) {
	ids := make([]uint, 0, len(conns))
	for i := range conns {
		ids = append(ids, conns[i].Counterpart(userID))
	}
	users, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("load connection users", err)
	}
	return users, nil
}

func (s *connectionService) getConnection(ctx context.Context, id uint) (*models.Connection, error) {
	conn, err := s.connRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: connection %d", ErrNotFound, id)
		}
		return nil, storageErr("get connection", err)
	}
	return conn, nil
}

// lostRace explains why a conditional update matched no row: the row is gone or has
// already moved to another state.
func (s *connectionService) lostRace(ctx context.Context, id uint) error {
	if _, err := s.getConnection(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

func (s *connectionService) normalizeLabel(label string, useDefault bool) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		if !useDefault || s.cfg.DefaultLabel == "" {
			return "", invalidInput("label is required")
		}
		label = s.cfg.DefaultLabel
	}
	if s.cfg.MaxLabelLength > 0 && utf8.RuneCountInString(label) > s.cfg.MaxLabelLength {
		return "", invalidInput("label must be at most %d characters", s.cfg.MaxLabelLength)
	}
	return label, nil
}

func (s *connectionService) cooldownEnabled() bool {
	return s.cooldown != nil && s.cfg.RerequestCooldown > 0
}

// publish is best-effort: the transition has already been committed.
func (s *connectionService) publish(ctx context.Context, eventType models.ConnectionEventType, conn *models.Connection, actorID uint) {
	if s.publisher == nil {
		return
	}
	event := models.NewConnectionEvent(uuid.NewString(), eventType, conn, actorID, time.Now().UTC())

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		log.Printf("Failed to publish %s event for connection %d: %v", eventType, conn.ID, err)
	}
}
