package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"remindify/internal/models"
	"remindify/internal/storage"
)

func TestCircleScenarioAliceAndBob(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()

	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "Coworker")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, conn.Status)

	incoming, err := svc.ListPendingIncoming(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, alice.ID, incoming[0].User.ID)
	assert.Equal(t, PendingIncoming, incoming[0].Direction)

	outgoing, err := svc.ListPendingOutgoing(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)
	assert.Equal(t, bob.ID, outgoing[0].User.ID)

	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	aliceMembers, err := svc.ListAcceptedMembers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceMembers, 1)
	assert.Equal(t, bob.ID, aliceMembers[0].User.ID)
	assert.Equal(t, "Coworker", aliceMembers[0].Label)

	bobMembers, err := svc.ListAcceptedMembers(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobMembers, 1)
	assert.Equal(t, alice.ID, bobMembers[0].User.ID)
	assert.Equal(t, "Coworker", bobMembers[0].Label)

	_, err = svc.Relabel(ctx, conn.ID, bob.ID, "Manager")
	require.NoError(t, err)

	aliceMembers, err = svc.ListAcceptedMembers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, aliceMembers, 1)
	assert.Equal(t, "Manager", aliceMembers[0].Label)

	require.NoError(t, svc.RemoveConnection(ctx, alice.ID, bob.ID))

	aliceMembers, err = svc.ListAcceptedMembers(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceMembers)
	bobMembers, err = svc.ListAcceptedMembers(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobMembers)

	assert.Equal(t, []models.ConnectionEventType{
		models.ConnectionEventRequested,
		models.ConnectionEventAccepted,
		models.ConnectionEventRelabeled,
		models.ConnectionEventRemoved,
	}, env.publisher.types())
}

func TestSendRequestToUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	_, err := svc.SendRequest(ctx, alice.ID, "ghost", "")
	assert.ErrorIs(t, err, ErrNotFound)

	outgoing, err := svc.ListPendingOutgoing(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, outgoing)
	assert.Empty(t, env.publisher.types())
}

func TestSendRequestToSelf(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	alice := env.createUser(t, "alice")

	_, err := svc.SendRequest(context.Background(), alice.ID, "  Alice ", "")
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestSendRequestDefaultsAndValidatesLabel(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")
	env.createUser(t, "carol")

	conn, err := svc.SendRequest(ctx, alice.ID, "BOB", "   ")
	require.NoError(t, err)
	assert.Equal(t, "Friend", conn.Label)

	_, err = svc.SendRequest(ctx, alice.ID, "carol", strings.Repeat("x", 51))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SendRequest(ctx, alice.ID, "", "Friend")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSendRequestDuplicateInEitherDirection(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, alice.ID, "bob", "")
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	_, err = svc.SendRequest(ctx, bob.ID, "alice", "")
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, bob.ID, "alice", "")
	assert.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestSendRequestConcurrentOppositeDirections(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.SendRequest(ctx, alice.ID, "bob", "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.SendRequest(ctx, bob.ID, "alice", "")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrDuplicateConnection) || errors.Is(err, ErrStorageUnavailable), "unexpected error: %v", err)
	}
	assert.LessOrEqual(t, succeeded, 1)

	var rows int64
	require.NoError(t, env.db.Model(&models.Connection{}).Count(&rows).Error)
	assert.LessOrEqual(t, rows, int64(1))
}

// stalePairLookupRepo misses existing rows in FindByPair, as a request that raced
// past the lookup would.
type stalePairLookupRepo struct {
	storage.ConnectionRepository
	createErr error
}

func (r *stalePairLookupRepo) FindByPair(context.Context, uint, uint) (*models.Connection, error) {
	return nil, nil
}

func (r *stalePairLookupRepo) Create(ctx context.Context, conn *models.Connection) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.ConnectionRepository.Create(ctx, conn)
}

func TestSendRequestPairIndexCatchesRacedInsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")

	_, err := env.connectionService(testCircleConfig).SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	published := len(env.publisher.events)

	tests := []struct {
		name string
		repo *stalePairLookupRepo
	}{
		{name: "unique index on reverse pair", repo: &stalePairLookupRepo{ConnectionRepository: env.conns}},
		{name: "driver reports duplicate", repo: &stalePairLookupRepo{ConnectionRepository: env.conns, createErr: gorm.ErrDuplicatedKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewConnectionService(env.users, tt.repo, env.publisher, env.cooldown, testCircleConfig)
			bob, err := env.users.GetByUsername(ctx, "bob")
			require.NoError(t, err)

			_, err = svc.SendRequest(ctx, bob.ID, "alice", "")
			assert.ErrorIs(t, err, ErrDuplicateConnection)
			assert.NotErrorIs(t, err, ErrStorageUnavailable)
		})
	}

	var rows int64
	require.NoError(t, env.db.Model(&models.Connection{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	assert.Len(t, env.publisher.events, published, "no event for a rejected insert")
}

func TestAcceptRequestRules(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	for _, actor := range []uint{alice.ID, carol.ID} {
		_, err = svc.AcceptRequest(ctx, conn.ID, actor)
		assert.ErrorIs(t, err, ErrNotAuthorized)
	}
	stored, err := env.conns.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, stored.Status)

	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AcceptRequest(ctx, 9999, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectAndCancelDeleteTheRequest(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RejectRequest(ctx, conn.ID, alice.ID), ErrNotAuthorized)
	assert.ErrorIs(t, svc.CancelRequest(ctx, conn.ID, bob.ID), ErrNotAuthorized)

	require.NoError(t, svc.RejectRequest(ctx, conn.ID, bob.ID))
	assert.ErrorIs(t, svc.RejectRequest(ctx, conn.ID, bob.ID), ErrNotFound)

	// hard delete: alice may ask again immediately when no cooldown is configured
	again, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	require.NoError(t, svc.CancelRequest(ctx, again.ID, alice.ID))
	incoming, err := svc.ListPendingIncoming(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
}

func TestRejectAndCancelRequirePending(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RejectRequest(ctx, conn.ID, bob.ID), ErrInvalidState)
	assert.ErrorIs(t, svc.CancelRequest(ctx, conn.ID, alice.ID), ErrInvalidState)
}

func TestRemoveAndRelabelAreSymmetric(t *testing.T) {
	for _, byRequester := range []bool{true, false} {
		name := "by recipient"
		if byRequester {
			name = "by requester"
		}
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			svc := env.connectionService(testCircleConfig)
			ctx := context.Background()
			alice := env.createUser(t, "alice")
			bob := env.createUser(t, "bob")

			conn, err := svc.SendRequest(ctx, alice.ID, "bob", "Coworker")
			require.NoError(t, err)
			_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
			require.NoError(t, err)

			actor, other := bob.ID, alice.ID
			if byRequester {
				actor, other = alice.ID, bob.ID
			}

			updated, err := svc.Relabel(ctx, conn.ID, actor, "  Neighbour ")
			require.NoError(t, err)
			assert.Equal(t, "Neighbour", updated.Label)

			require.NoError(t, svc.RemoveConnection(ctx, actor, other))
			for _, u := range []uint{alice.ID, bob.ID} {
				members, err := svc.ListAcceptedMembers(ctx, u)
				require.NoError(t, err)
				assert.Empty(t, members)
			}
		})
	}
}

func TestRemoveConnectionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveConnection(ctx, bob.ID, alice.ID))
	require.NoError(t, svc.RemoveConnection(ctx, bob.ID, alice.ID))

	var rows int64
	require.NoError(t, env.db.Model(&models.Connection{}).Count(&rows).Error)
	assert.Zero(t, rows)

	assert.ErrorIs(t, svc.RemoveConnection(ctx, bob.ID, bob.ID), ErrSelfReference)
}

func TestRemoveConnectionRejectsPending(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveConnection(ctx, alice.ID, bob.ID), ErrInvalidState)
}

func TestRelabelRules(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)

	_, err = svc.Relabel(ctx, conn.ID, alice.ID, "Manager")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.Relabel(ctx, conn.ID, carol.ID, "Manager")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = svc.Relabel(ctx, conn.ID, alice.ID, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Relabel(ctx, 9999, alice.ID, "Manager")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAcceptedMembersSortedByLabelThenUsername(t *testing.T) {
	env := newTestEnv(t)
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")

	connect := func(username, label string) {
		u := env.createUser(t, username)
		conn, err := svc.SendRequest(ctx, alice.ID, username, label)
		require.NoError(t, err)
		_, err = svc.AcceptRequest(ctx, conn.ID, u.ID)
		require.NoError(t, err)
	}
	connect("zoe", "family")
	connect("dave", "Work")
	connect("bob", "Family")

	members, err := svc.ListAcceptedMembers(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "bob", members[0].User.Username)
	assert.Equal(t, "zoe", members[1].User.Username)
	assert.Equal(t, "dave", members[2].User.Username)
}

func TestCooldownBlocksRerequestAfterReject(t *testing.T) {
	env := newTestEnv(t)
	cfg := testCircleConfig
	cfg.RerequestCooldown = 48 * time.Hour
	svc := env.connectionService(cfg)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, conn.ID, bob.ID))

	_, err = svc.SendRequest(ctx, alice.ID, "bob", "")
	assert.ErrorIs(t, err, ErrCooldownActive)

	// the person who declined can still reach out
	_, err = svc.SendRequest(ctx, bob.ID, "alice", "")
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.err = errors.New("broker unavailable")
	svc := env.connectionService(testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, conn.ID, bob.ID)
	assert.NoError(t, err)
}

func TestDirectPublisherFeedsHistory(t *testing.T) {
	env := newTestEnv(t)
	audit := NewAuditService(env.events)
	svc := NewConnectionService(env.users, env.conns, NewDirectEventPublisher(audit), nil, testCircleConfig)
	ctx := context.Background()
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conn, err := svc.SendRequest(ctx, alice.ID, "bob", "")
	require.NoError(t, err)
	require.NoError(t, svc.RejectRequest(ctx, conn.ID, bob.ID))

	history, err := audit.ListHistory(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	types := []models.ConnectionEventType{history[0].Type, history[1].Type}
	assert.ElementsMatch(t, []models.ConnectionEventType{models.ConnectionEventRequested, models.ConnectionEventRejected}, types)
	for _, e := range history {
		assert.Equal(t, conn.ID, e.ConnectionID)
	}
}
