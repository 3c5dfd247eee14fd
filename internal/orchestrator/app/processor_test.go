package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListAddressable(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) UpdateOptOutStatus(ctx context.Context, id uuid.UUID, status domain.OptOutStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockUserRepo) UpdateLastMessage(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error {
	args := m.Called(ctx, id, messageID, sentAt)
	return args.Error(0)
}

type MockGoalRepo struct {
	mock.Mock
}

func (m *MockGoalRepo) SetGoal(ctx context.Context, userID uuid.UUID, amountDollars int64, now time.Time) (*domain.SpendingGoal, error) {
	args := m.Called(ctx, userID, amountDollars, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpendingGoal), args.Error(1)
}

func (m *MockGoalRepo) GetActiveGoal(ctx context.Context, userID uuid.UUID) (*domain.SpendingGoal, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpendingGoal), args.Error(1)
}

type MockInboxRepo struct {
	mock.Mock
}

func (m *MockInboxRepo) Create(ctx context.Context, msg domain.InboundMessage, userID uuid.NullUUID) error {
	args := m.Called(ctx, msg, userID)
	return args.Error(0)
}

type MockAnalyticsRepo struct {
	mock.Mock
}

func (m *MockAnalyticsRepo) GetSnapshot(ctx context.Context, userID uuid.UUID) (*domain.SpendingAnalytics, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpendingAnalytics), args.Error(1)
}

func (m *MockAnalyticsRepo) ListStaleUsers(ctx context.Context, grace time.Duration) ([]uuid.UUID, error) {
	args := m.Called(ctx, grace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, req messaging.SendRequest) messaging.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(messaging.Result)
}

func (m *MockMessenger) SendBulk(ctx context.Context, reqs []messaging.SendRequest) []messaging.Result {
	args := m.Called(ctx, reqs)
	return args.Get(0).([]messaging.Result)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) Seen(ctx context.Context, provider, providerMessageID string) (bool, error) {
	args := m.Called(ctx, provider, providerMessageID)
	return args.Bool(0), args.Error(1)
}

type processorFixture struct {
	users     *MockUserRepo
	goals     *MockGoalRepo
	inbox     *MockInboxRepo
	analytics *MockAnalyticsRepo
	messenger *MockMessenger
	dedupe    *MockDeduper
	processor *Processor
}

func newProcessorFixture(t *testing.T, now time.Time) *processorFixture {
	t.Helper()
	f := &processorFixture{
		users:     new(MockUserRepo),
		goals:     new(MockGoalRepo),
		inbox:     new(MockInboxRepo),
		analytics: new(MockAnalyticsRepo),
		messenger: new(MockMessenger),
		dedupe:    new(MockDeduper),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.processor = NewProcessor(f.users, f.goals, f.inbox, f.analytics, f.messenger, f.dedupe, logger, metrics.NewNoop(), 1)
	f.processor.now = func() time.Time { return now }
	return f
}

func (f *processorFixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.users.AssertExpectations(t)
	f.goals.AssertExpectations(t)
	f.inbox.AssertExpectations(t)
	f.analytics.AssertExpectations(t)
	f.messenger.AssertExpectations(t)
	f.dedupe.AssertExpectations(t)
}

func verifiedUser() *domain.User {
	return &domain.User{
		ID:            uuid.New(),
		PhoneNumber:   "+12025551234",
		PhoneVerified: true,
		OptOutStatus:  domain.OptedIn,
		Currency:      "USD",
	}
}

func inboundFrom(user *domain.User, body string) domain.InboundMessage {
	return domain.InboundMessage{
		From:              user.PhoneNumber,
		To:                "+12025550000",
		Body:              body,
		ProviderMessageID: "prov-msg-1",
		Provider:          "sns",
		ReceivedAt:        time.Now().UTC(),
	}
}

func TestProcessor_FirstBudgetMessageSetsGoalAndConfirms(t *testing.T) {
	// Mid-March: the 3000 budget with 1000 already spent leaves 2000 over
	// 17 remaining days, so the confirmation quotes $117 per day.
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	f := newProcessorFixture(t, now)
	user := verifiedUser()
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, uuid.NullUUID{UUID: user.ID, Valid: true}).Return(nil).Once()
	f.goals.On("GetActiveGoal", mock.Anything, user.ID).Return(nil, domain.ErrNoActiveGoal).Once()

	goal := domain.NewSpendingGoal(user.ID, 3000, now, 1)
	f.goals.On("SetGoal", mock.Anything, user.ID, int64(3000), now).Return(goal, nil).Once()
	f.analytics.On("GetSnapshot", mock.Anything, user.ID).Return(&domain.SpendingAnalytics{
		UserID:               user.ID,
		CurrentMonthSpending: decimal.NewFromInt(1000),
	}, nil).Once()

	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.To == user.PhoneNumber &&
			req.Type == messaging.Transactional &&
			req.UserID.UUID == user.ID &&
			strings.Contains(req.Body, "$3,000") &&
			strings.Contains(req.Body, "$117")
	})).Return(messaging.Result{Success: true, MessageID: "out-1"}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_BudgetUpdateMentionsPreviousAmount(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	f := newProcessorFixture(t, now)
	user := verifiedUser()
	msg := inboundFrom(user, "budget 4000")

	previous := domain.NewSpendingGoal(user.ID, 2000, now.AddDate(0, 0, -5), 1)
	updated := domain.NewSpendingGoal(user.ID, 4000, now, 1)

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.goals.On("GetActiveGoal", mock.Anything, user.ID).Return(previous, nil).Once()
	f.goals.On("SetGoal", mock.Anything, user.ID, int64(4000), now).Return(updated, nil).Once()
	f.analytics.On("GetSnapshot", mock.Anything, user.ID).Return(&domain.SpendingAnalytics{
		UserID:               user.ID,
		CurrentMonthSpending: decimal.Zero,
	}, nil).Once()

	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return strings.Contains(req.Body, "$4,000") && strings.Contains(req.Body, "was $2,000")
	})).Return(messaging.Result{Success: true, MessageID: "out-1"}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_DuplicateDeliverySkipsEverything(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(true, nil).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.users.AssertNotCalled(t, "GetByPhone")
	f.goals.AssertNotCalled(t, "SetGoal")
	f.messenger.AssertNotCalled(t, "Send")
}

func TestProcessor_InboxConstraintCatchesReplayWhenDedupeMisses(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, errors.New("redis down")).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(domain.ErrDuplicateMessage).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.goals.AssertNotCalled(t, "SetGoal")
	f.messenger.AssertNotCalled(t, "Send")
}

func TestProcessor_UnknownSenderRecordedAndDropped(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	msg := domain.InboundMessage{
		From:              "+12025559999",
		Body:              "3000",
		ProviderMessageID: "prov-msg-1",
		Provider:          "twilio",
	}

	f.dedupe.On("Seen", mock.Anything, "twilio", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, msg.From).Return(nil, domain.ErrUserNotFound).Once()
	f.inbox.On("Create", mock.Anything, msg, uuid.NullUUID{}).Return(nil).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.goals.AssertNotCalled(t, "SetGoal")
	f.messenger.AssertNotCalled(t, "Send")
}

func TestProcessor_UnverifiedSenderDropped(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	user.PhoneVerified = false
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.goals.AssertNotCalled(t, "SetGoal")
	f.messenger.AssertNotCalled(t, "Send")
}

func TestProcessor_StopFlipsOptOutAndConfirms(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	msg := inboundFrom(user, "STOP")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.users.On("UpdateOptOutStatus", mock.Anything, user.ID, domain.OptedOut).Return(nil).Once()
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.Body == stopReply
	})).Return(messaging.Result{Success: true}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_StartResubscribesOptedOutUser(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	user.OptOutStatus = domain.OptedOut
	msg := inboundFrom(user, "START")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.users.On("UpdateOptOutStatus", mock.Anything, user.ID, domain.OptedIn).Return(nil).Once()
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.Body == startReply
	})).Return(messaging.Result{Success: true}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_HelpSendsUsage(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	msg := inboundFrom(user, "help")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.Body == helpReply
	})).Return(messaging.Result{Success: true}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_UnparseableBodyGetsGuidance(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	msg := inboundFrom(user, "what is this")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.messenger.On("Send", mock.Anything, mock.MatchedBy(func(req messaging.SendRequest) bool {
		return req.Body == notUnderstoodReply
	})).Return(messaging.Result{Success: true}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestProcessor_OptedOutUserBudgetRequestSuppressed(t *testing.T) {
	f := newProcessorFixture(t, time.Now())
	user := verifiedUser()
	user.OptOutStatus = domain.OptedOut
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	require.NoError(t, err)
	f.goals.AssertNotCalled(t, "SetGoal")
	f.messenger.AssertNotCalled(t, "Send")
}

func TestProcessor_ReplyFailureDoesNotUndoGoal(t *testing.T) {
	now := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	f := newProcessorFixture(t, now)
	user := verifiedUser()
	msg := inboundFrom(user, "3000")

	f.dedupe.On("Seen", mock.Anything, "sns", "prov-msg-1").Return(false, nil).Once()
	f.users.On("GetByPhone", mock.Anything, user.PhoneNumber).Return(user, nil).Once()
	f.inbox.On("Create", mock.Anything, msg, mock.Anything).Return(nil).Once()
	f.goals.On("GetActiveGoal", mock.Anything, user.ID).Return(nil, domain.ErrNoActiveGoal).Once()
	f.goals.On("SetGoal", mock.Anything, user.ID, int64(3000), now).
		Return(domain.NewSpendingGoal(user.ID, 3000, now, 1), nil).Once()
	f.analytics.On("GetSnapshot", mock.Anything, user.ID).
		Return(nil, errors.New("analytics store down")).Once()
	f.messenger.On("Send", mock.Anything, mock.Anything).
		Return(messaging.Result{Err: errors.New("provider down")}).Once()

	err := f.processor.ProcessInboundMessage(context.Background(), msg)

	// The committed goal stands even though the confirmation never went out.
	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "0", formatDollars(0))
	assert.Equal(t, "950", formatDollars(950))
	assert.Equal(t, "3,000", formatDollars(3000))
	assert.Equal(t, "100,000", formatDollars(100000))
	assert.Equal(t, "1,234,567", formatDollars(1234567))
}
