package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/parser"
	"github.com/centsible/smsbudget/internal/budget/repository"
	"github.com/centsible/smsbudget/internal/budget/target"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

// Processor turns one verified inbound SMS into state changes and a reply.
// Signature verification happened at the webhook edge; by the time a message
// reaches here it is authentic, but possibly a duplicate delivery.
//
// Errors returned from ProcessInboundMessage are for the caller's logging
// only. The pipeline never asks the broker to redeliver: replies are
// best-effort and every state change lands before its reply is attempted.
type Processor struct {
	users     repository.UserRepository
	goals     repository.GoalRepository
	inbox     repository.InboxRepository
	analytics repository.AnalyticsRepository
	messenger messaging.Messenger
	dedupe    Deduper
	logger    *slog.Logger
	recorder  metrics.Recorder

	monthStartDay int
	now           func() time.Time
}

func NewProcessor(
	users repository.UserRepository,
	goals repository.GoalRepository,
	inbox repository.InboxRepository,
	analytics repository.AnalyticsRepository,
	messenger messaging.Messenger,
	dedupe Deduper,
	logger *slog.Logger,
	recorder metrics.Recorder,
	monthStartDay int,
) *Processor {
	return &Processor{
		users:         users,
		goals:         goals,
		inbox:         inbox,
		analytics:     analytics,
		messenger:     messenger,
		dedupe:        dedupe,
		logger:        logger.With("component", "inbound_processor"),
		recorder:      recorder,
		monthStartDay: monthStartDay,
		now:           time.Now,
	}
}

func (p *Processor) ProcessInboundMessage(ctx context.Context, msg domain.InboundMessage) error {
	logger := p.logger.With(
		"provider", msg.Provider,
		"provider_message_id", msg.ProviderMessageID,
		"from", messaging.MaskPhone(msg.From),
	)

	seen, err := p.dedupe.Seen(ctx, msg.Provider, msg.ProviderMessageID)
	if err != nil {
		// The inbox unique constraint below still catches duplicates.
		logger.WarnContext(ctx, "Dedupe check unavailable, continuing", "error", err)
	} else if seen {
		logger.InfoContext(ctx, "Duplicate delivery skipped")
		p.recorder.IncInboundProcessed("dedupe", "skipped")
		return nil
	}

	user, err := p.users.GetByPhone(ctx, msg.From)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		p.recorder.IncInboundProcessed("lookup", "error")
		return fmt.Errorf("look up sender: %w", err)
	}

	var userID uuid.NullUUID
	if user != nil {
		userID = uuid.NullUUID{UUID: user.ID, Valid: true}
	}
	if err := p.inbox.Create(ctx, msg, userID); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			logger.InfoContext(ctx, "Duplicate delivery caught by inbox constraint")
			p.recorder.IncInboundProcessed("dedupe", "skipped")
			return nil
		}
		p.recorder.IncInboundProcessed("inbox", "error")
		return fmt.Errorf("record inbound message: %w", err)
	}

	// Unknown and unverified senders are recorded for audit and dropped
	// without a reply: answering them would confirm the number is live.
	if user == nil {
		logger.InfoContext(ctx, "Message from unknown number dropped")
		p.recorder.IncInboundProcessed("lookup", "unknown_sender")
		return nil
	}
	if !user.PhoneVerified {
		logger.InfoContext(ctx, "Message from unverified number dropped", "user_id", user.ID)
		p.recorder.IncInboundProcessed("lookup", "unverified_sender")
		return nil
	}

	intent := parser.Parse(msg.Body)
	p.recorder.IncParseOutcome(string(intent.Kind))

	switch intent.Kind {
	case domain.IntentCommand:
		return p.handleCommand(ctx, logger, user, intent.Command)
	case domain.IntentSetBudget:
		return p.handleSetBudget(ctx, logger, user, intent.Amount)
	default:
		return p.handleInvalid(ctx, logger, user)
	}
}

func (p *Processor) handleCommand(ctx context.Context, logger *slog.Logger, user *domain.User, cmd domain.CommandWord) error {
	switch cmd {
	case domain.CommandStop:
		if err := p.users.UpdateOptOutStatus(ctx, user.ID, domain.OptedOut); err != nil {
			p.recorder.IncInboundProcessed("stop", "error")
			return fmt.Errorf("record opt-out: %w", err)
		}
		logger.InfoContext(ctx, "User opted out", "user_id", user.ID)
		p.recorder.IncInboundProcessed("stop", "ok")
		p.reply(ctx, logger, user, stopReply)
		return nil

	case domain.CommandStart:
		if err := p.users.UpdateOptOutStatus(ctx, user.ID, domain.OptedIn); err != nil {
			p.recorder.IncInboundProcessed("start", "error")
			return fmt.Errorf("record opt-in: %w", err)
		}
		logger.InfoContext(ctx, "User resubscribed", "user_id", user.ID)
		p.recorder.IncInboundProcessed("start", "ok")
		p.reply(ctx, logger, user, startReply)
		return nil

	case domain.CommandHelp:
		if user.OptOutStatus == domain.OptedOut {
			p.recorder.IncInboundProcessed("help", "suppressed")
			return nil
		}
		p.recorder.IncInboundProcessed("help", "ok")
		p.reply(ctx, logger, user, helpReply)
		return nil
	}
	return nil
}

func (p *Processor) handleSetBudget(ctx context.Context, logger *slog.Logger, user *domain.User, amountDollars int64) error {
	// Opted-out users must text START first; anything else stays silent.
	if user.OptOutStatus == domain.OptedOut {
		logger.InfoContext(ctx, "Budget request from opted-out user dropped", "user_id", user.ID)
		p.recorder.IncInboundProcessed("set_budget", "suppressed")
		return nil
	}

	var previous *domain.SpendingGoal
	prev, err := p.goals.GetActiveGoal(ctx, user.ID)
	switch {
	case err == nil:
		previous = prev
	case errors.Is(err, domain.ErrNoActiveGoal):
		// First goal for this user.
	default:
		p.recorder.IncInboundProcessed("set_budget", "error")
		return fmt.Errorf("load active goal: %w", err)
	}

	now := p.now()
	goal, err := p.goals.SetGoal(ctx, user.ID, amountDollars, now)
	if err != nil {
		p.recorder.IncInboundProcessed("set_budget", "error")
		return fmt.Errorf("set goal: %w", err)
	}
	logger.InfoContext(ctx, "Spending goal set",
		"user_id", user.ID, "amount", amountDollars, "goal_id", goal.ID)
	p.recorder.IncInboundProcessed("set_budget", "ok")

	// The goal is committed; everything past here is best-effort reply.
	dailyTarget := p.dailyTargetFor(ctx, logger, user.ID, goal, now)
	body := firstGoalReply(amountDollars, dailyTarget)
	if previous != nil {
		body = updatedGoalReply(amountDollars, previous.MonthlyLimit.IntPart(), dailyTarget)
	}
	p.reply(ctx, logger, user, body)
	return nil
}

func (p *Processor) handleInvalid(ctx context.Context, logger *slog.Logger, user *domain.User) error {
	if user.OptOutStatus == domain.OptedOut {
		p.recorder.IncInboundProcessed("invalid", "suppressed")
		return nil
	}
	logger.InfoContext(ctx, "Message not understood", "user_id", user.ID)
	p.recorder.IncInboundProcessed("invalid", "ok")
	p.reply(ctx, logger, user, notUnderstoodReply)
	return nil
}

// dailyTargetFor computes the per-day figure for a confirmation. A missing
// or failing analytics read degrades to a zero-spend assumption rather than
// suppressing the confirmation.
func (p *Processor) dailyTargetFor(ctx context.Context, logger *slog.Logger, userID uuid.UUID, goal *domain.SpendingGoal, now time.Time) int64 {
	spent := decimal.Zero
	if snapshot, err := p.analytics.GetSnapshot(ctx, userID); err != nil {
		logger.WarnContext(ctx, "Analytics snapshot unavailable, assuming zero spend",
			"user_id", userID, "error", err)
	} else {
		spent = snapshot.CurrentMonthSpending
	}
	return target.PeriodDailyTarget(goal.MonthlyLimit, spent, goal.PeriodStart, goal.PeriodEnd, now)
}

func (p *Processor) reply(ctx context.Context, logger *slog.Logger, user *domain.User, body string) {
	res := p.messenger.Send(ctx, messaging.SendRequest{
		To:     user.PhoneNumber,
		Body:   body,
		Type:   messaging.Transactional,
		UserID: uuid.NullUUID{UUID: user.ID, Valid: true},
	})
	if res.Err != nil {
		logger.ErrorContext(ctx, "Reply failed", "user_id", user.ID, "error", res.Err)
	}
}
