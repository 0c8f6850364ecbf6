package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Danservfinn/churnsaver-sub010/engine"
	"github.com/Danservfinn/churnsaver-sub010/event"
	"github.com/Danservfinn/churnsaver-sub010/job"
	"github.com/Danservfinn/churnsaver-sub010/tenant"
)

// paymentEvent is the payload shape shared by payment_failed and
// payment_succeeded deliveries.
type paymentEvent struct {
	ShopID      string `json:"shop_id"`
	InvoiceID   string `json:"invoice_id"`
	MemberID    string `json:"member_id"`
	AmountCents int64  `json:"amount_cents"`
}

// membershipEvent is the payload shape shared by membership_went_valid
// and membership_went_invalid deliveries.
type membershipEvent struct {
	ShopID   string `json:"shop_id"`
	MemberID string `json:"member_id"`
	PlanID   string `json:"plan_id"`
}

// registerJobs installs the recovery job handlers and maps each webhook
// event type to its job. Handlers log the recovery action; the outbound
// platform calls (dunning emails, access changes) are made by the
// collaborating services these log lines feed.
func registerJobs(eng *engine.Engine, logger *slog.Logger) error {
	engine.Register(eng, job.NewDefinition("open-recovery-case", func(ctx context.Context, p paymentEvent) error {
		shopID, err := tenant.Require(ctx)
		if err != nil {
			return err
		}
		logger.Info("recovery case opened",
			slog.String("shop_id", shopID),
			slog.String("invoice_id", p.InvoiceID),
			slog.String("member_id", p.MemberID),
			slog.Int64("amount_cents", p.AmountCents),
		)
		return nil
	}))

	engine.Register(eng, job.NewDefinition("close-recovery-case", func(ctx context.Context, p paymentEvent) error {
		shopID, err := tenant.Require(ctx)
		if err != nil {
			return err
		}
		logger.Info("recovery case closed",
			slog.String("shop_id", shopID),
			slog.String("invoice_id", p.InvoiceID),
		)
		return nil
	}))

	engine.Register(eng, job.NewDefinition("restore-access", func(ctx context.Context, p membershipEvent) error {
		shopID, err := tenant.Require(ctx)
		if err != nil {
			return err
		}
		logger.Info("member access restored",
			slog.String("shop_id", shopID),
			slog.String("member_id", p.MemberID),
			slog.String("plan_id", p.PlanID),
		)
		return nil
	}))

	engine.Register(eng, job.NewDefinition("revoke-access", func(ctx context.Context, p membershipEvent) error {
		shopID, err := tenant.Require(ctx)
		if err != nil {
			return err
		}
		logger.Info("member access revoked",
			slog.String("shop_id", shopID),
			slog.String("member_id", p.MemberID),
			slog.String("plan_id", p.PlanID),
		)
		return nil
	}))

	routes := []struct {
		eventType event.Type
		jobName   string
	}{
		{event.TypePaymentFailed, "open-recovery-case"},
		{event.TypePaymentSucceeded, "close-recovery-case"},
		{event.TypeMembershipWentValid, "restore-access"},
		{event.TypeMembershipWentInvalid, "revoke-access"},
	}
	for _, rt := range routes {
		if err := eng.RegisterRoute(rt.eventType, rt.jobName, job.WithMaxAttempts(5)); err != nil {
			return fmt.Errorf("register route %s: %w", rt.eventType, err)
		}
	}

	return nil
}
