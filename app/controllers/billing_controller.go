package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/enrollbilling/internal/pkg/billing"
	"github.com/ManuelReschke/enrollbilling/internal/pkg/gateway"
)

// ============================================================================
// BILLING CONTROLLER - admin reconciliation actions
// ============================================================================

const requestTimeout = 30 * time.Second

var validate = validator.New()

// BillingController exposes the billing engine to admin tooling.
type BillingController struct {
	service *billing.Service
}

// NewBillingController creates a billing controller on top of the engine.
func NewBillingController(service *billing.Service) *BillingController {
	return &BillingController{service: service}
}

// LinkProfilesRequest is the body of the split-link action.
type LinkProfilesRequest struct {
	ProfileIDs  []uint `json:"profile_ids" validate:"required,min=1,dive,gt=0"`
	TotalAmount int64  `json:"total_amount" validate:"gte=0"`
	Notes       string `json:"notes" validate:"max=1000"`
}

// CascadeRequest is the body of the manual cancellation cascade.
type CascadeRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// LinkOrphanRequest confirms an orphan match.
type LinkOrphanRequest struct {
	ProfileID uint   `json:"profile_id" validate:"required,gt=0"`
	Program   string `json:"program" validate:"required,oneof=MAHAD DUGSI"`
}

// ProfileIDsRequest carries a list of profile ids.
type ProfileIDsRequest struct {
	ProfileIDs []uint `json:"profile_ids" validate:"required,min=1,dive,gt=0"`
}

// requestContext bounds engine calls by requestTimeout on top of the
// request's own context.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case billing.IsValidation(err):
		return fiber.StatusBadRequest
	case billing.IsNotFound(err):
		return fiber.StatusNotFound
	case billing.IsConflict(err):
		return fiber.StatusConflict
	case gateway.IsGatewayError(err):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	if status == fiber.StatusInternalServerError {
		fiberlog.Errorf("[Billing] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(billing.ResultFromError(err))
}

// parseBody decodes and validates a JSON body.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return &billing.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &billing.ValidationError{Field: strings.ToLower(verrs[0].Field()), Message: "failed on " + verrs[0].Tag()}
		}
		return &billing.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func accountParam(c *fiber.Ctx, required bool) (gateway.AccountType, error) {
	raw := strings.TrimSpace(c.Query("account"))
	if raw == "" {
		if required {
			return "", &billing.ValidationError{Field: "account", Message: "account is required"}
		}
		return "", nil
	}
	t, err := gateway.ParseAccountType(raw)
	if err != nil {
		return "", &billing.ValidationError{Field: "account", Message: err.Error()}
	}
	return t, nil
}

// HandleSyncSubscription re-reads a subscription from the gateway.
func (bc *BillingController) HandleSyncSubscription(c *fiber.Ctx) error {
	account, err := accountParam(c, true)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := bc.service.SyncSubscriptionFromGateway(ctx, c.Params("id"), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "updated": res.Updated, "status": res.Status})
}

// HandleCancelSubscription cancels at the gateway and cascades withdrawals.
// A missing account is a conflict, not a validation error: canceling needs
// to know which gateway account owns the subscription.
func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	account, err := accountParam(c, false)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := bc.service.CancelSubscription(ctx, c.Params("id"), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "withdrawn": res.Withdrawn, "errors": res.Errors})
}

// HandleLinkProfiles splits a subscription across profiles.
func (bc *BillingController) HandleLinkProfiles(c *fiber.Ctx) error {
	var req LinkProfilesRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := bc.service.GetSubscriptionByGatewayID(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	created, err := bc.service.LinkSubscriptionToProfiles(ctx, sub.ID, req.ProfileIDs, req.TotalAmount, req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "created": created})
}

// HandleUnlinkProfiles deactivates a subscription's assignments.
func (bc *BillingController) HandleUnlinkProfiles(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := bc.service.GetSubscriptionByGatewayID(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	deactivated, err := bc.service.UnlinkSubscription(ctx, sub.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "deactivated": deactivated})
}

// HandleCascade withdraws enrollments funded by a subscription.
func (bc *BillingController) HandleCascade(c *fiber.Ctx) error {
	var req CascadeRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	sub, err := bc.service.GetSubscriptionByGatewayID(ctx, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	res, err := bc.service.HandleSubscriptionCancellationEnrollments(ctx, sub.ID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "withdrawn": res.Withdrawn, "errors": res.Errors})
}

// HandleOrphans returns the orphan report.
func (bc *BillingController) HandleOrphans(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := bc.service.GetOrphanReport(ctx, c.QueryBool("refresh", false))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// HandlePotentialMatches lists candidate profiles for an orphan.
func (bc *BillingController) HandlePotentialMatches(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	matches, err := bc.service.GetPotentialMatches(ctx, c.Query("email"), strings.ToUpper(c.Query("program")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "matches": matches})
}

// HandleLinkOrphan confirms an orphan match.
func (bc *BillingController) HandleLinkOrphan(c *fiber.Ctx) error {
	var req LinkOrphanRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res := bc.service.LinkSubscriptionToStudent(ctx, c.Params("id"), req.ProfileID, req.Program)
	if !res.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}
	return c.JSON(res)
}

// HandleBillingStatus reports the billing state behind an email.
func (bc *BillingController) HandleBillingStatus(c *fiber.Ctx) error {
	account, err := accountParam(c, true)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := bc.service.GetBillingStatusByEmail(ctx, c.Query("email"), account)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(st)
}

// HandleProfilesBillingStatus reports per-profile billing state.
func (bc *BillingController) HandleProfilesBillingStatus(c *fiber.Ctx) error {
	var req ProfileIDsRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	statuses, err := bc.service.GetBillingStatusForProfiles(ctx, req.ProfileIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "profiles": statuses})
}

// HandleDiscountEligibility applies the sibling discount rule.
func (bc *BillingController) HandleDiscountEligibility(c *fiber.Ctx) error {
	var req ProfileIDsRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := bc.service.GetSiblingDiscountEligibility(ctx, req.ProfileIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
