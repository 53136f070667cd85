package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// AssociationReconciler converges the attachment's route-table association.
// An attachment can be associated with at most one routing domain, so a
// change is a disassociate followed by an associate, each polled to its
// terminal state before moving on.
type AssociationReconciler struct {
	attachments  network.AttachmentAPI
	routing      network.RoutingAPI
	pollInterval time.Duration
	maxPolls     int
	log          zerolog.Logger
}

// NewAssociationReconciler creates the reconciler with the given polling
// budget per association change.
func NewAssociationReconciler(attachments network.AttachmentAPI, routing network.RoutingAPI, pollInterval time.Duration, maxPolls int, log zerolog.Logger) *AssociationReconciler {
	return &AssociationReconciler{
		attachments:  attachments,
		routing:      routing,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		log:          log.With().Str("component", "association").Logger(),
	}
}

// Observe records the attachment's current association and whether the
// desired association differs from it. The changed flag is what later
// exempts an unchanged association from approval.
func (r *AssociationReconciler) Observe(ctx context.Context, c *domain.ReconciliationContext) error {
	c.ExistingAssociationRouteTableID = ""
	if c.AttachmentFound {
		att, err := r.attachments.DescribeAttachment(ctx, c.TransitAttachmentID)
		if err != nil {
			return err
		}
		if att != nil {
			c.ExistingAssociationRouteTableID = att.AssociatedRouteTableID
		}
	}

	desired := ""
	if c.AssociationRequested() {
		desired = c.AssociationRouteTableID
	}
	c.AssociationChanged = desired != c.ExistingAssociationRouteTableID
	return nil
}

// Reconcile applies the association change, if any. Skipped when the
// attachment is gone or on its way out.
func (r *AssociationReconciler) Reconcile(ctx context.Context, c *domain.ReconciliationContext) error {
	if !c.AttachmentFound || !c.AttachmentState.Modifiable() {
		r.log.Info().Str("attachment", c.TransitAttachmentID).Str("state", string(c.AttachmentState)).
			Msg("attachment not modifiable, association change skipped")
		return nil
	}
	if !c.AssociationChanged {
		return nil
	}

	if existing := c.ExistingAssociationRouteTableID; existing != "" {
		if err := r.disassociate(ctx, c, existing); err != nil {
			return err
		}
	}
	if c.AssociationRequested() {
		return r.associate(ctx, c, c.AssociationRouteTableID)
	}
	return nil
}

func (r *AssociationReconciler) disassociate(ctx context.Context, c *domain.ReconciliationContext, routeTableID string) error {
	state, err := r.routing.DisassociateRouteTable(ctx, routeTableID, c.TransitAttachmentID)
	if err != nil {
		if domain.IsAlreadyConfigured(err) {
			c.DisassociationState = domain.AssociationDisassociated
			return nil
		}
		return err
	}
	c.Action = domain.ActionDisassociate
	if !state.Terminal() {
		state, err = pollAssociation(ctx, r.routing, routeTableID, c.TransitAttachmentID, c.VPCID, r.pollInterval, r.maxPolls)
		if err != nil {
			return err
		}
	}
	c.DisassociationState = state
	r.log.Info().Str("attachment", c.TransitAttachmentID).Str("route_table", routeTableID).Msg("disassociated")
	return nil
}

func (r *AssociationReconciler) associate(ctx context.Context, c *domain.ReconciliationContext, routeTableID string) error {
	state, err := r.routing.AssociateRouteTable(ctx, routeTableID, c.TransitAttachmentID)
	if err != nil {
		if domain.IsAlreadyConfigured(err) {
			c.AssociationState = domain.AssociationAssociated
			return nil
		}
		return err
	}
	c.Action = domain.ActionAssociate
	if !state.Terminal() {
		state, err = pollAssociation(ctx, r.routing, routeTableID, c.TransitAttachmentID, c.VPCID, r.pollInterval, r.maxPolls)
		if err != nil {
			return err
		}
	}
	c.AssociationState = state
	r.log.Info().Str("attachment", c.TransitAttachmentID).Str("route_table", routeTableID).Msg("associated")
	return nil
}
