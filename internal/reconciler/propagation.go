package reconciler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// PropagationReconciler converges the set of routing domains the attachment
// advertises its routes into. The change is pure set arithmetic: enable
// desired minus existing, disable existing minus desired.
type PropagationReconciler struct {
	routing network.RoutingAPI
	log     zerolog.Logger
}

func NewPropagationReconciler(routing network.RoutingAPI, log zerolog.Logger) *PropagationReconciler {
	return &PropagationReconciler{routing: routing, log: log.With().Str("component", "propagation").Logger()}
}

// Observe records the attachment's current propagations.
func (r *PropagationReconciler) Observe(ctx context.Context, c *domain.ReconciliationContext) error {
	c.ExistingPropagationRouteTableIDs = nil
	if !c.AttachmentFound || !c.AttachmentState.Modifiable() {
		return nil
	}
	existing, err := r.routing.AttachmentPropagations(ctx, c.TransitAttachmentID)
	if err != nil {
		return err
	}
	c.ExistingPropagationRouteTableIDs = existing
	return nil
}

// Reconcile applies the propagation set change. A propagation another
// execution already enabled counts as done.
func (r *PropagationReconciler) Reconcile(ctx context.Context, c *domain.ReconciliationContext) error {
	if !c.AttachmentFound || !c.AttachmentState.Modifiable() {
		return nil
	}

	desired := make(map[string]bool, len(c.PropagationRouteTableIDs))
	for _, id := range c.PropagationRouteTableIDs {
		desired[id] = true
	}
	existing := make(map[string]bool, len(c.ExistingPropagationRouteTableIDs))
	for _, id := range c.ExistingPropagationRouteTableIDs {
		existing[id] = true
	}

	c.EnablePropagationRouteTableIDs = nil
	for _, id := range c.PropagationRouteTableIDs {
		if existing[id] {
			continue
		}
		if _, err := r.routing.EnablePropagation(ctx, id, c.TransitAttachmentID); err != nil {
			if !domain.IsAlreadyConfigured(err) {
				return err
			}
		}
		c.EnablePropagationRouteTableIDs = append(c.EnablePropagationRouteTableIDs, id)
		c.Action = domain.ActionEnablePropagation
		r.log.Info().Str("attachment", c.TransitAttachmentID).Str("route_table", id).Msg("propagation enabled")
	}

	c.DisablePropagationRouteTableIDs = nil
	for _, id := range c.ExistingPropagationRouteTableIDs {
		if desired[id] {
			continue
		}
		if _, err := r.routing.DisablePropagation(ctx, id, c.TransitAttachmentID); err != nil {
			if !domain.IsAlreadyConfigured(err) {
				return err
			}
		}
		c.DisablePropagationRouteTableIDs = append(c.DisablePropagationRouteTableIDs, id)
		c.Action = domain.ActionDisablePropagation
		r.log.Info().Str("attachment", c.TransitAttachmentID).Str("route_table", id).Msg("propagation disabled")
	}
	return nil
}
