package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// AttachmentReconciler converges attachment membership: which subnets of a
// VPC participate in the hub attachment, and whether the attachment exists
// at all.
type AttachmentReconciler struct {
	api       network.AttachmentAPI
	hubID     string
	jitterMin time.Duration
	jitterMax time.Duration
	sleep     sleepFunc
	log       zerolog.Logger
}

// NewAttachmentReconciler creates a reconciler for the given hub. The jitter
// window bounds the random delay inserted when the attachment is observed in
// a transient state.
func NewAttachmentReconciler(api network.AttachmentAPI, hubID string, jitterMin, jitterMax time.Duration, log zerolog.Logger) *AttachmentReconciler {
	return &AttachmentReconciler{
		api:       api,
		hubID:     hubID,
		jitterMin: jitterMin,
		jitterMax: jitterMax,
		sleep:     sleep,
		log:       log.With().Str("component", "attachment").Logger(),
	}
}

// Observe records the current attachment state for the context's VPC and
// subnet. At most one live attachment exists per VPC.
func (r *AttachmentReconciler) Observe(ctx context.Context, c *domain.ReconciliationContext) error {
	att, err := r.api.FindAttachment(ctx, r.hubID, c.VPCID)
	if err != nil {
		return err
	}
	if att == nil {
		c.AttachmentFound = false
		c.SubnetInAttachment = false
		c.AttachmentState = domain.AttachmentDoesNotExist
		return nil
	}
	c.TransitAttachmentID = att.ID
	c.AttachmentFound = true
	c.SubnetInAttachment = att.HasSubnet(c.SubnetID)
	c.AttachmentState = att.State
	return nil
}

// Reconcile converges the subnet's membership toward the tag intent in
// c.SubnetTagFound. Creating the first subnet creates the attachment;
// removing the last one deletes it. A concurrent modification surfaces as a
// retryable error so the workflow host can back off and re-enter.
func (r *AttachmentReconciler) Reconcile(ctx context.Context, c *domain.ReconciliationContext) error {
	if c.AttachmentFound && c.AttachmentState.Transient() {
		// Desynchronize executions racing on the same attachment.
		r.sleep(ctx, jitter(r.jitterMin, r.jitterMax))
		state, err := r.api.AttachmentState(ctx, c.TransitAttachmentID)
		if err != nil {
			return err
		}
		c.AttachmentState = state
	}

	switch {
	case c.SubnetTagFound && !c.AttachmentFound:
		return r.create(ctx, c)
	case c.SubnetTagFound && !c.SubnetInAttachment:
		return r.addSubnet(ctx, c)
	case !c.SubnetTagFound && c.AttachmentFound && c.SubnetInAttachment:
		return r.removeSubnet(ctx, c)
	}
	return nil
}

func (r *AttachmentReconciler) create(ctx context.Context, c *domain.ReconciliationContext) error {
	att, err := r.api.CreateAttachment(ctx, r.hubID, c.VPCID, c.SubnetID)
	if err != nil {
		return err
	}
	c.TransitAttachmentID = att.ID
	c.AttachmentFound = true
	c.SubnetInAttachment = true
	c.AttachmentState = att.State
	c.Action = domain.ActionCreateAttachment
	r.log.Info().Str("vpc", c.VPCID).Str("attachment", att.ID).Msg("attachment created")
	return nil
}

func (r *AttachmentReconciler) addSubnet(ctx context.Context, c *domain.ReconciliationContext) error {
	state, conflict, err := r.api.AddSubnet(ctx, c.TransitAttachmentID, c.SubnetID)
	if err != nil {
		return err
	}
	switch conflict {
	case network.ConflictIncorrectState:
		return fmt.Errorf("adding subnet %s: %w", c.SubnetID, domain.ErrResourceBusy)
	case network.ConflictDuplicateSubnetZone:
		c.Status = domain.StatusAutoRejected
		c.Comment = fmt.Sprintf("subnet %s rejected: the attachment already has a subnet in availability zone %s", c.SubnetID, c.AvailabilityZone)
		r.log.Info().Str("subnet", c.SubnetID).Str("zone", c.AvailabilityZone).Msg("duplicate zone, subnet rejected")
		return nil
	}
	c.AttachmentState = state
	c.SubnetInAttachment = true
	c.Action = domain.ActionAddSubnet
	r.log.Info().Str("attachment", c.TransitAttachmentID).Str("subnet", c.SubnetID).Msg("subnet added")
	return nil
}

func (r *AttachmentReconciler) removeSubnet(ctx context.Context, c *domain.ReconciliationContext) error {
	state, conflict, err := r.api.RemoveSubnet(ctx, c.TransitAttachmentID, c.SubnetID)
	if err != nil {
		return err
	}
	switch conflict {
	case network.ConflictIncorrectState:
		return fmt.Errorf("removing subnet %s: %w", c.SubnetID, domain.ErrResourceBusy)
	case network.ConflictLastSubnet:
		return r.delete(ctx, c)
	}
	c.AttachmentState = state
	c.SubnetInAttachment = false
	c.Action = domain.ActionRemoveSubnet
	r.log.Info().Str("attachment", c.TransitAttachmentID).Str("subnet", c.SubnetID).Msg("subnet removed")
	return nil
}

func (r *AttachmentReconciler) delete(ctx context.Context, c *domain.ReconciliationContext) error {
	state, err := r.api.DeleteAttachment(ctx, c.TransitAttachmentID)
	if err != nil {
		return err
	}
	c.AttachmentState = state
	c.SubnetInAttachment = false
	c.Action = domain.ActionDeleteAttachment
	r.log.Info().Str("attachment", c.TransitAttachmentID).Msg("last subnet removed, attachment deleted")
	return nil
}
