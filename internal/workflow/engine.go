// Package workflow sequences one reconciliation execution: observing the
// attachment, converging membership, resolving routing domains, running the
// approval pass, applying or withholding routing changes, and persisting the
// outcome.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/approval"
	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/interpreter"
	"github.com/kmahoney/transit-orchestrator/internal/network"
	"github.com/kmahoney/transit-orchestrator/internal/notify"
	"github.com/kmahoney/transit-orchestrator/internal/reconciler"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
)

// Engine drives reconciliation executions end to end.
type Engine struct {
	dialer    network.Dialer
	store     storage.Storage
	notifier  notify.Notifier
	approvals *approval.Engine
	interp    *interpreter.Interpreter

	hub    config.HubConfig
	routes config.RouteConfig
	tags   config.TagConfig
	wf     config.WorkflowConfig
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// New assembles an engine from its collaborators and configuration.
func New(dialer network.Dialer, store storage.Storage, notifier notify.Notifier, approvals *approval.Engine, interp *interpreter.Interpreter, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		dialer:    dialer,
		store:     store,
		notifier:  notifier,
		approvals: approvals,
		interp:    interp,
		hub:       cfg.Hub,
		routes:    cfg.Routes,
		tags:      cfg.Tags,
		wf:        cfg.Workflow,
		ttl:       time.Duration(cfg.Database.RequestTTLDays) * 24 * time.Hour,
		now:       time.Now,
		log:       log.With().Str("component", "workflow").Logger(),
	}
}

// HandleTagChange runs a full execution for a tag-change event. A retryable
// error is returned without persisting a failure so the caller can back off
// and resubmit; every other outcome is persisted and notified.
func (e *Engine) HandleTagChange(ctx context.Context, ev domain.TagChangeEvent) (*domain.ReconciliationContext, error) {
	client, err := e.dialer.Dial(ctx, ev.Account, ev.Region)
	if err != nil {
		return nil, err
	}
	c, err := e.interp.Interpret(ctx, client, ev)
	if err != nil {
		return nil, err
	}
	return c, e.run(ctx, client, c)
}

// Decide applies an operator decision to a previously requested change and
// replays the recorded desired state through the workflow.
func (e *Engine) Decide(ctx context.Context, requestID string, action domain.AdminAction, userID string) (*domain.ReconciliationContext, error) {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.StatusRequested {
		return nil, fmt.Errorf("%w: request %s is %s, only requested changes can be decided", domain.ErrInvalidInput, requestID, req.Status)
	}

	status := domain.StatusApproved
	if action == domain.AdminActionReject {
		status = domain.StatusRejected
	}
	if err := e.store.UpdateRequestStatus(ctx, requestID, status, userID, e.now()); err != nil {
		return nil, err
	}

	ev := domain.AdminDecisionEvent{
		Action:                 action,
		SpokeAccountID:         req.SpokeAccountID,
		Region:                 req.Region,
		EventSource:            req.EventSource,
		VPCID:                  req.VPCID,
		SubnetID:               req.SubnetID,
		AssociationRouteTable:  req.AssociationRouteTable,
		PropagationRouteTables: req.PropagationRouteTables,
		UserID:                 userID,
	}
	client, err := e.dialer.Dial(ctx, ev.SpokeAccountID, ev.Region)
	if err != nil {
		return nil, err
	}
	c, err := e.interp.InterpretAdminDecision(ctx, client, ev)
	if err != nil {
		return nil, err
	}
	return c, e.run(ctx, client, c)
}

func (e *Engine) run(ctx context.Context, client network.Client, c *domain.ReconciliationContext) error {
	err := e.reconcile(ctx, client, c)
	if err != nil {
		if domain.IsRetryable(err) {
			e.log.Warn().Err(err).Str("execution", c.ExecutionID).Msg("transient conflict, retry")
			return err
		}
		c.Fail(err)
	}
	e.finalize(ctx, client, c)
	return err
}

func (e *Engine) reconcile(ctx context.Context, client network.Client, c *domain.ReconciliationContext) error {
	attachments := reconciler.NewAttachmentReconciler(client, e.hub.TransitGatewayID, e.wf.JitterMin, e.wf.JitterMax, e.log)
	associations := reconciler.NewAssociationReconciler(client, client, e.wf.PollInterval, e.wf.MaxPolls, e.log)
	propagations := reconciler.NewPropagationReconciler(client, e.log)
	routes := reconciler.NewDefaultRouteReconciler(client, client, e.hub.TransitGatewayID, e.routes, e.tags.StatusPrefix, e.log)
	resolver := reconciler.NewRouteTableResolver(client, e.hub.TransitGatewayID)

	if err := e.step(ctx, c, "observe-attachment", func() error { return attachments.Observe(ctx, c) }); err != nil {
		return err
	}

	// Membership changes are subnet scoped; a VPC tag change leaves the
	// attachment's subnets alone.
	if c.EventSource == domain.EventSourceSubnet && c.SubnetID != "" {
		if err := e.step(ctx, c, "reconcile-attachment", func() error { return attachments.Reconcile(ctx, c) }); err != nil {
			return err
		}
		if c.Status == domain.StatusAutoRejected {
			return nil
		}
	}

	if c.AttachmentFound && c.AttachmentState.Modifiable() {
		var tables []domain.HubRouteTable
		if err := e.step(ctx, c, "resolve-route-tables", func() error {
			var err error
			tables, err = resolver.Resolve(ctx, c)
			return err
		}); err != nil {
			return err
		}
		if err := e.step(ctx, c, "observe-bindings", func() error {
			if err := associations.Observe(ctx, c); err != nil {
				return err
			}
			return propagations.Observe(ctx, c)
		}); err != nil {
			return err
		}
		e.approvals.Analyze(c, tables)
	}

	if c.Status == "" {
		e.approvals.Resolve(c)
	}

	if c.Status == domain.StatusAutoApproved || c.Status == domain.StatusApproved {
		if err := e.step(ctx, c, "reconcile-association", func() error { return associations.Reconcile(ctx, c) }); err != nil {
			return err
		}
		if err := e.step(ctx, c, "reconcile-propagations", func() error { return propagations.Reconcile(ctx, c) }); err != nil {
			return err
		}
	}

	// Spoke default routes track subnet membership, not routing approval.
	if c.EventSource == domain.EventSourceSubnet && c.SubnetID != "" {
		if err := e.step(ctx, c, "reconcile-routes", func() error { return routes.Reconcile(ctx, c) }); err != nil {
			return err
		}
	}

	if c.AttachmentFound && c.AttachmentState.Modifiable() && len(c.AttachmentTagsRequired) > 0 {
		if err := e.step(ctx, c, "label-attachment", func() error {
			return e.labelAttachment(ctx, client, c)
		}); err != nil {
			return err
		}
	}
	return nil
}

// labelAttachment writes the accumulated attachment labels on both sides of
// the hub/spoke boundary, since tags do not cross account lines.
func (e *Engine) labelAttachment(ctx context.Context, tagger network.TagAPI, c *domain.ReconciliationContext) error {
	keys := make([]string, 0, len(c.AttachmentTagsRequired))
	for k := range c.AttachmentTagsRequired {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]domain.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, domain.Tag{Key: k, Value: c.AttachmentTagsRequired[k]})
	}

	if err := tagger.CreateTags(ctx, network.ScopeSpoke, c.TransitAttachmentID, tags...); err != nil {
		return err
	}
	return tagger.CreateTags(ctx, network.ScopeHub, c.TransitAttachmentID, tags...)
}

func (e *Engine) finalize(ctx context.Context, client network.Client, c *domain.ReconciliationContext) {
	if err := e.notifier.Notify(ctx, client, c); err != nil {
		e.log.Warn().Err(err).Str("execution", c.ExecutionID).Msg("notify failed")
	}
	if err := e.persist(ctx, c); err != nil {
		e.log.Error().Err(err).Str("execution", c.ExecutionID).Msg("request not persisted")
	}
	e.log.Info().
		Str("execution", c.ExecutionID).
		Str("vpc", c.VPCID).
		Str("subnet", c.SubnetID).
		Str("status", string(c.Status)).
		Str("action", string(c.Action)).
		Msg("execution finished")
}

func (e *Engine) persist(ctx context.Context, c *domain.ReconciliationContext) error {
	subnetID := c.SubnetID
	if subnetID == "" {
		// VPC-scoped executions are versioned under the VPC id.
		subnetID = c.VPCID
	}
	now := e.now()
	req := &domain.AttachmentRequest{
		ID:                     c.ExecutionID,
		SubnetID:               subnetID,
		VPCID:                  c.VPCID,
		Region:                 c.Region,
		VPCCidr:                c.VPCCidr,
		AvailabilityZone:       c.AvailabilityZone,
		TransitGatewayID:       e.hub.TransitGatewayID,
		AssociationRouteTable:  c.AssociateWith,
		PropagationRouteTables: domain.StringList(c.PropagateTo),
		EventSource:            c.EventSource,
		Action:                 c.Action,
		Status:                 c.Status,
		Comment:                c.Comment,
		SpokeAccountID:         c.Account,
		UserID:                 c.UserID,
		RequestedAt:            now,
		RespondedAt:            now,
		ExpiresAt:              now.Add(e.ttl),
	}
	return e.store.SaveRequest(ctx, req)
}

func (e *Engine) step(ctx context.Context, c *domain.ReconciliationContext, name string, fn func() error) error {
	err := fn()
	status, detail := "ok", ""
	if err != nil {
		status, detail = "error", err.Error()
	}
	rec := &domain.AuditRecord{
		ID:          uuid.NewString(),
		ExecutionID: c.ExecutionID,
		SubnetID:    c.SubnetID,
		VPCID:       c.VPCID,
		Step:        name,
		Status:      status,
		Detail:      detail,
		CreatedAt:   e.now(),
	}
	if aerr := e.store.AppendAudit(ctx, rec); aerr != nil {
		e.log.Warn().Err(aerr).Str("step", name).Msg("audit record not written")
	}
	return err
}
