package reconciler

import (
	"context"
	"sort"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// RouteTableResolver maps the route-table names used in spoke tags onto hub
// route table ids.
type RouteTableResolver struct {
	api   network.RoutingAPI
	hubID string
}

// NewRouteTableResolver creates a resolver for the given hub.
func NewRouteTableResolver(api network.RoutingAPI, hubID string) *RouteTableResolver {
	return &RouteTableResolver{api: api, hubID: hubID}
}

// Resolve lists the hub route tables and resolves the context's desired
// association and propagation names to ids. Any name claimed by more than
// one hub route table fails the run with an AmbiguousRouteTableNameError
// before resolution, whether or not the spoke asked for it: name resolution
// on an ambiguous hub is unsafe. Names that match no table produce a
// RouteTableNotFoundError. Both are configuration errors the operator has
// to fix, so they fail the run without retry.
//
// The listed tables are returned for the approval pass so the hub is only
// described once per execution.
func (r *RouteTableResolver) Resolve(ctx context.Context, c *domain.ReconciliationContext) ([]domain.HubRouteTable, error) {
	tables, err := r.api.HubRouteTables(ctx, r.hubID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]string, len(tables))
	c.HubRouteTableIDs = c.HubRouteTableIDs[:0]
	for _, rt := range tables {
		c.HubRouteTableIDs = append(c.HubRouteTableIDs, rt.ID)
		byName[rt.Name()] = append(byName[rt.Name()], rt.ID)
	}

	var ambiguous []string
	for name, ids := range byName {
		if len(ids) > 1 {
			ambiguous = append(ambiguous, name)
		}
	}
	if len(ambiguous) > 0 {
		sort.Strings(ambiguous)
		return nil, &domain.AmbiguousRouteTableNameError{Names: ambiguous}
	}

	var missing []string
	lookup := func(name string) string {
		if ids := byName[domain.NormalizeTagValue(name)]; len(ids) == 1 {
			return ids[0]
		}
		missing = append(missing, name)
		return ""
	}

	c.AssociationRouteTableID = domain.RouteTableNone
	if name := domain.NormalizeTagValue(c.AssociateWith); name != "" && name != domain.RouteTableNone {
		c.AssociationRouteTableID = lookup(name)
	}

	c.PropagationRouteTableIDs = c.PropagationRouteTableIDs[:0]
	for _, name := range c.PropagateTo {
		if id := lookup(name); id != "" {
			c.PropagationRouteTableIDs = append(c.PropagationRouteTableIDs, id)
		}
	}

	if len(missing) > 0 {
		return nil, &domain.RouteTableNotFoundError{Names: missing}
	}
	return tables, nil
}
