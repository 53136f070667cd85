package reconciler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/config"
	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// DefaultRouteReconciler converges the default routes in the spoke route
// table governing the subnet. The destinations come from the configured
// route policy; routes point at the hub.
type DefaultRouteReconciler struct {
	spoke  network.SpokeAPI
	tagger network.TagAPI
	hubID  string
	routes config.RouteConfig
	prefix string
	log    zerolog.Logger
}

func NewDefaultRouteReconciler(spoke network.SpokeAPI, tagger network.TagAPI, hubID string, routes config.RouteConfig, statusPrefix string, log zerolog.Logger) *DefaultRouteReconciler {
	return &DefaultRouteReconciler{
		spoke:  spoke,
		tagger: tagger,
		hubID:  hubID,
		routes: routes,
		prefix: statusPrefix,
		log:    log.With().Str("component", "routes").Logger(),
	}
}

// annotate writes a status tag onto the spoke route table. Best effort: the
// route table is already converged (or the failure already recorded), a
// failed tag write only gets logged.
func (r *DefaultRouteReconciler) annotate(ctx context.Context, routeTableID, key, message string) {
	if r.tagger == nil || routeTableID == "" {
		return
	}
	if len(message) > 255 {
		message = message[:255]
	}
	tag := domain.Tag{Key: r.prefix + key, Value: message}
	if err := r.tagger.CreateTags(ctx, network.ScopeSpoke, routeTableID, tag); err != nil {
		r.log.Warn().Err(err).Str("route_table", routeTableID).Msg("route table status tag not written")
	}
}

// Reconcile creates or removes the policy's destinations in the subnet's
// route table. Under the manual policy nothing happens unless the VPC's
// routing tag asks for it explicitly. Routes owned by another target are
// never touched: a competing route is logged and skipped, and removal only
// deletes routes that point at the hub.
func (r *DefaultRouteReconciler) Reconcile(ctx context.Context, c *domain.ReconciliationContext) error {
	if r.routes.Policy == config.RouteConfigureManually && c.RouteToHub == domain.RouteIntentNone {
		return nil
	}
	destinations := r.routes.Destinations()
	if len(destinations) == 0 && c.RouteToHub != domain.RouteIntentNone {
		// The routing tag opts a VPC into the custom destinations even when
		// no global default-route policy is active.
		destinations = append(append([]string{}, r.routes.CidrBlocks...), r.routes.PrefixLists...)
	}
	if len(destinations) == 0 {
		return nil
	}

	remove := !c.SubnetTagFound || c.RouteToHub == domain.RouteIntentDelete

	rt, err := r.spoke.SubnetRouteTable(ctx, c.SubnetID, c.VPCID)
	if err != nil {
		if remove && domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	c.SpokeRouteTableID = rt.ID
	c.SpokeRouteTableMain = rt.Main

	byDestination := make(map[string]domain.Route, len(rt.Routes))
	for _, route := range rt.Routes {
		byDestination[route.Destination()] = route
	}

	var added, removed int
	for _, destination := range destinations {
		existing, found := byDestination[destination]
		if remove {
			if found && existing.TransitGatewayID == r.hubID {
				if err := r.spoke.DeleteRoute(ctx, rt.ID, destination); err != nil {
					r.annotate(ctx, rt.ID, "RouteTable-Error", err.Error())
					return err
				}
				removed++
				r.log.Info().Str("route_table", rt.ID).Str("destination", destination).Msg("route removed")
			}
			continue
		}

		switch {
		case !found:
			if err := r.spoke.CreateRoute(ctx, rt.ID, destination, r.hubID); err != nil {
				r.annotate(ctx, rt.ID, "RouteTable-Error", err.Error())
				return err
			}
			added++
			r.log.Info().Str("route_table", rt.ID).Str("destination", destination).Msg("route created")
		case existing.TransitGatewayID == r.hubID:
			// already in place
		case !existing.HasTarget():
			// blackhole left behind by a deleted target, replace it
			if err := r.spoke.DeleteRoute(ctx, rt.ID, destination); err != nil {
				r.annotate(ctx, rt.ID, "RouteTable-Error", err.Error())
				return err
			}
			if err := r.spoke.CreateRoute(ctx, rt.ID, destination, r.hubID); err != nil {
				r.annotate(ctx, rt.ID, "RouteTable-Error", err.Error())
				return err
			}
			added++
			r.log.Info().Str("route_table", rt.ID).Str("destination", destination).Msg("blackhole route replaced")
		default:
			r.log.Warn().Str("route_table", rt.ID).Str("destination", destination).
				Msg("competing route present, leaving it alone")
		}
	}

	if added > 0 {
		r.annotate(ctx, rt.ID, "RouteTable", "Route(s) added to the route table.")
	}
	if removed > 0 {
		r.annotate(ctx, rt.ID, "RouteTable", "Route(s) removed from the route table.")
	}
	return nil
}
