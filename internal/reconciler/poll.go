// Package reconciler drives the hub and spoke networks toward the desired
// state captured in a reconciliation context. Each reconciler covers one
// concern: attachment membership, route-table association, propagation, and
// spoke default routes.
package reconciler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// pollAssociation polls until the association settles in a terminal state or
// the attempt budget runs out.
func pollAssociation(ctx context.Context, api network.RoutingAPI, routeTableID, attachmentID, vpcID string, interval time.Duration, maxPolls int) (domain.AssociationState, error) {
	var state domain.AssociationState
	backoff := retry.WithMaxRetries(uint64(maxPolls), retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := api.AssociationState(ctx, routeTableID, attachmentID, vpcID)
		if err != nil {
			return err
		}
		state = s
		if !s.Terminal() {
			return retry.RetryableError(fmt.Errorf("association state %q", s))
		}
		return nil
	})
	if err != nil {
		return state, fmt.Errorf("waiting for association on %s: %w", routeTableID, err)
	}
	return state, nil
}

// sleepFunc allows tests to skip real sleeps.
type sleepFunc func(ctx context.Context, d time.Duration)

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// jitter returns a random duration in [min, max]. Concurrent executions on
// the same attachment sleep different amounts so their writes interleave
// instead of colliding repeatedly.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
