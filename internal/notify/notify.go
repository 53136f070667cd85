// Package notify reports workflow outcomes back to the spoke account. The
// default notifier writes status tags onto the resource that triggered the
// run, which doubles as a durable audit trail visible to the resource owner.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/network"
)

// Notifier reports the outcome of one execution.
type Notifier interface {
	Notify(ctx context.Context, tagger network.TagAPI, c *domain.ReconciliationContext) error
}

// TagNotifier writes status tags with a configured prefix onto the subnet or
// VPC the event came from.
type TagNotifier struct {
	prefix string
	now    func() time.Time
	log    zerolog.Logger
}

var _ Notifier = (*TagNotifier)(nil)

// NewTagNotifier creates a notifier writing tags with the given key prefix.
func NewTagNotifier(prefix string, log zerolog.Logger) *TagNotifier {
	return &TagNotifier{prefix: prefix, now: time.Now, log: log.With().Str("component", "notify").Logger()}
}

// Notify writes the status, comment and timestamp tags onto the triggering
// resource. Tag writes are best effort: a resource that vanished mid-run
// must not fail an otherwise complete execution.
func (n *TagNotifier) Notify(ctx context.Context, tagger network.TagAPI, c *domain.ReconciliationContext) error {
	resourceID := c.SubnetID
	if c.EventSource == domain.EventSourceVPC || resourceID == "" {
		resourceID = c.VPCID
	}
	if resourceID == "" {
		return nil
	}

	tags := []domain.Tag{
		{Key: n.prefix + "Status", Value: string(c.Status)},
		{Key: n.prefix + "UpdatedAt", Value: n.now().UTC().Format(time.RFC3339)},
	}
	if c.Comment != "" {
		comment := c.Comment
		if len(comment) > 255 {
			comment = comment[:255]
		}
		tags = append(tags, domain.Tag{Key: n.prefix + "Comment", Value: comment})
	}

	if err := tagger.CreateTags(ctx, network.ScopeSpoke, resourceID, tags...); err != nil {
		n.log.Warn().Err(err).Str("resource", resourceID).Msg("status tags not written")
	}
	return nil
}

// Nop is a notifier that does nothing, for tests and dry runs.
type Nop struct{}

func (Nop) Notify(context.Context, network.TagAPI, *domain.ReconciliationContext) error {
	return nil
}
