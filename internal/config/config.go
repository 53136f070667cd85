package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the orchestrator. It is loaded once at
// process start and passed explicitly into each component.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Hub      HubConfig
	Tags     TagConfig
	Routes   RouteConfig
	Workflow WorkflowConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port     int    `env:"SERVER_PORT" envDefault:"8080"`
	APIKey   string `env:"API_KEY"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// DatabaseConfig holds request/audit store configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/orchestrator.db"`
	// Request rows expire after this many days.
	RequestTTLDays int `env:"REQUEST_TTL_DAYS" envDefault:"90"`
}

// HubConfig identifies the transit gateway and the credentials used to reach
// spoke accounts and the organization.
type HubConfig struct {
	TransitGatewayID string `env:"TGW_ID"`
	Region           string `env:"HUB_REGION"`
	// Role assumed in each spoke account for attachment and tagging calls.
	SpokeRoleName string `env:"SPOKE_EXECUTION_ROLE" envDefault:"TransitNetworkExecutionRole"`
	// Optional role for organization lookups when the hub account is not the
	// org management account.
	OrgRoleARN string `env:"ORGANIZATION_ACCOUNT_ROLE_ARN"`
}

// TagConfig names the tag keys the orchestrator reacts to.
type TagConfig struct {
	Attachment  string `env:"ATTACHMENT_TAG" envDefault:"Attach-to-tgw"`
	Association string `env:"ASSOCIATION_TAG" envDefault:"Associate-with"`
	Propagation string `env:"PROPAGATION_TAG" envDefault:"Propagate-to"`
	Routing     string `env:"ROUTING_TAG" envDefault:"Route-to-tgw"`
	ApprovalKey string `env:"APPROVAL_KEY" envDefault:"ApprovalRequired"`
	// VPC tag keys copied onto the attachment, comma separated.
	CopyToAttachment string `env:"VPC_TAGS_FOR_ATTACHMENT"`
	// Prefix for status tags written back onto spoke resources.
	StatusPrefix string `env:"STATUS_TAG_PREFIX" envDefault:"TransitStatus-"`
}

// CopyToAttachmentKeys returns the attachment-copy tag keys as a slice.
func (c *TagConfig) CopyToAttachmentKeys() []string {
	if c.CopyToAttachment == "" {
		return nil
	}
	keys := strings.Split(c.CopyToAttachment, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// RoutePolicy selects how default routes in spoke route tables are managed.
type RoutePolicy string

const (
	RouteAllTraffic         RoutePolicy = "all-traffic"
	RouteRFC1918            RoutePolicy = "rfc-1918"
	RouteCustomDestinations RoutePolicy = "custom-destinations"
	RouteConfigureManually  RoutePolicy = "configure-manually"
)

// RouteConfig holds the default-route policy and its parameters.
type RouteConfig struct {
	Policy      RoutePolicy `env:"DEFAULT_ROUTE" envDefault:"configure-manually"`
	AllTraffic  string      `env:"ALL_TRAFFIC" envDefault:"0.0.0.0/0"`
	RFC1918     []string    `env:"RFC_1918_ROUTES" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"`
	CidrBlocks  []string    `env:"CIDR_BLOCKS"`
	PrefixLists []string    `env:"PREFIX_LISTS"`
}

// Destinations returns the destination list implied by the configured policy.
func (c *RouteConfig) Destinations() []string {
	switch c.Policy {
	case RouteAllTraffic:
		return []string{c.AllTraffic}
	case RouteRFC1918:
		return c.RFC1918
	case RouteCustomDestinations:
		return append(append([]string{}, c.CidrBlocks...), c.PrefixLists...)
	}
	return nil
}

// WorkflowConfig holds polling and retry behavior shared by reconcilers.
type WorkflowConfig struct {
	PollInterval time.Duration `env:"WAIT_TIME" envDefault:"5s"`
	MaxPolls     int           `env:"MAX_POLLS" envDefault:"60"`
	// Jitter bounds for the sleep inserted when an attachment is observed in
	// a transient state.
	JitterMin time.Duration `env:"JITTER_MIN" envDefault:"5s"`
	JitterMax time.Duration `env:"JITTER_MAX" envDefault:"10s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Hub); err != nil {
		return nil, fmt.Errorf("parsing hub config: %w", err)
	}
	if err := env.Parse(&cfg.Tags); err != nil {
		return nil, fmt.Errorf("parsing tag config: %w", err)
	}
	if err := env.Parse(&cfg.Routes); err != nil {
		return nil, fmt.Errorf("parsing route config: %w", err)
	}
	if err := env.Parse(&cfg.Workflow); err != nil {
		return nil, fmt.Errorf("parsing workflow config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Hub.TransitGatewayID == "" {
		return fmt.Errorf("TGW_ID is required")
	}
	if c.Hub.Region == "" {
		return fmt.Errorf("HUB_REGION is required")
	}
	switch c.Routes.Policy {
	case RouteAllTraffic, RouteRFC1918, RouteCustomDestinations, RouteConfigureManually:
	default:
		return fmt.Errorf("DEFAULT_ROUTE must be one of all-traffic, rfc-1918, custom-destinations, configure-manually")
	}
	if c.Routes.Policy == RouteCustomDestinations &&
		len(c.Routes.CidrBlocks) == 0 && len(c.Routes.PrefixLists) == 0 {
		return fmt.Errorf("custom-destinations requires CIDR_BLOCKS and/or PREFIX_LISTS")
	}
	if c.Workflow.PollInterval <= 0 {
		return fmt.Errorf("WAIT_TIME must be positive")
	}
	if c.Workflow.JitterMax < c.Workflow.JitterMin {
		return fmt.Errorf("JITTER_MAX must be >= JITTER_MIN")
	}
	return nil
}
