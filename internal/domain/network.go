package domain

// Tag is a key/value label on a network resource.
type Tag struct {
	Key   string
	Value string
}

// Tags is a list of resource tags with helpers for case-insensitive lookup.
type Tags []Tag

// Get returns the value for key, matched case-insensitively after trimming.
// The second return is false when the key is absent.
func (t Tags) Get(key string) (string, bool) {
	key = NormalizeTagKey(key)
	for _, tag := range t {
		if NormalizeTagKey(tag.Key) == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present, matched case-insensitively.
func (t Tags) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// VPC is a spoke network segment.
type VPC struct {
	ID        string
	CidrBlock string
	Tags      Tags
}

// Subnet is a member subnet of a spoke VPC.
type Subnet struct {
	ID               string
	VPCID            string
	AvailabilityZone string
	Tags             Tags
}

// HubRouteTable is a routing domain on the transit gateway.
type HubRouteTable struct {
	ID   string
	Tags Tags
}

// Name returns the route table's Name tag, normalized for matching.
// Falls back to the route table id when no Name tag exists.
func (rt HubRouteTable) Name() string {
	if name, ok := rt.Tags.Get("Name"); ok {
		return NormalizeTagValue(name)
	}
	return rt.ID
}

// IsPrefixListID reports whether a route destination is a managed prefix
// list id rather than a CIDR block.
func IsPrefixListID(destination string) bool {
	return len(destination) > 3 && destination[:3] == "pl-"
}

// Route is a single entry in a spoke route table.
type Route struct {
	DestinationCidr         string
	DestinationPrefixListID string

	// Target fields; at most one is set.
	TransitGatewayID       string
	GatewayID              string
	NatGatewayID           string
	VPCPeeringConnectionID string
}

// Destination returns the CIDR or prefix-list identifier the route matches.
func (r Route) Destination() string {
	if r.DestinationPrefixListID != "" {
		return r.DestinationPrefixListID
	}
	return r.DestinationCidr
}

// HasTarget reports whether the route points at any known gateway target.
func (r Route) HasTarget() bool {
	return r.TransitGatewayID != "" || r.GatewayID != "" || r.NatGatewayID != "" || r.VPCPeeringConnectionID != ""
}

// SpokeRouteTable is the route table governing a subnet, either explicitly
// associated or the VPC's main route table.
type SpokeRouteTable struct {
	ID     string
	Main   bool
	Routes []Route
}
