// Package location maps client IP addresses to coarse location labels.
package location

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BurntSushi/toml"
)

// Resolver turns an IP address into a location label.
// Implementations may return models.UnknownLocation for addresses they cannot place.
type Resolver interface {
	Resolve(ctx context.Context, ipAddress string) (string, error)
}

// Range assigns a label to every address inside a CIDR block
type Range struct {
	CIDR     string `toml:"cidr"`
	Location string `toml:"location"`
}

// MapFile is the on-disk format of a static location map:
//
//	default = "Unknown Location"
//
//	[[range]]
//	cidr = "203.0.113.0/24"
//	location = "New York, US"
type MapFile struct {
	Default string  `toml:"default"`
	Ranges  []Range `toml:"range"`
}

type prefixLabel struct {
	prefix netip.Prefix
	label  string
}

// StaticResolver resolves against a fixed list of CIDR blocks.
// The most specific matching block wins.
type StaticResolver struct {
	prefixes []prefixLabel
	fallback string
}

// NewStaticResolver builds a resolver from ranges. An empty fallback means models.UnknownLocation.
func NewStaticResolver(ranges []Range, fallback string) (*StaticResolver, error) {
	if fallback == "" {
		fallback = models.UnknownLocation
	}

	prefixes := make([]prefixLabel, 0, len(ranges))
	for _, r := range ranges {
		prefix, err := netip.ParsePrefix(r.CIDR)
		if err != nil {
			return nil, fmt.Errorf("invalid cidr %q: %w", r.CIDR, err)
		}
		if r.Location == "" {
			return nil, fmt.Errorf("cidr %q has no location", r.CIDR)
		}
		prefixes = append(prefixes, prefixLabel{prefix: prefix.Masked(), label: r.Location})
	}

	sort.SliceStable(prefixes, func(i, j int) bool {
		return prefixes[i].prefix.Bits() > prefixes[j].prefix.Bits()
	})

	return &StaticResolver{prefixes: prefixes, fallback: fallback}, nil
}

// LoadStaticResolver reads a TOML location map from path
func LoadStaticResolver(path string) (*StaticResolver, error) {
	var file MapFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode location map: %w", err)
	}
	return NewStaticResolver(file.Ranges, file.Default)
}

// Resolve returns the label of the most specific block containing ipAddress.
// Unparseable addresses resolve to the fallback label.
func (r *StaticResolver) Resolve(ctx context.Context, ipAddress string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	addr, err := netip.ParseAddr(ipAddress)
	if err != nil {
		return r.fallback, nil
	}
	addr = addr.Unmap()

	for _, p := range r.prefixes {
		if p.prefix.Contains(addr) {
			return p.label, nil
		}
	}

	return r.fallback, nil
}
