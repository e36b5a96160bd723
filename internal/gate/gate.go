// Package gate carries the config-backed AccessGate used for standalone
// deployments, where the operator grants capabilities to fixed addresses in
// the config file instead of an external role service.
package gate

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// Static maps capabilities to an allow-list of addresses. Lookups never
// error; an address outside a list is simply denied.
type Static struct {
	grants map[domain.Capability]map[common.Address]struct{}
}

// NewStatic builds a Static gate from capability name to hex-address lists.
// Unknown capability names and malformed addresses are rejected so a typo in
// the operator's config fails startup instead of silently granting nothing.
func NewStatic(grants map[string][]string) (*Static, error) {
	known := map[string]domain.Capability{
		string(domain.CapPause):      domain.CapPause,
		string(domain.CapModerate):   domain.CapModerate,
		string(domain.CapParameters): domain.CapParameters,
	}

	g := &Static{grants: make(map[domain.Capability]map[common.Address]struct{})}
	for name, addrs := range grants {
		cap, ok := known[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("gate: unknown capability %q", name)
		}
		set := make(map[common.Address]struct{}, len(addrs))
		for _, a := range addrs {
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("gate: capability %q: invalid address %q", name, a)
			}
			set[common.HexToAddress(a)] = struct{}{}
		}
		g.grants[cap] = set
	}
	return g, nil
}

// HasCapability reports whether actor holds cap.
func (g *Static) HasCapability(actor common.Address, cap domain.Capability) (bool, error) {
	set, ok := g.grants[cap]
	if !ok {
		return false, nil
	}
	_, granted := set[actor]
	return granted, nil
}

var _ domain.AccessGate = (*Static)(nil)
