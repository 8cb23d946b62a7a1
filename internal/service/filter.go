package service

import (
	"strings"

	"subdomain-proxy-go/internal/model"
)

// overridePrefix marks a header that is forwarded under its unprefixed name.
const overridePrefix = "$"

// FilterHeaders builds the outbound header set from in. It runs two passes
// and their order matters:
//
//  1. copy every header whose lower-cased name is not in excluded;
//  2. for every surviving "$Name" header (at least two characters long), set
//     "Name" to its values, replacing whatever is there, and drop "$Name".
//
// Overrides therefore win over both exclusion and the client's own header of
// the same name. in is not modified.
func FilterHeaders(in *model.HeaderSet, excluded map[string]struct{}) *model.HeaderSet {
	out := model.NewHeaderSet()
	for _, name := range in.Names() {
		if _, skip := excluded[strings.ToLower(name)]; skip {
			continue
		}
		out.Set(name, in.Values(name)...)
	}

	// Overrides are taken from a snapshot of pass 1, so a "$$Name" header
	// produces "$Name" without that result being unwrapped again.
	type override struct {
		name string
		vals []string
	}
	var overrides []override
	for _, name := range out.Names() {
		if len(name) >= 2 && strings.HasPrefix(name, overridePrefix) {
			overrides = append(overrides, override{name, append([]string(nil), out.Values(name)...)})
		}
	}
	for _, o := range overrides {
		out.Set(strings.TrimPrefix(o.name, overridePrefix), o.vals...)
		out.Del(o.name)
	}

	return out
}
