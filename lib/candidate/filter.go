package candidate

import (
	"strings"

	"github.com/go-wlan/go-wlan/lib/scan"
)

// Filter accepts or rejects a candidate before the scan collaborator is
// consulted.
type Filter interface {
	// Name identifies the rule in skip logs.
	Name() string
	Accept(bss *scan.BSSDescription) bool
}

// rule is the single Filter implementation; the constructors below only
// differ in how they build accept.
type rule struct {
	name   string
	accept func(bss *scan.BSSDescription) bool
}

func (r rule) Name() string                         { return r.name }
func (r rule) Accept(bss *scan.BSSDescription) bool { return r.accept(bss) }

// Func turns a predicate into a Filter.
func Func(name string, accept func(bss *scan.BSSDescription) bool) Filter {
	return rule{name: name, accept: accept}
}

// All accepts a candidate every filter accepts. All() accepts everything.
func All(filters ...Filter) Filter {
	return rule{name: join("all", filters), accept: func(bss *scan.BSSDescription) bool {
		for _, f := range filters {
			if !f.Accept(bss) {
				return false
			}
		}
		return true
	}}
}

// Any accepts a candidate at least one filter accepts. Any() accepts
// everything, so an empty preference list does not block roaming.
func Any(filters ...Filter) Filter {
	return rule{name: join("any", filters), accept: func(bss *scan.BSSDescription) bool {
		if len(filters) == 0 {
			return true
		}
		for _, f := range filters {
			if f.Accept(bss) {
				return true
			}
		}
		return false
	}}
}

// Not inverts f.
func Not(f Filter) Filter {
	return rule{name: "not(" + f.Name() + ")", accept: func(bss *scan.BSSDescription) bool {
		return !f.Accept(bss)
	}}
}

func join(op string, filters []Filter) string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name()
	}
	return op + "(" + strings.Join(names, ",") + ")"
}
