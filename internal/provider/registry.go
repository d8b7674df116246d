package provider

import "sort"

// registry is the closed set of provider adapters, built once at process
// start. Adding a provider means adding a constructor and a table entry,
// not modifying the orchestrator.
var registry = map[string]Provider{}

func register(p Provider) {
	registry[p.Identity().Key] = p
}

func init() {
	register(newClaude())
	register(newCodex())
	register(newGemini())
	register(newAntigravity())
	register(newCopilot())
	register(newCursor())
	register(newWindsurf())
	register(newAugment())
	register(newAmp())
	register(newKiro())
	register(newOpencode())
	register(newQwen())
	register(newZai())
}

// Lookup returns the adapter registered under key.
func Lookup(key string) (Provider, bool) {
	p, ok := registry[key]
	return p, ok
}

// Keys returns all registered provider keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// All returns every registered adapter ordered by key.
func All() []Provider {
	keys := Keys()
	out := make([]Provider, 0, len(keys))
	for _, key := range keys {
		out = append(out, registry[key])
	}
	return out
}
