package cache

import "strings"

// Namespace returns a Keyer that places every key produced by k under ns,
// so that deployments sharing one Redis server never read each other's
// entries. The namespace is joined with a single ':' whether or not ns
// already ends in one. An empty ns returns k unchanged; a nil k uses
// DefaultKeyer.
func Namespace(k Keyer, ns string) Keyer {
	if k == nil {
		k = NewDefaultKeyer()
	}
	ns = strings.TrimRight(ns, ":")
	if ns == "" {
		return k
	}
	return namespacedKeyer{inner: k, ns: ns + ":"}
}

type namespacedKeyer struct {
	inner Keyer
	ns    string
}

func (k namespacedKeyer) ArtifactKey(opts ArtifactKeyOpts) string {
	return k.ns + k.inner.ArtifactKey(opts)
}
