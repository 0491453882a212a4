// Package core contains canonical droplet domain contracts, entities, and
// orchestration logic. Lower-level adapters must depend on this package; core
// must not depend on transport-specific or platform-specific adapters.
package core
