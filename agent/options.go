package agent

import (
	"time"

	"github.com/nimbus-oss/azurecreds/tokensource"
)

// Prefetch selects how Initializing performs its first token fetch.
type Prefetch string

const (
	PrefetchSync  Prefetch = "sync"
	PrefetchAsync Prefetch = "async"
)

// Options are the agent startup options from spec.md §4.4. Name and Source
// are mandatory; the rest have documented defaults.
type Options struct {
	Name          string        `long:"name" description:"unique credential name" required:"true"`
	RefreshBefore time.Duration `long:"refresh-before" description:"how long before expiry to refresh" default:"5m"`
	MaxRetries    int           `long:"max-retries" description:"refresh retries before backing off to the 30s floor" default:"10"`
	RetryDelay    time.Duration `long:"retry-delay" description:"override for the default capped-exponential retry delay"`
	Prefetch      Prefetch      `long:"prefetch" description:"sync or async" default:"sync"`

	Source tokensource.Source
}
