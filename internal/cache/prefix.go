package cache

import "fmt"

type Prefix string

const (
	// RateLimit holds the per-window dispatch counters.
	RateLimit Prefix = "ratelimit"
	// OverdueAlerted marks messages already reported as overdue.
	OverdueAlerted Prefix = "overdue_alerted"
)

func (p Prefix) Key(id string) string {
	return fmt.Sprintf("%s:%s", p, id)
}
