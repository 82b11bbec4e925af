package dispatcher

import (
	"sort"

	"github.com/jdziat/job-registry/pkg/core"
)

// DefaultHeavyJobType is the aggregate job type that waits behind plain jobs.
const DefaultHeavyJobType = "workflow"

// Ordering decides which dispatchable job is offered for placement first.
// Jobs compare by status rank, then type tier, then creation time, then id.
// Lower values go first; statuses and types missing from the maps rank last
// and at tier 0 respectively.
type Ordering struct {
	StatusRanks map[core.JobStatus]int
	TypeTiers   map[string]int
}

// DefaultOrdering puts interrupted work first and workflows last.
func DefaultOrdering() Ordering {
	return Ordering{
		StatusRanks: map[core.JobStatus]int{
			core.StatusRestart: 0,
			core.StatusQueued:  1,
		},
		TypeTiers: map[string]int{
			DefaultHeavyJobType: 1,
		},
	}
}

func (o Ordering) statusRank(s core.JobStatus) int {
	if r, ok := o.StatusRanks[s]; ok {
		return r
	}
	return len(o.StatusRanks)
}

// Less reports whether a is offered before b.
func (o Ordering) Less(a, b *core.Job) bool {
	if ra, rb := o.statusRank(a.Status), o.statusRank(b.Status); ra != rb {
		return ra < rb
	}
	if ta, tb := o.TypeTiers[a.JobType], o.TypeTiers[b.JobType]; ta != tb {
		return ta < tb
	}
	if !a.DateCreated.Equal(b.DateCreated) {
		return a.DateCreated.Before(b.DateCreated)
	}
	return a.ID < b.ID
}

// Sort orders jobs in place.
func (o Ordering) Sort(jobs []*core.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return o.Less(jobs[i], jobs[j])
	})
}
