package taskqueue

import "sort"

// expiredLease is a lease removed by sweepExpired.
type expiredLease struct {
	LeaseID string
	Lease
	// Requeued is set when the task went back to pending.
	Requeued bool
}

// sweepExpired removes every lease whose deadline is before nowMs and returns
// its task to pending when the task is still leased. Removed leases are
// returned ordered by deadline.
func sweepExpired(tasks []Task, index map[string]int, leases map[string]Lease, nowMs int64) []expiredLease {
	var removed []expiredLease
	for leaseID, l := range leases {
		if l.Deadline >= nowMs {
			continue
		}
		delete(leases, leaseID)
		ex := expiredLease{LeaseID: leaseID, Lease: l}
		if i, ok := index[l.TaskID]; ok {
			t := &tasks[i]
			if t.State == StateLeased && t.LeaseID == leaseID {
				t.State = StatePending
				t.clearLease()
				ex.Requeued = true
			}
		}
		removed = append(removed, ex)
	}
	sort.Slice(removed, func(i, j int) bool {
		if removed[i].Deadline != removed[j].Deadline {
			return removed[i].Deadline < removed[j].Deadline
		}
		return removed[i].LeaseID < removed[j].LeaseID
	})
	return removed
}
