// Package taskqueue implements the runq lease queue: a single serialized owner
// of the task array and lease table.
//
// Every operation holds one mutex for its full duration, runs the lease
// expiry sweep first, and writes a full snapshot of both the task array and
// the lease table through a Store after any mutation. Tasks are leased in
// submission order; priority is carried but not used for ordering.
//
// Usage:
//
//	q := taskqueue.New(taskqueue.NewPebbleStore(db), taskqueue.Options{})
//	ids, _ := q.Submit(ctx, []taskqueue.NewTask{{Type: "email", Payload: p}})
//	res, _ := q.Lease(ctx, taskqueue.LeaseRequest{RunnerID: "r1", Max: 1})
//	for _, t := range res.Leased {
//	    _ = q.Result(ctx, taskqueue.Report{RunnerID: "r1", LeaseID: t.LeaseID, TaskID: t.ID, Status: taskqueue.StatusSucceeded})
//	}
package taskqueue
