// Package deque is the caller-facing API over remote double-ended queues:
// blocking polls from one queue or from whichever of several queues yields
// first, bounded by a timeout, with results delivered through a Future.
//
//	c, err := deque.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	jobs, _ := deque.Get[Job](c, "jobs")
//	res, err := jobs.PollFirstFromAny(ctx, 5, deque.Seconds, "jobs-urgent").Await(ctx)
//	if err == nil && res.Found {
//	    handle(res.Queue, res.Value)
//	}
//
// A timeout of zero checks each queue once. A poll that times out is not an
// error: its Result has Found == false.
package deque
