// Package poll races blocking pops across several named deques and hands
// the first element back to the caller.
//
// A Request issues one Ticket per distinct queue name through a Proxy. The
// tickets of a request share a claim guard; the first ticket to claim it
// wins and every other ticket is cancelled before the Outcome is published.
// A finite Deadline races the tickets and yields an Empty outcome on
// expiry; a deadline that has already passed checks each queue once
// without registering waits.
//
//	c := poll.NewCoordinator(proxy, poll.WithLogger(logger))
//	req := c.PollFromAny(ctx, []string{"jobs", "jobs-retry"}, poll.Head, poll.After(5*time.Second))
//	<-req.Done()
//	switch o := req.Outcome(); o.Kind {
//	case poll.OutcomeElement:
//	    handle(o.Queue, o.Value)
//	case poll.OutcomeEmpty:
//	    // deadline passed
//	}
//
// Elements removed by a store for a ticket that lost its claim must be
// pushed back by the proxy. When that fails the proxy reports a
// LostElementError, which the coordinator logs, counts and forwards to the
// configured handler.
package poll
