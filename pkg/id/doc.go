// Package id names poll requests and their wait tickets.
//
// An ID is a millisecond timestamp followed by a per-millisecond sequence,
// both big-endian, so IDs from one Generator sort in issue order byte-wise
// and as hex. Short gives the low 8 hex digits for log lines; Parse reads
// back the String form.
//
//	g := id.NewGenerator()
//	req := g.Next()
//	logger.Debug("poll issued", log.Str("request", req.Short()))
package id
