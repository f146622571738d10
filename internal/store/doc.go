// Package store is the deque engine behind a flodq server: named
// double-ended queues persisted in Pebble, with blocking pops served to
// registered waiters in FIFO order.
//
// Waiters carry a Claim callback that is evaluated under the engine lock
// right before their element is popped, so a waiter whose poll request was
// already won elsewhere is skipped and the element stays for the next one.
package store
