// Package client provides the `flodq deque` command-line client.
//
// The commands open the store selected by --backend (or the config file, or
// FLODQ_BACKEND) through pkg/deque and print JSON results. They are meant
// for developers and operators poking at queues from a terminal.
//
// Usage
//
//	flodq deque push jobs '{"id":1}' '{"id":2}' --backend local --data-dir ./data
//	flodq deque poll jobs jobs-urgent --timeout 5 --unit s
//	flodq deque poll jobs --end tail              # zero timeout: check once
//	flodq deque take jobs --backend grpc --grpc 127.0.0.1:50061
//	flodq deque len jobs --backend redis --redis localhost:6379
//
// Notes
//
//   - poll checks the first queue named before the others.
//   - take waits without limit; Ctrl+C withdraws the wait without touching
//     the queue.
//   - payloads print as payload_json, payload_text or payload_b64, whichever
//     fits first.
package client
