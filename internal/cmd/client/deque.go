package client

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/flodq/internal/poll"
	"github.com/rzbill/flodq/pkg/deque"
	"github.com/rzbill/flodq/pkg/log"
)

// NewDequeCommand constructs the `deque` command group and subcommands.
func NewDequeCommand(logger log.Logger) *cobra.Command {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	dqCmd := &cobra.Command{
		Use:     "deque",
		Aliases: []string{"dq"},
		Short:   "Deque operations (push, blocking poll and take)",
		Long: `Deque operations against the configured store.

Commands:
  push   Push one or more payloads at the head or tail
  poll   Take from the first of several queues to yield, with a timeout
  take   Wait without limit for the next element of one queue
  len    Print the number of elements in a queue

The store is chosen with --backend (local, redis or grpc), the config file
or FLODQ_BACKEND.`,
	}
	addStoreFlags(dqCmd)
	dqCmd.AddCommand(
		newDequePushCommand(logger),
		newDequePollCommand(logger),
		newDequeTakeCommand(logger),
		newDequeLenCommand(logger),
	)
	return dqCmd
}

// withDeque opens the store and hands fn the raw-bytes deque called name.
func withDeque(cmd *cobra.Command, logger log.Logger, name string, fn func(context.Context, *deque.BlockingDeque[[]byte]) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := deque.Open(ctx, cfg, deque.WithClientLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	d, err := deque.Get[[]byte](c, name, deque.WithCodec[[]byte](deque.BytesCodec{}))
	if err != nil {
		return err
	}
	return fn(ctx, d)
}

func endFlag(cmd *cobra.Command) (poll.End, error) {
	v, _ := cmd.Flags().GetString("end")
	end, ok := poll.ParseEnd(v)
	if !ok {
		return end, fmt.Errorf("invalid --end %q; use head|tail", v)
	}
	return end, nil
}

func printResult(cmd *cobra.Command, res deque.Result[[]byte]) error {
	if res.Cancelled {
		return printJSON(cmd.OutOrStdout(), map[string]any{"found": false, "cancelled": true})
	}
	if !res.Found {
		return printJSON(cmd.OutOrStdout(), map[string]any{"found": false})
	}
	out := decodedPayload(res.Value)
	out["found"] = true
	out["queue"] = res.Queue
	return printJSON(cmd.OutOrStdout(), out)
}

func newDequePushCommand(logger log.Logger) *cobra.Command {
	pushCmd := &cobra.Command{
		Use:   "push <queue> <data>...",
		Short: "Push payloads to a deque",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := endFlag(cmd)
			if err != nil {
				return err
			}
			return withDeque(cmd, logger, args[0], func(ctx context.Context, d *deque.BlockingDeque[[]byte]) error {
				for _, data := range args[1:] {
					put := d.PutLast
					if end == poll.Head {
						put = d.PutFirst
					}
					if err := put(ctx, []byte(data)); err != nil {
						return err
					}
				}
				n, err := d.Len(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"status": "OK", "len": n})
			})
		},
	}
	pushCmd.Flags().String("end", "tail", "End to push at: head|tail")
	return pushCmd
}

func newDequePollCommand(logger log.Logger) *cobra.Command {
	pollCmd := &cobra.Command{
		Use:   "poll <queue> [other-queue]...",
		Short: "Poll the first of several queues to yield an element",
		Long: `Poll waits up to --timeout for an element at --end of <queue> or any of
the other queues named, checking <queue> first. A zero timeout checks each
queue once. Prints {"found": false} when nothing arrived in time.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := endFlag(cmd)
			if err != nil {
				return err
			}
			timeout, _ := cmd.Flags().GetInt64("timeout")
			unitName, _ := cmd.Flags().GetString("unit")
			unit, err := deque.ParseTimeUnit(unitName)
			if err != nil {
				return err
			}
			return withDeque(cmd, logger, args[0], func(ctx context.Context, d *deque.BlockingDeque[[]byte]) error {
				var f *deque.Future[[]byte]
				if end == poll.Tail {
					f = d.PollLastFromAny(ctx, timeout, unit, args[1:]...)
				} else {
					f = d.PollFirstFromAny(ctx, timeout, unit, args[1:]...)
				}
				res, err := f.Await(context.Background())
				if err != nil {
					return err
				}
				return printResult(cmd, res)
			})
		},
	}
	pollCmd.Flags().String("end", "head", "End to take from: head|tail")
	pollCmd.Flags().Int64("timeout", 0, "How long to wait, in --unit")
	pollCmd.Flags().String("unit", "s", "Timeout unit: ns|us|ms|s|m|h|d")
	return pollCmd
}

func newDequeTakeCommand(logger log.Logger) *cobra.Command {
	takeCmd := &cobra.Command{
		Use:   "take <queue>",
		Short: "Wait for the next element of a queue",
		Long:  `Take blocks until an element arrives. Use Ctrl+C to stop; an interrupted take leaves the queue untouched.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end, err := endFlag(cmd)
			if err != nil {
				return err
			}
			return withDeque(cmd, logger, args[0], func(ctx context.Context, d *deque.BlockingDeque[[]byte]) error {
				var f *deque.Future[[]byte]
				if end == poll.Tail {
					f = d.TakeLast(ctx)
				} else {
					f = d.TakeFirst(ctx)
				}
				res, err := f.Await(context.Background())
				if err != nil {
					return err
				}
				return printResult(cmd, res)
			})
		},
	}
	takeCmd.Flags().String("end", "head", "End to take from: head|tail")
	return takeCmd
}

func newDequeLenCommand(logger log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "len <queue>",
		Short: "Print the number of elements in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeque(cmd, logger, args[0], func(ctx context.Context, d *deque.BlockingDeque[[]byte]) error {
				n, err := d.Len(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"queue": d.Name(), "len": n})
			})
		},
	}
}
