package client

import (
	"github.com/spf13/cobra"

	"github.com/rzbill/flodq/pkg/log"
)

// NewRoot constructs a root Cobra command for the flodq client.
// It registers the deque command group.
func NewRoot(logger log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "flodq",
		Short: "flodq client commands",
	}
	root.AddCommand(NewDequeCommand(logger))
	return root
}
