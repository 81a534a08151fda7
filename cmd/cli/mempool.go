package cli

// mempool.go – mempool inspection:
//   mempool stat

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RegisterMempool attaches the mempool subtree.
func RegisterMempool(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "mempool",
		Short:             "inspect pending transactions",
		PersistentPreRunE: initMiddleware,
	}

	stat := &cobra.Command{
		Use:   "stat",
		Short: "show pending transaction counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			top := cliMempool.Top(10)
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", cliMempool.Len())
			for _, tx := range top {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s fee=%d\n", tx.ID[:16], tx.Type, tx.Fee)
			}
			return nil
		},
	}

	cmd.AddCommand(stat)
	root.AddCommand(cmd)
}
