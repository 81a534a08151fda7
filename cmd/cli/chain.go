package cli

// chain.go – chain inspection and export/import commands:
//   chain head
//   chain export [file]
//   chain import <file>

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"weavenet/core"
	"weavenet/pkg/utils"
)

// RegisterChain attaches the chain subtree.
func RegisterChain(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "chain",
		Short:             "inspect and export the local chain",
		PersistentPreRunE: initMiddleware,
	}

	head := &cobra.Command{
		Use:   "head",
		Short: "show the chain tip as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tip := cliLedger.Tip()
			out, err := yaml.Marshal(map[string]interface{}{
				"height":     tip.Index,
				"hash":       tip.Hash,
				"state_root": cliLedger.StateRoot(),
				"proposer":   tip.ValidatorID,
				"txs":        len(tip.Transactions),
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export [file]",
		Short: "write the full chain as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := utils.EnvOrDefault("CHAIN_FILE", "./chain.json")
			if len(args) > 0 {
				path = args[0]
			}
			blocks := cliLedger.Export()
			data, err := json.MarshalIndent(blocks, "", "  ")
			if err != nil {
				return utils.Wrap(err, "encode chain")
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return utils.Wrap(err, "write chain")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d blocks to %s\n", len(blocks), path)
			return nil
		},
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "restore the chain from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return utils.Wrap(err, "read chain")
			}
			var blocks []*core.Block
			if err := json.Unmarshal(data, &blocks); err != nil {
				return utils.Wrap(err, "decode chain")
			}
			if err := cliLedger.RestoreChain(blocks); err != nil {
				return utils.Wrap(err, "restore chain")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored chain at height %d\n", cliLedger.Height())
			return nil
		},
	}

	cmd.AddCommand(head, export, imp)
	root.AddCommand(cmd)
}
