package cli

// keys.go – key and identity tooling:
//   keys generate [file]
//   keys node-id

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"weavenet/core"
	"weavenet/pkg/utils"
)

// RegisterKeys attaches the keys subtree.
func RegisterKeys(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "key and node identity tooling",
	}

	generate := &cobra.Command{
		Use:   "generate [file]",
		Short: "generate an Ed25519 keypair; the private key is written to file",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := core.GenerateKeyPair()
			if err != nil {
				return err
			}
			path := utils.EnvOrDefault("NODE_KEY_FILE", "./node.key")
			if len(args) > 0 {
				path = args[0]
			}
			if err := os.WriteFile(path, []byte(priv+"\n"), 0o600); err != nil {
				return utils.Wrap(err, "write key file")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "public key: %s\nprivate key written to %s\n", pub, path)
			return nil
		},
	}

	nodeID := &cobra.Command{
		Use:   "node-id",
		Short: "mint a fresh node identity for mining registration",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "node-"+uuid.NewString())
		},
	}

	cmd.AddCommand(generate, nodeID)
	root.AddCommand(cmd)
}
