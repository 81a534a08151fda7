package cli

// validator.go – validator registry commands:
//   validator register <id> <wallet> <public-key>
//   validator list
//   validator heartbeat <id> <height>

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// RegisterValidator attaches the validator subtree.
func RegisterValidator(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "validator",
		Short:             "manage the validator registry",
		PersistentPreRunE: initMiddleware,
	}

	register := &cobra.Command{
		Use:   "register <id> <wallet> <public-key>",
		Short: "register a validator identity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliPool.Register(args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validator %s registered\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "list registered validators as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(cliPool.All())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	heartbeat := &cobra.Command{
		Use:   "heartbeat <id> <height>",
		Short: "record a validator heartbeat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse height: %w", err)
			}
			cliPool.Heartbeat(args[0], height)
			fmt.Fprintf(cmd.OutOrStdout(), "heartbeat recorded for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(register, list, heartbeat)
	root.AddCommand(cmd)
}
