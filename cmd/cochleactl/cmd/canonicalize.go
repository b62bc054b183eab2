package cmd

import (
	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/view"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCanonicalizeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonicalize FILE",
		Short: "Normalize a raw analyzer result into the canonical blob",
		Long: `Normalize a raw analyzer result into the canonical blob.

Use "-" to read from stdin. With --trace the command prints, for every
canonical key, the source path it was resolved from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSON(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if v.GetBool("trace") {
				return write(cmd.OutOrStdout(), v.GetString("output"), canonical.Trace(raw))
			}
			return write(cmd.OutOrStdout(), v.GetString("output"), canonical.Canonicalize(raw))
		},
	}
	cmd.Flags().Bool("trace", false, "print the source path of each canonical key")
	return cmd
}

func newViewCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "view FILE",
		Short: "Print the downsampled arrays view of a raw or canonical result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSON(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), v.GetString("output"), view.Project(canonical.Canonicalize(raw)))
		},
	}
}
