package cmd

import (
	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/compare"
	"github.com/mager/cochlea/rank"
	"github.com/mager/cochlea/reference"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRankCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank FILE",
		Short: "Rank a result against a reference model",
		Long: `Rank a raw analyzer result against the reference model of a profile.

Reference models are read from <references>/<profile>.json or .yaml.
Flags can also be set with COCHLEA_* environment variables, for example
COCHLEA_REFERENCES=./reference_models.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSON(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			loader := &reference.FileLoader{Dir: v.GetString("references")}
			ref, err := loader.Load(cmd.Context(), v.GetString("profile"))
			if err != nil {
				return err
			}

			opts := rank.DefaultOptions()
			opts.PrecisionThreshold = v.GetFloat64("precision-threshold")
			opts.ClosenessExponent = v.GetFloat64("closeness-exponent")
			engine, err := rank.NewEngine(opts)
			if err != nil {
				return err
			}

			model := compare.Compare(canonical.Canonicalize(raw), ref)
			if v.GetBool("compare") {
				return write(cmd.OutOrStdout(), v.GetString("output"), model)
			}
			return write(cmd.OutOrStdout(), v.GetString("output"), engine.Rank(model))
		},
	}

	defaults := rank.DefaultOptions()
	cmd.Flags().String("profile", reference.DefaultProfile, "reference profile key")
	cmd.Flags().String("references", "reference_models", "directory of reference models")
	cmd.Flags().Float64("precision-threshold", defaults.PrecisionThreshold, "closeness needed for the precision bonus")
	cmd.Flags().Float64("closeness-exponent", defaults.ClosenessExponent, "exponent of the closeness curve")
	cmd.Flags().Bool("compare", false, "print the comparison model instead of the rank")
	return cmd
}
