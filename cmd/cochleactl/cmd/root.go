// Package cmd is the cochleactl command line: offline canonicalization,
// projection and ranking of analyzer results, and reference model upkeep.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "COCHLEA"

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree around v.
func NewRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "cochleactl",
		Short: "Inspect and rank mix analysis results",
		Long: `cochleactl works on raw analyzer results saved as JSON files.

Examples:
  # Normalize an analyzer result into the canonical blob
  cochleactl canonicalize result.json

  # Print the bandwidth-bounded arrays view
  cochleactl view result.json -o yaml

  # Rank a result against a reference model directory
  cochleactl rank result.json --profile minimal_deep_tech --references ./reference_models`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v, configFile)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml)")
	root.PersistentFlags().StringP("output", "o", "json", "output format (json, yaml)")

	root.AddCommand(
		newCanonicalizeCmd(v),
		newViewCmd(v),
		newRankCmd(v),
		newReferenceCmd(v),
	)
	return root
}

// initConfig reads the optional config file and the environment, then
// binds every flag of cmd so flags, env and file resolve through v.
func initConfig(cmd *cobra.Command, v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var lastErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			lastErr = err
		}
	})
	return lastErr
}

func readJSON(path string, stdin io.Reader) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		// Go through JSON so field names match the json output.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}
