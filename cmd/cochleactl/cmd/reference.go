package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	gfirestore "cloud.google.com/go/firestore"
	"github.com/mager/cochlea/firestore"
	"github.com/mager/cochlea/reference"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newReferenceCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Inspect and publish reference models",
	}
	cmd.AddCommand(newReferenceShowCmd(v), newReferencePushCmd(v))
	return cmd
}

func loadModelFile(path string) (*reference.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc map[string]any
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	m, err := reference.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.ProfileKey == "" {
		base := filepath.Base(path)
		m.ProfileKey = reference.SanitizeKey(base[:len(base)-len(filepath.Ext(base))])
	}
	return m, nil
}

func newReferenceShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show FILE",
		Short: "Print a reference model with metric names resolved to canonical paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModelFile(args[0])
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), v.GetString("output"), m)
		},
	}
}

func newReferencePushCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Publish a reference model to firestore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModelFile(args[0])
			if err != nil {
				return err
			}
			project := v.GetString("firestore-project")
			if project == "" {
				return fmt.Errorf("--firestore-project is required")
			}

			client, err := gfirestore.NewClient(cmd.Context(), project)
			if err != nil {
				return fmt.Errorf("failed to create firestore client: %w", err)
			}
			defer client.Close()

			doc := firestore.NewReferenceDoc(m)
			if err := firestore.PushReference(cmd.Context(), client, v.GetString("firestore-collection"), doc); err != nil {
				return fmt.Errorf("failed to push %s: %w", doc.ProfileKey, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%d metrics)\n", doc.ProfileKey, len(doc.Metrics))
			return nil
		},
	}
	cmd.Flags().String("firestore-project", "", "GCP project of the firestore database")
	cmd.Flags().String("firestore-collection", "reference_models", "firestore collection")
	return cmd
}
