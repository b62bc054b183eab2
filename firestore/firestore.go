package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/reference"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReferenceDoc is the stored form of a reference model. Metrics use the
// same percentile members as the builder output.
type ReferenceDoc struct {
	ProfileKey   string                        `json:"profile_key" firestore:"profile_key"`
	SamplesCount int                           `json:"samples_count" firestore:"samples_count"`
	BuiltAt      string                        `json:"built_at" firestore:"built_at"`
	Metrics      map[string]map[string]float64 `json:"metrics" firestore:"metrics"`
}

// ProvideDB provides a firestore client when reference models are read
// from firestore. It returns nil otherwise.
func ProvideDB(lc fx.Lifecycle, logger *zap.SugaredLogger, cfg config.Config) (*firestore.Client, error) {
	if cfg.ReferenceSource != "firestore" {
		return nil, nil
	}

	client, err := firestore.NewClient(context.Background(), cfg.FirestoreProject)
	if err != nil {
		logger.Errorw("Failed to create firestore client", "project", cfg.FirestoreProject, "error", err)
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

var Options = ProvideDB

// NewReferenceDoc converts a model into its stored form. Unset
// percentiles are omitted.
func NewReferenceDoc(m *reference.Model) ReferenceDoc {
	doc := ReferenceDoc{
		ProfileKey:   reference.SanitizeKey(m.ProfileKey),
		SamplesCount: m.SamplesCount,
		BuiltAt:      m.BuiltAt,
		Metrics:      make(map[string]map[string]float64, len(m.Metrics)),
	}
	for name, p := range m.Metrics {
		members := map[string]float64{}
		for key, v := range map[string]*float64{"p10": p.P10, "p25": p.P25, "p50": p.P50, "p75": p.P75, "p90": p.P90} {
			if v != nil {
				members[key] = *v
			}
		}
		doc.Metrics[name] = members
	}
	return doc
}

// PushReference stores doc under its profile key, replacing any
// previous version.
func PushReference(ctx context.Context, client *firestore.Client, collection string, doc ReferenceDoc) error {
	_, err := client.Collection(collection).Doc(doc.ProfileKey).Set(ctx, doc)
	return err
}
