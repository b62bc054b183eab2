package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/config"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

// Loader loads the reference model for a profile key.
type Loader interface {
	Load(ctx context.Context, profileKey string) (*Model, error)
}

// FileLoader reads <key>.json, <key>.yaml or <key>.yml from Dir.
type FileLoader struct {
	Dir string
}

var fileExtensions = []string{".json", ".yaml", ".yml"}

func (l *FileLoader) Load(ctx context.Context, profileKey string) (*Model, error) {
	key := SanitizeKey(profileKey)
	if key == "" {
		return nil, apperr.New(apperr.Validation, "reference.load", "empty profile key")
	}

	for _, ext := range fileExtensions {
		path := filepath.Join(l.Dir, key+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reference model %s: %w", path, err)
		}
		doc, err := decode(path, data)
		if err != nil {
			return nil, err
		}
		m, err := Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if m.ProfileKey == "" {
			m.ProfileKey = key
		}
		return m, nil
	}
	return nil, apperr.New(apperr.NotFound, "reference.load", "no reference model for "+key)
}

func decode(path string, data []byte) (map[string]any, error) {
	var doc map[string]any
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML reference model: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON reference model: %w", err)
		}
	}
	return doc, nil
}

// FirestoreLoader reads reference documents keyed by sanitized profile key.
type FirestoreLoader struct {
	Client     *firestore.Client
	Collection string
}

func (l *FirestoreLoader) Load(ctx context.Context, profileKey string) (*Model, error) {
	key := SanitizeKey(profileKey)
	if key == "" {
		return nil, apperr.New(apperr.Validation, "reference.load", "empty profile key")
	}

	snap, err := l.Client.Collection(l.Collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, apperr.New(apperr.NotFound, "reference.load", "no reference model for "+key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reference model %s: %w", key, err)
	}

	m, err := Parse(snap.Data())
	if err != nil {
		return nil, fmt.Errorf("reference model %s: %w", key, err)
	}
	if m.ProfileKey == "" {
		m.ProfileKey = key
	}
	return m, nil
}

// ProvideLoader picks the backend named by ReferenceSource.
func ProvideLoader(logger *zap.SugaredLogger, cfg config.Config, client *firestore.Client) (Loader, error) {
	switch cfg.ReferenceSource {
	case "", "file":
		logger.Infow("Reading reference models from disk", "dir", cfg.ReferenceDir)
		return &FileLoader{Dir: cfg.ReferenceDir}, nil
	case "firestore":
		if client == nil {
			return nil, apperr.New(apperr.Config, "reference", "firestore client is not configured")
		}
		logger.Infow("Reading reference models from firestore", "collection", cfg.FirestoreCollection)
		return &FirestoreLoader{Client: client, Collection: cfg.FirestoreCollection}, nil
	}
	return nil, apperr.New(apperr.Config, "reference", "unknown reference source "+cfg.ReferenceSource)
}

var Options = ProvideLoader
