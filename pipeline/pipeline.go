// Package pipeline runs one analysis request end to end: it loads the
// version, calls the analyzer, canonicalizes and projects the result,
// ranks it against the reference model and persists the version row.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mager/cochlea/analyzer"
	"github.com/mager/cochlea/apperr"
	"github.com/mager/cochlea/canonical"
	"github.com/mager/cochlea/compare"
	"github.com/mager/cochlea/config"
	"github.com/mager/cochlea/rank"
	"github.com/mager/cochlea/reference"
	"github.com/mager/cochlea/storage"
	"github.com/mager/cochlea/store"
	"github.com/mager/cochlea/version"
	"github.com/mager/cochlea/view"
	"go.uber.org/zap"
)

// Stages reported to an Observer, in order.
const (
	StageValidated     = "validated"
	StageVersionLoaded = "version_loaded"
	StageProfile       = "profile_resolved"
	StageAudioResolved = "audio_resolved"
	StageAnalyzing     = "analyzing"
	StageAnalyzed      = "analyzed"
	StageCanonicalized = "canonicalized"
	StageArraysStored  = "arrays_stored"
	StageViewStored    = "view_stored"
	StageReference     = "reference_loaded"
	StageRankSkipped   = "rank_skipped"
	StageRanked        = "ranked"
	StagePersisted     = "persisted"
)

// Event is a progress notification.
type Event struct {
	Stage     string `json:"stage"`
	VersionID string `json:"version_id"`
	Detail    string `json:"detail,omitempty"`
	At        string `json:"at"`
}

// Observer receives progress events. It must not block.
type Observer func(Event)

// Request triggers one analysis.
type Request struct {
	VersionID       string `json:"version_id"`
	AnalyzerVersion string `json:"analyzer_version,omitempty"`
}

// Result is returned on success.
type Result struct {
	OK             bool           `json:"ok"`
	Version        version.Row    `json:"version"`
	AnalyzerResult map[string]any `json:"analyzer_result"`
	Rank           *rank.Result   `json:"rank"`
}

// VersionStore reads versions and projects.
type VersionStore interface {
	GetVersion(ctx context.Context, id string) (version.Version, error)
	GetProject(ctx context.Context, id string) (version.Project, error)
}

// Persister writes the version row.
type Persister interface {
	Persist(ctx context.Context, id string, row version.Row) (version.Row, error)
}

// Analyzer runs the upstream analysis.
type Analyzer interface {
	Configured() bool
	Analyze(ctx context.Context, req analyzer.Request) (map[string]any, error)
}

// ObjectStore holds audio and analysis arrays.
type ObjectStore interface {
	Configured() bool
	Upload(ctx context.Context, bucket, path string, body []byte, opts storage.UploadOptions) error
	SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// Settings are the per-process knobs of the pipeline.
type Settings struct {
	Lang           string
	Bucket         string
	BasePath       string
	SignedURLTTL   time.Duration
	DefaultProfile string
}

// Service runs analyses. It holds no per-request state.
type Service struct {
	log       *zap.SugaredLogger
	versions  VersionStore
	persister Persister
	analyzer  Analyzer
	objects   ObjectStore
	refs      reference.Loader
	ranker    rank.Ranker
	settings  Settings
}

func NewService(
	logger *zap.SugaredLogger,
	versions VersionStore,
	persister Persister,
	analyzerClient Analyzer,
	objects ObjectStore,
	refs reference.Loader,
	ranker rank.Ranker,
	settings Settings,
) *Service {
	if settings.DefaultProfile == "" {
		settings.DefaultProfile = reference.DefaultProfile
	}
	return &Service{
		log:       logger,
		versions:  versions,
		persister: persister,
		analyzer:  analyzerClient,
		objects:   objects,
		refs:      refs,
		ranker:    ranker,
		settings:  settings,
	}
}

// ProvideService wires the service from its production collaborators.
func ProvideService(
	logger *zap.SugaredLogger,
	cfg config.Config,
	versions *store.SQLStore,
	reconciler *store.Reconciler,
	analyzerClient *analyzer.Client,
	storageClient *storage.Client,
	refs reference.Loader,
	ranker rank.Ranker,
) *Service {
	return NewService(logger, versions, reconciler, analyzerClient, storageClient, refs, ranker, Settings{
		Lang:           cfg.AnalyzerLang,
		Bucket:         cfg.StorageBucket,
		BasePath:       cfg.StorageBasePath,
		SignedURLTTL:   cfg.SignedURLTTL,
		DefaultProfile: cfg.DefaultProfile,
	})
}

var Options = ProvideService

// Run executes the pipeline for one version. Steps run sequentially;
// only arrays uploads and the reference load may fail without failing
// the run.
func (s *Service) Run(ctx context.Context, req Request, observe Observer) (*Result, error) {
	emit := func(stage, detail string) {
		if observe != nil {
			observe(Event{Stage: stage, VersionID: req.VersionID, Detail: detail, At: time.Now().UTC().Format(time.RFC3339)})
		}
	}

	req.VersionID = strings.TrimSpace(req.VersionID)
	if req.VersionID == "" {
		return nil, apperr.New(apperr.Validation, "pipeline", "version_id is required")
	}
	emit(StageValidated, "")

	v, err := s.versions.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	if !version.ValidMixType(v.MixType) {
		return nil, apperr.New(apperr.Validation, "pipeline", fmt.Sprintf("unsupported mix_type %q", v.MixType))
	}
	emit(StageVersionLoaded, v.MixType)

	project, err := s.versions.GetProject(ctx, v.ProjectID)
	if err != nil {
		return nil, err
	}
	profileKey := reference.SanitizeKey(project.Genre)
	if profileKey == "" {
		profileKey = s.settings.DefaultProfile
	}
	emit(StageProfile, profileKey)

	if !s.analyzer.Configured() {
		return nil, apperr.New(apperr.Config, "pipeline", "analyzer url is not configured")
	}

	audioURL, err := s.audioURL(ctx, v)
	if err != nil {
		return nil, err
	}
	emit(StageAudioResolved, "")

	emit(StageAnalyzing, "")
	raw, err := s.analyzer.Analyze(ctx, analyzer.Request{
		VersionID:        v.ID,
		ProjectID:        v.ProjectID,
		AudioURL:         audioURL,
		ProfileKey:       profileKey,
		Mode:             v.MixType,
		Lang:             s.settings.Lang,
		UploadArraysBlob: true,
		StorageBucket:    s.settings.Bucket,
		StorageBasePath:  s.settings.BasePath,
		AnalyzerVersion:  req.AnalyzerVersion,
	})
	if err != nil {
		return nil, err
	}
	emit(StageAnalyzed, "")

	blob := canonical.Canonicalize(raw)
	emit(StageCanonicalized, "")

	arraysPath, arraysSize := s.storeArrays(ctx, v, raw, blob)
	if arraysPath != "" {
		emit(StageArraysStored, arraysPath)
	}

	projected := view.Project(blob)
	if arraysPath != "" && s.storeView(ctx, v.ID, arraysPath, projected) {
		emit(StageViewStored, view.ViewPath(arraysPath))
	}

	var ranked *rank.Result
	ref, err := s.refs.Load(ctx, profileKey)
	if err != nil {
		s.log.Warnw("Reference model unavailable, skipping rank",
			"versionId", v.ID,
			"profileKey", profileKey,
			"error", err,
		)
		emit(StageRankSkipped, profileKey)
	} else {
		emit(StageReference, profileKey)
		res := s.ranker.Rank(compare.Compare(blob, ref))
		ranked = &res
		emit(StageRanked, fmt.Sprintf("%.1f", res.Score))
	}

	row := version.BuildRow(version.Inputs{
		Raw:        raw,
		Blob:       blob,
		View:       projected,
		Rank:       ranked,
		Mix:        rank.BaseQuality(compare.ExtractTechnical(blob)),
		ArraysPath: arraysPath,
		ArraysSize: arraysSize,
	})

	saved, err := s.persister.Persist(ctx, v.ID, row)
	if err != nil {
		s.log.Errorw("Failed to persist analysis", "versionId", v.ID, "error", err)
		return nil, err
	}
	emit(StagePersisted, "")

	s.log.Infow("Analysis complete",
		"versionId", v.ID,
		"profileKey", profileKey,
		"ranked", ranked != nil,
	)
	return &Result{OK: true, Version: saved, AnalyzerResult: raw, Rank: ranked}, nil
}

// audioURL uses a direct http URL when the version has one and signs the
// storage path otherwise.
func (s *Service) audioURL(ctx context.Context, v version.Version) (string, error) {
	if strings.HasPrefix(v.AudioURL, "http://") || strings.HasPrefix(v.AudioURL, "https://") {
		return v.AudioURL, nil
	}

	p := v.AudioPath
	if p == "" {
		p = v.AudioURL
	}
	if p == "" {
		return "", apperr.New(apperr.Validation, "pipeline", "version has no audio")
	}
	if !s.objects.Configured() {
		return "", apperr.New(apperr.Config, "pipeline", "storage url is not configured")
	}

	u, err := s.objects.SignedURL(ctx, s.settings.Bucket, p, s.settings.SignedURLTTL)
	if err != nil {
		return "", apperr.Wrap(apperr.Storage, "pipeline.audio", err)
	}
	return u, nil
}

// storeArrays writes the canonical blob as arrays.json. The path reported
// by the analyzer wins over the computed one. Failures are logged and
// leave the path empty unless the analyzer already stored the file.
func (s *Service) storeArrays(ctx context.Context, v version.Version, raw map[string]any, blob canonical.Blob) (string, int64) {
	reported, _ := canonical.LookupString(raw, "arrays_blob_path")
	p := reported
	if p == "" {
		p = path.Join(s.settings.BasePath, v.ProjectID, v.ID, "arrays.json")
	}
	if !s.objects.Configured() {
		return reported, 0
	}

	body, err := json.Marshal(blob)
	if err != nil {
		s.log.Warnw("Failed to encode arrays", "versionId", v.ID, "error", err)
		return reported, 0
	}
	err = s.objects.Upload(ctx, s.settings.Bucket, p, body, storage.UploadOptions{ContentType: "application/json", Upsert: true})
	if err != nil {
		s.log.Warnw("Failed to upload arrays", "versionId", v.ID, "path", p, "error", err)
		return reported, 0
	}
	return p, int64(len(body))
}

func (s *Service) storeView(ctx context.Context, versionID, arraysPath string, v view.View) bool {
	if !s.objects.Configured() {
		return false
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.log.Warnw("Failed to encode arrays view", "versionId", versionID, "error", err)
		return false
	}
	p := view.ViewPath(arraysPath)
	err = s.objects.Upload(ctx, s.settings.Bucket, p, body, storage.UploadOptions{ContentType: "application/json", Upsert: true})
	if err != nil {
		s.log.Warnw("Failed to upload arrays view", "versionId", versionID, "path", p, "error", err)
		return false
	}
	return true
}
