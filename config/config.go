package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `default:"8080"`
	LogLevel string `default:"debug"`

	DatabaseDriver string `default:"postgres"`
	DatabaseURL    string

	AnalyzerURL     string
	AnalyzerSecret  string
	AnalyzerTimeout time.Duration `default:"5m"`
	AnalyzerLang    string        `default:"it"`

	StorageURL        string
	StorageServiceKey string
	StorageBucket     string        `default:"tracks"`
	StorageBasePath   string        `default:"analyzer"`
	SignedURLTTL      time.Duration `default:"30m"`

	ReferenceSource     string `default:"file"`
	ReferenceDir        string `default:"reference_models"`
	FirestoreProject    string
	FirestoreCollection string `default:"reference_models"`

	JWTSecret      string
	DefaultProfile string `default:"minimal_deep_tech"`

	RankPrecisionThreshold float64 `default:"0.95"`
	RankBonusCap           float64 `default:"3"`
	RankPenaltyCap         float64 `default:"45"`
	RankClosenessExponent  float64 `default:"2"`
}

func ProvideConfig() Config {
	var cfg Config
	err := envconfig.Process("cochlea", &cfg)
	if err != nil {
		log.Fatal(err.Error())
	}
	return cfg
}

var Options = ProvideConfig
