package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/drakos74/gaussmix/gmm"
	gmath "github.com/drakos74/gaussmix/internal/math"
	"github.com/drakos74/gaussmix/internal/stats"
	"github.com/drakos74/gaussmix/internal/storage"
	jsonstore "github.com/drakos74/gaussmix/internal/storage/file/json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Config defines the configuration for a fit run.
type Config struct {
	Components int     `json:"components"`
	Covariance string  `json:"covariance"`
	Init       string  `json:"init"`
	Tol        float64 `json:"tol"`
	MaxIter    int     `json:"max_iter"`
	Seed       uint64  `json:"seed"`
	// Data points to a json file holding an array of feature vectors.
	// When empty a synthetic demo data set is generated instead.
	Data string `json:"data"`
}

func loadConfig(path string) (Config, error) {
	config := Config{
		Components: 2,
		Covariance: string(gmm.Full),
		Init:       "kmeans",
		Tol:        1e-4,
		MaxIter:    100,
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("could not read config '%s': %w", path, err)
	}
	if err := json.Unmarshal(b, &config); err != nil {
		return config, fmt.Errorf("could not parse config '%s': %w", path, err)
	}
	return config, nil
}

func loadData(config Config, rng *rand.Rand) (*mat.Dense, error) {
	if config.Data == "" {
		log.Info().Msg("no data file given, generating demo blobs")
		return gmath.Blobs(10000,
			[]float64{0.4, 0.3, 0.3},
			[][]float64{{-5, 0}, {5, 5}, {5, -5}},
			[]float64{1, 1.5, 0.5},
			rng,
		), nil
	}
	b, err := ioutil.ReadFile(config.Data)
	if err != nil {
		return nil, fmt.Errorf("could not read data '%s': %w", config.Data, err)
	}
	var rows [][]float64
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("could not parse data '%s': %w", config.Data, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty data set in '%s'", config.Data)
	}
	d := len(rows[0])
	x := mat.NewDense(len(rows), d, nil)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("row %d has %d features instead of %d", i, len(row), d)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

func initializer(config Config) gmm.Initializer {
	kind := gmm.CovKind(config.Covariance)
	switch config.Init {
	case "random":
		return gmm.RandomPartition{Kind: kind}
	default:
		return gmm.KMeansSeeded{Kind: kind}
	}
}

func summarize(x *mat.Dense) {
	n, d := x.Dims()
	collector := stats.NewCollector(d)
	for i := 0; i < n; i++ {
		collector.Push(x.RawRowView(i)...)
	}
	for j := 0; j < d; j++ {
		s := collector.Stats(j)
		log.Info().
			Int("feature", j).
			Str("mean", gmath.Format(s.Avg())).
			Str("stdev", gmath.Format(s.StDev())).
			Str("min", gmath.Format(s.Min())).
			Str("max", gmath.Format(s.Max())).
			Msg("data summary")
	}
}

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := loadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Msg("falling back to default config")
	}

	rng := rand.New(rand.NewSource(config.Seed))
	x, err := loadData(config, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load data")
	}
	n, d := x.Dims()
	log.Info().Int("samples", n).Int("features", d).Int("components", config.Components).Msg("loaded data")
	summarize(x)

	initial, err := initializer(config).Initialize(x, config.Components, rng)
	if err != nil {
		log.Fatal().Err(err).Msg("could not initialize model")
	}

	fitter, err := gmm.NewFitter(config.Tol, config.MaxIter)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid fitter configuration")
	}
	fitted, report, err := fitter.WithSeed(config.Seed).Fit(x, initial)
	if err != nil {
		log.Fatal().Err(err).Msg("fit failed")
	}

	id := uuid.New().String()
	store, err := jsonstore.BlobShard(storage.ModelsDir)("gmm")
	if err != nil {
		log.Fatal().Err(err).Msg("could not open model store")
	}
	key := storage.Key{Name: id, Label: "params"}
	if err := store.Store(key, fitted.Params()); err != nil {
		log.Fatal().Err(err).Str("model", id).Msg("could not store model")
	}

	log.Info().
		Str("model", id).
		Int("iterations", report.Iterations).
		Str("state", report.State.String()).
		Str("log-likelihood", gmath.Format(report.LogLikelihood)).
		Msg("stored fitted model")
}
