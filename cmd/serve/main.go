package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"strconv"

	"github.com/drakos74/gaussmix/gmm"
	"github.com/drakos74/gaussmix/internal/server"
	"github.com/drakos74/gaussmix/internal/storage"
	jsonstore "github.com/drakos74/gaussmix/internal/storage/file/json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

const defaultPort = 6090

type scoreRequest struct {
	Points [][]float64 `json:"points"`
}

type scoreResponse struct {
	LogLikelihoods []float64 `json:"log_likelihoods"`
	Score          float64   `json:"score"`
}

type sampleRequest struct {
	N    int    `json:"n"`
	Seed uint64 `json:"seed"`
}

func toMatrix(rows [][]float64, features int) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no points given")
	}
	x := mat.NewDense(len(rows), features, nil)
	for i, row := range rows {
		if len(row) != features {
			return nil, fmt.Errorf("row %d has %d features instead of %d", i, len(row), features)
		}
		x.SetRow(i, row)
	}
	return x, nil
}

func score(model *gmm.Model) server.Handler {
	return func(r *http.Request) ([]byte, int, error) {
		defer r.Body.Close()
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		var request scoreRequest
		if err := json.Unmarshal(b, &request); err != nil {
			return []byte(err.Error()), http.StatusBadRequest, nil
		}
		x, err := toMatrix(request.Points, model.Features())
		if err != nil {
			return []byte(err.Error()), http.StatusBadRequest, nil
		}
		ll, err := model.LogLikelihoods(x)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		sum := 0.0
		for _, l := range ll {
			sum += l
		}
		out, err := json.Marshal(scoreResponse{
			LogLikelihoods: ll,
			Score:          sum / float64(len(ll)),
		})
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return out, http.StatusOK, nil
	}
}

func sample(model *gmm.Model) server.Handler {
	return func(r *http.Request) ([]byte, int, error) {
		defer r.Body.Close()
		b, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		var request sampleRequest
		if err := json.Unmarshal(b, &request); err != nil {
			return []byte(err.Error()), http.StatusBadRequest, nil
		}
		x, err := model.Sample(request.N, rand.New(rand.NewSource(request.Seed)))
		if err != nil {
			return []byte(err.Error()), http.StatusBadRequest, nil
		}
		rows := make([][]float64, request.N)
		for i := 0; i < request.N; i++ {
			row := make([]float64, model.Features())
			copy(row, x.RawRowView(i))
			rows[i] = row
		}
		out, err := json.Marshal(rows)
		if err != nil {
			return nil, http.StatusInternalServerError, err
		}
		return out, http.StatusOK, nil
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: serve <model-id> [port]")
		os.Exit(1)
	}
	id := os.Args[1]
	port := defaultPort
	if len(os.Args) > 2 {
		p, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal().Err(err).Str("arg", os.Args[2]).Msg("invalid port")
		}
		port = p
	}

	store, err := jsonstore.BlobShard(storage.ModelsDir)("gmm")
	if err != nil {
		log.Fatal().Err(err).Msg("could not open model store")
	}
	var params gmm.Params
	if err := store.Load(storage.Key{Name: id, Label: "params"}, &params); err != nil {
		log.Fatal().Err(err).Str("model", id).Msg("could not load model")
	}
	model, err := gmm.FromParams(params)
	if err != nil {
		log.Fatal().Err(err).Str("model", id).Msg("could not rebuild model")
	}
	log.Info().
		Str("model", id).
		Int("components", model.Components()).
		Int("features", model.Features()).
		Msg("serving model")

	srv := server.NewServer("gaussmix", port).
		Add(server.Route{
			Action: server.Data,
			Path:   "score",
			Method: server.POST,
			Exec:   score(model),
		}).
		Add(server.Route{
			Action: server.Data,
			Path:   "sample",
			Method: server.POST,
			Exec:   sample(model),
		}).
		AddHandler("/metrics", promhttp.Handler())

	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
