package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/drakos74/gaussmix/gmm"
	"github.com/drakos74/gaussmix/internal/storage"
	jsonstore "github.com/drakos74/gaussmix/internal/storage/file/json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// sample draws points from a previously fitted and stored model,
// writing them as json to stdout.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: sample <model-id> <n> [seed]")
		os.Exit(1)
	}
	id := os.Args[1]
	n, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatal().Err(err).Str("arg", os.Args[2]).Msg("invalid sample size")
	}
	var seed uint64
	if len(os.Args) > 3 {
		seed, err = strconv.ParseUint(os.Args[3], 10, 64)
		if err != nil {
			log.Fatal().Err(err).Str("arg", os.Args[3]).Msg("invalid seed")
		}
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

	x, err := model.Sample(n, rand.New(rand.NewSource(seed)))
	if err != nil {
		log.Fatal().Err(err).Msg("could not sample")
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, model.Features())
		copy(row, x.RawRowView(i))
		rows[i] = row
	}
	out, err := json.Marshal(rows)
	if err != nil {
		log.Fatal().Err(err).Msg("could not marshal samples")
	}
	fmt.Println(string(out))
}
