package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"chess-worker/config"
	"chess-worker/engine"
	"chess-worker/worker"

	"github.com/dylhunn/dragontoothmg"
	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// --- Flags ---
	depthFlag := flag.Int("depth", 6, "maximum search depth in plies")
	minDepthFlag := flag.Int("mindepth", 1, "minimum search depth in plies")
	timeFlag := flag.Duration("time", 5*time.Second, "time limit per search")
	repeatFlag := flag.Int("repeat", 1, "number of searches to run")
	fenFlag := flag.String("fen", dragontoothmg.Startpos, "FEN to search")
	beamFlag := flag.Int("beam", 0, "beam width (0 = full width)")
	quiescenceFlag := flag.Int("qdepth", 4, "quiescence depth (0 disables quiescence)")
	aspirationFlag := flag.Int("aspiration", 35, "aspiration window in centipawns (0 disables)")
	configPath := flag.String("config", "", "path to a JSON config file")
	cpuProfile := flag.String("cpuprofile", "", "write a CPU profile into this directory")
	verbose := flag.Bool("v", false, "log every iteration")
	flag.Parse()

	if *depthFlag <= 0 {
		log.Fatal().Int("depth", *depthFlag).Msg("depth must be positive")
	}
	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	opts := cfg.EngineOptions()
	opts.Logger = log.Logger

	if *cpuProfile != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProfile)).Stop()
	}

	router := worker.NewRouter(engine.NewController(opts), log.Logger)
	fmt.Printf("searchbench: fen=%q depth=%d time=%v repeat=%d\n", *fenFlag, *depthFlag, *timeFlag, *repeatFlag)

	startAll := time.Now()
	for i := 0; i < *repeatFlag; i++ {
		req := engine.SearchRequest{
			RequestID:          uuid.NewString(),
			FEN:                *fenFlag,
			MinDepth:           *minDepthFlag,
			MaxDepth:           *depthFlag,
			TimeLimit:          *timeFlag,
			UseQuiescence:      *quiescenceFlag > 0,
			QuiescenceDepth:    *quiescenceFlag,
			BeamWidth:          *beamFlag,
			UseAspiration:      *aspirationFlag > 0,
			AspirationWindowCp: *aspirationFlag,
		}
		for outcome := range router.Submit(req, nil) {
			if outcome.Err != nil {
				log.Fatal().Err(outcome.Err).Msg("search failed")
			}
			res := outcome.Result
			fmt.Printf("iteration %d: bestmove %s source=%s depth=%d complete=%v nodes=%d slices=%d time=%v\n",
				i+1, res.UCI, res.Source, res.DepthReached, res.Complete, res.Nodes, res.Slices, res.Elapsed)
		}
	}
	fmt.Printf("total time: %v\n", time.Since(startAll))
}
