package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"chess-worker/engine"

	"github.com/dylhunn/dragontoothmg"
	"github.com/pkg/profile"
)

func main() {
	fen := flag.String("fen", dragontoothmg.Startpos, "FEN string (defaults to initial position)")
	depth := flag.Int("depth", 0, "Perft depth (required)")
	divide := flag.Bool("divide", false, "Print per-move node counts at root")
	repeat := flag.Int("repeat", 1, "Repeat perft N times and report aggregate (for steadier timings)")
	label := flag.String("label", "", "Optional label prefix for one-line output")
	cpuProf := flag.String("cpuprofile", "", "Write a CPU profile into this directory")
	flag.Parse()

	if *depth <= 0 {
		fmt.Fprintln(os.Stderr, "-depth must be > 0")
		os.Exit(2)
	}

	board, err := engine.LoadPosition(*fen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "LoadPosition error: %v\n", err)
		os.Exit(2)
	}

	if *divide {
		var sum uint64
		for _, entry := range engine.Divide(&board, *depth) {
			fmt.Printf("%s: %d\n", entry.Move, entry.Nodes)
			sum += entry.Nodes
		}
		fmt.Printf("Total: %d\n", sum)
		return
	}

	if *cpuProf != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*cpuProf), profile.Quiet).Stop()
	}

	var totalNodes uint64
	start := time.Now()
	for i := 0; i < *repeat; i++ {
		totalNodes += engine.Perft(&board, *depth)
	}
	elapsed := time.Since(start)
	secs := elapsed.Seconds()
	if secs == 0 {
		secs = 1e-9
	}

	prefix := ""
	if *label != "" {
		prefix = *label + " "
	}
	fmt.Printf("%sdepth=%d nodes=%d time=%v nps=%.0f\n",
		prefix, *depth, totalNodes/uint64(*repeat), elapsed, float64(totalNodes)/secs)
}
