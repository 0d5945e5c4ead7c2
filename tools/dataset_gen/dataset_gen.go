package main

// dataset_gen.go generates deterministic transaction datasets for
// standalone load-testing of a hotregion-agent: each output line is a
// comma-separated tuple of region ids representing one transaction, drawn
// from either a uniform or a Zipf distribution over a fixed region-count
// universe so a "zipf" run produces a realistic hot-region skew.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -regions 100000 -tuple 3 -dist=zipf -seed=42 -out txns.csv
//
// Flags:
//
//	-n        number of transactions to generate (default 1e6)
//	-regions  size of the region-id universe to draw from (default 100000)
//	-tuple    number of region ids per transaction (default 3)
//	-dist     distribution: "uniform" or "zipf" (default uniform)
//	-zipfs    Zipf s parameter (>1)  (default 1.2)
//	-zipfv    Zipf v parameter (>=1) (default 1.0)
//	-seed     RNG seed (default current time)
//	-out      output file (default stdout)
//
// © 2025 hotregion authors. MIT License.

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of transactions to generate")
		regions = flag.Uint64("regions", 100_000, "size of the region-id universe")
		tuple   = flag.Int("tuple", 3, "region ids per transaction")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if *tuple <= 0 {
		fmt.Fprintln(os.Stderr, "tuple must be > 0")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = func() uint64 { return rnd.Uint64() % *regions }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, *regions-1)
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	ids := make([]string, *tuple)
	for i := 0; i < *n; i++ {
		for j := range ids {
			ids[j] = strconv.FormatUint(gen(), 10)
		}
		fmt.Fprintln(w, strings.Join(ids, ","))
	}
}
