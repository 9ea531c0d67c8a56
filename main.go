package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: synthmap [flags] input...

Converts rhythm-game charts into target maps. An input is a chart file
(.ats, .sm, .mid, .txt, .csv or an existing .json map), a directory walked
for such files, a .zip archive, an http(s) URL or mirror:<id>.

`)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath, "YAML config file")
		out        = flag.String("out", "", "output directory")
		merge      = flag.Bool("merge", false, "merge every note type into one rail before splitting")
		snap       = flag.String("snap", "", "target map whose rails singles are snapped onto")
		bpm        = flag.Float64("bpm", 0, "tempo for onset sources")
		offset     = flag.Float64("offset", 0, "seconds subtracted from onset timestamps")
		rounding   = flag.Int("rounding", 0, "snap onsets to 1/N beat, 0 for none")
		lanes      = flag.String("lanes", "", "comma separated note types placed per onset (right,left,single,both)")
		choreo     = flag.String("choreo", "", "hand-tracking choreography name")
		difficulty = flag.String("difficulty", "", "only convert step charts of this difficulty")
		lenient    = flag.Bool("lenient", false, "skip hold tails without a hold head instead of failing")
		workers    = flag.Int("workers", 0, "parallel conversions")
		force      = flag.Bool("force", false, "convert sources even when unchanged")
		cache      = flag.String("cache", "", "conversion cache database, \"off\" to disable")
		failures   = flag.Bool("failures", false, "list recorded failures and exit")
	)
	flag.Usage = usage
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.OutDir = *out
		case "merge":
			cfg.Rails.Merge = *merge
		case "snap":
			cfg.Rails.SnapGuide = *snap
		case "bpm":
			cfg.Onsets.BPM = *bpm
		case "offset":
			cfg.Onsets.Offset = *offset
		case "rounding":
			cfg.Onsets.Rounding = *rounding
		case "lanes":
			cfg.Onsets.Lanes = strings.Split(*lanes, ",")
		case "choreo":
			cfg.AudioTrip.Choreography = *choreo
		case "difficulty":
			cfg.StepMania.Difficulty = *difficulty
		case "lenient":
			strict := !*lenient
			cfg.StepMania.StrictHolds = &strict
		case "workers":
			cfg.Workers = *workers
		case "force":
			cfg.Force = *force
		case "cache":
			cfg.Cache = *cache
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var store *Store
	if cfg.Cache != "off" {
		store, err = OpenStore(cfg.Cache)
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()
	}

	if *failures {
		if store == nil {
			log.Fatal("no cache database")
		}
		list, err := store.Failures()
		if err != nil {
			log.Fatal(err)
		}
		for _, f := range list {
			fmt.Printf("%s\t%s\t%s\n", f.Kind, f.Source, f.Reason)
		}
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	conv, err := NewConverter(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum := NewBatch(cfg, conv, store, NewFetcher(cfg)).Run(ctx, flag.Args())
	if err := sum.Err(); err != nil {
		log.Print(err)
		if store != nil {
			store.Close()
		}
		os.Exit(1)
	}
}
