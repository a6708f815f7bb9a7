package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/factory"
)

type options struct {
	configPath   string
	modelDir     string
	dinosaurs    int
	torchesEach  int
	chunkSize    int
	queries      int
	seed         int64
	seedProvided bool
}

type summary struct {
	inserted  int
	commits   int
	commitDur time.Duration
	queryDur  time.Duration
	matched   int
}

func main() {
	log.SetFlags(0)

	opts := parseFlags()
	config := objgraph.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if config, err = factory.LoadConfigFile(opts.configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	config.Model.Directory = opts.modelDir

	if !opts.seedProvided {
		log.Printf("[info] Using random seed %d", opts.seed)
	}

	ctx := context.Background()
	oc, err := factory.NewObjectContext(ctx, config, nil)
	if err != nil {
		log.Fatalf("failed to create object context: %v", err)
	}
	defer oc.Close()

	s, err := runBenchmark(ctx, oc, opts, rand.New(rand.NewSource(opts.seed)))
	if err != nil {
		log.Fatalf("benchmark failed: %v", err)
	}

	log.Printf("[done] inserted %d objects in %d commits (%s, %.1f objects/s)",
		s.inserted, s.commits, s.commitDur, float64(s.inserted)/s.commitDur.Seconds())
	log.Printf("[done] ran %d queries in %s (avg %s, %d matches)",
		opts.queries, s.queryDur, s.queryDur/time.Duration(max(opts.queries, 1)), s.matched)
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to a JSON config file (sink selection)")
	flag.StringVar(&opts.modelDir, "models", "models", "directory containing the Dinosaur/Torch model")
	flag.IntVar(&opts.dinosaurs, "dinosaurs", 10000, "number of dinosaurs to insert")
	flag.IntVar(&opts.torchesEach, "torches", 2, "torches per dinosaur")
	flag.IntVar(&opts.chunkSize, "chunk-size", 1000, "dinosaurs per commit")
	flag.IntVar(&opts.queries, "queries", 100, "number of sorted range queries to run")
	flag.Int64Var(&opts.seed, "seed", 0, "random seed (defaults to current time)")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seedProvided = true
		}
	})
	if !opts.seedProvided {
		opts.seed = time.Now().UnixNano()
	}
	if opts.chunkSize <= 0 {
		opts.chunkSize = opts.dinosaurs
	}
	return opts
}

var species = []string{"T-Rex", "Triceratops", "Stegosaurus", "Velociraptor", "Brachiosaurus"}

func runBenchmark(ctx context.Context, oc objgraph.ObjectContext, opts options, random *rand.Rand) (summary, error) {
	var s summary
	for i := 0; i < opts.dinosaurs; i++ {
		dino, err := oc.Insert("Dinosaur", map[string]objgraph.Value{
			"name":        objgraph.Text(fmt.Sprintf("dino-%06d", i)),
			"species":     objgraph.Text(species[random.Intn(len(species))]),
			"weight":      objgraph.Float(random.Float64() * 10000),
			"likesCactus": objgraph.Bool(random.Intn(2) == 0),
		})
		if err != nil {
			return s, err
		}
		torches := make([]objgraph.ObjectID, 0, opts.torchesEach)
		for range opts.torchesEach {
			torch, err := oc.Insert("Torch", map[string]objgraph.Value{"brightness": objgraph.Integer(int64(random.Intn(101)))})
			if err != nil {
				return s, err
			}
			torches = append(torches, torch)
		}
		if err := oc.SetRelationship(dino, "torches", torches...); err != nil {
			return s, err
		}
		s.inserted += 1 + len(torches)

		if (i+1)%opts.chunkSize == 0 || i == opts.dinosaurs-1 {
			start := time.Now()
			changes, err := oc.Commit(ctx)
			if err != nil {
				return s, fmt.Errorf("commit %d: %w", s.commits+1, err)
			}
			s.commitDur += time.Since(start)
			s.commits++
			log.Printf("[info] commit #%d stored %d objects", changes.Sequence, len(changes.Inserted))
		}
	}

	for range opts.queries {
		low := random.Float64() * 9000
		start := time.Now()
		rs, err := oc.Query(&objgraph.FetchRequest{
			EntityName: "Dinosaur",
			Condition: objgraph.And(
				objgraph.Compare("weight", objgraph.FilterGreaterEq, objgraph.Float(low)),
				objgraph.Compare("weight", objgraph.FilterLessThan, objgraph.Float(low+1000)),
			),
			SortKeys: []objgraph.SortKey{objgraph.Desc("weight")},
			Limit:    50,
		})
		if err != nil {
			return s, err
		}
		ids, err := rs.IDs()
		if err != nil {
			return s, err
		}
		s.queryDur += time.Since(start)
		s.matched += len(ids)
	}
	return s, nil
}
