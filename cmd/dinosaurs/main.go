package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/factory"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	modelDir := flag.String("models", "", "directory of model files; the built-in schema is used when empty")
	flag.Parse()

	config := objgraph.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = factory.LoadConfigFile(*configPath); err != nil {
			panic(fmt.Errorf("failed to load config: %w", err))
		}
	}
	if *modelDir != "" {
		config.Model.Directory = *modelDir
	}

	logger, err := factory.NewLogger(config.Logging)
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(context.Background(), config, os.Stdout); err != nil {
		zap.S().Fatalw("demo failed", "error", err)
	}
}

func run(ctx context.Context, config *objgraph.Config, out io.Writer) error {
	var entities []*objgraph.EntityType
	if config.Model.Directory == "" && len(config.Model.Files) == 0 {
		entities = dinosaurSchema()
	}

	oc, err := factory.NewObjectContext(ctx, config, nil, entities...)
	if err != nil {
		return err
	}
	defer oc.Close()

	fmt.Fprintln(out, "🦕🌵")
	fmt.Fprintln(out)

	rex, err := oc.Insert("Dinosaur", map[string]objgraph.Value{
		"name":        objgraph.Text("Rex"),
		"species":     objgraph.Text("T-Rex"),
		"weight":      objgraph.Float(7000),
		"likesCactus": objgraph.Bool(false),
	})
	if err != nil {
		return err
	}
	var torches []objgraph.ObjectID
	for _, brightness := range []int64{100, 75} {
		torch, err := oc.Insert("Torch", map[string]objgraph.Value{"brightness": objgraph.Integer(brightness)})
		if err != nil {
			return err
		}
		torches = append(torches, torch)
	}
	if err := oc.SetRelationship(rex, "torches", torches...); err != nil {
		return err
	}

	if _, err := oc.Commit(ctx); err != nil {
		fmt.Fprintf(out, "Failed to save: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "All model objects saved successfully!")

	return printDinosaurs(oc, out)
}

func printDinosaurs(oc objgraph.ObjectContext, out io.Writer) error {
	rs, err := oc.Query(&objgraph.FetchRequest{
		EntityName: "Dinosaur",
		SortKeys:   []objgraph.SortKey{objgraph.Desc("weight")},
	})
	if err != nil {
		return err
	}
	ids, err := rs.IDs()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Found %d dinosaurs in context:\n", len(ids))
	for _, id := range ids {
		display, err := oc.GetAttribute(id, "displayName")
		if err != nil {
			return err
		}
		w, err := oc.GetAttribute(id, "weight")
		if err != nil {
			return err
		}
		weight, _ := w.AsFloat()
		torches, err := oc.GetRelationship(id, "torches")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  • %s - %.1f kg - %d torch(es)\n", display, weight, len(torches))
	}
	return nil
}

// dinosaurSchema describes the same model as models/dinosaurs.json in code.
func dinosaurSchema() []*objgraph.EntityType {
	dinosaur := &objgraph.EntityType{
		Name: "Dinosaur",
		Attributes: []objgraph.AttributeDef{
			{Name: "name", Kind: objgraph.KindText, Required: true},
			{Name: "species", Kind: objgraph.KindText, Required: true},
			{Name: "weight", Kind: objgraph.KindFloat},
			{Name: "likesCactus", Kind: objgraph.KindBoolean, Required: true, Default: objgraph.Bool(false)},
		},
		Derived: []objgraph.DerivedAttributeDef{
			objgraph.ConcatAttribute("displayName",
				objgraph.AttrRef("name"), objgraph.Literal(" the "), objgraph.AttrRef("species")),
		},
	}
	torch := &objgraph.EntityType{
		Name:       "Torch",
		Attributes: []objgraph.AttributeDef{{Name: "brightness", Kind: objgraph.KindInteger}},
	}
	objgraph.LinkInverse(
		dinosaur, objgraph.RelationshipDef{Name: "torches", MaxCount: 2, Ordered: true, DeleteRule: objgraph.DeleteRuleCascade},
		torch, objgraph.RelationshipDef{Name: "owner", MaxCount: 1, DeleteRule: objgraph.DeleteRuleNullify},
	)
	return []*objgraph.EntityType{dinosaur, torch}
}
