package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/factory"
)

func runValidate(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("validate", flag.ContinueOnError)
	flags.SetOutput(out)
	flags.Usage = func() {
		fmt.Fprintln(out, "Usage: objgraph-tools validate [options] <dir>")
		fmt.Fprintln(out, "")
		fmt.Fprintln(out, "Options:")
		flags.PrintDefaults()
	}
	var files multiFlag
	flags.Var(&files, "file", "additional model file to load (repeatable)")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() > 1 || (flags.NArg() == 0 && len(files) == 0) {
		flags.Usage()
		return fmt.Errorf("expected one model directory")
	}

	cfg := objgraph.ModelConfig{Directory: flags.Arg(0), Files: files}
	registry, err := factory.NewRegistry(cfg, nil)
	if err != nil {
		return err
	}

	for _, name := range registry.ListEntities() {
		entity, err := registry.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d attribute(s), %d relationship(s), %d derived\n",
			name, len(entity.Attributes), len(entity.Relationships), len(entity.Derived))
	}
	fmt.Fprintln(out, "Models are valid.")
	return nil
}

type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
