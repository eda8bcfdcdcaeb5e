// Copyright The Memtrace Authors
// SPDX-License-Identifier: Apache-2.0

// memtrace-check sanity-checks a saved trace document: field presence per
// event kind, closed tag sets and, for traces recorded with deduplication
// off, scope entry/exit pairing.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"github.com/memtrace/memtrace/tracefile"
)

// Help strings for command line arguments
var (
	strictHelp  = "Also check scope entry/exit pairing (only valid for traces recorded with dedup off)."
	verboseHelp = "Enable verbose logging."
)

type arguments struct {
	strict  bool
	verbose bool

	fs *flag.FlagSet
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("memtrace-check", flag.ExitOnError)

	fs.BoolVar(&args.strict, "strict", false, strictHelp)
	fs.BoolVar(&args.verbose, "v", false, verboseHelp)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: memtrace-check [flags] <trace-file>\n")
		fs.PrintDefaults()
	}

	args.fs = fs

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MEMTRACE"),
	)
}

func main() {
	err := mainWithError()
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func mainWithError() error {
	args, err := parseArgs()
	if err != nil {
		return fmt.Errorf("failed to parse arguments: %v", err)
	}
	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if args.fs.NArg() != 1 {
		args.fs.Usage()
		return errors.New("expected exactly one trace file")
	}

	path := args.fs.Arg(0)
	doc, err := tracefile.Load(path)
	if err != nil {
		return err
	}
	log.Debugf("loaded %d events from %s", len(doc.Events), path)

	issues := doc.Validate(args.strict)
	for _, issue := range issues {
		log.Warnf("%s: %s", path, issue)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d issues found in %d events", len(issues), len(doc.Events))
	}

	fmt.Printf("%s: %d events, no issues found\n", path, len(doc.Events))
	return nil
}
