// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/beevik/asm65/host"
	"github.com/beevik/term"
)

var (
	assemble string
	linkOut  string
	verbose  bool
)

func init() {
	flag.StringVar(&assemble, "a", "", "assemble file")
	flag.StringVar(&linkOut, "l", "", "link object files to output image")
	flag.BoolVar(&verbose, "v", false, "verbose assembly and link output")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: asm65 [script] ..\n       asm65 -l <output> <object> ..\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	h := host.New()
	h.SetVerbose(verbose)

	// Do command-line assemble if requested.
	if assemble != "" {
		if err := h.AssembleFile(assemble); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Do command-line link if requested.
	if linkOut != "" {
		if flag.NArg() == 0 {
			exitOnError(fmt.Errorf("no object files to link"))
		}
		if err := h.Link(linkOut, flag.Args()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Run commands contained in command-line files.
	for _, filename := range flag.Args() {
		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		h.RunCommands(file, os.Stdout, false)
		file.Close()
	}

	// Run commands interactively when attached to a terminal.
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	h.RunCommands(os.Stdin, os.Stdout, interactive)
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
