package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"devtester/internal/loader"
)

// listCmd prints every implementation path this binary's linked test
// packages registered.
type listCmd struct {
	pattern string
}

func (*listCmd) Name() string { return "list" }
func (*listCmd) Synopsis() string { return "list registered test implementation paths" }
func (*listCmd) Usage() string {
	return `list [-pattern=<glob>]:
	Prints every registered test implementation path, optionally filtered
	by a glob against its leaf component.
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.pattern, "pattern", "", "glob to filter the leaf component of each path")
}

func (l *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _...interface{}) subcommands.ExitStatus {
	reg := loader.NewRegistry()
	RegisterTestCases(reg)

	paths := reg.Paths()
	if l.pattern != "" {
		paths = loader.Matching(reg, l.pattern)
	}
	for _, p := range paths {
		if loader.IsInternal(p) {
			continue
		}
		fmt.Println(p)
	}
	return subcommands.ExitSuccess
}
