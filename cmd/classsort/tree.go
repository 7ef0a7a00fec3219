package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/classsort/internal/logging"
	"github.com/skdltmxn/classsort/internal/ordinal"
	"github.com/skdltmxn/classsort/internal/snapshot"
)

var (
	groupStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	tableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B"))
	slotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	enumStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).MarginRight(1)
)

var treeCmd = &cobra.Command{
	Use:   "tree <project-db>",
	Short: "Show the class tree",
	Long: `Show the class tree built by the last sort. Functions carrying slot
markers are shown as "[slot/entries] name".`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func runTree(cmd *cobra.Command, args []string) error {
	alpha, err := cfg.Alphabet()
	if err != nil {
		return err
	}
	enc, err := ordinal.New(alpha)
	if err != nil {
		return err
	}

	s, err := openStore(args[0])
	if err != nil {
		return err
	}
	defer logging.DeferClose(logger, s, "close project")

	snap, err := s.Export(cmd.Context())
	if err != nil {
		return err
	}

	for _, g := range snap.Groups {
		if g.Name == cfg.RootGroup {
			fmt.Fprintln(output, renderTree(g, functionNames(snap), enc))
			return nil
		}
	}
	fmt.Fprintf(output, "No %q group; run sort first.\n", cfg.RootGroup)
	return nil
}

func functionNames(snap *snapshot.Snapshot) map[snapshot.Addr]string {
	names := make(map[snapshot.Addr]string, len(snap.Functions))
	for _, fn := range snap.Functions {
		names[fn.Address] = fn.Name
	}
	return names
}

func renderTree(root snapshot.Group, names map[snapshot.Addr]string, enc *ordinal.Encoder) *tree.Tree {
	return buildTree(root, names, enc).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumStyle)
}

func buildTree(g snapshot.Group, names map[snapshot.Addr]string, enc *ordinal.Encoder) *tree.Tree {
	t := tree.Root(groupStyle.Render(g.Name))
	for _, c := range g.Children {
		t.Child(buildTree(c, names, enc))
	}
	for _, a := range g.DataVars {
		t.Child(tableStyle.Render(fmt.Sprintf("vftable @ %#x", uint64(a))))
	}
	for _, a := range g.Functions {
		t.Child(slotStyle.Render(fmt.Sprintf("%s @ %#x", enc.Label(names[a]), uint64(a))))
	}
	return t
}
