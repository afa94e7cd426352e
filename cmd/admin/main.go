package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"voxelmind.ai/internal/persistence/snapshot"
)

type globalFlags struct {
	dataDir string
	worldID string
}

func (g *globalFlags) worldDir() string {
	return filepath.Join(g.dataDir, "worlds", g.worldID)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "admin",
		Short:        "Inspect worlds, snapshots and the navigation index",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.dataDir, "data", "./data", "runtime data directory")
	root.PersistentFlags().StringVar(&g.worldID, "world", "world_1", "world id")

	root.AddCommand(
		worldsCmd(g),
		snapshotCmd(g),
		incidentsCmd(g),
		indexCmd(g),
		stateCmd(),
		requestSnapshotCmd(),
	)
	return root
}

func worldsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "List worlds in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(filepath.Join(g.dataDir, "worlds"))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					fmt.Fprintln(cmd.OutOrStdout(), e.Name())
				}
			}
			return nil
		},
	}
}

func snapshotCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with snapshot files",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshot files, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := snapshotFiles(g.worldDir())
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", f.tick, f.path)
			}
			return nil
		},
	}

	var showMobs bool
	inspect := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Summarize a snapshot (defaults to the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				files, err := snapshotFiles(g.worldDir())
				if err != nil {
					return err
				}
				if len(files) == 0 {
					return fmt.Errorf("no snapshots in %s", g.worldDir())
				}
				path = files[len(files)-1].path
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summarize(snap, showMobs))
		},
	}
	inspect.Flags().BoolVar(&showMobs, "mobs", false, "include every mob record")

	cmd.AddCommand(list, inspect)
	return cmd
}

type snapshotSummary struct {
	WorldID     string           `json:"world_id"`
	Tick        uint64           `json:"tick"`
	Seed        int64            `json:"seed"`
	TickRateHz  int              `json:"tick_rate_hz"`
	DayTicks    int              `json:"day_ticks"`
	Archetypes  map[string]int   `json:"archetypes"`
	Memories    int              `json:"memories"`
	MemoryKinds map[string]int   `json:"memory_kinds"`
	Mobs        []snapshot.MobV1 `json:"mobs,omitempty"`
}

func summarize(snap snapshot.SnapshotV1, withMobs bool) snapshotSummary {
	s := snapshotSummary{
		WorldID:     snap.Header.WorldID,
		Tick:        snap.Header.Tick,
		Seed:        snap.Seed,
		TickRateHz:  snap.TickRate,
		DayTicks:    snap.DayTicks,
		Archetypes:  map[string]int{},
		MemoryKinds: map[string]int{},
	}
	for _, m := range snap.Mobs {
		s.Archetypes[m.Archetype]++
		s.Memories += len(m.Memories)
		for _, e := range m.Memories {
			s.MemoryKinds[e.Key]++
		}
	}
	if withMobs {
		s.Mobs = snap.Mobs
	}
	return s
}

type snapshotFile struct {
	tick uint64
	path string
}

func snapshotFiles(worldDir string) ([]snapshotFile, error) {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []snapshotFile
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{tick: tick, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tick < out[j].tick })
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
