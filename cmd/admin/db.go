package main

import (
	"database/sql"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"voxelmind.ai/internal/persistence/indexdb"
	"voxelmind.ai/internal/sim/nav"
)

func openIndex(g *globalFlags, dbPath string) (*sql.DB, error) {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(g.worldDir(), "index", "nav.sqlite")
	}
	return indexdb.OpenReader(path)
}

func incidentsCmd(g *globalFlags) *cobra.Command {
	var (
		dbPath string
		f      indexdb.IncidentFilter
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List stuck and timeout incidents from the index, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openIndex(g, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			f.Kind = nav.IncidentKind(kind)
			list, err := indexdb.ListIncidents(cmd.Context(), db, f)
			if err != nil {
				return err
			}
			for _, in := range list {
				if err := printJSON(cmd.OutOrStdout(), in); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite index path (defaults to the world's index)")
	cmd.Flags().StringVar(&f.EntityID, "entity", "", "entity id filter")
	cmd.Flags().StringVar(&kind, "kind", "", "incident kind filter (stuck, timeout)")
	cmd.Flags().Uint64Var(&f.SinceTick, "since", 0, "only incidents at or after this tick")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "result limit")

	var topLimit int
	top := &cobra.Command{
		Use:   "top",
		Short: "Count incidents per entity and kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openIndex(g, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			counts, err := indexdb.CountIncidents(cmd.Context(), db, topLimit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
	top.Flags().IntVar(&topLimit, "limit", 20, "result limit")
	cmd.AddCommand(top)
	return cmd
}

func indexCmd(g *globalFlags) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots recorded in the index, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openIndex(g, dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			list, err := indexdb.ListSnapshots(cmd.Context(), db, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite index path (defaults to the world's index)")
	cmd.Flags().IntVar(&limit, "limit", 20, "result limit")
	return cmd
}
