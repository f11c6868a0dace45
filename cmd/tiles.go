package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wegman-software/graphelev-go/internal/tile"
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "List the tiles in the store",
	Long: `Tiles enumerates the tile store and prints each tile's id, edge
counts, and whether it already carries elevation data.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			exitWithError("Invalid configuration", err)
		}

		store := tile.NewStore(cfg.TileDir, cfg.TileCacheMB)
		ids, err := store.Enumerate()
		if err != nil {
			exitWithError("Failed to enumerate tiles", err)
		}

		fmt.Printf("%-12s %10s %10s  %s\n", "TILE", "EDGES", "SHAPES", "ELEVATION")
		for _, id := range ids {
			t, err := store.Load(id)
			if err != nil {
				exitWithError("Failed to load tile", err)
			}
			elev := "no"
			if t.HasElevation {
				elev = "yes"
			}
			fmt.Printf("%-12s %10d %10d  %s\n", id, len(t.Edges), t.EdgeInfoCount(), elev)
			if store.OverCommitted() {
				store.Trim()
			}
		}
		fmt.Printf("%d tiles\n", len(ids))
	},
}

func init() {
	rootCmd.AddCommand(tilesCmd)
}
