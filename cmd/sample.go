package cmd

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/wegman-software/graphelev-go/internal/elevation"
)

var sampleCmd = &cobra.Command{
	Use:   "sample <lat> <lon>",
	Short: "Look up the elevation at a coordinate",
	Long: `Sample queries the configured elevation rasters for a single
coordinate and prints the interpolated height in meters.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			exitWithError("Invalid latitude", err)
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			exitWithError("Invalid longitude", err)
		}
		if cfg.ElevationDir == "" {
			exitWithError("No elevation directory configured", nil)
		}

		sampler := elevation.NewSampler(cfg.ElevationDir)
		defer sampler.Close()

		h := sampler.Height(orb.Point{lon, lat})
		if h == elevation.NoDataValue {
			fmt.Printf("%f,%f: no data\n", lat, lon)
			return
		}
		fmt.Printf("%f,%f: %.1f m\n", lat, lon, h)
	},
}

func init() {
	rootCmd.AddCommand(sampleCmd)
}
