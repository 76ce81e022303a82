package main

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gis-compliance/internal/arcgis"
	"github.com/sells-group/gis-compliance/internal/area"
	"github.com/sells-group/gis-compliance/internal/export"
)

var (
	fetchWhere     string
	fetchOutFields []string
	fetchNear      string
	fetchMiles     float64
	fetchOut       string
	fetchEPSG      int
)

var errMilesRequired = eris.New("--miles must be positive when --near is set")

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download every matching feature from the feature service",
	Long:  "Pages through the configured feature service and writes the features as a GeoJSON FeatureCollection. An --out path ending in .xlsx writes the measured area table instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		spatial, err := spatialFilter(fetchNear, fetchMiles)
		if err != nil {
			return err
		}
		client, err := initClient()
		if err != nil {
			return err
		}

		fc, err := client.Query(cmd.Context(), arcgis.AttributeFilter{Where: fetchWhere, OutFields: fetchOutFields}, spatial)
		if err != nil {
			return err
		}

		if strings.EqualFold(filepath.Ext(fetchOut), ".xlsx") {
			p, err := initProjector(fetchEPSG)
			if err != nil {
				return err
			}
			records, err := area.ComputeAreas(fc, p)
			if err != nil {
				return err
			}
			if err := export.WriteAreasXLSX(fetchOut, records); err != nil {
				return err
			}
			zap.L().Info("area table written", zap.String("path", fetchOut), zap.Int("features", len(records)))
			return nil
		}

		return writeJSONTo(cmd.OutOrStdout(), fc, fetchOut)
	},
}

// spatialFilter parses --near/--miles. An empty near means no spatial filter.
func spatialFilter(near string, miles float64) (*arcgis.SpatialFilter, error) {
	if near == "" {
		return nil, nil
	}
	pt, err := arcgis.ParsePoint(near)
	if err != nil {
		return nil, err
	}
	if miles <= 0 {
		return nil, errMilesRequired
	}
	return &arcgis.SpatialFilter{Point: pt, DistanceMiles: miles}, nil
}

func addQueryFlags(cmd *cobra.Command, where *string, outFields *[]string, near *string, miles *float64) {
	cmd.Flags().StringVar(where, "where", "", "SQL-92 attribute filter (default 1=1)")
	cmd.Flags().StringSliceVar(outFields, "out-fields", nil, "attributes to return (default all)")
	cmd.Flags().StringVar(near, "near", "", "restrict to features near lon,lat")
	cmd.Flags().Float64Var(miles, "miles", 0, "search radius in statute miles for --near")
}

func init() {
	addQueryFlags(fetchCmd, &fetchWhere, &fetchOutFields, &fetchNear, &fetchMiles)
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "output file (default stdout)")
	fetchCmd.Flags().IntVar(&fetchEPSG, "epsg", 0, "equal-area EPSG code for .xlsx area tables (default from config)")
	rootCmd.AddCommand(fetchCmd)
}
