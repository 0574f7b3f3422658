package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calcutta/console/internal/format"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/roi"
)

var (
	roiBidsPath        string
	roiPredictionsPath string
	roiSortKey         string
	roiDesc            bool
	roiHideZero        bool
)

// roiCmd prints an entry's ROI table from exported JSON files
var roiCmd = &cobra.Command{
	Use:   "roi",
	Short: "Print an entry's ROI table from bid and prediction files",
	Long: `Joins a JSON array of bids with a JSON array of model predictions and
prints the ROI table and its summary, the same table the lab view renders.

Without --sort the table is ordered by adjusted ROI, best first. With --sort
the column starts in its default direction; --desc flips it.`,
	RunE: runROI,
}

func init() {
	roiCmd.Flags().StringVar(&roiBidsPath, "bids", "", "path to a JSON array of bids")
	roiCmd.Flags().StringVar(&roiPredictionsPath, "predictions", "", "path to a JSON array of predictions")
	roiCmd.Flags().StringVar(&roiSortKey, "sort", "", "sort column (seed, team, predicted_performance, predicted_investment, our_investment, predicted_roi, adjusted_roi)")
	roiCmd.Flags().BoolVar(&roiDesc, "desc", false, "reverse the column's default direction")
	roiCmd.Flags().BoolVar(&roiHideZero, "hide-zero", false, "hide teams without a bid")
	_ = roiCmd.MarkFlagRequired("predictions")
}

func runROI(cmd *cobra.Command, args []string) error {
	var bids []models.Bid
	if roiBidsPath != "" {
		if err := readJSON(roiBidsPath, &bids); err != nil {
			return err
		}
	}
	var preds []models.Prediction
	if err := readJSON(roiPredictionsPath, &preds); err != nil {
		return err
	}

	s := roi.DefaultSort
	if roiSortKey != "" {
		key, err := roi.ParseSortKey(roiSortKey)
		if err != nil {
			return err
		}
		s = roi.Sort{Key: key, Desc: key.DefaultDesc() != roiDesc}
	} else if roiDesc {
		s.Desc = !s.Desc
	}

	return renderROI(cmd.OutOrStdout(), roi.Build(bids, preds, s, roiHideZero))
}

func readJSON(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func renderROI(w io.Writer, t roi.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Seed\tTeam\tRegion\tPred Perf\tPred Inv\tOur Inv\tPred ROI\tAdj ROI\t")
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%.1f\t%.1f\t%s\t%s\t\n",
			r.Seed, r.SchoolName, r.Region,
			r.PredictedPerformance, r.PredictedInvestment, r.OurInvestment,
			format.Roi(r.PredictedROI), format.Roi(r.AdjustedROI))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := t.Summary
	fmt.Fprintf(w, "\nTotal invested: %.1f\n", s.TotalInvested)
	fmt.Fprintf(w, "Weighted predicted ROI: %s\n", format.Roi(s.WeightedPredictedROI))
	fmt.Fprintf(w, "Weighted adjusted ROI: %s\n", format.Roi(s.WeightedAdjustedROI))
	if len(s.TopAdjusted) > 0 {
		fmt.Fprintln(w, "Top adjusted ROI:")
		for i, r := range s.TopAdjusted {
			fmt.Fprintf(w, "  %d. %s %s\n", i+1, r.SchoolName, format.Roi(r.AdjustedROI))
		}
	}
	return nil
}
