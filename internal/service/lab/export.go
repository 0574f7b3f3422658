package labService

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xuri/excelize/v2"

	"github.com/calcutta/console/internal/format"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/roi"
)

const (
	sheetTeams   = "ROI"
	sheetSummary = "Summary"
)

var roiHeader = []interface{}{
	"Seed", "Team", "Region", "Predicted Performance", "Predicted Investment",
	"Our Investment", "Predicted ROI", "Adjusted ROI",
}

// WriteWorkbook renders the ROI table into a workbook with a team sheet and
// a summary sheet. The file is closed when an error is returned.
func WriteWorkbook(entry models.LabEntry, t roi.Table) (_ *excelize.File, err error) {
	f := excelize.NewFile()
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()
	if err := f.SetSheetName("Sheet1", sheetTeams); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheetTeams, "A1", &roiHeader); err != nil {
		return nil, err
	}
	for i, r := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.Seed, r.SchoolName, r.Region, r.PredictedPerformance, r.PredictedInvestment,
			r.OurInvestment, r.PredictedROI, r.AdjustedROI,
		}
		if err := f.SetSheetRow(sheetTeams, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, err
	}
	summary := [][]interface{}{
		{"Entry", entry.ID},
		{"Model", entry.ModelName},
		{"Calcutta", entry.CalcuttaID},
		{"Total Invested", t.Summary.TotalInvested},
		{"Weighted Predicted ROI", format.Roi(t.Summary.WeightedPredictedROI)},
		{"Weighted Adjusted ROI", format.Roi(t.Summary.WeightedAdjustedROI)},
	}
	for i, r := range t.Summary.TopAdjusted {
		summary = append(summary, []interface{}{fmt.Sprintf("Top %d", i+1), r.SchoolName + " " + format.Roi(r.AdjustedROI)})
	}
	for i, row := range summary {
		if err := f.SetSheetRow(sheetSummary, "A"+strconv.Itoa(i+1), &row); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ExportEntryROI downloads the ROI table as a spreadsheet
func (ls *LabService) ExportEntryROI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := ParseSort(r)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, err.Error())
		return
	}
	hideZero, _ := strconv.ParseBool(r.URL.Query().Get("hide_zero"))

	entry, table, err := ls.loadTable(r, s, hideZero)
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to build ROI export", "error", err, "entry_id", mux.Vars(r)["id"])
		respond.Upstream(w, err)
		return
	}

	f, err := WriteWorkbook(*entry, table)
	if err != nil {
		ls.Log.WithContext(ctx).Error("Failed to render workbook", "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to render export")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="entry-%s-roi.xlsx"`, entry.ID))
	if err := f.Write(w); err != nil {
		ls.Log.WithContext(ctx).Error("Failed to write workbook", "error", err)
	}
}
