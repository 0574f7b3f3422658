package preferenceService

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	"github.com/calcutta/console/internal/models"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/roi"
)

var viewName = regexp.MustCompile(`^[a-z0-9._-]{1,64}$`)

// Defaults are returned for views the user has not customised.
var Defaults = map[string]models.ViewPreference{
	"lab.roi":         {SortKey: string(roi.DefaultSort.Key), Desc: roi.DefaultSort.Desc},
	"analytics.teams": {SortKey: "roi", Desc: true},
}

// PreferenceService stores per-user table state.
type PreferenceService struct {
	Store *database.Store
	Log   *logger.Logger
}

func NewPreferenceService(store *database.Store) *PreferenceService {
	return &PreferenceService{Store: store, Log: logger.NewLogger("preference-service")}
}

type preferenceResponse struct {
	View       string                `json:"view"`
	Preference models.ViewPreference `json:"preference"`
	Saved      bool                  `json:"saved"`
}

// GetPreference returns the saved state for a view. A saved entry that no
// longer decodes is deleted and the defaults are returned in its place.
func (ps *PreferenceService) GetPreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)
	view := mux.Vars(r)["view"]
	if !viewName.MatchString(view) {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid view name")
		return
	}
	log := ps.Log.WithContext(ctx).WithUser(user.UserID)

	raw, err := ps.Store.Preference(ctx, user.UserID, view)
	if errors.Is(err, database.ErrNoPreference) {
		respond.JSON(w, http.StatusOK, preferenceResponse{View: view, Preference: Defaults[view]})
		return
	}
	if err != nil {
		log.Error("Failed to load preference", "error", err, "view", view)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to load preference")
		return
	}

	var pref models.ViewPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		log.Warn("Clearing malformed preference", "error", err, "view", view)
		if err := ps.Store.DeletePreference(ctx, user.UserID, view); err != nil {
			log.Error("Failed to clear malformed preference", "error", err, "view", view)
		}
		respond.JSON(w, http.StatusOK, preferenceResponse{View: view, Preference: Defaults[view]})
		return
	}
	respond.JSON(w, http.StatusOK, preferenceResponse{View: view, Preference: pref, Saved: true})
}

// SavePreference stores the state for a view
func (ps *PreferenceService) SavePreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)
	view := mux.Vars(r)["view"]
	if !viewName.MatchString(view) {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid view name")
		return
	}

	var pref models.ViewPreference
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&pref); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "Invalid request body")
		return
	}
	if view == "lab.roi" && pref.SortKey != "" {
		if _, err := roi.ParseSortKey(pref.SortKey); err != nil {
			respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, err.Error())
			return
		}
	}

	payload, err := json.Marshal(pref)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to encode preference")
		return
	}
	if err := ps.Store.SavePreference(ctx, user.UserID, view, payload); err != nil {
		ps.Log.WithContext(ctx).Error("Failed to save preference", "error", err, "view", view)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to save preference")
		return
	}
	respond.JSON(w, http.StatusOK, preferenceResponse{View: view, Preference: pref, Saved: true})
}

// DeletePreference resets a view to its defaults
func (ps *PreferenceService) DeletePreference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)
	view := mux.Vars(r)["view"]
	if err := ps.Store.DeletePreference(ctx, user.UserID, view); err != nil {
		ps.Log.WithContext(ctx).Error("Failed to delete preference", "error", err, "view", view)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to delete preference")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
