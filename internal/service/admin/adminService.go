package adminService

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/calcutta/console/internal/access"
	"github.com/calcutta/console/internal/database"
	"github.com/calcutta/console/internal/logger"
	"github.com/calcutta/console/internal/middleware"
	users "github.com/calcutta/console/internal/models/users"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/upstream"
)

const (
	defaultErrorLimit = 50
	maxErrorLimit     = 500
)

type AdminService struct {
	API   *upstream.Client
	Store *database.Store
	Log   *logger.Logger
}

func NewAdminService(api *upstream.Client, store *database.Store) *AdminService {
	return &AdminService{API: api, Store: store, Log: logger.NewLogger("admin-service")}
}

// UserRow is one user in the admin console.
type UserRow struct {
	users.AdminUser
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

// BuildUserRows flags admins and orders rows by email.
func BuildUserRows(in []users.AdminUser) []UserRow {
	rows := make([]UserRow, 0, len(in))
	for _, u := range in {
		if u.Permissions == nil {
			u.Permissions = []string{}
		}
		name := users.User{Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}.DisplayName()
		rows = append(rows, UserRow{AdminUser: u, Name: name, IsAdmin: access.IsAdmin(u.Permissions)})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Email < rows[j].Email })
	return rows
}

// ListUsers returns every user with their permission set
func (as *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := as.API.AdminUsers(ctx, middleware.TokenFromContext(ctx))
	if err != nil {
		as.Log.WithContext(ctx).Error("Failed to list users", "error", err)
		respond.Upstream(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"users": BuildUserRows(list)})
}

// ClientErrors returns the newest browser error reports.
func (as *AdminService) ClientErrors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultErrorLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.Error(w, http.StatusBadRequest, respond.CodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxErrorLimit)
	}

	reports, err := as.Store.RecentClientErrors(ctx, limit)
	if err != nil {
		as.Log.WithContext(ctx).Error("Failed to load client errors", "error", err)
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternal, "Failed to load client errors")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"errors": reports})
}
