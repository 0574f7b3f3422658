package routes

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/calcutta/console/internal/navigation"
	"github.com/calcutta/console/internal/respond"
	"github.com/calcutta/console/internal/routes/deps"
)

// RegisterPageRoutes serves the console's single-page app. Each menu path
// is guarded by its item's permission so a deep link redirects the same
// way the in-app guard does.
func RegisterPageRoutes(router *mux.Router, d *deps.Deps) {
	dir := d.Config.StaticDir
	index := spaIndex(dir)

	router.PathPrefix("/assets/").Handler(http.FileServer(http.Dir(dir))).Methods(http.MethodGet)
	router.Handle(d.Guard.Routes().Login, index).Methods(http.MethodGet)

	registerMenuPages(router, d, d.Menu, index)
	router.Handle(d.Guard.Routes().Fallback, d.Guard.RequireUser(index)).Methods(http.MethodGet)
}

func registerMenuPages(router *mux.Router, d *deps.Deps, items []navigation.Item, index http.Handler) {
	for _, it := range items {
		page := d.Guard.RequireUser(index)
		if it.Permission != "" {
			page = d.Guard.Require(it.Permission)(index)
		}
		// Children are registered first so the longer prefix wins.
		registerMenuPages(router, d, it.Children, index)
		router.Handle(it.Path, page).Methods(http.MethodGet)
		router.PathPrefix(strings.TrimSuffix(it.Path, "/") + "/").Handler(page).Methods(http.MethodGet)
	}
}

func spaIndex(dir string) http.Handler {
	path := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(path); err != nil {
			respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "Console assets are not built")
			return
		}
		http.ServeFile(w, r, path)
	})
}
