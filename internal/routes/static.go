package routes

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coah80/vidfix/internal/config"
	"github.com/coah80/vidfix/internal/util"
)

// StaticRoutes mounts processed outputs and the client UI. Neither serves
// directory listings.
func StaticRoutes(r chi.Router) {
	r.Get(config.ProcessedRoute+"/*", handleProcessed)
	r.Get("/*", handlePublic)
}

func handleProcessed(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, config.ProcessedRoute+"/")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		http.NotFound(w, r)
		return
	}
	contentType, ok := config.ContainerMIMEs[strings.ToLower(filepath.Ext(name))]
	if !ok {
		contentType = "application/octet-stream"
	}
	serveRegularFile(w, r, config.ProcessedDir, name, contentType)
}

func handlePublic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/index.html"
	}
	serveRegularFile(w, r, config.PublicDir, filepath.FromSlash(strings.TrimPrefix(name, "/")), "")
}

// serveRegularFile serves root/name if it resolves inside root and is a
// regular file. An empty contentType lets ServeContent pick one.
func serveRegularFile(w http.ResponseWriter, r *http.Request, root, name, contentType string) {
	full, err := util.ConfinePath(root, filepath.Join(root, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
