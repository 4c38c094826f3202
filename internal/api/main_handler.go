package api

import (
	"net/http"
	"strings"

	"github.com/webpods-org/webpods/internal/corerr"
)

// mainDomainHandler serves the small set of main-domain routes spec.md §6
// keeps in core scope: pod metadata lookup. Pod creation, OAuth client
// management, and the authorization endpoints are explicitly out of core
// scope and are not implemented here.
func mainDomainHandler(deps *Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(r.URL.Path, "/")
		switch {
		case strings.HasPrefix(path, "api/pods/") && r.Method == http.MethodGet:
			podName := strings.TrimPrefix(path, "api/pods/")
			getPodMetadata(w, r, deps, podName)
		default:
			http.NotFound(w, r)
		}
	})
}

func getPodMetadata(w http.ResponseWriter, r *http.Request, deps *Deps, podName string) {
	ctx := r.Context()
	if podName == "" || strings.Contains(podName, "/") {
		writeError(w, corerr.New(corerr.InvalidPodID, "invalid pod id"))
		return
	}
	pod, err := deps.DB.GetPod(ctx, podName)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.PodNotFound, "pod not found", err))
		return
	}
	owner, err := deps.Permission.PodOwner(ctx, podName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      pod.Name,
		"owner":     owner,
		"createdAt": pod.CreatedAt,
	})
}
