package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/memhub/internal/apperr"
	"github.com/nextlevelbuilder/memhub/internal/bundle"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/store"
)

const maxResolveBody = 64 << 10

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	req, err := bundleRequest(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	resp, err := s.bundles.Assemble(r.Context(), req)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// bundleRequest parses GET /context/bundle query parameters.
func bundleRequest(r *http.Request) (bundle.Request, error) {
	q := r.URL.Query()
	req := bundle.Request{
		WorkspaceKey:   q.Get("workspace_key"),
		ProjectKey:     q.Get("project_key"),
		Query:          q.Get("q"),
		Mode:           q.Get("mode"),
		CurrentSubpath: q.Get("current_subpath"),
		Persona:        q.Get("persona"),
		SearchMode:     q.Get("search_mode"),
		RepoRootSlug:   q.Get("repo_root_slug"),
	}
	var err error
	if v := q.Get("budget"); v != "" {
		n, err := intParam(v, "budget")
		if err != nil {
			return req, err
		}
		req.Budget = &n
	}
	if req.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return req, err
	}
	if v := q.Get("types"); v != "" {
		for _, name := range strings.Split(v, ",") {
			t, ok := store.ParseMemoryType(name)
			if !ok {
				return req, apperr.Invalid("types", "unknown memory type %q", name)
			}
			req.Types = append(req.Types, t)
		}
	}
	if owner, repo := q.Get("github_owner"), q.Get("github_repo"); owner != "" || repo != "" || q.Get("github_remote") != "" {
		req.GithubRemote = &resolve.GithubRemote{
			Owner:      owner,
			Repo:       repo,
			Host:       q.Get("github_host"),
			Normalized: q.Get("github_remote"),
		}
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Invalid(name, "must be an integer")
	}
	return n, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var sel resolve.Selectors
	dec := json.NewDecoder(io.LimitReader(r.Body, maxResolveBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sel); err != nil {
		writeErr(w, r, apperr.Invalid("body", "%v", err))
		return
	}
	res, err := s.engine.Resolve(r.Context(), sel)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
