package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/version"
)

type repositoryRequest struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

type packageRequest struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
	Refresh   bool   `json:"refresh"`
}

type buildResponse struct {
	Status   string `json:"status"`
	Files    int    `json:"files"`
	Enqueued int    `json:"enqueued"`
}

// initRepository dispatches a repository build. Completion runs in the
// background; the Repository stays incomplete until it succeeds.
func (s *Server) initRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := chainerrors.ValidateRepository(req.Owner, req.Name); err != nil {
		writeError(w, s.logger, err)
		return
	}

	var lastCommit time.Time
	if s.commits != nil {
		t, err := s.commits.LastCommit(r.Context(), req.Owner, req.Name)
		if err != nil {
			s.logger.Warn("commit date lookup failed", "repository", req.Owner+"/"+req.Name, "err", err)
		} else {
			lastCommit = t
		}
	}

	build, err := s.builder.InitRepository(r.Context(), req.Owner, req.Name, userID(r.Context()), lastCommit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if build.UpToDate {
		writeJSON(w, http.StatusOK, buildResponse{Status: "up_to_date", Files: len(build.Files)})
		return
	}

	s.goBackground(func(ctx context.Context) {
		err := s.builder.Complete(ctx, build)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			s.logger.Warn("repository build interrupted", "repository", build.Owner+"/"+build.Name, "err", err)
		default:
			s.logger.Error("repository build failed", "repository", build.Owner+"/"+build.Name, "err", err)
		}
	})
	writeJSON(w, http.StatusAccepted, buildResponse{Status: "building", Files: len(build.Files), Enqueued: build.Enqueued})
}

type repositoryResponse struct {
	Repository *graph.Repository       `json:"repository"`
	Files      []graph.RequirementFile `json:"requirement_files"`
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	owner, name := chi.URLParam(r, "owner"), chi.URLParam(r, "name")
	if err := chainerrors.ValidateRepository(owner, name); err != nil {
		writeError(w, s.logger, err)
		return
	}
	repo, err := s.graph.GetRepository(r.Context(), owner, name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	files, err := s.graph.RequirementFiles(r.Context(), owner, name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, repositoryResponse{Repository: repo, Files: files})
}

func (s *Server) initPackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	eco, err := version.ParseEcosystem(req.Ecosystem)
	if err != nil {
		writeError(w, s.logger, chainerrors.Wrap(chainerrors.ErrCodeInvalidEcosystem, err, "invalid ecosystem"))
		return
	}
	enqueued, err := s.builder.InitPackage(r.Context(), eco, req.Name, req.Refresh)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	status := "up_to_date"
	if enqueued {
		status = "building"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": status, "enqueued": enqueued})
}
