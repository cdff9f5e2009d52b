package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/operation"
	"github.com/matzehuels/chainsat/pkg/version"
)

// nodeRequest names the root of an operation.
type nodeRequest struct {
	NodeType  graph.RootKind `json:"node_type"`
	FileID    string         `json:"requirement_file_id,omitempty"`
	Ecosystem string         `json:"ecosystem,omitempty"`
	Package   string         `json:"package_name,omitempty"`
	Version   string         `json:"version_name,omitempty"`
	MaxDepth  *int           `json:"max_depth"`
}

func (n nodeRequest) root() (graph.Root, error) {
	kind := n.NodeType
	if kind == "" && n.FileID != "" {
		kind = graph.RootFile
	}
	if n.MaxDepth == nil {
		return graph.Root{}, chainerrors.New(chainerrors.ErrCodeInvalidInput, "max_depth is required")
	}
	if kind == graph.RootFile {
		return graph.FileRoot(n.FileID), nil
	}
	eco, err := version.ParseEcosystem(n.Ecosystem)
	if err != nil {
		return graph.Root{}, chainerrors.Wrap(chainerrors.ErrCodeInvalidEcosystem, err, "invalid ecosystem")
	}
	switch kind {
	case graph.RootPackage:
		return graph.PackageRoot(eco, n.Package), nil
	case graph.RootVersion:
		return graph.VersionRoot(eco, n.Package, n.Version), nil
	default:
		return graph.Root{}, chainerrors.New(chainerrors.ErrCodeInvalidInput, "unknown node_type %q", kind)
	}
}

type smtRequest struct {
	nodeRequest
	Aggregator   string            `json:"aggregator,omitempty"`
	Limit        *int              `json:"limit,omitempty"`
	MinThreshold *float64          `json:"min_threshold,omitempty"`
	MaxThreshold *float64          `json:"max_threshold,omitempty"`
	Target       *float64          `json:"target,omitempty"`
	Config       map[string]string `json:"config,omitempty"`
}

type resultResponse struct {
	Result any `json:"result"`
}

// infoOperation serves file_info, package_info and version_info.
func (s *Server) infoOperation(w http.ResponseWriter, r *http.Request) {
	want := map[string]graph.RootKind{
		"file_info":    graph.RootFile,
		"package_info": graph.RootPackage,
		"version_info": graph.RootVersion,
	}
	kind, ok := want[chi.URLParam(r, "op")]
	if !ok {
		writeError(w, s.logger, chainerrors.New(chainerrors.ErrCodeNotFound, "unknown operation %q", chi.URLParam(r, "op")))
		return
	}

	var req nodeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	req.NodeType = kind
	root, err := req.root()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var info *operation.Info
	switch kind {
	case graph.RootFile:
		info, err = s.ops.FileInfo(r.Context(), root.FileID, *req.MaxDepth)
	case graph.RootPackage:
		info, err = s.ops.PackageInfo(r.Context(), root.Package, *req.MaxDepth)
	default:
		info, err = s.ops.VersionInfo(r.Context(), root.Package, root.Version, *req.MaxDepth)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: info})
}

// smtOperation serves the seven reasoning operations.
func (s *Server) smtOperation(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	var req smtRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	root, err := req.root()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	or := operation.Request{Root: root, MaxDepth: *req.MaxDepth, Aggregator: graph.Aggregator(req.Aggregator)}
	limit := 1
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx := r.Context()
	var result any
	switch op {
	case "valid_graph":
		result, err = s.ops.ValidGraph(ctx, or)
	case "valid_config":
		result, err = s.ops.ValidConfig(ctx, or, req.Config)
	case "complete_config":
		result, err = s.ops.CompleteConfig(ctx, or, req.Config)
	case "minimize_impact":
		result, err = s.ops.MinimizeImpact(ctx, or, limit)
	case "maximize_impact":
		result, err = s.ops.MaximizeImpact(ctx, or, limit)
	case "filter_configs":
		if req.MinThreshold == nil || req.MaxThreshold == nil {
			err = chainerrors.New(chainerrors.ErrCodeInvalidInput, "min_threshold and max_threshold are required")
			break
		}
		result, err = s.ops.FilterConfigs(ctx, or, *req.MinThreshold, *req.MaxThreshold, limit)
	case "config_by_impact":
		if req.Target == nil {
			err = chainerrors.New(chainerrors.ErrCodeInvalidInput, "target is required")
			break
		}
		result, err = s.ops.ConfigByImpact(ctx, or, *req.Target)
	default:
		err = chainerrors.New(chainerrors.ErrCodeNotFound, "unknown operation %q", op)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Result: result})
}
