package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/order-reconciler/internal/backfill"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/importer"
	"github.com/ignite/order-reconciler/internal/pipeline"
	"github.com/ignite/order-reconciler/internal/pkg/httputil"
)

// BuildService is the subset of the pipeline the handlers drive.
type BuildService interface {
	Build(ctx context.Context) (pipeline.Outcome, error)
	State(ctx context.Context) (*domain.BuildState, error)
	Reset(ctx context.Context) error
	BackfillDates(ctx context.Context) (backfill.Result, error)
	Import(ctx context.Context, platform domain.Platform) (importer.Result, error)
}

// BannedService manages the banned-customer list.
type BannedService interface {
	ListID(ctx context.Context) (string, error)
	SetListID(ctx context.Context, listID string) error
	List(ctx context.Context) ([]domain.BannedEntry, error)
	Add(ctx context.Context, raw, note string) (domain.BannedEntry, error)
	Remove(ctx context.Context, raw string) error
}

// Invalidator drops a cached banned list after it changes.
type Invalidator interface {
	Invalidate()
}

// Handlers contains all HTTP handlers
type Handlers struct {
	build  BuildService
	banned BannedService
	cache  Invalidator
}

// NewHandlers creates a new Handlers instance
func NewHandlers(build BuildService) *Handlers {
	return &Handlers{build: build}
}

// SetBanned enables the banned-list endpoints. cache may be nil.
func (h *Handlers) SetBanned(svc BannedService, cache Invalidator) {
	h.banned = svc
	h.cache = cache
}

// StateResponse wraps the persisted build state.
type StateResponse struct {
	Idle  bool               `json:"idle"`
	State *domain.BuildState `json:"state,omitempty"`
}

// RunBuild runs one build invocation. A paused result is a normal 200; the
// caller invokes again to continue.
//
//	POST /api/clean-master/run
func (h *Handlers) RunBuild(w http.ResponseWriter, r *http.Request) {
	out, err := h.build.Build(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, out)
}

//	GET /api/clean-master/state
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.build.State(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, StateResponse{Idle: st == nil, State: st})
}

// ResetState discards a paused build so the next run starts fresh.
//
//	DELETE /api/clean-master/state
func (h *Handlers) ResetState(w http.ResponseWriter, r *http.Request) {
	if err := h.build.Reset(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

//	POST /api/clean-master/backfill-dates
func (h *Handlers) BackfillDates(w http.ResponseWriter, r *http.Request) {
	res, err := h.build.BackfillDates(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// RunImport pulls recent orders for one platform into its raw store.
//
//	POST /api/imports/{platform}
func (h *Handlers) RunImport(w http.ResponseWriter, r *http.Request) {
	p := domain.Platform(chi.URLParam(r, "platform"))
	if !p.Valid() {
		httputil.BadRequest(w, "unknown platform "+string(p))
		return
	}
	res, err := h.build.Import(r.Context(), p)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ---------------------------------------------------------------------------
// Banned list
// ---------------------------------------------------------------------------

type bannedListResponse struct {
	ListID  string               `json:"list_id"`
	Entries []domain.BannedEntry `json:"entries"`
}

type addBannedRequest struct {
	Entry string `json:"entry"`
	Note  string `json:"note"`
}

type setListRequest struct {
	ListID string `json:"list_id"`
}

//	GET /api/banned
func (h *Handlers) ListBanned(w http.ResponseWriter, r *http.Request) {
	id, err := h.banned.ListID(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	entries, err := h.banned.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.BannedEntry{}
	}
	httputil.OK(w, bannedListResponse{ListID: id, Entries: entries})
}

//	POST /api/banned
func (h *Handlers) AddBanned(w http.ResponseWriter, r *http.Request) {
	var req addBannedRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	e, err := h.banned.Add(r.Context(), req.Entry, req.Note)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidate()
	httputil.JSON(w, http.StatusCreated, e)
}

//	DELETE /api/banned/{entry}
func (h *Handlers) RemoveBanned(w http.ResponseWriter, r *http.Request) {
	if err := h.banned.Remove(r.Context(), chi.URLParam(r, "entry")); err != nil {
		respondError(w, err)
		return
	}
	h.invalidate()
	httputil.NoContent(w)
}

// SetBannedList switches which list builds read.
//
//	PUT /api/banned/list
func (h *Handlers) SetBannedList(w http.ResponseWriter, r *http.Request) {
	var req setListRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ListID) == "" {
		httputil.BadRequest(w, "list_id is required")
		return
	}
	if err := h.banned.SetListID(r.Context(), req.ListID); err != nil {
		respondError(w, err)
		return
	}
	h.invalidate()
	httputil.NoContent(w)
}

func (h *Handlers) invalidate() {
	if h.cache != nil {
		h.cache.Invalidate()
	}
}
