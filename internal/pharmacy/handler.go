package pharmacy

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
)

type HandlerDeps struct {
	Cache      *WorklistStateCache
	Dispatcher *Dispatcher
	Stream     *ViewStreamServer
}

type Handler struct {
	deps   HandlerDeps
	logger apt.Logger
	config *apt.Config
	tlm    *telemetry.HTTP
}

func NewHandler(deps HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		deps:   deps,
		logger: logger,
		config: config,
		tlm:    telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/worklist", func(r chi.Router) {
		r.Get("/", h.ListWorklist)
		r.Get("/stream", h.StreamWorklist)
		r.Post("/reload", h.ReloadWorklist)
		r.Get("/{id}", h.GetPrescription)
		r.Patch("/{id}/prepare", h.PreparePrescription)
		r.Patch("/{id}/deliver", h.DeliverPrescription)
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func patientID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// ListWorklist returns the projected view: rows scoped by the search query
// parameter, stats always over the whole worklist.
func (h *Handler) ListWorklist(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListWorklist")
	defer finish()

	view := Project(h.deps.Cache.GetAll(), r.URL.Query().Get("search"))
	apt.Respond(w, http.StatusOK, view, nil)
}

func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetPrescription")
	defer finish()

	id, err := patientID(r)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid patient ID")
		return
	}

	p := h.deps.Cache.Get(id)
	if p == nil {
		apt.RespondError(w, http.StatusNotFound, "Prescription not found")
		return
	}

	apt.Respond(w, http.StatusOK, p, nil)
}

func (h *Handler) PreparePrescription(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "Handler.PreparePrescription", h.deps.Dispatcher.Prepare)
}

func (h *Handler) DeliverPrescription(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, "Handler.DeliverPrescription", h.deps.Dispatcher.Deliver)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, span string, command func(ctx context.Context, id int) error) {
	w, r, finish := h.tlm.Start(w, r, span)
	defer finish()
	log := h.log(r)

	id, err := patientID(r)
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, "Invalid patient ID")
		return
	}

	if err := command(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			apt.RespondError(w, http.StatusNotFound, "Prescription not found")
			return
		}
		log.Errorf("cannot dispatch command for patient %d: %v", id, err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not update prescription")
		return
	}

	apt.Respond(w, http.StatusOK, h.deps.Cache.Get(id), nil)
}

// ReloadWorklist forces a bulk snapshot reload. On failure the previous
// worklist contents are kept.
func (h *Handler) ReloadWorklist(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReloadWorklist")
	defer finish()
	log := h.log(r)

	if err := h.deps.Cache.Reload(r.Context()); err != nil {
		log.Errorf("cannot reload worklist: %v", err)
		apt.RespondError(w, http.StatusBadGateway, "Could not reload worklist")
		return
	}

	apt.Respond(w, http.StatusOK, map[string]interface{}{
		"entries": h.deps.Cache.Count(),
	}, nil)
}

// StreamWorklist hands the connection to the SSE fan-out.
func (h *Handler) StreamWorklist(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stream == nil {
		apt.RespondError(w, http.StatusServiceUnavailable, "Worklist stream not available")
		return
	}
	h.deps.Stream.ServeHTTP(w, r)
}
