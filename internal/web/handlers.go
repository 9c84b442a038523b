package web

import (
	"errors"
	"io/fs"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/cjeanneret/LensGo/internal/debug"
	"github.com/cjeanneret/LensGo/internal/hw/stepper"
	"github.com/cjeanneret/LensGo/internal/logic/axis"
	"github.com/cjeanneret/LensGo/internal/logic/motion"
)

// AxisResponse is returned by the status and calibration routes.
type AxisResponse struct {
	MType      string `json:"mtype"`
	MaxSteps   uint   `json:"max_steps"`
	Calibrated bool   `json:"calibrated"`
	Position   uint   `json:"position"`
	Status     string `json:"status,omitempty"`
}

// MoveResponse is returned by the move route. Steps echoes the requested
// count and Moved is what was actually emitted after clamping or an early
// stop. Clockwise is echoed as 1 (CW) or -1 (CCW).
type MoveResponse struct {
	MType     string `json:"mtype"`
	Steps     int    `json:"steps"`
	Moved     uint   `json:"moved"`
	Status    string `json:"status"`
	Clockwise int    `json:"clockwise"`
	Position  uint   `json:"position"`
}

// ErrorResponse is returned when no axis could be resolved.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Controller  *motion.Controller
	Broadcaster *StatusBroadcaster
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(ctrl *motion.Controller, broadcaster *StatusBroadcaster, staticFS fs.FS) *Handlers {
	return &Handlers{
		Controller:  ctrl,
		Broadcaster: broadcaster,
		staticFS:    staticFS,
	}
}

// StatusCode maps the outcome of an axis operation to an HTTP status.
func StatusCode(err error) int {
	if errors.Is(err, motion.ErrUnknownAxis) {
		return http.StatusNotFound
	}
	switch axis.StatusOf(err) {
	case axis.Ok, axis.OverCurrent:
		return http.StatusOK
	case axis.Uncalibrated, axis.AxisBusy:
		return http.StatusConflict
	case axis.OutOfRange:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleAxes lists the bookkeeping of both axes.
func (h *Handlers) HandleAxes(w http.ResponseWriter, r *http.Request) {
	axes := h.Controller.Axes()
	out := make([]axis.Snapshot, 0, len(axes))
	for _, a := range axes {
		out = append(out, a.Snapshot())
	}
	render.JSON(w, r, out)
}

// HandleStatus handles GET /status/{mtype}.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "mtype")
	snap, err := h.Controller.Status(name)
	if err != nil {
		h.unknownAxis(w, r, err)
		return
	}
	render.JSON(w, r, AxisResponse{
		MType:      name,
		MaxSteps:   snap.MaxSteps,
		Calibrated: snap.Calibrated,
		Position:   snap.Position,
	})
}

// HandleCalibration handles GET /calibration/{mtype}. The request waits
// for the calibration; a client that goes away does not stop it.
func (h *Handlers) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "mtype")
	if _, err := h.Controller.Resolve(name); err != nil {
		h.unknownAxis(w, r, err)
		return
	}

	rep, err := h.Controller.Calibrate(r.Context(), name).Wait(r.Context())
	if r.Context().Err() != nil {
		debug.Live("Calibration of %s: client left before completion", name)
		return
	}
	if err != nil {
		debug.Value("Calibration request", err)
	}

	render.Status(r, StatusCode(err))
	render.JSON(w, r, AxisResponse{
		MType:      name,
		MaxSteps:   rep.MaxSteps,
		Calibrated: rep.Calibrated,
		Position:   rep.Position,
		Status:     axis.StatusOf(err).String(),
	})
}

// HandleMove handles GET /move/{mtype}/{steps}/{clockwise}.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "mtype")
	a, err := h.Controller.Resolve(name)
	if err != nil {
		h.unknownAxis(w, r, err)
		return
	}

	steps, errSteps := strconv.Atoi(chi.URLParam(r, "steps"))
	dir, errDir := parseClockwise(chi.URLParam(r, "clockwise"))
	if errSteps != nil || errDir != nil {
		snap := a.Snapshot()
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, MoveResponse{
			MType:     name,
			Steps:     steps,
			Status:    axis.OutOfRange.String(),
			Clockwise: echoClockwise(dir),
			Position:  snap.Position,
		})
		return
	}

	rep, err := h.Controller.Move(r.Context(), name, steps, dir).Wait(r.Context())
	if r.Context().Err() != nil {
		debug.Live("Move of %s: client left before completion", name)
		return
	}

	render.Status(r, StatusCode(err))
	render.JSON(w, r, MoveResponse{
		MType:     name,
		Steps:     steps,
		Moved:     rep.Steps,
		Status:    axis.StatusOf(err).String(),
		Clockwise: echoClockwise(dir),
		Position:  rep.Position,
	})
}

// HandleMemory handles GET /memory/{query}. A query containing "gc" or
// "collect" forces a collection first. The body is the free heap in bytes.
func (h *Handlers) HandleMemory(w http.ResponseWriter, r *http.Request) {
	q := chi.URLParam(r, "query")
	if strings.Contains(q, "gc") || strings.Contains(q, "collect") {
		runtime.GC()
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	render.PlainText(w, r, strconv.FormatUint(ms.HeapIdle-ms.HeapReleased, 10))
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handlers) unknownAxis(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, StatusCode(err))
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

// parseClockwise accepts "0" (CCW) and "1" (CW).
func parseClockwise(s string) (stepper.Direction, error) {
	switch s {
	case "0":
		return stepper.CCW, nil
	case "1":
		return stepper.CW, nil
	default:
		return stepper.CCW, errors.New("clockwise must be 0 or 1")
	}
}

func echoClockwise(dir stepper.Direction) int {
	if dir == stepper.CW {
		return 1
	}
	return -1
}
