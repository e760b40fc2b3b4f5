// Package control exposes player transport controls over HTTP.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/mengelbart/vpresent"
	"github.com/mengelbart/vpresent/presenter"
)

type Player interface {
	Play() error
	Pause() error
	Stop() error
	Seek(offset time.Duration) error
	SetRate(rate float64) error
	Step(n uint32) error
	CancelStep() error
	State() vpresent.State
}

type stateResponse struct {
	Clock      string  `json:"clock"`
	Render     string  `json:"render"`
	Step       string  `json:"step"`
	Rate       float64 `json:"rate"`
	PositionMS int64   `json:"position_ms"`
}

type API struct {
	logger *slog.Logger
	player Player
}

func NewAPI(player Player) *API {
	return &API{
		logger: slog.Default(),
		player: player,
	}
}

func (a *API) RegisterRoutes(mux *httprouter.Router) {
	mux.GET("/state", a.GetState)
	mux.POST("/play", a.action(a.player.Play))
	mux.POST("/pause", a.action(a.player.Pause))
	mux.POST("/stop", a.action(a.player.Stop))
	mux.POST("/seek/:ms", a.Seek)
	mux.POST("/rate/:rate", a.SetRate)
	// /step/cancel shares the wildcard segment
	mux.POST("/step/:n", a.Step)
}

func (a *API) GetState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := a.player.State()
	a.writeJSON(w, stateResponse{
		Clock:      s.Clock.String(),
		Render:     s.Render.String(),
		Step:       s.Step.String(),
		Rate:       s.Rate,
		PositionMS: s.Position.Milliseconds(),
	})
}

func (a *API) Seek(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ms, err := strconv.ParseInt(ps.ByName("ms"), 10, 64)
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}
	a.respond(w, r, a.player.Seek(time.Duration(ms)*time.Millisecond))
}

func (a *API) SetRate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rate, err := strconv.ParseFloat(ps.ByName("rate"), 64)
	if err != nil {
		http.Error(w, "invalid rate", http.StatusBadRequest)
		return
	}
	a.respond(w, r, a.player.SetRate(rate))
}

func (a *API) Step(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	arg := ps.ByName("n")
	if arg == "cancel" {
		a.respond(w, r, a.player.CancelStep())
		return
	}
	n, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || n == 0 {
		http.Error(w, "invalid step count", http.StatusBadRequest)
		return
	}
	a.respond(w, r, a.player.Step(uint32(n)))
}

func (a *API) action(f func() error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		a.respond(w, r, f())
	}
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		a.GetState(w, r, nil)
		return
	}
	a.logger.Warn("control request failed", "path", r.URL.Path, "error", err)
	http.Error(w, err.Error(), statusCode(err))
}

func (a *API) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to write response", "error", err)
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, presenter.ErrUnsupportedRate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, presenter.ErrInvalidTransition),
		errors.Is(err, presenter.ErrInvalidRequest):
		return http.StatusConflict
	case errors.Is(err, vpresent.ErrClosed),
		errors.Is(err, presenter.ErrShutdown):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
