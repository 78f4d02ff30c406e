package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/lo"

	"github.com/shaiso/harvester/internal/domain"
	"github.com/shaiso/harvester/internal/orchestrator"
)

// ListSteps возвращает шаги с их состоянием.
// GET /api/v1/steps
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	steps := h.engine.Steps()

	result := lo.FilterMap(steps, func(s domain.Step, _ int) (StepResponse, bool) {
		state, running, err := h.engine.State(s.Name)
		if err != nil {
			// шаг исчез между Steps и State (параллельный Load)
			return StepResponse{}, false
		}
		return h.stepResponse(s, state, running), true
	})

	List(w, result, len(result))
}

// GetStep возвращает шаг по имени.
// GET /api/v1/steps/{name}
func (h *Handler) GetStep(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	step, err := h.engine.Step(name)
	if HandleError(w, h.logger, err) {
		return
	}
	state, running, err := h.engine.State(name)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, h.stepResponse(step, state, running))
}

// RunStep запускает шаг асинхронно. Ход выполнения виден через
// /events и /runs.
// POST /api/v1/steps/{name}/run
func (h *Handler) RunStep(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	_, running, err := h.engine.State(name)
	if HandleError(w, h.logger, err) {
		return
	}
	if running {
		Conflict(w, orchestrator.ErrStepBusy.Error())
		return
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		err := h.engine.RunStep(h.runCtx, name)
		switch {
		case err == nil:
		case errors.Is(err, orchestrator.ErrStepBusy):
			h.logger.Info("step already running", "step", name)
		default:
			h.logger.Error("step run failed", "step", name, "error", err)
		}
	}()

	Accepted(w, RunStartedResponse{Step: name, Status: "started"})
}

// UpdateState меняет состояние шага: 0|1|2 или running|paused|stopped.
// PUT /api/v1/steps/{name}/state
func (h *Handler) UpdateState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req UpdateStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.State == nil {
		BadRequest(w, "state is required")
		return
	}

	if err := h.engine.UpdateState(name, *req.State); HandleError(w, h.logger, err) {
		return
	}

	state, running, err := h.engine.State(name)
	if HandleError(w, h.logger, err) {
		return
	}
	step, err := h.engine.Step(name)
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, h.stepResponse(step, state, running))
}
