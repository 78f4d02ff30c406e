package api

import (
	"io"
	"mime"
	"net/http"

	"github.com/shaiso/harvester/internal/setting"
)

// maxSettingSize — ограничение тела PUT /setting.
const maxSettingSize = 8 << 20

// GetSetting возвращает текущий Setting.
// GET /api/v1/setting
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Setting()
	if HandleError(w, h.logger, err) {
		return
	}
	Success(w, s)
}

// LoadSetting загружает новый Setting (JSON или YAML по Content-Type).
// Выполняющиеся запуски получают Stopped.
// PUT /api/v1/setting
func (h *Handler) LoadSetting(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSettingSize))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	s, err := setting.Parse(body, bodyFormat(r))
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.engine.Load(*s); HandleError(w, h.logger, err) {
		return
	}

	resp := SettingLoadedResponse{Steps: s.StepNames()}
	if h.settings != nil {
		version, err := h.settings.Save(r.Context(), s)
		if err != nil {
			h.logger.Error("failed to persist setting", "error", err)
		} else {
			resp.Version = version
		}
	}

	h.logger.Info("setting loaded via api", "steps", len(resp.Steps), "version", resp.Version)
	Success(w, resp)
}

func bodyFormat(r *http.Request) setting.Format {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return setting.FormatJSON
	}
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return setting.FormatYAML
	default:
		return setting.FormatJSON
	}
}
