package gateway

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	perrors "github.com/DeBrosOfficial/pinvault/pkg/errors"
	"github.com/DeBrosOfficial/pinvault/pkg/httputil"
	"github.com/DeBrosOfficial/pinvault/pkg/logging"
	"github.com/DeBrosOfficial/pinvault/pkg/pinning"
)

type pinHashRequest struct {
	Hash string `json:"hash"`
}

type emergencyRequest struct {
	Confirmation string `json:"confirmation"`
}

func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.GetPinningStats(r.Context())
	if err != nil {
		s.fail(w, "pinning stats", err)
		return
	}
	httputil.WriteSuccess(w, "stats", stats)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, "health", s.manager.Service().GetHealthStatus())
}

func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, "usage", s.manager.Service().GetStorageUsage(r.Context()))
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.PerformHealthCheck(r.Context())
	if err != nil {
		s.fail(w, "health check", err)
		return
	}
	httputil.WriteSuccess(w, "report", report)
}

func (s *Server) hashStatusHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Service().CheckPinningStatus(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, "pinning status", err)
		return
	}
	httputil.WriteSuccess(w, "status", report)
}

func (s *Server) listContentHandler(w http.ResponseWriter, r *http.Request) {
	tracked, err := s.manager.ListTracked(r.Context())
	if err != nil {
		s.fail(w, "list content", err)
		return
	}
	httputil.WriteSuccess(w, "content", tracked)
}

func (s *Server) pinContentHandler(w http.ResponseWriter, r *http.Request) {
	data, err := httputil.ReadBody(r, s.maxBodySize)
	if err != nil {
		httputil.WriteErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, out, err := s.manager.PinContent(r.Context(), id, data, httputil.QueryParam(r, "name", ""))
	s.writePin(w, id, rec, out, err)
}

func (s *Server) pinHashHandler(w http.ResponseWriter, r *http.Request) {
	var req pinHashRequest
	if err := httputil.DecodeJSONStrict(r, &req); err != nil {
		httputil.WriteErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, out, err := s.manager.PinContentHash(r.Context(), id, req.Hash)
	s.writePin(w, id, rec, out, err)
}

// writePin reports a pin. A partial outcome is a 200 with success false and
// the shortfall as the reason, since the record was still committed.
func (s *Server) writePin(w http.ResponseWriter, contentID string, rec *pinning.Record, out *pinning.PinOutcome, err error) {
	if err != nil {
		if out == nil {
			s.fail(w, "pin content", err)
			return
		}
		s.logger.ComponentWarn(logging.ComponentGateway, "pin failed",
			zap.String("content_id", contentID), zap.Error(err))
		httputil.WriteJSON(w, perrors.StatusCode(err), map[string]any{
			"success": false,
			"reason":  err.Error(),
			"code":    perrors.GetErrorCode(err),
			"outcome": out,
		})
		return
	}
	resp := map[string]any{"success": !out.Partial, "outcome": out, "record": rec}
	if out.Partial {
		resp["reason"] = out.Reason
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) unpinContentHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.manager.UnpinContent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "unpin content", err)
		return
	}
	reason := ""
	if !out.Success {
		reason = fmt.Sprintf("unpin failed on %d providers", len(out.Failed))
	}
	httputil.WriteResult(w, http.StatusOK, out.Success, reason, "outcome", out)
}

func (s *Server) repairHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.manager.RepairContentPinning(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if out == nil {
			s.fail(w, "repair content", err)
			return
		}
		httputil.WriteResult(w, perrors.StatusCode(err), false, err.Error(), "repair", out)
		return
	}
	httputil.WriteResult(w, http.StatusOK, true, out.Reason, "repair", out)
}

func (s *Server) emergencyUnpinHandler(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := httputil.DecodeJSONStrict(r, &req); err != nil {
		httputil.WriteErr(w, err)
		return
	}
	report, err := s.manager.EmergencyUnpinAll(r.Context(), req.Confirmation)
	if err != nil {
		if report == nil {
			s.fail(w, "emergency unpin", err)
			return
		}
		httputil.WriteResult(w, perrors.StatusCode(err), false, err.Error(), "report", report)
		return
	}
	reason := ""
	if report.Failed > 0 {
		reason = fmt.Sprintf("%d of %d records failed to unpin", report.Failed, report.Total)
	}
	httputil.WriteResult(w, http.StatusOK, report.Failed == 0, reason, "report", report)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if perrors.StatusCode(err) >= http.StatusInternalServerError {
		s.logger.ComponentError(logging.ComponentGateway, op+" failed", zap.Error(err))
	}
	httputil.WriteErr(w, err)
}
