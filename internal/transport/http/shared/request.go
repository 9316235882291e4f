package shared

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"hradmin/internal/domain/apperr"
	"hradmin/internal/domain/audit"
	"hradmin/internal/platform/requestctx"
)

func ClientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Audit records a successful mutation. Recorder failures are logged and
// never fail the request that already succeeded.
func Audit(r *http.Request, recorder audit.Recorder, actorID, action, entityType, entityID string, before, after any) {
	if recorder == nil {
		return
	}
	evt := audit.Event{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestctx.GetRequestID(r.Context()),
		IP:         ClientIP(r),
	}
	if err := recorder.Record(r.Context(), evt, before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entity_id", entityID, "err", err)
	}
}

// Result labels an operation outcome for metrics: "ok", an error kind, or
// "error" for failures outside the taxonomy.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
