package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tech4242/aquaman/internal/credential"
)

// writeJSONError writes a `{"error": code, ...extra}` body with the given
// status for every error the pipeline surfaces inline.
func writeJSONError(w http.ResponseWriter, status int, code string, extra map[string]string) {
	body := map[string]string{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// isTransientBackendError reports whether err is a credential.BackendError
// classified KindTransient (a 5xx/timeout from the backend, or a network
// hiccup) — the one class of credential-get failure worth retrying once.
func isTransientBackendError(err error) bool {
	var be *credential.BackendError
	return errors.As(err, &be) && be.Kind == credential.KindTransient
}

// statusForBackendError maps a credential.BackendError's Kind to the HTTP
// status its error taxonomy assigns it. Anything else not recognized as a
// BackendError is treated as a generic credential failure (503).
func statusForBackendError(err error) (status int, code string) {
	var be *credential.BackendError
	if errors.As(err, &be) {
		switch be.Kind {
		case credential.KindPermissionDenied:
			return http.StatusServiceUnavailable, "credential_permission_denied"
		case credential.KindTransient:
			return http.StatusServiceUnavailable, "credential_backend_transient"
		case credential.KindNotAvailable:
			return http.StatusServiceUnavailable, "credential_backend_unavailable"
		case credential.KindUnsupported:
			return http.StatusServiceUnavailable, "credential_backend_unsupported"
		}
	}
	return http.StatusServiceUnavailable, "credential_error"
}
