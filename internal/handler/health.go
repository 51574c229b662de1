package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DBPinger is the interface for checking vector-store (database) connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ObjectPinger is the interface for checking object-store reachability.
type ObjectPinger interface {
	Ping(ctx context.Context, bucket string) error
}

// Health returns a handler implementing the Health operation (§6): it
// aggregates a vector-store ping and an object-store reachability check
// (a fetch of the configured bucket's attributes) into a single status. objects may
// be nil to skip the object-store leg (e.g. in a test double setup).
// GET /api/health — returns {"status":"healthy", ...} without auth.
func Health(db DBPinger, objects ObjectPinger, bucket string, version ...string) http.HandlerFunc {
	ver := "0.0.0"
	if len(version) > 0 && version[0] != "" {
		ver = version[0]
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		dbStatus := "connected"
		objectStatus := "connected"
		httpStatus := http.StatusOK

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				status = "degraded"
				dbStatus = "disconnected"
				httpStatus = http.StatusServiceUnavailable
			}
		}

		if objects != nil {
			if err := objects.Ping(ctx, bucket); err != nil {
				status = "degraded"
				objectStatus = "disconnected"
				httpStatus = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]string{
			"status":       status,
			"version":      ver,
			"database":     dbStatus,
			"object_store": objectStatus,
		})
	}
}
