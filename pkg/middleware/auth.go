package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// HashKey returns the hex SHA-256 digest under which an API key is
// configured. Raw keys are never stored.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// APIKey rejects requests that do not present one of the keys whose hashes
// are listed. The key is read from "Authorization: Bearer <key>" or from
// the X-API-Key header. Health probes are exempt.
func APIKey(hashes []string) func(http.Handler) http.Handler {
	digests := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if d, err := hex.DecodeString(strings.TrimSpace(h)); err == nil && len(d) == sha256.Size {
			digests = append(digests, d)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeUnauthorized(w, "missing api key")
				return
			}
			sum := sha256.Sum256([]byte(key))
			for _, d := range digests {
				if subtle.ConstantTimeCompare(sum[:], d) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeUnauthorized(w, "invalid api key")
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `","kind":"unauthorized"}`))
}
