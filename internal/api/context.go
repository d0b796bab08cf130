package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type companyIDKey struct{}
type userIDKey struct{}

// CompanyScope authenticates admin requests via the upstream auth gateway's
// identity headers and stores the tenant scope in the request context.
// Every downstream query is scoped by this company ID.
func CompanyScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID, err := uuid.Parse(r.Header.Get("X-Company-ID"))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "missing or invalid company identity")
			return
		}
		userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "missing or invalid user identity")
			return
		}
		ctx := context.WithValue(r.Context(), companyIDKey{}, companyID)
		ctx = context.WithValue(ctx, userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func companyID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(companyIDKey{}).(uuid.UUID)
	return id
}

func userID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userIDKey{}).(uuid.UUID)
	return id
}
