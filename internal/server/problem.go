package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 responses.
const (
	ProblemTypeNotFound    = "https://ssatrend.dev/problems/not-found"
	ProblemTypeBadRequest  = "https://ssatrend.dev/problems/bad-request"
	ProblemTypeTooLarge    = "https://ssatrend.dev/problems/payload-too-large"
	ProblemTypeInternal    = "https://ssatrend.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://ssatrend.dev/problems/rate-limited"
)

// Problem is an RFC 7807 Problem Details body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problem(typ string, status int) func(w http.ResponseWriter, detail, instance string) {
	return func(w http.ResponseWriter, detail, instance string) {
		WriteProblem(w, Problem{
			Type:     typ,
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: instance,
		})
	}
}

var (
	// NotFound writes a 404 problem response.
	NotFound = problem(ProblemTypeNotFound, http.StatusNotFound)
	// BadRequest writes a 400 problem response.
	BadRequest = problem(ProblemTypeBadRequest, http.StatusBadRequest)
	// PayloadTooLarge writes a 413 problem response.
	PayloadTooLarge = problem(ProblemTypeTooLarge, http.StatusRequestEntityTooLarge)
	// InternalError writes a 500 problem response.
	InternalError = problem(ProblemTypeInternal, http.StatusInternalServerError)
	// RateLimited writes a 429 problem response.
	RateLimited = problem(ProblemTypeRateLimited, http.StatusTooManyRequests)
)
