package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, Problem{
		Type:     ProblemTypeBadRequest,
		Title:    "Bad Request",
		Status:   http.StatusBadRequest,
		Detail:   "deviceId is required",
		Instance: "/metrics/history",
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Detail != "deviceId is required" || p.Instance != "/metrics/history" {
		t.Errorf("problem = %+v, want detail and instance round-tripped", p)
	}
}

func TestProblemHelpers(t *testing.T) {
	cases := []struct {
		name     string
		write    func(http.ResponseWriter)
		status   int
		wantType string
	}{
		{"not found", func(w http.ResponseWriter) { NotFound(w, "d", "/x") }, 404, ProblemTypeNotFound},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "d", "/x") }, 400, ProblemTypeBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "d", "/x") }, 401, ProblemTypeUnauthorized},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "d", "/x") }, 500, ProblemTypeInternal},
		{"rate limited", func(w http.ResponseWriter) { RateLimited(w, "d", "/x") }, 429, ProblemTypeRateLimited},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		tc.write(rec)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
		}
		var p Problem
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if p.Type != tc.wantType {
			t.Errorf("%s: type = %q, want %q", tc.name, p.Type, tc.wantType)
		}
	}
}
