package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := IssueToken("s3cret", "mediatools", "u1", "pro", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	claims, err := VerifyToken("s3cret", "mediatools", token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "u1" || claims.Plan != "pro" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := VerifyToken("other", "mediatools", token); err == nil {
		t.Fatalf("expected signature error")
	}
	if _, err := VerifyToken("s3cret", "someone-else", token); err == nil {
		t.Fatalf("expected issuer error")
	}
	expired, _ := IssueToken("s3cret", "mediatools", "u1", "pro", -time.Minute)
	if _, err := VerifyToken("s3cret", "mediatools", expired); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestAuthOptional(t *testing.T) {
	var gotUser, gotPlan string
	h := AuthOptional("s3cret", "mediatools")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotPlan = PlanFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || gotUser != "" {
		t.Fatalf("anonymous request: code=%d user=%q", rr.Code, gotUser)
	}

	token, _ := IssueToken("s3cret", "mediatools", "u1", "exclusive", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || gotUser != "u1" || gotPlan != "exclusive" {
		t.Fatalf("authenticated request: code=%d user=%q plan=%q", rr.Code, gotUser, gotPlan)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token code = %d", rr.Code)
	}
}

func TestAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "disabled", token: "", header: "Bearer x", want: http.StatusNotFound},
		{name: "missing", token: "t", header: "", want: http.StatusUnauthorized},
		{name: "wrong", token: "t", header: "Bearer u", want: http.StatusUnauthorized},
		{name: "valid", token: "t", header: "Bearer t", want: http.StatusNoContent},
		{name: "same length mismatch", token: "s3cret-admin", header: "Bearer s3cret-admio", want: http.StatusUnauthorized},
		{name: "prefix of token", token: "s3cret-admin", header: "Bearer s3cret", want: http.StatusUnauthorized},
		{name: "token with suffix", token: "s3cret-admin", header: "Bearer s3cret-admin2", want: http.StatusUnauthorized},
		{name: "scheme only", token: "s3cret-admin", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "long token", token: "s3cret-admin", header: "Bearer s3cret-admin", want: http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			AdminToken(tc.token)(ok).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("code = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
