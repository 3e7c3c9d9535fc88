package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/stratahub/internal/domain"
	"github.com/aryan0dhankhar/stratahub/internal/handler"
	"github.com/aryan0dhankhar/stratahub/internal/security/auth"
	"github.com/aryan0dhankhar/stratahub/internal/service"
)

func testToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := auth.NewTokenManager("cli-secret", "stratahub").Issue(tenantID, "u1", "admin", "", time.Hour)
	require.NoError(t, err)
	return token
}

func TestTenantOf(t *testing.T) {
	id, err := tenantOf(testToken(t, "t1"))
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	_, err = tenantOf("")
	assert.Error(t, err)
	_, err = tenantOf("not-a-token")
	assert.Error(t, err)
}

func TestTokenRoundTripThroughFile(t *testing.T) {
	t.Setenv("STRATAHUB_TOKEN_FILE", filepath.Join(t.TempDir(), "nested", "token"))
	require.NoError(t, saveToken("abc.def.ghi"))
	assert.Equal(t, "abc.def.ghi", loadToken())
}

func TestDeleteTenantResumesAfterPartialFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/tenants/t1", r.URL.Path)
		resp := handler.DeletionResponse{Report: &service.DeletionReport{TenantID: "t1", Deleted: map[string]int{"projects": 1}}}
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			resp.Error = "store unavailable"
			w.WriteHeader(http.StatusMultiStatus)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: testToken(t, "t1"), http: srv.Client()}
	require.NoError(t, deleteTenant(c, 3))
	assert.Equal(t, 2, calls)
}

func TestDeleteTenantGivesUpAfterAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_ = json.NewEncoder(w).Encode(handler.DeletionResponse{Error: "store unavailable"})
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: testToken(t, "t1"), http: srv.Client()}
	err := deleteTenant(c, 2)
	require.Error(t, err)
	assert.True(t, isPartial(err))
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"request has already been converted"}`))
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: testToken(t, "t1"), http: srv.Client()}
	err := convertRequest(c, "rq1")
	var ae *apiError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusConflict, ae.Status)
	assert.Equal(t, "request has already been converted", ae.Body)
}

func TestRegistrationCommands(t *testing.T) {
	var gotReason string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/registrations/reg1/approve":
			_ = json.NewEncoder(w).Encode(service.Approval{
				Registration: domain.PendingRegistration{Meta: domain.Meta{ID: "reg1"}, Status: domain.RegistrationApproved},
				Tenant:       domain.Tenant{Meta: domain.Meta{ID: "reg1"}, Name: "Elm Court"},
			})
		case "/api/registrations/reg2/reject":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotReason = body["reason"]
			_ = json.NewEncoder(w).Encode(domain.PendingRegistration{Meta: domain.Meta{ID: "reg2"}, Status: domain.RegistrationRejected})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"registration not found"}`))
		}
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL, token: testToken(t, "platform"), http: srv.Client()}
	require.NoError(t, approveRegistration(c, "reg1"))
	require.NoError(t, rejectRegistration(c, "reg2", "duplicate"))
	assert.Equal(t, "duplicate", gotReason)

	var ae *apiError
	require.ErrorAs(t, approveRegistration(c, "missing"), &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
}
