package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/tenant"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL, session.Static{AccessToken: "tok", Tenant: "acme", User: "u1"})
}

func TestSave(t *testing.T) {
	var got editor.SaveRequest
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/templates/update", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":"Template updated successfully"}`))
	})

	msg, err := c.Save(context.Background(), editor.SaveRequest{TemplateID: "t1", UserID: "u1", TemplateDesign: "{}"})
	require.NoError(t, err)
	assert.Equal(t, "Template updated successfully", msg)
	assert.Equal(t, "t1", got.TemplateID)
	assert.Equal(t, "{}", got.TemplateDesign)
}

func TestSave_RejectsResponseWithoutMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"text":"ok"}`, `{"message":""}`, `not json`} {
		c := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := c.Save(context.Background(), editor.SaveRequest{})
		assert.ErrorIs(t, err, ErrBadResponse, body)
	}
}

func TestSave_StatusError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"template not found: t1"}`))
	})
	_, err := c.Save(context.Background(), editor.SaveRequest{TemplateID: "t1"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "template not found: t1", se.Message)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_ContextCancel(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Save(ctx, editor.SaveRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTemplate(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/templates/ok":
			w.Write([]byte(`{"templateId":"ok","name":"Flyer","templateDesign":"{\"pages\":[]}"}`))
		default:
			w.Write([]byte(`{"data":{"templateId":"wrapped"}}`))
		}
	})

	tpl, err := c.Template(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "Flyer", tpl.Name)

	_, err = c.Template(context.Background(), "wrapped")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestTenant(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tenants/acme" {
			w.Write([]byte(`{"id":"acme","agencyName":"Acme Travel"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"tenant not found"}`))
	})

	var src tenant.Source = c
	info, err := src.Tenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Travel", info.AgencyName)

	_, err = src.Tenant(context.Background(), "other")
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestCommand(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["command"] == "bogus" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"error":"unknown command: bogus"}`))
			return
		}
		w.Write([]byte(`{"success":true,"message":"Found 0 jobs","jobs":[]}`))
	})

	res, err := c.Command(context.Background(), "job list")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Found 0 jobs", res.Message)
	assert.JSONEq(t, `[]`, string(res.Data["jobs"]))

	res, err = c.Command(context.Background(), "bogus")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "unknown command: bogus", res.Error)
}
