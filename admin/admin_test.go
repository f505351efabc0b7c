package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobridge/retrigger/registry"
	"github.com/gobridge/retrigger/trigger"
)

func newServer(t *testing.T) *Server {
	log, _ := test.NewNullLogger()
	reg := registry.New(registry.NewMemoryStore(), log)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "g1", trigger.New("hello", "^hello$", trigger.KindText, "u1", "hi there")))
	require.NoError(t, reg.Add(ctx, "g1", trigger.New("bye", "bye", trigger.KindReact, "u1", "", "👋")))
	return New(reg, log)
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := get(newServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestTriggers(t *testing.T) {
	s := newServer(t)

	w := get(s, "/guilds/g1/triggers")
	require.Equal(t, http.StatusOK, w.Code)
	var ts []trigger.Trigger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ts))
	require.Len(t, ts, 2)
	assert.Equal(t, "hello", ts[0].Name)
	assert.Equal(t, "bye", ts[1].Name)

	w = get(s, "/guilds/g1/triggers/hello")
	require.Equal(t, http.StatusOK, w.Code)
	var one trigger.Trigger
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, "^hello$", one.Pattern)
	assert.Equal(t, "hi there", one.Text)

	w = get(s, "/guilds/g1/triggers/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "trigger not found")

	w = get(s, "/guilds/empty/triggers")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSettings(t *testing.T) {
	w := get(newServer(t), "/guilds/g1/settings")
	require.Equal(t, http.StatusOK, w.Code)

	var st trigger.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, trigger.DefaultSettings(), st)
}

func TestMethods(t *testing.T) {
	s := newServer(t)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest("DELETE", "/guilds/g1/triggers/hello", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
