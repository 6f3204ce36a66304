package consolr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/consolr/internal/process/processtest"
)

func TestLaunch_MissingRuntime(t *testing.T) {
	h, err := Launch(Spec{Runtime: filepath.Join(t.TempDir(), "java"), Jar: "server.jar"})
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.False(t, IsRunning(h))
}

func TestFacadeLifecycle(t *testing.T) {
	rt := processtest.FakeRuntime(t, processtest.Console)
	s := New(Spec{Name: "facade", Runtime: rt, Jar: "server.jar", StopTimeout: 5 * time.Second},
		WithTailSize(10))
	defer func() { _ = s.Close(context.Background()) }()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
	require.Eventually(t, func() bool {
		return strings.Join(s.Tail(10), "\n") == "READY"
	}, 5*time.Second, 10*time.Millisecond)

	res, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopGraceful, res)
	assert.ErrorIs(t, s.Send("list"), ErrNotRunning)
}

func TestHandler_Token(t *testing.T) {
	s := New(Spec{Jar: "server.jar"})
	srv := httptest.NewServer(Handler(s, "/api", "secret"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewHistorySink(t *testing.T) {
	sink, err := NewHistorySink("sqlite://" + filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	require.NotNil(t, sink)
	if c, ok := sink.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func TestRegisterMetrics(t *testing.T) {
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))
	assert.NotNil(t, MetricsHandler())
}
