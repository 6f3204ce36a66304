package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseTail(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"", 100, true},
		{"0", 0, true},
		{"25", 25, true},
		{"999999", maxTail, true},
		{"-1", 0, false},
		{"ten", 0, false},
	}
	for _, c := range cases {
		got, ok := parseTail(c.in, 100)
		if got != c.want || ok != c.ok {
			t.Fatalf("parseTail(%q) = %d,%t want %d,%t", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestParseBool(t *testing.T) {
	if !parseBool("", true) || parseBool("", false) {
		t.Fatal("empty must return the default")
	}
	for _, s := range []string{"1", "true", "YES", "on"} {
		if !parseBool(s, false) {
			t.Fatalf("%q should be true", s)
		}
	}
	if parseBool("0", true) || parseBool("false", true) {
		t.Fatal("explicit false values must win over the default")
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
