package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPAHandler(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":     {Data: []byte("<html>app</html>")},
		"assets/app.js":  {Data: []byte("console.log('app')")},
		"assets/app.css": {Data: []byte("body{}")},
	}
	h := SPAHandler(fsys)

	tests := []struct {
		name     string
		path     string
		wantBody string
	}{
		{name: "existing asset", path: "/assets/app.js", wantBody: "console.log('app')"},
		{name: "root", path: "/", wantBody: "<html>app</html>"},
		{name: "client route falls back", path: "/zones/Z1/records", wantBody: "<html>app</html>"},
		{name: "directory falls back", path: "/assets/", wantBody: "<html>app</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestEmbeddedBundles(t *testing.T) {
	static, err := StaticFS("")
	require.NoError(t, err)
	_, err = fs.Stat(static, "index.html")
	assert.NoError(t, err)

	migrations, err := fs.Glob(MigrationsFS(), "migrations/*.up.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, migrations)
}

func TestStaticFS_MissingDir(t *testing.T) {
	_, err := StaticFS("/definitely/not/here")
	assert.Error(t, err)
}
