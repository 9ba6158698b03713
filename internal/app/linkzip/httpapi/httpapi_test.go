package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkzip.local/internal/app/linkzip"
	"linkzip.local/internal/app/linkzip/phishtank"
	"linkzip.local/internal/app/linkzip/repo"
	"linkzip.local/internal/app/linkzip/shortcode"
	"linkzip.local/internal/app/linkzip/stats"
	"linkzip.local/internal/platform/auth"
	"linkzip.local/internal/platform/httpmiddleware"
)

const (
	adminToken = "t0ken"
	siteDomain = "https://dorogoy.github.io/l1nkZip/"
	apiDomain  = "https://l1nk.zip"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	store  *repo.MemoryStore
	codec  *shortcode.Codec
	jwt    auth.TokenService
}

func newTestServer(t *testing.T, mutate func(*Deps, *repo.MemoryStore)) *testServer {
	t.Helper()
	store := repo.NewMemoryStore()
	codec := shortcode.MustNew(shortcode.DefaultAlphabet, shortcode.DefaultBlockSize)
	svc := linkzip.NewService(codec, store, linkzip.Options{
		Domain: apiDomain,
		Phish:  phishtank.NewChecker(store),
		Visits: stats.NewDirectCollector(store),
	})
	ts, err := auth.NewHS256Service("test-secret", "linkzip", time.Hour)
	require.NoError(t, err)

	d := Deps{
		Service:     svc,
		Tokens:      httpmiddleware.NewTokenMatcher(adminToken, ""),
		JWT:         ts,
		APIName:     "l1nkZip",
		SiteDomain:  siteDomain,
		CleanupDays: 5,
	}
	if mutate != nil {
		mutate(&d, store)
	}
	engine, err := NewEngine(d)
	require.NoError(t, err)
	return &testServer{engine: engine, store: store, codec: codec, jwt: ts}
}

func (s *testServer) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestStaticRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `"OK"`, w.Body.String())

	w = s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, siteDomain, w.Header().Get("Location"))

	w = s.do(http.MethodGet, "/404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "l1nkZip")
	assert.Contains(t, w.Body.String(), siteDomain)
}

func TestCreateURL(t *testing.T) {
	s := newTestServer(t, nil)
	code, err := s.codec.EncodeURL(1, shortcode.DefaultMinLength)
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/url", `{"url":"https://Example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	info := decode[LinkInfo](t, w)
	assert.Equal(t, LinkInfo{Link: code, FullLink: apiDomain + "/" + code, URL: "https://example.com/", Visits: 0}, info)

	// 同一个 URL 返回同一个短码
	w = s.do(http.MethodPost, "/url", `{"url":"https://example.com/"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, code, decode[LinkInfo](t, w).Link)

	w = s.do(http.MethodPost, "/url", `{"url":"https://example.org/x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, code, decode[LinkInfo](t, w).Link)
}

func TestCreateURLRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `url=https://example.com`},
		{"missing url", `{}`},
		{"ftp scheme", `{"url":"ftp://example.com/file"}`},
		{"no host", `{"url":"https://"}`},
		{"too long", `{"url":"https://example.com/` + strings.Repeat("a", linkzip.MaxURLLength) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/url", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
			body := decode[httpmiddleware.ErrorResponse](t, w)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestRedirectCountsVisits(t *testing.T) {
	s := newTestServer(t, nil)
	info := decode[LinkInfo](t, s.do(http.MethodPost, "/url", `{"url":"https://example.com/page?q=1"}`))

	for range 2 {
		w := s.do(http.MethodGet, "/"+info.Link, "")
		require.Equal(t, http.StatusMovedPermanently, w.Code)
		assert.Equal(t, "https://example.com/page?q=1", w.Header().Get("Location"))
	}

	w := s.do(http.MethodGet, "/info/"+info.Link, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[LinkInfo](t, w).Visits)
}

func TestRedirectUnknownLink(t *testing.T) {
	s := newTestServer(t, nil)
	for _, link := range []string{"mmmjq", "NOT-A-CODE", "qqqqqqqqqqqqqqqqqqqq"} {
		w := s.do(http.MethodGet, "/"+link, "")
		assert.Equal(t, http.StatusTemporaryRedirect, w.Code, link)
		assert.Equal(t, "/404", w.Header().Get("Location"), link)
	}

	w := s.do(http.MethodGet, "/info/mmmjq", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhishing(t *testing.T) {
	const detail = "http://www.phishtank.com/phish_detail.php?phish_id=42"
	s := newTestServer(t, nil)
	ctx := context.Background()

	// 先缩短，之后才进黑名单
	info := decode[LinkInfo](t, s.do(http.MethodPost, "/url", `{"url":"http://evil.example.com/"}`))
	_, err := s.store.UpsertPhishes(ctx, []linkzip.Phish{{ID: 42, URL: "http://evil.example.com/", DetailURL: detail}}, time.Now())
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/url", `{"url":"http://evil.example.com"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decode[httpmiddleware.ErrorResponse](t, w).Detail, detail)

	w = s.do(http.MethodGet, "/"+info.Link, "")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, detail, w.Header().Get("Location"))
}

func TestList(t *testing.T) {
	s := newTestServer(t, nil)
	for _, u := range []string{"https://a.example.com/", "https://b.example.com/", "https://c.example.com/"} {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/url", `{"url":"`+u+`"}`).Code)
	}

	w := s.do(http.MethodGet, "/list/wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/list/"+adminToken+"?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	links := decode[[]LinkInfo](t, w)
	require.Len(t, links, 2)
	assert.Equal(t, "https://c.example.com/", links[0].URL)

	w = s.do(http.MethodGet, "/list/"+adminToken+"?limit=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAdminAPIRequiresJWT(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/url", `{"url":"https://a.example.com/"}`).Code)

	w := s.do(http.MethodGet, "/api/v1/admin/links", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := s.jwt.Sign("ops", auth.RoleAdmin)
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/api/v1/admin/links", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]LinkInfo](t, w), 1)

	w = s.do(http.MethodPost, "/api/v1/admin/phishtank/update", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestAdminAPINotMountedWithoutJWT(t *testing.T) {
	s := newTestServer(t, func(d *Deps, _ *repo.MemoryStore) { d.JWT = nil })
	w := s.do(http.MethodGet, "/api/v1/admin/links", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPhishTankUpdate(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(http.MethodGet, "/phishtank/update/"+adminToken, "")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := s.do(http.MethodGet, "/phishtank/update/nope", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"phish_id": 7, "url": "http://bad.example.com/", "phish_detail_url": "http://www.phishtank.com/phish_detail.php?phish_id=7"}]`))
		}))
		t.Cleanup(feed.Close)

		s := newTestServer(t, func(d *Deps, store *repo.MemoryStore) {
			client := phishtank.NewClient(phishtank.Anonymous, "l1nkZip")
			client.BaseURL = feed.URL
			d.Updater = phishtank.NewUpdater(client, store, nil)
		})
		w := s.do(http.MethodGet, "/phishtank/update/"+adminToken+"?cleanup_days=3", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "PhishTank list updated. 0 entries have been deleted", decode[GenericInfo](t, w).Detail)

		w = s.do(http.MethodPost, "/url", `{"url":"http://bad.example.com/"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = s.do(http.MethodGet, "/phishtank/update/"+adminToken+"?cleanup_days=-1", "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("upstream error", func(t *testing.T) {
		feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(feed.Close)

		s := newTestServer(t, func(d *Deps, store *repo.MemoryStore) {
			client := phishtank.NewClient("", "l1nkZip")
			client.BaseURL = feed.URL
			d.Updater = phishtank.NewUpdater(client, store, nil)
		})
		w := s.do(http.MethodGet, "/phishtank/update/"+adminToken, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestAdminMux(t *testing.T) {
	mux := NewAdminMux(AdminOptions{
		Metrics: true,
		Build:   BuildInfo{ServiceName: "linkzip", Version: "v1"},
		Ready:   func(context.Context) error { return nil },
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[BuildInfo](t, w)
	assert.Equal(t, "v1", info.Version)
	assert.NotEmpty(t, info.GoVersion)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminMuxNotReady(t *testing.T) {
	mux := NewAdminMux(AdminOptions{Ready: func(context.Context) error { return context.DeadlineExceeded }})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
