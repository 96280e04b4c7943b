package grades

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gradewatch-backend/lib/browser"
	"gradewatch-backend/lib/coursecache"
	"gradewatch-backend/lib/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, page *fakePage) *gin.Engine {
	cleanup := telemetry.SetupForTesting(t, "test:grades")
	t.Cleanup(cleanup)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	cache := coursecache.Open(filepath.Join(t.TempDir(), "grades_cache.json"))
	service := NewService(&fakeBrowser{page: page}, cache, &fakeNotifier{}, testConfig())
	RegisterRoutes(router, service)
	return router
}

func post(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Error errorBody `json:"error"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	return body.Error.Kind
}

func TestHandleLoginSuccess(t *testing.T) {
	page := &fakePage{
		location: "https://portal.example.edu/SelfService/Home",
		cookies:  []browser.Cookie{{Name: ".AspNetCore.Session", Value: "opaque"}},
	}
	router := newTestRouter(t, page)

	w := post(router, "/auth/login", gin.H{"username": "student", "password": "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp loginResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Cookies, 1)
	require.Equal(t, ".AspNetCore.Session", resp.Cookies[0].Name)
}

func TestHandleLoginMissingFields(t *testing.T) {
	router := newTestRouter(t, &fakePage{})

	w := post(router, "/auth/login", gin.H{"username": "student"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", errorKind(t, w))
}

func TestHandleLoginMalformedBody(t *testing.T) {
	router := newTestRouter(t, &fakePage{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{nope")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_argument", errorKind(t, w))
}

func TestHandleLoginAuthFailed(t *testing.T) {
	// the flow ends back on the login page
	router := newTestRouter(t, &fakePage{location: testLoginURL})

	w := post(router, "/auth/login", gin.H{"username": "student", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "auth_failed", errorKind(t, w))
}

func TestHandleFetchSuccess(t *testing.T) {
	page := &fakePage{
		html:     reportHTML(lectureRow("CSCI101: Introduction to Computing", "A")),
		location: testGradesURL,
	}
	router := newTestRouter(t, page)

	w := post(router, "/grades/fetch", gin.H{
		"cookies":        testSession(),
		"trackedCourses": []string{"CSCI101", "MATH201"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp fetchResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Courses, 2)
	require.Equal(t, "A", *resp.Courses[0].Grade)
	require.Nil(t, resp.Courses[1].Grade)
	require.Len(t, resp.NewGrades, 1)
}

func TestHandleFetchSessionExpired(t *testing.T) {
	// the portal bounced the restored session back to login
	router := newTestRouter(t, &fakePage{location: testLoginURL})

	w := post(router, "/grades/fetch", gin.H{
		"cookies":        testSession(),
		"trackedCourses": []string{"CSCI101"},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "session_expired", errorKind(t, w))
}

func TestHandleFetchUpstreamUnreachable(t *testing.T) {
	page := &fakePage{location: testGradesURL, navFailures: 100}
	router := newTestRouter(t, page)

	w := post(router, "/grades/fetch", gin.H{
		"cookies":        testSession(),
		"trackedCourses": []string{"CSCI101"},
	})
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	require.Equal(t, "upstream_unreachable", errorKind(t, w))
}

func TestHandleFetchUnexpectedErrorIsMasked(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:grades")
	t.Cleanup(cleanup)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	cache := coursecache.Open(filepath.Join(t.TempDir(), "grades_cache.json"))
	service := NewService(&failingBrowser{}, cache, &fakeNotifier{}, testConfig())
	RegisterRoutes(router, service)

	w := post(router, "/grades/fetch", gin.H{
		"cookies":        testSession(),
		"trackedCourses": []string{"CSCI101"},
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "extraction_failed", errorKind(t, w))
	// internal details never leak into the response body
	require.NotContains(t, w.Body.String(), "chrome crashed")
}

type failingBrowser struct{}

func (failingBrowser) AcquirePage() (Page, error) {
	return nil, errors.New("chrome crashed")
}
