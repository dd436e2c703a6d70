package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/exam-service/internal/services"
	"github.com/prepstack/exam-service/internal/utils"
)

func serveAttemptError(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewBaseHandler(utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	router := gin.New()
	router.GET("/attempts/:id", func(c *gin.Context) {
		h.handleServiceError(c, err)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/attempts/42", nil)
	router.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return w, body
}

func TestHandleServiceError_ConflictCarriesAttemptID(t *testing.T) {
	w, body := serveAttemptError(t, services.ErrAttemptAlreadySubmitted)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if id, ok := body["attempt_id"].(float64); !ok || id != 42 {
		t.Errorf("attempt_id = %v, want 42", body["attempt_id"])
	}
}

func TestHandleServiceError_ExpiredCarriesAttemptID(t *testing.T) {
	w, body := serveAttemptError(t, services.ErrAttemptTimeExpired)

	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", w.Code)
	}
	if id, ok := body["attempt_id"].(float64); !ok || id != 42 {
		t.Errorf("attempt_id = %v, want 42", body["attempt_id"])
	}
	if body["auto_submit"] != true {
		t.Errorf("auto_submit = %v, want true", body["auto_submit"])
	}
}
