package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"covault/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	db := setupTestDB(t)

	calls := 0
	handler := WithIdempotency(db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"call":%d}`, calls)
	}))

	issue := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
		req.Header.Set("Idempotency-Key", "key-1")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder
	}

	first := issue()
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, `{"call":1}`, first.Body.String())

	second := issue()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, `{"call":1}`, second.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	db := setupTestDB(t)

	calls := 0
	handler := WithIdempotency(db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusOK, recorder.Code)
	}
	require.Equal(t, 2, calls)

	var count int64
	require.NoError(t, db.Model(&models.IdempotencyKey{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestIdempotencyKeysAreIndependent(t *testing.T) {
	db := setupTestDB(t)

	calls := 0
	handler := WithIdempotency(db, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, key := range []string{"key-a", "key-b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
		req.Header.Set("Idempotency-Key", key)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		require.Equal(t, http.StatusCreated, recorder.Code)
	}
	require.Equal(t, 2, calls)
}
