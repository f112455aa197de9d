package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/catalog-pipeline/pkg/apperrors"
	"github.com/ekaya-inc/catalog-pipeline/pkg/config"
	"github.com/ekaya-inc/catalog-pipeline/pkg/models"
)

const twoProducts = `[
	{"id":1,"title":"Backpack","price":109.95,"description":"d1","category":"men's clothing","image":"https://img/1.jpg","rating":{"rate":3.9,"count":120}},
	{"id":2,"title":"Ring","price":"abc","description":"d2","category":"jewelery","image":"https://img/2.jpg","rating":{"rate":4.6,"count":400}}
]`

func newTestClient(maxBody int64) *Client {
	return NewClient(config.SourceConfig{
		Timeout:      2 * time.Second,
		MaxBodyBytes: maxBody,
		UserAgent:    "catalog-pipeline-test",
	}, zap.NewNop())
}

func TestFetchProducts_Success(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "catalog-pipeline-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(twoProducts))
	}))
	defer server.Close()

	products, err := newTestClient(0).FetchProducts(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, []string{"id", "title", "price", "description", "category", "image", "rating"}, products[0].Keys)
	price, _ := products[1].Get(models.AttrPrice)
	assert.Equal(t, `"abc"`, string(price))
}

func TestFetchProducts_NonSuccessStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(0).FetchProducts(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRetrieval)

	var re *apperrors.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusServiceUnavailable, re.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "fetch must not retry")
}

func TestFetchProducts_MalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"object instead of array", `{"products":[]}`},
		{"array of scalars", `[1,2,3]`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(0).FetchProducts(context.Background(), server.URL)
			assert.ErrorIs(t, err, apperrors.ErrRetrieval)
		})
	}
}

func TestFetchProducts_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(twoProducts))
	}))
	defer server.Close()

	_, err := newTestClient(16).FetchProducts(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRetrieval)
	assert.True(t, strings.Contains(err.Error(), "exceeds"))
}

func TestFetchProducts_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(config.SourceConfig{Timeout: 20 * time.Millisecond}, zap.NewNop())
	_, err := client.FetchProducts(context.Background(), server.URL)
	assert.ErrorIs(t, err, apperrors.ErrRetrieval)
}

func TestFetchProducts_EmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	products, err := newTestClient(0).FetchProducts(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, products)
}
