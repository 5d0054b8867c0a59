package lookup

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avelar-dev/medikit/internal/config"
	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/metrics"
)

const paracetamolJSON = `{
	"resultados": [{
		"cn": "712345",
		"nombre": "PARACETAMOL CINFA 500 mg COMPRIMIDOS",
		"dosis": "500 mg",
		"labcomercializador": "CINFA",
		"formaFarmaceutica": {"nombre": "Comprimido"},
		"viasAdministracion": [{"nombre": "ORAL"}],
		"vtm": {"nombre": "paracetamol"},
		"docs": [
			{"tipo": 2, "url": "https://example.org/ficha.html"},
			{"tipo": 1, "url": "https://example.org/prospecto.html"}
		],
		"fotos": [{"url": "https://example.org/caja.jpg"}]
	}]
}`

func newTestClient(t *testing.T, baseURL string, withCache bool) *Client {
	logger, _ := zap.NewDevelopment()
	cfg := config.LookupConfig{
		BaseURL:        baseURL,
		TimeoutSeconds: 5,
		RatePerSecond:  100,
		RateBurst:      100,
		CacheTTLHours:  24,
	}
	var cache *Cache
	if withCache {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		require.NoError(t, err)
		cache, err = NewCache(db, 24*time.Hour)
		require.NoError(t, err)
	}
	return NewClient(cfg, cache, logger, metrics.New())
}

func TestExtractCN(t *testing.T) {
	// Pharmacy EAN-13 embeds the CN in digits 7..12.
	assert.Equal(t, "712345", ExtractCN("8470007123458"))
	// Non-pharmacy prefixes and bare CNs pass through.
	assert.Equal(t, "5012345678900", ExtractCN("5012345678900"))
	assert.Equal(t, "712345", ExtractCN("712345"))
}

func TestLookupByCode(t *testing.T) {
	var gotCN string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCN = r.URL.Query().Get("cn")
		fmt.Fprint(w, paracetamolJSON)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	res, err := c.LookupByCode(context.Background(), "8470007123458")
	require.NoError(t, err)

	assert.Equal(t, "712345", gotCN)
	assert.Equal(t, "PARACETAMOL CINFA 500 mg COMPRIMIDOS", res.Name)
	assert.Equal(t, "500 mg", res.Strength)
	assert.Equal(t, "Comprimido", res.Form)
	assert.Equal(t, "ORAL", res.Routes)
	assert.Equal(t, "CINFA", res.Lab)
	assert.Equal(t, "paracetamol", res.ActiveIngredient)
	assert.Equal(t, "https://example.org/prospecto.html", res.LeafletURL)
	assert.Equal(t, "https://example.org/caja.jpg", res.PhotoURL)
}

func TestLookupByCode_RetriesWithoutLeadingZeros(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cn := r.URL.Query().Get("cn")
		queries = append(queries, cn)
		if cn == "12345" {
			fmt.Fprint(w, paracetamolJSON)
			return
		}
		fmt.Fprint(w, `{"resultados": []}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	res, err := c.LookupByCode(context.Background(), "012345")
	require.NoError(t, err)
	assert.Equal(t, []string{"012345", "12345"}, queries)
	assert.Equal(t, "PARACETAMOL CINFA 500 mg COMPRIMIDOS", res.Name)
}

func TestLookupByCode_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	_, err := c.LookupByCode(context.Background(), "999999")
	assert.True(t, stderrors.Is(err, apperrors.ErrLookupNoMatch))
}

func TestLookupByCode_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	_, err := c.LookupByCode(context.Background(), "712345")
	assert.True(t, stderrors.Is(err, apperrors.ErrLookupUnavailable))
}

func TestLookupByCode_CacheHit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, paracetamolJSON)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()

	_, err := c.LookupByCode(ctx, "8470007123458")
	require.NoError(t, err)
	res, err := c.LookupByCode(ctx, "8470007123458")
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, "CINFA", res.Lab)
}

func TestSearchByText_Name(t *testing.T) {
	var gotPath, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotName = r.URL.Query().Get("nombre")
		fmt.Fprint(w, paracetamolJSON)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	results, err := c.SearchByText(context.Background(), "paracetamol cinfa")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/medicamentos", gotPath)
	assert.Equal(t, "paracetamol cinfa", gotName)
}

func TestSearchByText_NumericGoesByCN(t *testing.T) {
	var gotCN string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCN = r.URL.Query().Get("cn")
		fmt.Fprint(w, `{"resultados": []}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	results, err := c.SearchByText(context.Background(), "0712345")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "712345", gotCN)
}

func TestSearchByText_Empty(t *testing.T) {
	c := newTestClient(t, "http://unused", false)

	_, err := c.SearchByText(context.Background(), "   ")
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, false)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := c.SearchByText(ctx, "paracetamol")
		require.Error(t, err)
	}

	// The breaker now fails fast without touching the server.
	_, err := c.SearchByText(ctx, "paracetamol")
	assert.True(t, stderrors.Is(err, apperrors.ErrLookupUnavailable))
}

func TestParseLeaflet(t *testing.T) {
	html := `<html><head><title>fallback</title></head><body>
		<h1>Prospecto: Paracetamol Cinfa 500 mg</h1>
		<h2>1. Qué es y para qué se utiliza</h2>
		<p>Analgésico   y antipirético.</p>
		<p>Para el dolor leve.</p>
		<h2>2. Antes de tomar</h2>
		<p>No tome si es alérgico.</p>
	</body></html>`

	leaflet, err := ParseLeaflet(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, "Prospecto: Paracetamol Cinfa 500 mg", leaflet.Title)
	require.Len(t, leaflet.Sections, 2)
	assert.Equal(t, "1. Qué es y para qué se utiliza", leaflet.Sections[0].Heading)
	assert.Equal(t, "Analgésico y antipirético.\nPara el dolor leve.", leaflet.Sections[0].Text)
	assert.Equal(t, "No tome si es alérgico.", leaflet.Sections[1].Text)
}

func TestCache_Expiry(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	cache, err := NewCache(db, time.Nanosecond)
	require.NoError(t, err)

	cache.Put("712345", &Result{Name: "whatever"})
	time.Sleep(time.Millisecond)

	_, ok := cache.Get("712345")
	assert.False(t, ok)
	require.NoError(t, cache.Prune())
}
