// Package lookup queries the CIMA drug registry (the Spanish agency's
// public REST API) for medication metadata by barcode, national code
// or name.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avelar-dev/medikit/internal/config"
	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/metrics"
)

// Result is the metadata subset used to prefill a medication form.
type Result struct {
	CN               string `json:"cn"`
	Name             string `json:"name"`
	Strength         string `json:"strength"`
	Form             string `json:"form"`
	Routes           string `json:"routes"`
	Lab              string `json:"lab"`
	ActiveIngredient string `json:"activeIngredient"`
	LeafletURL       string `json:"leafletUrl"`
	PhotoURL         string `json:"photoUrl"`
}

// CIMA wire format.
type cimaResponse struct {
	Resultados []cimaMed `json:"resultados"`
}

type cimaMed struct {
	CN                 string `json:"cn"`
	Nombre             string `json:"nombre"`
	Dosis              string `json:"dosis"`
	Labcomercializador string `json:"labcomercializador"`
	FormaFarmaceutica  struct {
		Nombre string `json:"nombre"`
	} `json:"formaFarmaceutica"`
	ViasAdministracion []struct {
		Nombre string `json:"nombre"`
	} `json:"viasAdministracion"`
	VTM struct {
		Nombre string `json:"nombre"`
	} `json:"vtm"`
	Docs []struct {
		Tipo int    `json:"tipo"`
		URL  string `json:"url"`
	} `json:"docs"`
	Fotos []struct {
		URL string `json:"url"`
	} `json:"fotos"`
}

const docTypeLeaflet = 1

var numericQuery = regexp.MustCompile(`^\d{6,13}$`)

// Client calls the registry behind a rate limiter and a circuit
// breaker. Lookups are never retried automatically after a
// connectivity failure; the breaker just sheds load while the
// registry is down.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]Result]
	cache   *Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg config.LookupConfig, cache *Cache, logger *zap.Logger, m *metrics.Metrics) *Client {
	c := &Client{
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		cache:   cache,
		logger:  logger,
		metrics: m,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]Result](gobreaker.Settings{
		Name:    "cima",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Registry breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// ExtractCN derives the national code from a scanned barcode. Spanish
// pharmacy EAN-13 codes start with 847 and embed the CN in digits
// 7 to 12; anything else is used as-is.
func ExtractCN(code string) string {
	if len(code) == 13 && strings.HasPrefix(code, "847") {
		return code[6:12]
	}
	return code
}

// LookupByCode resolves a scanned barcode or national code to one
// medication. A CN that returns nothing is retried once with leading
// zeros stripped, the way the registry actually indexes short codes.
func (c *Client) LookupByCode(ctx context.Context, code string) (*Result, error) {
	cn := ExtractCN(code)

	if c.cache != nil {
		if hit, ok := c.cache.Get(cn); ok {
			c.metrics.LookupCacheHits.Inc()
			return hit, nil
		}
	}

	results, err := c.queryCN(ctx, cn)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		if stripped := strings.TrimLeft(cn, "0"); stripped != cn && stripped != "" {
			results, err = c.queryCN(ctx, stripped)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(results) == 0 {
		return nil, apperrors.Wrap(fmt.Errorf("code %s", code), apperrors.ErrLookupNoMatch, "no medication matches the code")
	}

	match := results[0]
	if c.cache != nil {
		c.cache.Put(cn, &match)
	}
	return &match, nil
}

// SearchByText searches by national code when the query is all
// digits, by partial name otherwise.
func (c *Client) SearchByText(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Wrap(fmt.Errorf("empty query"), apperrors.ErrValidation, "search query is empty")
	}
	if numericQuery.MatchString(query) {
		return c.queryCN(ctx, strings.TrimLeft(ExtractCN(query), "0"))
	}
	return c.fetch(ctx, c.baseURL+"/medicamentos?nombre="+url.QueryEscape(query))
}

func (c *Client) queryCN(ctx context.Context, cn string) ([]Result, error) {
	return c.fetch(ctx, c.baseURL+"/medicamentos?cn="+url.QueryEscape(cn))
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrLookupUnavailable, "lookup cancelled")
	}
	c.metrics.LookupRequests.Inc()

	results, err := c.breaker.Execute(func() ([]Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			// The registry answers 404 for unknown codes.
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("registry returned %d", resp.StatusCode)
		}

		var payload cimaResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}

		out := make([]Result, 0, len(payload.Resultados))
		for _, med := range payload.Resultados {
			out = append(out, med.toResult())
		}
		return out, nil
	})
	if err != nil {
		c.metrics.LookupFailures.Inc()
		c.logger.Warn("Registry lookup failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrLookupUnavailable, "could not reach the medication registry")
	}
	return results, nil
}

func (m cimaMed) toResult() Result {
	routes := make([]string, 0, len(m.ViasAdministracion))
	for _, v := range m.ViasAdministracion {
		routes = append(routes, v.Nombre)
	}
	r := Result{
		CN:               m.CN,
		Name:             m.Nombre,
		Strength:         m.Dosis,
		Form:             m.FormaFarmaceutica.Nombre,
		Routes:           strings.Join(routes, ", "),
		Lab:              m.Labcomercializador,
		ActiveIngredient: m.VTM.Nombre,
	}
	for _, doc := range m.Docs {
		if doc.Tipo == docTypeLeaflet {
			r.LeafletURL = doc.URL
			break
		}
	}
	if len(m.Fotos) > 0 {
		r.PhotoURL = m.Fotos[0].URL
	}
	return r
}
