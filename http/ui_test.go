package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricelab/apps"
)

func postForm(t *testing.T, env *testEnv, target string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	body := rr.Body.String()
	assert.Contains(t, body, `href="/apps/house"`)
	assert.Contains(t, body, `href="/apps/car"`)
	assert.Contains(t, body, `href="/apps/stock"`)
	assert.Contains(t, body, "not trained")
	assert.Contains(t, body, "model loaded")
}

func TestUnknownPathIs404(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/apps/boat", "").Code)
}

func TestFormWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	for _, app := range []string{"house", "car"} {
		rr := env.do(t, http.MethodGet, "/apps/"+app, "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "Model not loaded. Run <code>train_model -app "+app+"</code> first.")
	}

	rr := postForm(t, env, "/apps/car", url.Values{"Year": {"2015"}})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestStockFormShowsFallbackWithoutDataset(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/apps/stock", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Dataset not found")
	assert.Contains(t, body, `name="Close" value="505.00"`)
	assert.Contains(t, body, `name="Volume" value="100000"`)
}

func TestStockFormSubmit(t *testing.T) {
	env := newTestEnv(t)
	rr := postForm(t, env, "/apps/stock", url.Values{
		"Open": {"500"}, "High": {"510"}, "Low": {"490"}, "Close": {"505"}, "Volume": {"100000"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "₹ 507.00")
	assert.Contains(t, body, "Change vs today: &#43;2.00")
	assert.Contains(t, body, "The trend is Bullish (Upwards).")
	assert.Contains(t, body, `name="Close" value="505"`)
}

func TestStockFormSubmitInvalid(t *testing.T) {
	env := newTestEnv(t)
	rr := postForm(t, env, "/apps/stock", url.Values{"Open": {"abc"}})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `class="error"`)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/static/style.css", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), ".result")
}

func TestStockFormDrawsCloseHistory(t *testing.T) {
	env := newTestEnv(t)
	csv := "Date,Open,High,Low,Close,Volume\n" +
		"2024-01-02,101,103,100,102,1100\n" +
		"2024-01-01,100,102,99,101,1000\n" +
		"2024-01-03,102,104,101,103,1300\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.datasetDir, "tata_stock.csv"), []byte(csv), 0o600))

	rr := env.do(t, http.MethodGet, "/apps/stock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `<polyline points="0.0,200.0 300.0,100.0 600.0,0.0"`)
	assert.Contains(t, body, "Close 2024-01-01 to 2024-01-03, range 101.00 to 103.00")
	assert.Contains(t, body, `name="Close" value="103"`)
}

func TestPriceChart(t *testing.T) {
	assert.Nil(t, newPriceChart(nil))
	assert.Nil(t, newPriceChart([]apps.PricePoint{{Date: "2024-01-01", Close: 5}}))

	flat := newPriceChart([]apps.PricePoint{{Date: "a", Close: 5}, {Date: "b", Close: 5}})
	require.NotNil(t, flat)
	assert.Equal(t, "0.0,100.0 600.0,100.0", flat.Points)
	assert.Equal(t, 5.0, flat.Min)
	assert.Equal(t, 5.0, flat.Max)
}
