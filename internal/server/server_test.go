package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal"
	"nfce/internal/categorize"
	"nfce/internal/config"
	"nfce/internal/fetch"
	"nfce/internal/parser"
	"nfce/internal/pipeline"
)

const receiptURL = "https://www.fazenda.pr.gov.br/nfce/qrcode?p=41240312345678000190650010000123451000012345|2|1|1|ABC"

const receiptPage = `<html><body>
<div class="txtTopo">MERCADO CURITIBA LTDA</div>
<table id="tabResult">
  <tr><td><span class="txtTit">BISC AYMORE AMAN</span><span class="RCod">(Código: 2002 )</span><br/>
    <span class="Rqtd"><strong>Qtde.:</strong>2</span><span class="RUN"><strong>UN: </strong>UN</span></td>
    <td class="txtTit noWrap">Vl. Total<br/><span class="valor">9,98</span></td></tr>
</table>
</body></html>`

type stubFetcher struct {
	pages map[string]string
}

func (f stubFetcher) FetchDocument(_ context.Context, rawURL string) (string, error) {
	if page, ok := f.pages[rawURL]; ok {
		return page, nil
	}
	return "", fmt.Errorf("%w: direct: status 404", fetch.ErrFetchFailed)
}

func newHandlers(t *testing.T) *Handlers {
	t.Helper()
	seed, err := categorize.DefaultSeed()
	require.NoError(t, err)
	cat := categorize.NewReady(seed, nil)
	svc := pipeline.NewService(
		stubFetcher{pages: map[string]string{receiptURL: receiptPage}},
		parser.NewChain(parser.Options{WeightMisparseFix: true}, nil),
		cat, nil)
	return NewHandlers(config.Config{FetchUserAgent: "nfce-test", HTTPCORSOrigins: "*"}, svc, cat, nil, nil)
}

func get(t *testing.T, h *Handlers, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := h.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp, body
}

func proxyPath(target string) string {
	return "/api/nfce-proxy?url=" + url.QueryEscape(target)
}

func TestProxyReturnsEnvelope(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nfce-test", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Cookie"))
		_, _ = w.Write([]byte("<p>nota</p>"))
	}))
	defer upstream.Close()

	resp, body := get(t, newHandlers(t), proxyPath(upstream.URL+"/consulta?p=1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "<p>nota</p>", body["html"])
	assert.Equal(t, "127.0.0.1", body["source"])
}

func TestProxyRejectsInvalidURL(t *testing.T) {
	h := newHandlers(t)
	for _, target := range []string{"/api/nfce-proxy", proxyPath("ftp://example.com/x"), proxyPath("not a url")} {
		resp, body := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Equal(t, "missing_or_invalid_url", body["error"], target)
	}
}

func TestProxyUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	resp, body := get(t, newHandlers(t), proxyPath(upstream.URL))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_error", body["error"])
	assert.EqualValues(t, http.StatusForbidden, body["status"])
}

func TestProxyTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer upstream.Close()

	h := newHandlers(t)
	h.timeout = 50 * time.Millisecond

	resp, body := get(t, h, proxyPath(upstream.URL))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "timeout", body["error"])
}

func TestProxyPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/nfce-proxy", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := newHandlers(t).App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestParseReceiptEndpoint(t *testing.T) {
	h := newHandlers(t)
	resp, err := h.App().Test(httptest.NewRequest(http.MethodGet,
		"/api/receipts/parse?categorize=1&url="+url.QueryEscape(receiptURL), nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res internal.ReceiptParseResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].Category)
	assert.Equal(t, internal.CategoryBiscuits, *res.Items[0].Category)
	require.NotNil(t, res.Meta)
	assert.Equal(t, "PR", res.Meta.UF)
}

func TestParseReceiptEndpointErrors(t *testing.T) {
	h := newHandlers(t)

	resp, body := get(t, h, "/api/receipts/parse?url="+url.QueryEscape("file:///etc/passwd"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_or_invalid_url", body["error"])

	resp, body = get(t, h, "/api/receipts/parse?url="+url.QueryEscape("https://example.com/missing"))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], "status 404")
}

func TestCategorizeEndpoint(t *testing.T) {
	h := newHandlers(t)

	resp, body := get(t, h, "/api/categorize?name="+url.QueryEscape("BANANA PRATA KG"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(internal.CategoryProduce), body["category"])
	assert.Equal(t, categorize.StageFirstWord, body["stage"])

	resp, body = get(t, h, "/api/categorize")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "missing_name", body["error"])
}

func TestHealthReportsReadiness(t *testing.T) {
	resp, body := get(t, newHandlers(t), "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["categorizerReady"])

	pending := NewHandlers(config.Config{}, nil, categorize.New(nil), nil, nil)
	_, body = get(t, pending, "/healthz")
	assert.Equal(t, false, body["categorizerReady"])
}
