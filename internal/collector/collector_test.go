package collector

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const payload = `[{"timestamp":"2024-01-01T00:00:00Z","level":"Warning","messageTemplate":"Disk {Pct}","properties":{"Pct":91,"Tags":["a"],"Ctx":{"Host":"h1"}},"exception":"boom"}]`

func post(t *testing.T, dial fasthttp.DialFunc, path, key, encoding string, body []byte) (int, string) {
	t.Helper()
	client := &fasthttp.Client{Dial: dial}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://collector.test" + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("X-Batch-Id", "b-1")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if encoding != "" {
		req.Header.Set(fasthttp.HeaderContentEncoding, encoding)
	}
	req.SetBody(body)

	require.NoError(t, client.Do(req, resp))
	return resp.StatusCode(), string(resp.Body())
}

func startCollector(t *testing.T, opts ...Option) (*Collector, fasthttp.DialFunc) {
	t.Helper()
	c := New(opts...)
	dial, stop := c.ServeInmemory()
	t.Cleanup(func() { _ = stop() })
	return c, dial
}

func TestCollectorAcceptsBatch(t *testing.T) {
	c, dial := startCollector(t, WithDirective(`{"MinimumLevelAccepted":"Error"}`))

	status, body := post(t, dial, "/logging/bulk", "", "", []byte(payload))
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.JSONEq(t, `{"MinimumLevelAccepted":"Error"}`, body)

	batches := c.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "b-1", batches[0].ID)

	ev := batches[0].Events[0]
	assert.Equal(t, "Warning", ev.Level)
	assert.Equal(t, "Disk {Pct}", ev.MessageTemplate)
	assert.Equal(t, "boom", ev.Exception)
	assert.Equal(t, float64(91), ev.Properties["Pct"])
	assert.Equal(t, []any{"a"}, ev.Properties["Tags"])
	assert.Equal(t, map[string]any{"Host": "h1"}, ev.Properties["Ctx"])
}

func TestCollectorGzipBody(t *testing.T) {
	c, dial := startCollector(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	status, _ := post(t, dial, "/logging/bulk", "", "gzip", buf.Bytes())
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Len(t, c.Events(), 1)

	status, _ = post(t, dial, "/logging/bulk", "", "br", []byte(payload))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestCollectorRejects(t *testing.T) {
	c, dial := startCollector(t, WithAPIKey("secret"))

	status, _ := post(t, dial, "/logging/bulk", "wrong", "", []byte(payload))
	assert.Equal(t, fasthttp.StatusUnauthorized, status)

	status, _ = post(t, dial, "/other", "secret", "", []byte(payload))
	assert.Equal(t, fasthttp.StatusNotFound, status)

	status, _ = post(t, dial, "/logging/bulk", "secret", "", []byte(`{"not":"array"}`))
	assert.Equal(t, fasthttp.StatusBadRequest, status)

	assert.Empty(t, c.Batches())
	assert.Equal(t, 3, c.Requests())
}

func TestCollectorFailNext(t *testing.T) {
	var seen []Batch
	c, dial := startCollector(t, WithBatchHandler(func(b Batch) { seen = append(seen, b) }))

	c.FailNext(fasthttp.StatusNotFound, 2)
	for i := 0; i < 2; i++ {
		status, _ := post(t, dial, "/logging/bulk", "", "", []byte(payload))
		assert.Equal(t, fasthttp.StatusNotFound, status)
	}

	status, _ := post(t, dial, "/logging/bulk", "", "", []byte(`[]`))
	assert.Equal(t, fasthttp.StatusOK, status)
	require.Len(t, seen, 1)
	assert.Empty(t, seen[0].Events, "empty batches are level refreshes")

	select {
	case <-c.Accepted():
	default:
		t.Fatal("accepted batch not signaled")
	}
}
