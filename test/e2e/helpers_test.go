package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/store/memstore"
)

const header = "node_name,website,entity_name,node_category,direction,notes,connect_targets,protocols_supported,data_types_supported"

// Harness runs the full HTTP stack in-process on the in-memory store
type Harness struct {
	t      *testing.T
	Server *httptest.Server
	Store  *memstore.Store
	Audit  *audit.MemorySink
	srv    *server.Server
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	st := memstore.New()
	sink := &audit.MemorySink{}

	srv := server.New(cfg, logger, server.Backends{
		Registry:   st.Registry(),
		Staging:    st.Staging(),
		Batches:    st.Batches(),
		Transactor: st,
		AuditSink:  sink,
	})
	ts := httptest.NewServer(srv.Echo)
	t.Cleanup(ts.Close)

	return &Harness{t: t, Server: ts, Store: st, Audit: sink, srv: srv}
}

// Client issues requests as one owner
type Client struct {
	h       *Harness
	ownerID string
	userID  string
}

func (h *Harness) As(ownerID, userID string) *Client {
	return &Client{h: h, ownerID: ownerID, userID: userID}
}

func (c *Client) do(method, path, contentType string, body io.Reader) (int, []byte) {
	c.h.t.Helper()
	req, err := http.NewRequest(method, c.h.Server.URL+path, body)
	require.NoError(c.h.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.ownerID != "" {
		req.Header.Set(middleware.HeaderOwnerID, c.ownerID)
	}
	if c.userID != "" {
		req.Header.Set(middleware.HeaderUserID, c.userID)
	}

	resp, err := c.h.Server.Client().Do(req)
	require.NoError(c.h.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.h.t, err)
	return resp.StatusCode, data
}

// Get performs a GET request and decodes a JSON response into out when it is non-nil
func (c *Client) Get(path string, out any) int {
	code, data := c.do(http.MethodGet, path, "", nil)
	decode(c.h.t, data, out)
	return code
}

// Post performs a POST request with a JSON body
func (c *Client) Post(path string, body, out any) int {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.h.t, err)
		reader = bytes.NewReader(data)
	}
	code, data := c.do(http.MethodPost, path, "application/json", reader)
	decode(c.h.t, data, out)
	return code
}

// PostCSV uploads a raw CSV body
func (c *Client) PostCSV(path, csvText string, out any) int {
	code, data := c.do(http.MethodPost, path, "text/csv", bytes.NewBufferString(csvText))
	decode(c.h.t, data, out)
	return code
}

func decode(t *testing.T, data []byte, out any) {
	t.Helper()
	if out == nil {
		return
	}
	require.NoError(t, json.Unmarshal(data, out), string(data))
}
