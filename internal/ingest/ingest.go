// Package ingest downloads the raw customer extract into the artifact store.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/dataset"
	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/storage"
)

// maxBody caps the extract size.
const maxBody = 256 << 20

// Client fetches the raw CSV over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(url string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Fetch downloads the extract and checks that it parses as a customer table.
func (c *Client) Fetch(ctx context.Context) ([]byte, *dataset.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("download %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("download %s: status %d: %s", c.url, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", c.url, err)
	}
	if len(body) > maxBody {
		return nil, nil, fmt.Errorf("download %s: body exceeds %d bytes", c.url, maxBody)
	}

	t, err := dataset.ReadCSV(bytes.NewReader(body), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", c.url, err)
	}
	for _, col := range []string{schema.ColCustomerID, schema.ColTotalCharges} {
		if !t.HasColumn(col) {
			return nil, nil, fmt.Errorf("parse %s: column %q not found", c.url, col)
		}
	}
	return body, t, nil
}

// Download fetches the extract and saves it unchanged under name.
func (c *Client) Download(ctx context.Context, store storage.Store, name string) (int, error) {
	body, t, err := c.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.Save(ctx, name, body); err != nil {
		return 0, err
	}
	c.log.Info("downloaded raw extract",
		zap.String("url", c.url),
		zap.String("artifact", name),
		zap.Int("rows", t.Len()),
		zap.Int("bytes", len(body)))
	return t.Len(), nil
}
