// Package hub is a read-only client for the dataset repository's metadata
// service. It is used as a row-count and schema oracle: one lightweight
// request answers per-(config, split) example counts and the feature set
// without transferring any data.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// DefaultConfigName is the config key datasets without explicit configs
// publish their metadata under.
const DefaultConfigName = "default"

// Feature is one column of the dataset schema. Features keep the order the
// service reports them in.
type Feature struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

type SplitInfo struct {
	NumExamples int64 `json:"num_examples"`
}

// Info describes one dataset config.
type Info struct {
	Features []Feature            `json:"features"`
	Splits   map[string]SplitInfo `json:"splits"`
}

// ColumnNames returns the feature names in service order.
func (i Info) ColumnNames() []string {
	columns := make([]string, 0, len(i.Features))
	for _, feature := range i.Features {
		columns = append(columns, feature.Name)
	}
	return columns
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// infosResponse is the wire shape of the infos endpoint.
type infosResponse struct {
	DatasetInfo map[string]Info `json:"dataset_info"`
}

// DatasetInfos fetches the metadata of every config of the given
// repository. Network failures are returned as-is; the caller decides
// whether to fall back to opening the dataset.
func (c *Client) DatasetInfos(ctx context.Context, repoID string) (map[string]Info, error) {
	endpoint := fmt.Sprintf("%s/api/datasets/%s/infos", c.baseURL, url.PathEscape(repoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching infos for %s", repoID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("fetching infos for %s: %s: %s", repoID, resp.Status, body)
	}
	var payload infosResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "decoding infos for %s", repoID)
	}
	return payload.DatasetInfo, nil
}
