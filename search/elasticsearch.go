package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"strconv"

	"example.com/backstage/services/ledger/config"
	"example.com/backstage/services/ledger/domain"
)

// TransactionsIndex holds every processed event for history search.
const TransactionsIndex = "transactions"

// Client indexes processed events into Elasticsearch. A nil or disabled
// client skips indexing; search is a secondary projection, never load-bearing.
type Client struct {
	es     *elasticsearch.Client
	prefix string
}

// NewClient creates a new Elasticsearch client, or nil when disabled.
func NewClient(cfg config.Config) (*Client, error) {
	if !cfg.ElasticSearchEnabled {
		return nil, nil
	}

	elasticCfg := elasticsearch.Config{
		Addresses: []string{cfg.ElasticSearchURL},
		Username:  cfg.ElasticSearchUsername,
		Password:  cfg.ElasticSearchPassword,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}

	es, err := elasticsearch.NewClient(elasticCfg)
	if err != nil {
		return nil, errors.Wrap(err, "error creating Elasticsearch client")
	}

	// Check the connection
	res, err := es.Info()
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to Elasticsearch")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("Elasticsearch returned error: %s", res.String())
	}

	log.Info().Msg("Successfully connected to Elasticsearch")
	return &Client{es: es, prefix: cfg.ElasticSearchPrefix}, nil
}

// IndexEvent indexes one event into the transactions index, keyed by the
// store-assigned event id so re-indexing on replay is idempotent.
func (c *Client) IndexEvent(ctx context.Context, event domain.Event) error {
	if c == nil {
		return nil
	}

	doc, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	index := c.prefix + "-" + TransactionsIndex
	res, err := c.es.Index(
		index,
		bytes.NewReader(doc),
		c.es.Index.WithDocumentID(strconv.FormatInt(event.ID, 10)),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "failed to index event")
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.Errorf("failed to index event: %s", res.String())
	}

	return nil
}
