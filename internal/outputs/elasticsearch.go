package outputs

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/config"
	"github.com/nickborgers/monorepo/page-performance-analyzer/internal/models"
)

// ElasticsearchOutput ships analysis records to Elasticsearch as events.
// Records are write-only; the service never queries them back.
type ElasticsearchOutput struct {
	config        *config.ElasticsearchConfig
	client        *elasticsearch.Client
	bulkIndexer   esutil.BulkIndexer
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	recordChannel chan *models.AnalysisRecord
}

// indexPatterns maps index name placeholders to Go time layouts, longest first
var indexPatterns = []struct {
	placeholder string
	layout      string
}{
	{"%{+yyyy.MM.dd}", "2006.01.02"},
	{"%{+yyyy.MM}", "2006.01"},
	{"%{+yyyy}", "2006"},
}

// NewElasticsearchOutput creates a new Elasticsearch output.
// The cluster must answer within the configured connect attempts.
func NewElasticsearchOutput(ctx context.Context, cfg *config.ElasticsearchConfig) (*ElasticsearchOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.Endpoint},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	}

	// Configure authentication
	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	if cfg.TLSSkipVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	if err := ping(ctx, client, cfg); err != nil {
		return nil, err
	}

	slog.Info("connected to Elasticsearch", "endpoint", cfg.Endpoint)

	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    2,
		FlushBytes:    cfg.BulkSize * 1024,
		FlushInterval: cfg.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			slog.Error("Elasticsearch bulk indexer error", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	workerCtx, cancel := context.WithCancel(context.Background())

	e := &ElasticsearchOutput{
		config:        cfg,
		client:        client,
		bulkIndexer:   bulkIndexer,
		ctx:           workerCtx,
		cancel:        cancel,
		recordChannel: make(chan *models.AnalysisRecord, 100),
	}

	e.wg.Add(1)
	go e.processRecords()

	return e, nil
}

// ping checks the cluster is reachable, retrying with a fixed backoff
func ping(ctx context.Context, client *elasticsearch.Client, cfg *config.ElasticsearchConfig) error {
	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	err := retry.New(
		retry.Attempts(attempts),
		retry.Delay(cfg.RetryBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		res, err := client.Info(client.Info.WithContext(ctx))
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("Elasticsearch returned error: %s", res.Status())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch at %s: %w", cfg.Endpoint, err)
	}
	return nil
}

// processRecords is a background worker that feeds records to the bulk indexer
func (e *ElasticsearchOutput) processRecords() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.drain()
			return
		case record := <-e.recordChannel:
			if err := e.indexRecord(context.Background(), record); err != nil {
				slog.Error("failed to index analysis record", "analysis_id", record.AnalysisID, "error", err)
			}
		}
	}
}

// drain indexes whatever was queued before shutdown
func (e *ElasticsearchOutput) drain() {
	for {
		select {
		case record := <-e.recordChannel:
			if err := e.indexRecord(context.Background(), record); err != nil {
				slog.Error("failed to index analysis record", "analysis_id", record.AnalysisID, "error", err)
			}
		default:
			return
		}
	}
}

// indexRecord adds a single record to the bulk indexer
func (e *ElasticsearchOutput) indexRecord(ctx context.Context, record *models.AnalysisRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return e.bulkIndexer.Add(
		ctx,
		esutil.BulkIndexerItem{
			Action:     "index",
			Index:      formatIndexName(e.config.IndexPattern, record.Timestamp),
			DocumentID: record.AnalysisID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					slog.Error("Elasticsearch indexing error", "document_id", item.DocumentID, "error", err)
				} else {
					slog.Error("Elasticsearch indexing failed",
						"document_id", item.DocumentID,
						"type", res.Error.Type,
						"reason", res.Error.Reason)
				}
			},
		},
	)
}

// formatIndexName expands date placeholders such as %{+yyyy.MM.dd} in pattern
func formatIndexName(pattern string, t time.Time) string {
	t = t.UTC()
	name := pattern
	for _, p := range indexPatterns {
		name = strings.ReplaceAll(name, p.placeholder, t.Format(p.layout))
	}
	return name
}

// Write queues a record for indexing
func (e *ElasticsearchOutput) Write(record *models.AnalysisRecord) error {
	if e == nil {
		return nil
	}

	select {
	case <-e.ctx.Done():
		return fmt.Errorf("Elasticsearch output is shutting down")
	default:
	}

	select {
	case e.recordChannel <- record:
		return nil
	default:
		slog.Warn("Elasticsearch record channel is full, dropping record", "analysis_id", record.AnalysisID)
		return nil
	}
}

// Name returns the output module name
func (e *ElasticsearchOutput) Name() string {
	return "elasticsearch"
}

// Close flushes pending documents and stops the worker
func (e *ElasticsearchOutput) Close() error {
	if e == nil {
		return nil
	}

	slog.Info("shutting down Elasticsearch output")

	// Stop accepting new records and wait for the queue to drain
	e.cancel()
	e.wg.Wait()

	// Close the bulk indexer (flushes pending documents)
	if err := e.bulkIndexer.Close(context.Background()); err != nil {
		slog.Error("error closing Elasticsearch bulk indexer", "error", err)
		return err
	}

	stats := e.bulkIndexer.Stats()
	slog.Info("Elasticsearch indexer stats", "indexed", stats.NumIndexed, "failed", stats.NumFailed)

	return nil
}
