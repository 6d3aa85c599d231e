// Package scrape runs a batch of URLs through fetch, extraction and persistence.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/infobox-crawler/internal/infobox"
	"github.com/JakeFAU/infobox-crawler/internal/metrics"
	"github.com/JakeFAU/infobox-crawler/internal/writer"
)

// Persister writes extracted records; *writer.Writer implements it.
type Persister interface {
	Persist(ctx context.Context, records []infobox.Record) []writer.Outcome
}

// Detector decides whether a response needs the headless fetcher.
type Detector interface {
	ShouldPromote(resp infobox.FetchResponse) bool
}

// Config controls the optional snapshot and notification side effects.
type Config struct {
	ContentType    string
	SnapshotPrefix string
	Topic          string
}

// Deps groups the collaborators of an Orchestrator. Fetcher, Extractor and
// Writer are required; the rest are optional.
type Deps struct {
	Fetcher   infobox.Fetcher
	Headless  infobox.Fetcher
	Detector  Detector
	Extractor infobox.Extractor
	Writer    Persister
	Archive   infobox.BlobStore
	Hasher    infobox.Hasher
	Publisher infobox.Publisher
	Clock     infobox.Clock
}

// Summary counts what happened to a batch.
type Summary struct {
	Requested     int `json:"requested"`
	Skipped       int `json:"skipped"`
	Fetched       int `json:"fetched"`
	Failed        int `json:"failed"`
	Persisted     int `json:"persisted"`
	PersistFailed int `json:"persist_failed"`
}

// Orchestrator implements the batch scrape use case.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}
}

type extracted struct {
	record      infobox.Record
	snapshotURI string
}

// ScrapeAndPersist fetches every https URL, extracts its infobox and then
// persists all records. Per-URL and per-record failures are logged and
// counted; only an oversized batch fails the call.
func (o *Orchestrator) ScrapeAndPersist(ctx context.Context, urls []string) (Summary, error) {
	if len(urls) > infobox.MaxBatchURLs {
		return Summary{}, infobox.ErrTooManyURLs
	}
	summary := Summary{Requested: len(urls)}

	pending := make([]extracted, 0, len(urls))
	for _, url := range urls {
		if !strings.Contains(url, "https") {
			summary.Skipped++
			metrics.ObserveScrapeURL(url, metrics.OutcomeSkipped, 0)
			o.logger.Debug("skipping non-https url", zap.String("url", url))
			continue
		}
		item, size, err := o.handleURL(ctx, url)
		if err != nil {
			summary.Failed++
			metrics.ObserveScrapeURL(url, metrics.OutcomeFailed, size)
			o.logger.Error("scrape url failed", zap.String("url", url), zap.Error(err))
			continue
		}
		summary.Fetched++
		metrics.ObserveScrapeURL(url, metrics.OutcomeExtracted, size)
		pending = append(pending, item)
	}
	// Records already extracted are written even when the caller has gone away;
	// URLs reached after cancellation fail in the fetcher like any transport error.
	persistCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		o.logger.Warn("scrape context canceled, persisting extracted records",
			zap.Int("extracted", len(pending)),
			zap.Error(ctx.Err()),
		)
	}

	records := make([]infobox.Record, 0, len(pending))
	for _, item := range pending {
		records = append(records, item.record)
	}
	for i, outcome := range o.deps.Writer.Persist(persistCtx, records) {
		if outcome.Err != nil {
			summary.PersistFailed++
			metrics.ObserveRecord(metrics.StatusFailed, 0)
			continue
		}
		summary.Persisted++
		metrics.ObserveRecord(metrics.StatusPersisted, outcome.Facts)
		o.publish(persistCtx, outcome, pending[i].snapshotURI)
	}

	o.logger.Info("scrape batch finished",
		zap.Int("requested", summary.Requested),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("persisted", summary.Persisted),
		zap.Int("persist_failed", summary.PersistFailed),
	)
	return summary, nil
}

func (o *Orchestrator) handleURL(ctx context.Context, url string) (extracted, int, error) {
	resp, err := o.fetch(ctx, url)
	if err != nil {
		return extracted{}, 0, err
	}
	doc, err := o.deps.Extractor.Extract(resp.Body)
	if err != nil {
		return extracted{}, len(resp.Body), fmt.Errorf("extract: %w", err)
	}
	return extracted{
		record: infobox.Record{
			Title:  doc.Title,
			URL:    url,
			Fields: doc.Fields,
		},
		snapshotURI: o.archive(ctx, url, resp),
	}, len(resp.Body), nil
}

func (o *Orchestrator) fetch(ctx context.Context, url string) (infobox.FetchResponse, error) {
	resp, err := o.deps.Fetcher.Fetch(ctx, infobox.FetchRequest{URL: url})
	if err != nil {
		return infobox.FetchResponse{}, fmt.Errorf("fetch: %w", err)
	}
	if o.deps.Headless == nil || o.deps.Detector == nil || !o.deps.Detector.ShouldPromote(resp) {
		return resp, nil
	}

	headlessResp, err := o.deps.Headless.Fetch(ctx, infobox.FetchRequest{URL: url})
	if err != nil {
		o.logger.Warn("headless promotion failed", zap.String("url", url), zap.Error(err))
		return resp, nil
	}
	metrics.ObserveHeadlessPromotion()
	headlessResp.UsedHeadless = true
	return headlessResp, nil
}

// archive stores the raw body under its content hash. Failures only cost the
// snapshot.
func (o *Orchestrator) archive(ctx context.Context, url string, resp infobox.FetchResponse) string {
	if o.deps.Archive == nil || o.deps.Hasher == nil {
		return ""
	}
	hash, err := o.deps.Hasher.Hash(resp.Body)
	if err != nil {
		o.logger.Warn("hash snapshot failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	uri, err := o.deps.Archive.PutObject(ctx, o.snapshotPath(hash), o.cfg.ContentType, bytes.NewReader(resp.Body))
	if err != nil {
		o.logger.Warn("store snapshot failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) snapshotPath(hash string) string {
	prefix := strings.Trim(o.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return hash + ".html"
	}
	return fmt.Sprintf("%s/%s.html", prefix, hash)
}

func (o *Orchestrator) publish(ctx context.Context, outcome writer.Outcome, snapshotURI string) {
	if o.cfg.Topic == "" || o.deps.Publisher == nil {
		return
	}
	event := infobox.PageScrapedEvent{
		PageID:      outcome.Page.ID,
		Title:       outcome.Record.Title,
		URL:         outcome.Record.URL,
		Fields:      outcome.Record.Fields,
		SnapshotURI: snapshotURI,
	}
	if o.deps.Clock != nil {
		event.ScrapedAt = o.deps.Clock.Now()
	}
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, event)
	if err != nil {
		o.logger.Warn("publish page event failed", zap.String("url", outcome.Record.URL), zap.Error(err))
		return
	}
	o.logger.Debug("page event published",
		zap.String("url", outcome.Record.URL),
		zap.String("message_id", id),
		zap.String("snapshot_uri", snapshotURI),
	)
}
