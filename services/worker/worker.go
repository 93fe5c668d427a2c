package worker

import (
	"context"
	"sync"
	"time"

	"kzfm923/madealworker/config"
	"kzfm923/madealworker/internal/crawler"
	"kzfm923/madealworker/internal/pipeline"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/services/cache"
	"kzfm923/madealworker/services/store"
)

// Worker runs the whole crawl: every enabled source in parallel, pages
// and detail fetches sequential inside a source, one store append per
// run. Sources are isolated; one failing or getting blocked never stops
// the others.
type Worker struct {
	ctx      context.Context
	cfg      *config.Config
	sources  []config.SourceConfig
	store    store.Store
	cooldown *cache.Cooldown
	log      *logger.Logger
}

// NewWorker creates a worker over the enabled sources
func NewWorker(
	ctx context.Context,
	cfg *config.Config,
	sources []config.SourceConfig,
	st store.Store,
	cooldown *cache.Cooldown,
) *Worker {
	return &Worker{
		ctx:      ctx,
		cfg:      cfg,
		sources:  sources,
		store:    st,
		cooldown: cooldown,
		log:      logger.ForWorker(),
	}
}

// Start runs crawl cycles until the context is cancelled. A zero crawl
// interval means a single run.
func (w *Worker) Start() error {
	for {
		start := time.Now()
		if err := w.RunOnce(); err != nil {
			return err
		}
		w.log.Info().Dur("elapsed", time.Since(start)).Msg("Crawl cycle finished")

		if w.cfg.CrawlInterval == 0 {
			return nil
		}

		select {
		case <-w.ctx.Done():
			return nil
		case <-time.After(w.cfg.CrawlInterval):
		}
	}
}

// RunOnce executes one full crawl cycle. The store is read before any
// crawling so an unreachable destination fails the run up front.
func (w *Worker) RunOnce() error {
	existing, err := w.store.ExistingIDs()
	if err != nil {
		return err
	}
	w.log.Info().
		Int("known_ids", len(existing)).
		Int("sources", len(w.sources)).
		Msg("Starting crawl cycle")

	var mu sync.Mutex
	var collected []pipeline.FormattedRecord

	var wg sync.WaitGroup
	for _, src := range w.sources {
		wg.Add(1)
		go func(src config.SourceConfig) {
			defer wg.Done()
			records := w.runSource(src, existing)
			if len(records) == 0 {
				return
			}
			mu.Lock()
			collected = append(collected, records...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	if err := w.store.Append(collected); err != nil {
		return err
	}
	w.log.Info().Int("new_records", len(collected)).Msg("Crawl cycle persisted")
	return nil
}

// runSource crawls one source end to end. Each source gets its own
// controller, fetcher, and copy of the known-id set; nothing mutable is
// shared between source goroutines.
func (w *Worker) runSource(src config.SourceConfig, existing map[string]struct{}) []pipeline.FormattedRecord {
	log := logger.ForSource(src.Name)

	if w.cooldown.Active(src.Name) {
		log.Warn().Msg("Source is cooling off after a block, skipping this run")
		return nil
	}

	adapter, err := crawler.BuildAdapter(src)
	if err != nil {
		logger.LogError(src.Name, err, "Failed to build source adapter")
		return nil
	}

	fetcher := crawler.BuildFetcher(src)
	if closer, ok := fetcher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	controller := crawler.NewController(crawler.ControllerConfig{
		Source:        src.Name,
		HumanDelay:    crawler.DelayWindow{Min: w.cfg.HumanDelayMin, Max: w.cfg.HumanDelayMax},
		RecoveryDelay: crawler.DelayWindow{Min: w.cfg.RecoveryDelayMin, Max: w.cfg.RecoveryDelayMax},
		MinInterval:   w.cfg.MinRequestInterval,
	}, fetcher)

	thresholds := pipeline.Thresholds{
		MinRevenue: src.Thresholds.MinRevenueMillion * 1_000_000,
		MinProfit:  src.Thresholds.MinProfitMillion * 1_000_000,
	}
	known := pipeline.NewIDSet(existing)

	var out []pipeline.FormattedRecord
	for page := 1; page <= adapter.MaxPages(); page++ {
		if controller.Aborted() {
			break
		}

		pageURL := adapter.PageURL(page)
		body, outcome, err := controller.Fetch(w.ctx, pageURL)
		if outcome != crawler.FetchSuccess {
			logger.LogError(src.Name, err, "List page %d fetch ended with outcome %s", page, outcome)
			if outcome == crawler.FetchBlocked {
				break
			}
			// Transient and fatal failures lose this page only
			continue
		}

		records, err := adapter.ParseList(body, pageURL)
		if err != nil {
			logger.LogError(src.Name, err, "Failed to parse list page %d", page)
			continue
		}
		if page == 1 && len(records) == 0 {
			log.Warn().Str("url", pageURL).Msg("First page yielded zero items, selectors may have drifted")
		}

		records = pipeline.FilterByThreshold(records, thresholds)

		if adapter.DetailEnrich() {
			records = w.enrichDetails(adapter, controller, records)
			// Enrichment can reveal disqualifying financials the list hid
			records = pipeline.FilterByThreshold(records, thresholds)
		}

		out = append(out, pipeline.Ingest(records, known, time.Now())...)
	}

	if controller.Aborted() {
		w.cooldown.Mark(src.Name)
		log.Warn().Msg("Source ended blocked, cooldown recorded")
	}

	log.Info().Int("records", len(out)).Msg("Source finished")
	return out
}

// enrichDetails fetches each record's detail page sequentially,
// stopping as soon as the session reports blocked so the remaining
// items are skipped rather than hammered.
func (w *Worker) enrichDetails(a *crawler.Adapter, c *crawler.Controller, records []crawler.RawRecord) []crawler.RawRecord {
	for i := range records {
		if c.Aborted() {
			break
		}
		if records[i].DetailLink == "" {
			continue
		}

		body, outcome, err := c.Fetch(w.ctx, records[i].DetailLink)
		if outcome != crawler.FetchSuccess {
			logger.LogError(records[i].Source, err, "Detail fetch ended with outcome %s", outcome)
			if outcome == crawler.FetchBlocked {
				break
			}
			continue
		}

		if err := a.EnrichDetail(&records[i], body); err != nil {
			logger.LogError(records[i].Source, err, "Failed to parse detail page")
		}
	}
	return records
}
