package bgg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/metrics"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
	"github.com/ryanm101/spielpendium/internal/tracing"
)

// Catalog is the network collaborator used by the importer.
type Catalog interface {
	Collection(ctx context.Context, user string, filters Filters, force bool) (Document, error)
	Items(ctx context.Context, ids []string, stats, force bool) (Document, error)
	Image(ctx context.Context, url string) ([]byte, error)
}

var _ Catalog = (*Client)(nil)

// ImagePolicy decides what happens when an item's image cannot be fetched
// or decoded.
type ImagePolicy string

const (
	PolicyAbort       ImagePolicy = "abort"       // fail the whole import
	PolicyPlaceholder ImagePolicy = "placeholder" // substitute a grey placeholder
	PolicySkip        ImagePolicy = "skip"        // drop the item and report it
)

// ParseImagePolicy parses a policy name. Empty means placeholder.
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch p := ImagePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPlaceholder, nil
	case PolicyAbort, PolicyPlaceholder, PolicySkip:
		return p, nil
	default:
		return "", apperr.Invalid("image policy", "", fmt.Errorf("unknown policy %q", s))
	}
}

const (
	DefaultChunkSize = 20
	DefaultImageSize = 256
)

// ImportOptions tunes an import.
type ImportOptions struct {
	Filters   Filters
	Force     bool // bypass the response cache
	ChunkSize int  // items per detail request
	Workers   int  // image fetch workers (default: NumCPU)
	ImageSize int  // longest image side after import
	Policy    ImagePolicy
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ImageSize <= 0 {
		o.ImageSize = DefaultImageSize
	}
	if o.Policy == "" {
		o.Policy = PolicyPlaceholder
	}
	return o
}

// ImportResult is the aggregate outcome of an import.
type ImportResult struct {
	BatchID  string
	Records  []*record.Record
	Skipped  []Skipped
	Duration time.Duration
}

// Importer turns catalog documents into records with images.
type Importer struct {
	catalog Catalog
	logger  *slog.Logger
	newID   func() string
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithImporterLogger sets the importer logger.
func WithImporterLogger(l *slog.Logger) ImporterOption {
	return func(i *Importer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithBatchIDs overrides batch identifier generation.
func WithBatchIDs(gen func() string) ImporterOption {
	return func(i *Importer) {
		if gen != nil {
			i.newID = gen
		}
	}
}

// NewImporter creates an importer backed by catalog.
func NewImporter(catalog Catalog, opts ...ImporterOption) *Importer {
	i := &Importer{catalog: catalog, newID: uuid.NewString}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.Component(i.logger, "import")
	return i
}

// ImportUser imports every item in a user's catalog collection.
func (i *Importer) ImportUser(ctx context.Context, user string, opts ImportOptions) (*ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "bgg.import_user", tracing.WithAttributes(attribute.String("user", user)))
	defer span.End()

	doc, err := i.catalog.Collection(ctx, user, opts.Filters, opts.Force)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("fetch collection for %s: %w", user, err)
	}
	ids, err := CollectionIDs(doc)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("read collection for %s: %w", user, err)
	}
	i.logger.Info("collection fetched", "user", user, "items", len(ids))

	res, err := i.importIDs(ctx, ids, opts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.SetSpanOK(span)
	return res, nil
}

// ImportItems imports explicit catalog identifiers.
func (i *Importer) ImportItems(ctx context.Context, ids []string, opts ImportOptions) (*ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "bgg.import_items", tracing.WithAttributes(attribute.Int("ids", len(ids))))
	defer span.End()

	var bad []string
	for _, id := range ids {
		if !schema.ValidID(id) {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		err := apperr.Invalid("import", strings.Join(bad, ","), errors.New("invalid identifiers"), schema.KeyField)
		tracing.RecordError(span, err)
		return nil, err
	}

	res, err := i.importIDs(ctx, dedupe(ids), opts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	tracing.SetSpanOK(span)
	return res, nil
}

func (i *Importer) importIDs(ctx context.Context, ids []string, opts ImportOptions) (*ImportResult, error) {
	opts = opts.withDefaults()
	start := time.Now()
	res := &ImportResult{BatchID: i.newID()}
	log := i.logger.With("batch", res.BatchID)

	var items []Item
	for lo := 0; lo < len(ids); lo += opts.ChunkSize {
		chunk := ids[lo:min(lo+opts.ChunkSize, len(ids))]
		doc, err := i.catalog.Items(ctx, chunk, true, opts.Force)
		if err != nil {
			return nil, fmt.Errorf("fetch details for %d items: %w", len(chunk), err)
		}
		batch, err := Normalize(doc)
		if err != nil {
			return nil, fmt.Errorf("read details: %w", err)
		}
		items = append(items, batch.Items...)
		res.Skipped = append(res.Skipped, batch.Skipped...)
		res.Skipped = append(res.Skipped, missing(chunk, batch)...)
	}
	log.Debug("details normalized", "items", len(items), "skipped", len(res.Skipped))

	urls := make([]string, len(items))
	for n, it := range items {
		urls[n] = it.ImageURL
	}
	pool := ImagePool{Workers: opts.Workers}
	fetched := pool.FetchAll(ctx, urls, i.catalog.Image)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch images: %w", err)
	}

	for n, it := range items {
		img, err := decodeFetched(fetched[n], opts.ImageSize)
		if err == nil {
			metrics.ImagesFetched.WithLabelValues("ok").Inc()
			it.Record.Image = img
			res.Records = append(res.Records, it.Record)
			continue
		}

		metrics.ImagesFetched.WithLabelValues("failed").Inc()
		log.Warn("image unavailable", "id", it.Record.ID, "url", it.ImageURL, "policy", opts.Policy, "error", err)
		switch opts.Policy {
		case PolicyAbort:
			for _, r := range res.Records {
				r.Release()
			}
			return nil, fmt.Errorf("image for %s: %w", it.Record.ID, err)
		case PolicySkip:
			res.Skipped = append(res.Skipped, Skipped{ID: it.Record.ID, Name: it.Record.Text(schema.Name), Reason: "image unavailable: " + err.Error()})
		default:
			metrics.ImagesFetched.WithLabelValues("placeholder").Inc()
			it.Record.Image = record.Placeholder(opts.ImageSize)
			res.Records = append(res.Records, it.Record)
		}
	}

	res.Duration = time.Since(start)
	metrics.ImportItems.WithLabelValues("imported").Add(float64(len(res.Records)))
	metrics.ImportItems.WithLabelValues("skipped").Add(float64(len(res.Skipped)))
	log.Info("import finished", "records", len(res.Records), "skipped", len(res.Skipped), "duration", res.Duration)
	return res, nil
}

func decodeFetched(r ImageResult, size int) (*record.Image, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	img, err := record.DecodeImage(r.Data)
	if err != nil {
		return nil, err
	}
	return img.Fit(size), nil
}

// missing reports requested identifiers the catalog did not return.
func missing(requested []string, batch Batch) []Skipped {
	got := make(map[string]bool, len(batch.Items)+len(batch.Skipped))
	for _, it := range batch.Items {
		got[it.Record.ID] = true
	}
	for _, s := range batch.Skipped {
		got[s.ID] = true
	}
	var out []Skipped
	for _, id := range requested {
		if !got[id] {
			out = append(out, Skipped{ID: id, Reason: "not returned by catalog"})
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
