package toc

import (
	"context"
	"log/slog"
	"time"
)

// Source is everything the strategies may look at for one document.
type Source struct {
	Filename string
	PDF      []byte
	// Pages holds the plain text of each page, page 1 first.
	Pages []string
}

// MLExtractor asks an external service for headings.
type MLExtractor interface {
	ExtractTOC(ctx context.Context, filename string, pdf []byte) ([]Heading, error)
}

// OutlineReader reads the outline embedded in a PDF.
type OutlineReader interface {
	ReadOutline(pdf []byte) ([]Heading, error)
}

// Extractor runs the strategies in priority order: ML service, embedded
// outline, then text patterns. The first one with a non-empty result wins.
// Nil strategies are skipped.
type Extractor struct {
	ML      MLExtractor
	Outline OutlineReader
	Log     *slog.Logger
	Now     func() time.Time
}

// Extract never fails: when every strategy comes back empty the result is
// an empty outline with zero confidence and method pattern.
func (e *Extractor) Extract(ctx context.Context, src Source) Result {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("filename", src.Filename)

	start := now()
	res := e.run(ctx, src, log)
	end := now()
	res.ExtractedAt = end
	res.ProcessingTimeMs = end.Sub(start).Milliseconds()

	log.Info("toc extracted",
		"method", res.Method,
		"items", res.Count(),
		"confidence", res.Confidence,
		"duration_ms", res.ProcessingTimeMs,
	)
	return res
}

func (e *Extractor) run(ctx context.Context, src Source, log *slog.Logger) Result {
	if e.ML != nil && len(src.PDF) > 0 {
		items, err := e.ML.ExtractTOC(ctx, src.Filename, src.PDF)
		if err != nil {
			log.Warn("ml toc extraction failed, falling back", "error", err)
		} else if items = SanitizeHeadings(items); len(items) > 0 {
			tree := BuildHierarchy(items)
			return Result{Items: tree, Confidence: ScoreConfidence(items, tree), Method: MethodMLService}
		}
	}

	if e.Outline != nil && len(src.PDF) > 0 {
		items, err := e.Outline.ReadOutline(src.PDF)
		if err != nil {
			log.Warn("embedded outline unreadable, falling back", "error", err)
		} else if items = SanitizeHeadings(items); len(items) > 0 {
			return Result{Items: BuildHierarchy(items), Confidence: EmbeddedConfidence, Method: MethodEmbedded}
		}
	}

	if items := DetectHeadings(src.Pages); len(items) > 0 {
		return Result{Items: BuildHierarchy(items), Confidence: PatternConfidence, Method: MethodPattern}
	}

	return Result{Items: []*Node{}, Confidence: FailedConfidence, Method: MethodPattern}
}
