package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/cache"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/model"
)

// DefaultMaxChars bounds the document text sent for extraction
const DefaultMaxChars = 50000

const instruction = `Analyze this document and extract ALL structured information.

Return ONLY valid JSON with this exact structure:
{
    "entities": [
        {"name": "full name or title", "type": "Person|Organization|Location|Date|Money|Other", "description": "brief context about this entity", "mentions": ["quote where mentioned"]}
    ],
    "claims": [
        {"subject": "who or what the claim is about", "claim": "what is being stated or asserted", "quote": "exact quote from the document", "context": "surrounding context"}
    ],
    "events": [
        {"date": "date if mentioned or 'unknown'", "description": "what happened", "people_involved": ["names"], "location": "where if mentioned"}
    ],
    "key_facts": [
        "important factual statements from the document"
    ]
}

Rules:
- Extract ALL people, organizations, locations, dates and monetary amounts mentioned
- Use exact quotes from the document wherever possible
- For claims, capture assertions, statements and testimony
- For events, capture anything with a date or a place in a sequence
- Be thorough: this extraction answers comprehensive questions later

DOCUMENT:
`

// Config tunes extraction
type Config struct {
	MaxChars int           `yaml:"max_chars" mapstructure:"max_chars"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Extractor turns a document into entities, claims, events and key facts
// with one completion call
type Extractor struct {
	completer llm.Completer
	cache     cache.Cache
	config    Config
	logger    *zap.Logger
}

// NewExtractor creates an extractor. The cache is optional.
func NewExtractor(completer llm.Completer, c cache.Cache, config Config, logger *zap.Logger) *Extractor {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultMaxChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		completer: completer,
		cache:     c,
		config:    config,
		logger:    logger.Named("extract"),
	}
}

// rawExtraction is the shape the model answers with. Nothing in it is
// tagged with a source yet.
type rawExtraction struct {
	Entities []model.Entity  `json:"entities"`
	Claims   []model.Claim   `json:"claims"`
	Events   []model.Event   `json:"events"`
	KeyFacts []model.KeyFact `json:"key_facts"`
}

// Extract runs extraction for one document. On a malformed answer it
// returns an empty extraction for docName together with an error wrapping
// llm.ErrMalformedOutput, so the caller can still record the document.
func (e *Extractor) Extract(ctx context.Context, docName, text string) (model.Extraction, error) {
	empty := model.Extraction{Document: docName}

	key := cache.Key("extract", docName, text)
	if e.cache != nil {
		if cached, ok := cache.GetJSON[model.Extraction](e.cache, key); ok {
			e.logger.Debug("extraction cache hit", zap.String("document", docName))
			return cached, nil
		}
	}

	resp, err := e.completer.Complete(ctx, llm.Request{
		Prompt: instruction + "\n" + truncateRunes(text, e.config.MaxChars),
	})
	if err != nil {
		return empty, fmt.Errorf("extract %s: %w", docName, err)
	}

	raw, err := llm.ParseJSON[rawExtraction](resp.Text)
	if err != nil {
		e.logger.Warn("extraction output unparseable", zap.String("document", docName), zap.Error(err))
		return empty, fmt.Errorf("extract %s: %w", docName, err)
	}

	ext := tag(raw, docName)
	if e.cache != nil {
		if err := cache.SetJSON(e.cache, key, ext, e.config.CacheTTL); err != nil {
			e.logger.Warn("extraction cache write failed", zap.String("document", docName), zap.Error(err))
		}
	}

	e.logger.Info("document extracted",
		zap.String("document", docName),
		zap.Int("entities", len(ext.Entities)),
		zap.Int("claims", len(ext.Claims)),
		zap.Int("events", len(ext.Events)),
		zap.Int("key_facts", len(ext.KeyFacts)),
	)
	return ext, nil
}

// tag stamps every item with the document it came from
func tag(raw rawExtraction, docName string) model.Extraction {
	ext := model.Extraction{Document: docName}

	for _, ent := range raw.Entities {
		if strings.TrimSpace(ent.Name) == "" {
			continue
		}
		if ent.Type == "" {
			ent.Type = model.EntityOther
		}
		ent.Source = model.Sources{docName}
		ent.Provenance = nil
		ext.Entities = append(ext.Entities, ent)
	}
	for _, c := range raw.Claims {
		c.Source = docName
		ext.Claims = append(ext.Claims, c)
	}
	for _, ev := range raw.Events {
		if strings.TrimSpace(ev.Date) == "" {
			ev.Date = model.UnknownDate
		}
		ev.Source = docName
		ext.Events = append(ext.Events, ev)
	}
	for _, f := range raw.KeyFacts {
		if strings.TrimSpace(f.Fact) == "" {
			continue
		}
		f.Source = docName
		ext.KeyFacts = append(ext.KeyFacts, f)
	}

	return ext
}

// truncateRunes cuts s to at most n characters without splitting a rune
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
