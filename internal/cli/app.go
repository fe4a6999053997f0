package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/casefile/internal/answer"
	"github.com/ppiankov/casefile/internal/cache"
	"github.com/ppiankov/casefile/internal/coa"
	"github.com/ppiankov/casefile/internal/config"
	"github.com/ppiankov/casefile/internal/conflict"
	"github.com/ppiankov/casefile/internal/corpus"
	"github.com/ppiankov/casefile/internal/extract"
	"github.com/ppiankov/casefile/internal/graph"
	"github.com/ppiankov/casefile/internal/investigate"
	"github.com/ppiankov/casefile/internal/llm"
	"github.com/ppiankov/casefile/internal/logging"
	"github.com/ppiankov/casefile/internal/router"
	"github.com/ppiankov/casefile/internal/state"
	"github.com/ppiankov/casefile/internal/worker"
)

// app holds everything a command needs, built from the loaded config
type app struct {
	cfg    config.Config
	logger *zap.Logger
	svc    *investigate.Service
	cache  cache.Cache

	closers []func() error
}

// newApp loads the configuration and wires the service. A provider that
// cannot be built leaves the graph commands working; commands that need
// completions fail later with llm.ErrNotConfigured.
func newApp(ctx context.Context) (*app, error) {
	logger, err := logging.New(verbose, logJSON)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	st, err := a.openState(ctx)
	if err != nil {
		return nil, err
	}

	a.cache = cache.NewLayeredCache(time.Hour, cfg.Extract.CacheDir, cfg.Extract.CacheTTL)

	matcher := graph.NewMatcher(cfg.Router.SingleWordOverlap)
	rt := router.New(matcher, logger)
	deps := investigate.Deps{
		Router: rt,
		State:  st,
	}

	var completer llm.Completer
	p, err := llm.NewProvider(cfg.LLM, logger)
	if err != nil {
		logger.Warn("Completion provider unavailable, graph answers only",
			zap.String("provider", cfg.LLM.Provider), zap.Error(err))
	} else {
		limited := llm.Limit(p, worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst))
		completer = limited
		a.wireProvider(&deps, limited)
	}

	detector := conflict.NewDetector(completer, cfg.Graph.Config, logger)
	deps.Store = graph.NewStore(graph.NewFileRepository(cfg.Graph.Path, logger), detector, matcher, logger)
	deps.Engine = answer.NewEngine(rt, completer, logger)

	a.svc = investigate.New(deps, investigate.Config{
		ExtractConcurrency: cfg.Extract.Concurrency,
		StreamChunk:        cfg.Server.StreamChunk,
		ReportPath:         cfg.Report.Path,
		CorpusName:         cfg.Corpus.StoreName,
		Provider:           cfg.LLM.Provider,
		Model:              cfg.LLM.Model,
	}, logger)
	return a, nil
}

// wireProvider fills the parts that depend on what the provider supports
func (a *app) wireProvider(deps *investigate.Deps, p *llm.Limited) {
	cfg := a.cfg

	deps.Extractor = extract.NewExtractor(p, a.cache, extract.Config{
		MaxChars: cfg.Extract.MaxChars,
		CacheTTL: cfg.Extract.CacheTTL,
	}, a.logger)

	streamer, _ := llm.Streaming(p)
	deps.Synthesizer = coa.NewSynthesizer(p, streamer, cfg.LLM.Model, a.logger)

	searcher, ok := llm.Searching(p)
	if !ok {
		a.logger.Info("Provider has no corpus search, specific questions are unavailable",
			zap.String("provider", p.Name()))
		return
	}

	var decomposer *coa.Decomposer
	if cfg.CoA.QueryExpansion {
		decomposer = coa.NewDecomposer(p, a.logger)
	}
	deps.Orchestrator = coa.NewOrchestrator(searcher, decomposer, coa.DefaultPrompts(), cfg.CoA, a.logger)

	// the corpus lives in the OpenAI vector store API
	if strings.EqualFold(cfg.LLM.Provider, "openai") {
		client, err := llm.NewOpenAIClient(cfg.LLM)
		if err != nil {
			a.logger.Warn("Corpus unavailable", zap.Error(err))
			return
		}
		deps.Corpus = corpus.NewManager(client, cfg.Corpus, a.logger)
	}
}

func (a *app) openState(ctx context.Context) (state.Store, error) {
	sc := a.cfg.State
	switch sc.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", sc.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		return state.NewRedisStore(client, sc.RedisKey), nil
	default:
		return state.NewFileStore(sc.Path), nil
	}
}

// Close releases the state backend and flushes the logger
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
