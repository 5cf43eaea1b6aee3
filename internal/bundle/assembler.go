// Package bundle assembles the token-budgeted context bundle: it resolves the
// project, classifies the monorepo scope, fans out retrieval, rule routing and
// persona advice, then joins them under the budget.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/memhub/internal/access"
	"github.com/nextlevelbuilder/memhub/internal/budget"
	"github.com/nextlevelbuilder/memhub/internal/metrics"
	"github.com/nextlevelbuilder/memhub/internal/monorepo"
	"github.com/nextlevelbuilder/memhub/internal/persona"
	"github.com/nextlevelbuilder/memhub/internal/resolve"
	"github.com/nextlevelbuilder/memhub/internal/retrieval"
	"github.com/nextlevelbuilder/memhub/internal/rules"
	"github.com/nextlevelbuilder/memhub/internal/settings"
	"github.com/nextlevelbuilder/memhub/internal/store"
	"github.com/nextlevelbuilder/memhub/internal/tracing"
)

// Warning codes outside the rules section.
const (
	WarnSubprojectUnavailable = "subproject_unavailable"
	WarnPersonaLowConfidence  = "persona_low_confidence"
	WarnEmbeddingFailed       = "query_embedding_failed"
)

// personaOverfetch widens the ranked list handed to persona re-weighting; the
// result is cut back to the retrieval limit afterwards.
const personaOverfetch = 2

// QueryEmbedder embeds the request query. Optional.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config wires an Assembler. Embedder, Tokens and Metrics are optional.
type Config struct {
	Engine     *resolve.Engine
	Guard      *access.Guard
	Settings   resolve.SettingsSource
	Classifier *monorepo.Classifier
	Retriever  *retrieval.Retriever
	Router     *rules.Router
	Advisor    *persona.Advisor
	Memory     store.MemoryStore
	ActiveWork store.ActiveWorkStore
	Embedder   QueryEmbedder
	Tokens     *budget.TokenCounter
	Metrics    *metrics.Metrics
}

// Assembler builds context bundles. It holds no per-request state.
type Assembler struct {
	engine     *resolve.Engine
	guard      *access.Guard
	settings   resolve.SettingsSource
	classifier *monorepo.Classifier
	retriever  *retrieval.Retriever
	router     *rules.Router
	advisor    *persona.Advisor
	memory     store.MemoryStore
	activeWork store.ActiveWorkStore
	embedder   QueryEmbedder
	tokens     *budget.TokenCounter
	metrics    *metrics.Metrics
}

func New(cfg Config) *Assembler {
	return &Assembler{
		engine:     cfg.Engine,
		guard:      cfg.Guard,
		settings:   cfg.Settings,
		classifier: cfg.Classifier,
		retriever:  cfg.Retriever,
		router:     cfg.Router,
		advisor:    cfg.Advisor,
		memory:     cfg.Memory,
		activeWork: cfg.ActiveWork,
		embedder:   cfg.Embedder,
		tokens:     cfg.Tokens,
		metrics:    cfg.Metrics,
	}
}

// scope is the resolved project and the project retrieval reads from.
type scope struct {
	ws         *store.Workspace
	project    *store.Project
	scope      *store.Project
	resolution *resolve.Result
	class      *monorepo.Classification
	warnings   []string
}

// fanout holds the joined outputs of the concurrent stages.
type fanout struct {
	retrieval *retrieval.Result
	rules     *rules.Result
	persona   *persona.Recommendation
	snapshot  *snapshot
}

// Assemble runs the whole pipeline. It returns either a complete bundle or an
// error; a cancelled context aborts every stage.
func (a *Assembler) Assemble(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracing.StageAssemble, attribute.String("memhub.mode", req.Mode))
	defer func() { tracing.End(span, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	sc, cfg, err := a.resolveScope(ctx, req)
	if err != nil {
		return nil, err
	}

	var queryEmb []float32
	var embWarnings []string
	if a.embedder != nil && req.Query != "" && req.SearchMode != settings.ModeKeyword {
		queryEmb, err = a.embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("bundle: query embedding failed", "workspace", sc.ws.Key, "error", err)
			embWarnings = append(embWarnings, WarnEmbeddingFailed)
			queryEmb = nil
		}
	}

	out, err := a.fanOut(ctx, req, sc, cfg, queryEmb)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp = a.compose(ctx, req, sc, cfg, out)
	resp.Retrieval.Warnings = append(embWarnings, resp.Retrieval.Warnings...)
	a.metrics.ObserveBundle(req.Mode, time.Since(start))
	span.SetAttributes(
		attribute.String("memhub.project", sc.project.Key),
		attribute.Int("memhub.retrieval.items", len(resp.Retrieval.Items)),
	)
	return resp, nil
}

// resolveScope authorizes the workspace, resolves or loads the project and
// classifies the monorepo scope.
func (a *Assembler) resolveScope(ctx context.Context, req Request) (*scope, *settings.Settings, error) {
	sc := &scope{}
	if req.ProjectKey != "" {
		ws, err := a.engine.Workspace(ctx, req.WorkspaceKey)
		if err != nil {
			return nil, nil, err
		}
		p, err := a.engine.ProjectByKey(ctx, ws, req.ProjectKey)
		if err != nil {
			return nil, nil, err
		}
		sc.ws, sc.project = ws, p
	} else {
		res, err := a.engine.Resolve(ctx, req.selectors())
		if err != nil {
			return nil, nil, err
		}
		sc.ws, sc.project, sc.resolution = res.Workspace, res.ProjectRow, res
	}

	cfg, err := a.settings.For(ctx, sc.ws.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("workspace settings: %w", err)
	}

	cctx, cspan := tracing.Start(ctx, tracing.StageClassify)
	sc.class, err = a.classifier.Classify(cctx, sc.ws.ID, sc.project, req.CurrentSubpath, cfg)
	tracing.End(cspan, err)
	if err != nil {
		return nil, nil, err
	}

	sc.scope = sc.project
	if sc.class.Isolated && sc.class.EffectiveScopeKey != sc.project.Key {
		sub, _, err := a.engine.EnsureSubproject(ctx, sc.ws, sc.project, sc.class.IsolatedSubpath, cfg)
		if err != nil {
			return nil, nil, err
		}
		if sub == nil {
			sc.warnings = append(sc.warnings, WarnSubprojectUnavailable)
			sc.class.EffectiveScopeKey = sc.project.Key
		} else {
			if err := a.guard.AssertProjectAccess(ctx, sc.ws, sub); err != nil {
				return nil, nil, err
			}
			sc.scope = sub
		}
	}
	return sc, cfg, nil
}

// fanOut runs retrieval, rule routing, persona advice and the snapshot read
// concurrently and joins them. The first error cancels the others.
func (a *Assembler) fanOut(ctx context.Context, req Request, sc *scope, cfg *settings.Settings, queryEmb []float32) (*fanout, error) {
	out := &fanout{}
	scopeIDs := []uuid.UUID{sc.scope.ID}
	userID := store.UserIDFromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := a.retriever.Retrieve(gctx, retrieval.Query{
			ProjectIDs:     scopeIDs,
			Text:           req.Query,
			Embedding:      queryEmb,
			Mode:           req.SearchMode,
			Types:          req.Types,
			Limit:          req.Limit,
			CurrentSubpath: sc.class.CurrentSubpath,
			BoostEnabled:   sc.class.BoostEnabled,
			BoostWeight:    sc.class.BoostWeight,
			Overfetch:      personaOverfetch,
		}, cfg)
		out.retrieval = res
		return err
	})
	g.Go(func() error {
		res, err := a.router.Route(gctx, sc.ws, userID, rules.Input{
			Vars: rules.Vars{
				WorkspaceKey:   sc.ws.Key,
				ProjectKey:     sc.scope.Key,
				CurrentSubpath: sc.class.CurrentSubpath,
				Query:          req.Query,
				Persona:        req.Persona,
			},
			QueryEmbedding: queryEmb,
		}, cfg)
		out.rules = res
		return err
	})
	g.Go(func() error {
		res, err := a.advisor.Advise(gctx, scopeIDs, req.Query, req.Persona, cfg)
		out.persona = res
		return err
	})
	g.Go(func() error {
		res, err := a.loadSnapshot(gctx, sc.scope.ID, cfg, req.Debug())
		out.snapshot = res
		return err
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return out, nil
}
