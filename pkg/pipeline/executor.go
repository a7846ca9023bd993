/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/blobstore"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/config"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/trace"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/types"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/ratelimit"
	utiljson "github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/json"
)

// ErrCancelled reports that the executor observed the job's cancellation
// flag and stopped at a suspension point.
var ErrCancelled = errors.New("job cancelled")

// errAllTranslationsFailed marks a run whose decompilation succeeded but
// whose every provider call failed. The run settles as a salvaged result
// instead of a retryable failure.
var errAllTranslationsFailed = errors.New("every translation artifact failed")

const (
	progressStageAStart = 10
	progressStageADone  = 70
	progressStageBDone  = 90

	// how long completed result documents stay readable
	resultRetention = 7 * 24 * time.Hour

	resultKeyPrefix = "result:job:"
)

type progressTracker interface {
	Progress(ctx context.Context, jobId, workerId string, progress int, stage string) error
	IsCancelRequested(ctx context.Context, jobId string) (bool, error)
}

type admission interface {
	Check(ctx context.Context, identifier, tierName string, cost int64) error
	Record(ctx context.Context, identifier string, cost int64) error
}

type credentialStore interface {
	GetProviderCredential(ctx context.Context, tenantId, credentialId string) (*dbclient.ProviderCredential, error)
}

type decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type resultCache interface {
	Set(ctx context.Context, fileFingerprint string, cfg *types.JobConfig, doc []byte) error
}

// Outcome is what a finished (or salvaged) execution hands back to the
// supervisor.
type Outcome struct {
	Doc          *ResultDocument
	ResultRef    string
	Completeness float64
	Duration     time.Duration
}

// Executor drives a leased job through decompilation and translation.
type Executor struct {
	tracker       progressTracker
	blobs         blobstore.Interface
	cache         resultCache
	limiter       admission
	creds         credentialStore
	vault         decrypter
	decompiler    Decompiler
	newTranslator TranslatorFactory
	workDir       string
}

func NewExecutor(tracker progressTracker, blobs blobstore.Interface, cache resultCache,
	limiter admission, creds credentialStore, vault decrypter) *Executor {
	return &Executor{
		tracker:       tracker,
		blobs:         blobs,
		cache:         cache,
		limiter:       limiter,
		creds:         creds,
		vault:         vault,
		decompiler:    NewDecompiler(),
		newTranslator: NewTranslator,
		workDir:       os.TempDir(),
	}
}

// run carries the mutable state of one execution so the salvage path can
// materialize whatever was finished when the run stopped.
type run struct {
	job          *dbclient.Job
	cfg          *types.JobConfig
	dec          *Decompilation
	translations LLMTranslations
	failures     []ArtifactFailure
	successes    int
	done         int
	total        int
	startTime    time.Time
}

// Execute processes one leased job end to end. On cancellation or context
// expiry it returns a salvaged partial outcome together with ErrCancelled
// or the context error.
func (e *Executor) Execute(ctx context.Context, job *dbclient.Job) (*Outcome, error) {
	r := &run{job: job, startTime: time.Now()}

	cfg := &types.JobConfig{}
	if job.Config.Valid {
		if err := utiljson.Unmarshal([]byte(job.Config.String), cfg); err != nil {
			return nil, commonerrors.NewBadRequest("the job configuration is unreadable")
		}
	}
	cfg.Normalize(config.GetDefaultProvider())
	if err := cfg.Validate(); err != nil {
		return nil, commonerrors.NewBadRequest(err.Error())
	}
	r.cfg = cfg

	if err := e.progress(ctx, r, progressStageAStart, common.StageDecompilation); err != nil {
		return nil, err
	}
	if err := e.runStageA(ctx, r); err != nil {
		return nil, err
	}
	if err := e.progress(ctx, r, progressStageADone, common.StageTranslation); err != nil {
		return e.stopOutcome(r, err)
	}
	if err := e.runStageB(ctx, r); err != nil {
		if errors.Is(err, errAllTranslationsFailed) {
			klog.Warningf("job %s keeps its decompilation only, every provider call failed", job.JobId)
			if perr := e.progress(ctx, r, progressStageBDone, common.StageFinalization); perr != nil {
				return e.stopOutcome(r, perr)
			}
			return e.finalize(ctx, r, true)
		}
		return e.stopOutcome(r, err)
	}
	if err := e.progress(ctx, r, progressStageBDone, common.StageFinalization); err != nil {
		return e.stopOutcome(r, err)
	}
	return e.finalize(ctx, r, false)
}

// stopOutcome salvages whatever finished when a cancellation or deadline
// halts the run. Other errors pass through untouched for classification.
func (e *Executor) stopOutcome(r *run, err error) (*Outcome, error) {
	if !isStopErr(err) {
		return nil, err
	}
	outcome, salvageErr := e.salvage(r)
	if salvageErr != nil {
		klog.ErrorS(salvageErr, "salvage failed", "job", r.job.JobId)
	}
	return outcome, err
}

// runStageA wraps the decompilation stage in its span.
func (e *Executor) runStageA(ctx context.Context, r *run) error {
	ctx, span := trace.StartSpan(ctx, "pipeline.decompile")
	defer trace.FinishSpan(span)
	trace.SetAttributes(ctx,
		attribute.String("job.id", r.job.JobId),
		attribute.String("analysis.depth", r.cfg.AnalysisDepth))
	if err := e.stageA(ctx, r); err != nil {
		trace.RecordError(ctx, err)
		return err
	}
	trace.SetAttributes(ctx,
		attribute.Int("function.count", len(r.dec.Functions)),
		attribute.Int("import.count", len(r.dec.Imports)),
		attribute.Int("string.count", len(r.dec.Strings)))
	return nil
}

// runStageB wraps the translation stage in its span.
func (e *Executor) runStageB(ctx context.Context, r *run) error {
	ctx, span := trace.StartSpan(ctx, "pipeline.translate")
	defer trace.FinishSpan(span)
	trace.SetAttributes(ctx,
		attribute.String("job.id", r.job.JobId),
		attribute.String("translation.detail", r.cfg.TranslationDetail))
	if err := e.stageB(ctx, r); err != nil {
		trace.RecordError(ctx, err)
		return err
	}
	trace.SetAttributes(ctx,
		attribute.Int("artifact.total", r.total),
		attribute.Int("artifact.success", r.successes))
	return nil
}

// stageA fetches the binary from the blob store and runs the decompiler
// over a scratch copy.
func (e *Executor) stageA(ctx context.Context, r *run) error {
	data, err := e.blobs.Get(r.job.BlobRef)
	if err != nil {
		return err
	}
	scratch := filepath.Join(e.workDir, "bin2nlp-"+r.job.JobId)
	if err = os.WriteFile(scratch, data, 0o600); err != nil {
		return commonerrors.NewStorageError(err.Error())
	}
	defer os.Remove(scratch)

	dec, err := e.decompiler.Run(ctx, scratch, r.cfg.AnalysisDepth)
	if err != nil {
		return err
	}
	r.dec = dec
	return nil
}

// stageB translates each artifact class permitted by the detail level,
// tolerating per-artifact provider failures. With no provider bound the
// stage is skipped and the result carries the decompilation only.
func (e *Executor) stageB(ctx context.Context, r *run) error {
	if r.cfg.Provider == "" && r.cfg.CredentialId == "" {
		klog.Infof("job %s has no provider bound, skipping translation", r.job.JobId)
		return nil
	}
	translator, err := e.bindProvider(ctx, r)
	if err != nil {
		return err
	}
	r.total = len(r.dec.Functions)
	if r.cfg.TranslationDetail != common.TranslationDetailBasic {
		r.total += len(r.dec.Imports)
	}
	if r.cfg.TranslationDetail == common.TranslationDetailDetailed {
		r.total += len(r.dec.Strings)
	}
	if r.total == 0 {
		return nil
	}

	for i := range r.dec.Functions {
		fn := &r.dec.Functions[i]
		reply, err := e.translate(ctx, r, translator, buildFunctionPrompt(fn))
		if err != nil {
			if isStopErr(err) {
				return err
			}
			r.failures = append(r.failures, ArtifactFailure{Artifact: "function", Name: fn.Name, Reason: "provider call failed"})
		} else {
			r.translations.Functions = append(r.translations.Functions, parseFunctionReply(fn, reply))
			r.successes++
		}
		if err = e.stepDone(ctx, r); err != nil {
			return err
		}
	}

	if r.cfg.TranslationDetail != common.TranslationDetailBasic {
		for i := range r.dec.Imports {
			imp := &r.dec.Imports[i]
			reply, err := e.translate(ctx, r, translator, buildImportPrompt(imp))
			if err != nil {
				if isStopErr(err) {
					return err
				}
				r.failures = append(r.failures, ArtifactFailure{Artifact: "import", Name: imp.Symbol, Reason: "provider call failed"})
			} else {
				r.translations.Imports = append(r.translations.Imports, ImportTranslation{
					Library:  imp.Library,
					Function: imp.Symbol,
					Purpose:  reply,
				})
				r.successes++
			}
			if err = e.stepDone(ctx, r); err != nil {
				return err
			}
		}
	}

	if r.cfg.TranslationDetail == common.TranslationDetailDetailed {
		for i := range r.dec.Strings {
			s := &r.dec.Strings[i]
			reply, err := e.translate(ctx, r, translator, buildStringPrompt(s))
			if err != nil {
				if isStopErr(err) {
					return err
				}
				r.failures = append(r.failures, ArtifactFailure{Artifact: "string", Name: s.Address, Reason: "provider call failed"})
			} else {
				r.translations.Strings = append(r.translations.Strings, StringTranslation{
					Content: s.Content,
					Address: s.Address,
					Usage:   reply,
				})
				r.successes++
			}
			if err = e.stepDone(ctx, r); err != nil {
				return err
			}
		}

		if r.successes > 0 {
			reply, err := e.translate(ctx, r, translator, buildSummaryPrompt(r.dec, &r.translations))
			if err == nil {
				r.translations.OverallSummary = reply
			} else if isStopErr(err) {
				return err
			}
		}
	}

	if r.successes == 0 {
		return errAllTranslationsFailed
	}
	return nil
}

// translate gates one outbound call on the llm tier in both requests and
// estimated tokens, then records actual usage.
func (e *Executor) translate(ctx context.Context, r *run, translator Translator, prompt string) (string, error) {
	reqId := ratelimit.LLMRequestIdentifier(r.job.TenantId, r.cfg.Provider)
	tokId := ratelimit.LLMTokenIdentifier(r.job.TenantId, r.cfg.Provider)
	estimate := EstimateTokens(prompt)

	if err := e.waitAdmission(ctx, reqId, 1); err != nil {
		return "", err
	}
	if err := e.waitAdmission(ctx, tokId, estimate); err != nil {
		return "", err
	}
	reply, actual, err := translator.Translate(ctx, prompt)
	if actual > estimate {
		if recErr := e.limiter.Record(ctx, tokId, actual-estimate); recErr != nil {
			klog.ErrorS(recErr, "failed to record token usage", "job", r.job.JobId)
		}
	}
	return reply, err
}

// waitAdmission blocks until the limiter admits the cost or the context
// ends.
func (e *Executor) waitAdmission(ctx context.Context, identifier string, cost int64) error {
	for {
		err := e.limiter.Check(ctx, identifier, ratelimit.LLMTier, cost)
		if err == nil {
			return nil
		}
		if !commonerrors.IsRateLimited(err) {
			return err
		}
		wait := time.Duration(commonerrors.GetRetryAfter(err)) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// stepDone advances stage-B progress and polls the cancellation flag.
func (e *Executor) stepDone(ctx context.Context, r *run) error {
	r.done++
	p := progressStageADone + r.done*(progressStageBDone-progressStageADone)/r.total
	if err := e.progress(ctx, r, p, common.StageTranslation); err != nil {
		return err
	}
	return nil
}

// progress writes a progress update and checks for cancellation; a lost
// lease surfaces as the store's error.
func (e *Executor) progress(ctx context.Context, r *run, p int, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := e.tracker.IsCancelRequested(ctx, r.job.JobId)
	if err != nil {
		klog.ErrorS(err, "failed to read cancellation flag", "job", r.job.JobId)
	} else if cancelled {
		return ErrCancelled
	}
	return e.tracker.Progress(ctx, r.job.JobId, r.job.WorkerId.String, p, stage)
}

// bindProvider resolves the job's provider binding: a tenant credential
// when one is referenced, otherwise a configured provider. Plaintext keys
// never leave this call.
func (e *Executor) bindProvider(ctx context.Context, r *run) (Translator, error) {
	if r.cfg.CredentialId != "" {
		cred, err := e.creds.GetProviderCredential(ctx, r.job.TenantId, r.cfg.CredentialId)
		if err != nil {
			return nil, err
		}
		if cred == nil || !cred.IsActive {
			return nil, commonerrors.NewCredentialUnavailable("the referenced credential is not active")
		}
		apiKey, err := e.vault.Decrypt(cred.EncryptedKey)
		if err != nil {
			return nil, err
		}
		model := r.cfg.Model
		if model == "" {
			model = defaultModelFor(cred.Kind)
		}
		return e.newTranslator(cred.Kind, cred.Endpoint.String, apiKey, model)
	}

	for _, p := range config.GetProviders() {
		if p.Name != r.cfg.Provider || !p.Enabled {
			continue
		}
		model := r.cfg.Model
		if model == "" {
			model = p.Model
		}
		return e.newTranslator(p.Kind, p.Endpoint, config.GetProviderAPIKey(p), model)
	}
	return nil, commonerrors.NewProviderUnavailable("no enabled provider named " + r.cfg.Provider)
}

func defaultModelFor(kind string) string {
	switch kind {
	case common.ProviderKindOllama:
		return "llama3"
	default:
		return "gpt-4o-mini"
	}
}

// finalize materializes the result document, mirrors it into the blob
// store, and feeds the result cache.
func (e *Executor) finalize(ctx context.Context, r *run, salvaged bool) (*Outcome, error) {
	doc := e.buildDoc(r, salvaged)
	raw := utiljson.MarshalIndentSilently(doc)

	resultRef := resultKeyPrefix + r.job.JobId
	if err := e.blobs.Put(resultRef, raw, resultRetention); err != nil {
		return nil, err
	}
	if !salvaged && doc.Success && e.cache != nil {
		if err := e.cache.Set(ctx, r.job.FileFingerprint, r.cfg, raw); err != nil {
			klog.ErrorS(err, "failed to cache result", "job", r.job.JobId)
		}
	}
	completeness := 1.0
	if r.total > 0 {
		completeness = float64(r.done) / float64(r.total)
	}
	return &Outcome{
		Doc:          doc,
		ResultRef:    resultRef,
		Completeness: completeness,
		Duration:     time.Since(r.startTime),
	}, nil
}

// salvage writes whatever stage B finished as a partial result document.
func (e *Executor) salvage(r *run) (*Outcome, error) {
	if r.dec == nil {
		return nil, nil
	}
	return e.finalize(context.Background(), r, true)
}

func (e *Executor) buildDoc(r *run, salvaged bool) *ResultDocument {
	doc := &ResultDocument{
		Success:          r.successes > 0 || r.total == 0,
		DurationSeconds:  time.Since(r.startTime).Seconds(),
		Salvaged:         salvaged,
		ArtifactFailures: r.failures,
	}
	if r.dec != nil {
		doc.FunctionCount = len(r.dec.Functions)
		doc.ImportCount = len(r.dec.Imports)
		doc.StringCount = len(r.dec.Strings)
		doc.DecompilationId = r.dec.Id
	}
	if r.successes > 0 {
		doc.LLMTranslations = &r.translations
	}
	return doc
}

func isStopErr(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
