/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/types"
	dbclient "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/bin2nlp/pkg/database/utils"
	utiljson "github.com/AMD-AIG-AIMA/bin2nlp/pkg/utils/json"
)

type fakeTracker struct {
	progress    []int
	stages      []string
	cancelAfter int // cancel once this many progress calls have landed; 0 = never
}

func (f *fakeTracker) Progress(_ context.Context, _, _ string, p int, stage string) error {
	f.progress = append(f.progress, p)
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeTracker) IsCancelRequested(_ context.Context, _ string) (bool, error) {
	return f.cancelAfter > 0 && len(f.progress) >= f.cancelAfter, nil
}

type memBlobs struct {
	data map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (m *memBlobs) Put(key string, data []byte, _ time.Duration) error {
	m.data[key] = data
	return nil
}

func (m *memBlobs) Get(key string) ([]byte, error) {
	if d, ok := m.data[key]; ok {
		return d, nil
	}
	return nil, commonerrors.NewBlobNotFound(key)
}

func (m *memBlobs) Delete(key string) error { delete(m.data, key); return nil }

func (m *memBlobs) List(prefix string) ([]string, error) { return nil, nil }

func (m *memBlobs) Sweep() (int, error) { return 0, nil }

type fakeLimiter struct {
	checks   int
	recorded int64
}

func (f *fakeLimiter) Check(_ context.Context, _, _ string, _ int64) error {
	f.checks++
	return nil
}

func (f *fakeLimiter) Record(_ context.Context, _ string, cost int64) error {
	f.recorded += cost
	return nil
}

type fakeCreds struct{ cred *dbclient.ProviderCredential }

func (f *fakeCreds) GetProviderCredential(_ context.Context, _, _ string) (*dbclient.ProviderCredential, error) {
	return f.cred, nil
}

type fakeVault struct{}

func (f *fakeVault) Decrypt(_ string) (string, error) { return "sk-test", nil }

type fakeCache struct{ sets int }

func (f *fakeCache) Set(_ context.Context, _ string, _ *types.JobConfig, _ []byte) error {
	f.sets++
	return nil
}

type fakeDecompiler struct{ dec *Decompilation }

func (f *fakeDecompiler) Run(_ context.Context, _, _ string) (*Decompilation, error) {
	return f.dec, nil
}

type fakeTranslator struct {
	failSubstring string
	calls         int
}

func (f *fakeTranslator) Model() string { return "test-model" }

func (f *fakeTranslator) Translate(_ context.Context, prompt string) (string, int64, error) {
	f.calls++
	if f.failSubstring != "" && strings.Contains(prompt, f.failSubstring) {
		return "", 0, commonerrors.NewProviderUnavailable("the provider call failed")
	}
	if strings.Contains(prompt, "natural_language") {
		return `{"natural_language":"reads input","purpose":"parsing","parameters":"none","return_value":"int"}`, 400, nil
	}
	return "explains something", 50, nil
}

func testDecompilation() *Decompilation {
	return &Decompilation{
		Id:       "dec-1",
		Metadata: FileMetadata{Format: "elf", Architecture: "x86_64", SizeBytes: 2048},
		Functions: []Function{
			{Name: "main", EntryAddress: "0x1000", Size: 64, Disassembly: "push rbp"},
			{Name: "helper", EntryAddress: "0x1100", Size: 32, Disassembly: "xor eax, eax"},
		},
		Imports: []Import{{Library: "libc.so.6", Symbol: "printf", BindAddress: "0x2000"}},
		Strings: []StringItem{{Content: "hello", Address: "0x3000", Encoding: "ascii"}},
	}
}

func testJob(t *testing.T, blobs *memBlobs, detail string) *dbclient.Job {
	require.NoError(t, blobs.Put("upload:fp1", []byte{0x7f, 'E', 'L', 'F'}, time.Hour))
	cfg := &types.JobConfig{
		AnalysisDepth:     common.AnalysisDepthStandard,
		TranslationDetail: detail,
		Provider:          "openai",
		CredentialId:      "c1",
	}
	return &dbclient.Job{
		JobId:           "job-1",
		TenantId:        "t1",
		FileFingerprint: "fp1",
		BlobRef:         "upload:fp1",
		Config:          dbutils.NullString(string(utiljson.MarshalSilently(cfg))),
		WorkerId:        dbutils.NullString("w1"),
	}
}

func newTestExecutor(tracker *fakeTracker, blobs *memBlobs, cache *fakeCache,
	limiter *fakeLimiter, translator Translator) *Executor {
	return &Executor{
		tracker: tracker,
		blobs:   blobs,
		cache:   cache,
		limiter: limiter,
		creds: &fakeCreds{cred: &dbclient.ProviderCredential{
			CredentialId: "c1",
			Kind:         common.ProviderKindOpenAI,
			EncryptedKey: "enc",
			IsActive:     true,
		}},
		vault:      &fakeVault{},
		decompiler: &fakeDecompiler{dec: testDecompilation()},
		newTranslator: func(_, _, _, _ string) (Translator, error) {
			return translator, nil
		},
		workDir: os.TempDir(),
	}
}

func TestDepthDial(t *testing.T) {
	assert.Equal(t, "shallow", DepthDial(common.AnalysisDepthBasic))
	assert.Equal(t, "default", DepthDial(common.AnalysisDepthStandard))
	assert.Equal(t, "full", DepthDial(common.AnalysisDepthComprehensive))
	assert.Equal(t, "full", DepthDial(common.AnalysisDepthDeep))
	assert.Equal(t, "default", DepthDial("unknown"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(256), EstimateTokens(""))
	assert.Equal(t, int64(356), EstimateTokens(strings.Repeat("a", 400)))
}

func TestParseFunctionReply(t *testing.T) {
	fn := &Function{Name: "main", EntryAddress: "0x1000"}

	got := parseFunctionReply(fn, `{"natural_language":"entry point","purpose":"startup"}`)
	assert.Equal(t, "entry point", got.NaturalLanguage)
	assert.Equal(t, "startup", got.Purpose)
	assert.Equal(t, "main", got.Name)

	got = parseFunctionReply(fn, "```json\n{\"natural_language\":\"fenced\"}\n```")
	assert.Equal(t, "fenced", got.NaturalLanguage)

	got = parseFunctionReply(fn, "just plain prose about the function")
	assert.Equal(t, "just plain prose about the function", got.NaturalLanguage)
}

func TestExecuteHappyPath(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	cache := &fakeCache{}
	limiter := &fakeLimiter{}
	translator := &fakeTranslator{}
	e := newTestExecutor(tracker, blobs, cache, limiter, translator)
	job := testJob(t, blobs, common.TranslationDetailStandard)

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.True(t, outcome.Doc.Success)
	assert.False(t, outcome.Doc.Salvaged)
	assert.Equal(t, 2, outcome.Doc.FunctionCount)
	assert.Equal(t, 1, outcome.Doc.ImportCount)
	assert.Len(t, outcome.Doc.LLMTranslations.Functions, 2)
	assert.Len(t, outcome.Doc.LLMTranslations.Imports, 1)
	assert.Empty(t, outcome.Doc.LLMTranslations.Strings)
	assert.Equal(t, 1.0, outcome.Completeness)

	// progress walks 10 → 70 → … → 90
	assert.Equal(t, 10, tracker.progress[0])
	assert.Contains(t, tracker.progress, 70)
	assert.Equal(t, 90, tracker.progress[len(tracker.progress)-1])
	assert.Equal(t, common.StageFinalization, tracker.stages[len(tracker.stages)-1])

	// result document landed in the blob store and fed the cache
	assert.Contains(t, blobs.data, "result:job:job-1")
	assert.Equal(t, 1, cache.sets)

	// two gate checks per outbound call
	assert.Equal(t, 2*translator.calls, limiter.checks)
}

func TestExecuteBasicDetailSkipsImports(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	translator := &fakeTranslator{}
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, translator)
	job := testJob(t, blobs, common.TranslationDetailBasic)

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, outcome.Doc.LLMTranslations.Functions, 2)
	assert.Empty(t, outcome.Doc.LLMTranslations.Imports)
	assert.Empty(t, outcome.Doc.LLMTranslations.OverallSummary)
}

func TestExecuteDetailedAddsStringsAndSummary(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	translator := &fakeTranslator{}
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, translator)
	job := testJob(t, blobs, common.TranslationDetailDetailed)

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, outcome.Doc.LLMTranslations.Strings, 1)
	assert.NotEmpty(t, outcome.Doc.LLMTranslations.OverallSummary)
}

func TestExecuteToleratesSingleArtifactFailure(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	translator := &fakeTranslator{failSubstring: "helper"}
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, translator)
	job := testJob(t, blobs, common.TranslationDetailStandard)

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, outcome.Doc.Success)
	assert.Len(t, outcome.Doc.LLMTranslations.Functions, 1)
	require.Len(t, outcome.Doc.ArtifactFailures, 1)
	assert.Equal(t, "helper", outcome.Doc.ArtifactFailures[0].Name)
	assert.Equal(t, "function", outcome.Doc.ArtifactFailures[0].Artifact)
}

func TestExecuteSalvagesWhenAllArtifactsFail(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	cache := &fakeCache{}
	e := newTestExecutor(tracker, blobs, cache, &fakeLimiter{}, &fakeTranslator{})
	e.newTranslator = func(_, _, _, _ string) (Translator, error) {
		return &failingTranslator{}, nil
	}
	job := testJob(t, blobs, common.TranslationDetailStandard)

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Doc.Salvaged)
	assert.False(t, outcome.Doc.Success)
	assert.Nil(t, outcome.Doc.LLMTranslations)
	assert.Len(t, outcome.Doc.ArtifactFailures, 3)
	assert.Contains(t, blobs.data, "result:job:job-1")
	// degraded results never feed the cache
	assert.Zero(t, cache.sets)
}

type failingTranslator struct{}

func (f *failingTranslator) Model() string { return "test" }

func (f *failingTranslator) Translate(_ context.Context, _ string) (string, int64, error) {
	return "", 0, commonerrors.NewProviderUnavailable("down")
}

func TestExecuteWithoutProviderSkipsTranslation(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	limiter := &fakeLimiter{}
	e := newTestExecutor(tracker, blobs, &fakeCache{}, limiter, &fakeTranslator{})
	e.newTranslator = func(_, _, _, _ string) (Translator, error) {
		t.Fatal("no translator should be built without a provider")
		return nil, nil
	}
	job := testJob(t, blobs, common.TranslationDetailStandard)
	cfg := &types.JobConfig{
		AnalysisDepth:     common.AnalysisDepthStandard,
		TranslationDetail: common.TranslationDetailStandard,
	}
	job.Config = dbutils.NullString(string(utiljson.MarshalSilently(cfg)))

	outcome, err := e.Execute(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Doc.Success)
	assert.Equal(t, 2, outcome.Doc.FunctionCount)
	assert.Nil(t, outcome.Doc.LLMTranslations)
	assert.Equal(t, 1.0, outcome.Completeness)
	assert.Zero(t, limiter.checks)
	assert.Contains(t, blobs.data, "result:job:job-1")
}

func TestExecuteObservesCancellation(t *testing.T) {
	// cancel after stage A progress has landed
	tracker := &fakeTracker{cancelAfter: 3}
	blobs := newMemBlobs()
	translator := &fakeTranslator{}
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, translator)
	job := testJob(t, blobs, common.TranslationDetailStandard)

	outcome, err := e.Execute(context.Background(), job)
	require.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Doc.Salvaged)
	assert.Less(t, outcome.Completeness, 1.0)
	assert.Contains(t, blobs.data, "result:job:job-1")
}

func TestExecuteSalvagesCancellationAfterDecompilation(t *testing.T) {
	// cancellation lands at the checkpoint between the two stages
	tracker := &fakeTracker{cancelAfter: 1}
	blobs := newMemBlobs()
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, &fakeTranslator{})
	job := testJob(t, blobs, common.TranslationDetailStandard)

	outcome, err := e.Execute(context.Background(), job)
	require.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Doc.Salvaged)
	assert.Nil(t, outcome.Doc.LLMTranslations)
	assert.Equal(t, 2, outcome.Doc.FunctionCount)
	assert.Contains(t, blobs.data, "result:job:job-1")
}

func TestExecuteEmitsStageSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)))
	defer otel.SetTracerProvider(prev)

	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, &fakeTranslator{})
	job := testJob(t, blobs, common.TranslationDetailStandard)

	_, err := e.Execute(context.Background(), job)
	require.NoError(t, err)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "pipeline.decompile")
	assert.Contains(t, names, "pipeline.translate")
}

func TestExecuteRejectsUnreadableConfig(t *testing.T) {
	tracker := &fakeTracker{}
	blobs := newMemBlobs()
	e := newTestExecutor(tracker, blobs, &fakeCache{}, &fakeLimiter{}, &fakeTranslator{})
	job := testJob(t, blobs, common.TranslationDetailStandard)
	job.Config = dbutils.NullString("{not json")

	_, err := e.Execute(context.Background(), job)
	assert.True(t, commonerrors.IsBadRequest(err))
}

func TestBuildPromptsCarryArtifactFields(t *testing.T) {
	fn := &Function{Name: "main", EntryAddress: "0x1000", Size: 64, Disassembly: "push rbp", CallTargets: []string{"helper"}}
	p := buildFunctionPrompt(fn)
	for _, want := range []string{"main", "0x1000", "push rbp", "helper"} {
		assert.Contains(t, p, want)
	}

	imp := &Import{Library: "libc.so.6", Symbol: "printf"}
	assert.Contains(t, buildImportPrompt(imp), "printf")

	s := &StringItem{Content: "cfg.ini", Address: "0x3000", Encoding: "ascii"}
	assert.Contains(t, buildStringPrompt(s), "cfg.ini")
}

func TestSalvageWithoutDecompilation(t *testing.T) {
	e := &Executor{}
	outcome, err := e.salvage(&run{job: &dbclient.Job{JobId: "j"}, startTime: time.Now()})
	assert.NoError(t, err)
	assert.Nil(t, outcome)
}
