package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/spigell/talentflow/internal/ai"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	mu    sync.Mutex
	calls []modelCallRecord
	queue []fakeModelResponse
}

type modelCallRecord struct {
	model    string
	config   *genai.GenerateContentConfig
	contents []*genai.Content
}

type fakeModelResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeModelResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, modelCallRecord{model: model, config: config, contents: contents})
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(models *fakeModels, retries int) *Generator {
	return &Generator{
		models:     models,
		model:      "gemini-pro",
		maxRetries: retries,
		maxLogLen:  defaultMaxLogLength,
		logger:     zap.NewNop(),
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	originalWait := wait
	wait = func(context.Context, time.Duration) error { return nil }
	defer func() { wait = originalWait }()

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newTestGenerator(models, 2)

	output, err := g.GenerateText(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}

	for _, call := range models.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if got := call.contents[0].Parts[0].Text; got != "message" {
			t.Fatalf("unexpected message: %q", got)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	originalWait := wait
	wait = func(context.Context, time.Duration) error { return nil }
	defer func() { wait = originalWait }()

	models := &fakeModels{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models.enqueue(nil, tempErr)
	models.enqueue(nil, tempErr)

	_, err := newTestGenerator(models, 2).GenerateText(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorStopsWaitingOnCancel(t *testing.T) {
	originalWait := wait
	var waited time.Duration
	wait = func(ctx context.Context, d time.Duration) error {
		waited = d
		return ctx.Err()
	}
	defer func() { wait = originalWait }()

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	models.enqueue(textResponse("too late"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(models, 3).GenerateText(ctx, "sys", "msg")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if waited != baseBackoff {
		t.Fatalf("expected first backoff %v, got %v", baseBackoff, waited)
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	_, err := newTestGenerator(models, 3).GenerateText(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	if _, err := newTestGenerator(models, 3).GenerateText(context.Background(), "", "msg"); err == nil {
		t.Fatal("expected error")
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
	if models.calls[0].config.SystemInstruction != nil {
		t.Fatal("empty system prompt must not set an instruction")
	}
}

func TestGenerateJSONUsesSchema(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse(`{"kind": "single_language", "language_name": "Go"}`), nil)

	schema := ai.Schema{
		Name: "ProgrammingLanguagePreference",
		Properties: []ai.Property{
			{Name: "kind", Type: ai.TypeString, Enum: []string{"polyglot", "single_language", "unknown"}},
			{Name: "language_name", Type: ai.TypeString},
		},
		Required: []string{"kind"},
	}

	data, err := newTestGenerator(models, 1).GenerateJSON(context.Background(), "classify", "I write Go", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data["language_name"] != "Go" {
		t.Fatalf("unexpected data: %#v", data)
	}

	config := models.calls[0].config
	if config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json mime type, got %q", config.ResponseMIMEType)
	}
	if config.ResponseSchema == nil || config.ResponseSchema.Type != genai.TypeObject {
		t.Fatalf("expected object schema, got %#v", config.ResponseSchema)
	}
	if got := config.ResponseSchema.Properties["kind"].Enum; len(got) != 3 {
		t.Fatalf("expected kind enum to be forwarded, got %v", got)
	}
}

func TestRetryDelayHonoursShortQuotaHint(t *testing.T) {
	delay, retry := retryDelay(genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 2.5s."}, 1)
	if !retry || delay != 2500*time.Millisecond {
		t.Fatalf("expected retry after 2.5s, got %v %v", delay, retry)
	}

	if _, retry := retryDelay(errors.New("dial tcp: refused"), 1); retry {
		t.Fatal("non-api errors are not retried")
	}
}
