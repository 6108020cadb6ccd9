package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type stubClient struct {
	text  string
	err   error
	calls int
	last  Request
	delay time.Duration
}

func (s *stubClient) Complete(ctx context.Context, req Request) (Response, error) {
	s.calls++
	s.last = req
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Response{}, s.err
	}
	return Response{Text: s.text}, nil
}

func TestAnalyzeParsesModelOutput(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		wantIntent intent.Intent
		wantConf   int
		wantErr    bool
	}{
		{"plain json", `{"intent":"PRICES","confidence":82}`, intent.Prices, 82, false},
		{"fenced json", "```json\n{\"intent\":\"schedule\",\"confidence\":91,\"entities\":{\"service\":\"Botox\"}}\n```", intent.ScheduleNew, 91, false},
		{"unit scale", `{"intent":"GREETING","confidence":0.75}`, intent.Greeting, 75, false},
		{"clamped", `{"intent":"CANCEL","confidence":140}`, intent.Cancel, 100, false},
		{"unknown label", `{"intent":"WEATHER","confidence":90}`, intent.Unknown, 90, false},
		{"no json", "não sei", intent.Unknown, 0, true},
		{"broken json", `{"intent": }`, intent.Unknown, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&stubClient{text: tt.reply}, logging.Discard())
			got, err := c.Analyze(context.Background(), "mensagem", Snapshot{ClinicName: "Bella"})
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("expected malformed output error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Intent != tt.wantIntent || got.Confidence != tt.wantConf {
				t.Fatalf("got %s/%d, want %s/%d", got.Intent, got.Confidence, tt.wantIntent, tt.wantConf)
			}
		})
	}
}

func TestAnalyzeEntitiesAndPrompt(t *testing.T) {
	stub := &stubClient{text: `{"intent":"SCHEDULE_NEW","confidence":88,"entities":{"service":"Botox","date":"amanhã","time":"10:00"}}`}
	c := NewClassifier(stub, logging.Discard())
	got, err := c.Analyze(context.Background(), "queria botox amanhã 10h", Snapshot{
		ClinicName: "Bella",
		Services:   []string{"Botox", "Peeling"},
		State:      "AUTO_ATTENDANCE",
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Entities.Service != "Botox" || got.Entities.Time != "10:00" {
		t.Fatalf("unexpected entities %+v", got.Entities)
	}
	prompt := stub.last.Messages[len(stub.last.Messages)-1].Content
	if !strings.Contains(prompt, "Botox, Peeling") || !strings.Contains(prompt, "AUTO_ATTENDANCE") {
		t.Fatalf("prompt missing context: %q", prompt)
	}
}

func TestAnalyzeTransportError(t *testing.T) {
	c := NewClassifier(&stubClient{err: errors.New("boom")}, logging.Discard())
	got, err := c.Analyze(context.Background(), "x", Snapshot{})
	if err == nil || got.Intent != intent.Unknown {
		t.Fatalf("expected error and unknown intent")
	}
	if _, err := NewClassifier(nil, nil).Analyze(context.Background(), "x", Snapshot{}); err == nil {
		t.Fatalf("nil client must error")
	}
}

func TestResponder(t *testing.T) {
	stub := &stubClient{text: "  Claro! Posso ajudar.  "}
	r := NewResponder(stub, "Clínica Bella Vita")
	got, err := r.Generate(context.Background(), "vocês atendem criança?")
	if err != nil || got != "Claro! Posso ajudar." {
		t.Fatalf("unexpected reply %q %v", got, err)
	}
	if !strings.Contains(stub.last.System[0], "Clínica Bella Vita") {
		t.Fatalf("system prompt should name the clinic")
	}
	if _, err := NewResponder(&stubClient{text: " "}, "x").Generate(context.Background(), "p"); err == nil {
		t.Fatalf("empty reply must error")
	}
}

func TestFallbackClient(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	secondary := &stubClient{text: "ok"}
	c := NewFallbackClient(primary, secondary, logging.Discard())
	resp, err := c.Complete(context.Background(), Request{Model: "gemini-1.5-flash"})
	if err != nil || resp.Text != "ok" {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if secondary.last.Model != "" {
		t.Fatalf("fallback must not receive the primary model id")
	}

	c = NewFallbackClient(primary, nil, logging.Discard())
	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected primary error without fallback")
	}

	healthy := &stubClient{text: "primary"}
	c = NewFallbackClient(healthy, secondary, logging.Discard())
	secondary.calls = 0
	if resp, _ := c.Complete(context.Background(), Request{}); resp.Text != "primary" || secondary.calls != 0 {
		t.Fatalf("fallback should not be called when primary succeeds")
	}
}

func TestTimeoutClient(t *testing.T) {
	slow := &stubClient{text: "late", delay: 200 * time.Millisecond}
	c := WithTimeout(slow, 10*time.Millisecond)
	if _, err := c.Complete(context.Background(), Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WithTimeout(slow, 0) != Client(slow) {
		t.Fatalf("zero timeout should return the client unchanged")
	}
}

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestBedrockClient(t *testing.T) {
	api := &fakeConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: " olá "}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(2), TotalTokens: aws.Int32(12)},
	}}
	c := NewBedrockClient(api, "anthropic.claude-3-haiku")
	resp, err := c.Complete(context.Background(), Request{
		System:      []string{"sys"},
		Messages:    []Message{{Role: RoleUser, Content: "oi"}, {Role: RoleAssistant, Content: "olá"}, {Role: RoleUser, Content: "preço"}},
		MaxTokens:   100,
		Temperature: -1,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text != "olá" || resp.Usage.TotalTokens != 12 || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if aws.ToString(api.input.ModelId) != "anthropic.claude-3-haiku" || len(api.input.Messages) != 3 {
		t.Fatalf("unexpected input %+v", api.input)
	}
	if api.input.InferenceConfig.Temperature != nil {
		t.Fatalf("negative temperature should be omitted")
	}

	if _, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}}); err == nil {
		t.Fatalf("unsupported role must error")
	}
	api.out = &bedrockruntime.ConverseOutput{}
	if _, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}}); err == nil {
		t.Fatalf("missing message output must error")
	}
}

func TestOpenAIClient(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"intent\":\"HOURS\",\"confidence\":77}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("test-key", srv.URL+"/v1", "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	analysis, err := NewClassifier(client, logging.Discard()).Analyze(context.Background(), "que horas abre?", Snapshot{ClinicName: "Bella"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Intent != intent.Hours || analysis.Confidence != 77 {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if got.Model != "gpt-4o-mini" || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", got)
	}
	if _, err := NewOpenAIClient("", "", ""); err == nil {
		t.Fatalf("missing key must error")
	}
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(context.Background(), &config.Config{AIProvider: "none"}, logging.Discard())
	if err != nil || c != nil {
		t.Fatalf("expected no client, got %v %v", c, err)
	}
	c, err = NewFromConfig(context.Background(), &config.Config{AIProvider: "gemini", OpenAIAPIKey: "k", AITimeout: time.Second}, logging.Discard())
	if err != nil || c == nil {
		t.Fatalf("openai key alone should yield a client: %v", err)
	}
	if _, err := NewFromConfig(context.Background(), &config.Config{AIProvider: "watson"}, logging.Discard()); err == nil {
		t.Fatalf("unknown provider must error")
	}
}

func TestRequestSplit(t *testing.T) {
	req := Request{
		System: []string{" base ", ""},
		Messages: []Message{
			{Role: RoleSystem, Content: "extra"},
			{Role: RoleUser, Content: "  oi "},
			{Role: RoleAssistant, Content: "   "},
			{Role: RoleAssistant, Content: "olá"},
		},
	}
	system, turns, err := req.split()
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if system != "base\n\nextra" {
		t.Fatalf("unexpected system %q", system)
	}
	if len(turns) != 2 || turns[0].Content != "oi" || turns[1].Role != RoleAssistant {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if got := (Request{}).model("fallback"); got != "fallback" {
		t.Fatalf("model default = %q", got)
	}
}
