package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pagerelay/pagerelay/pkg/api"
	"github.com/pagerelay/pagerelay/pkg/automation"
	"github.com/pagerelay/pagerelay/pkg/catalog"
	"github.com/pagerelay/pagerelay/pkg/credentials"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/state"
	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/types"
)

// fakeAgents simulates tab workers: extraction writes a scripted record to
// the tab's content key, automation deliveries succeed or fail per script.
type fakeAgents struct {
	mu        sync.Mutex
	local     storage.Store
	content   map[int]*types.ExtractedContent
	result    automation.Result
	delivered map[int]string
	closed    []int
}

func (f *fakeAgents) Extract(_ context.Context, tabID int) error {
	f.mu.Lock()
	content, ok := f.content[tabID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no page in tab %d", tabID)
	}
	return f.local.Set(storage.TabContentKey(tabID), content)
}

func (f *fakeAgents) DeliverAutomation(_ context.Context, tabID int, platformID, message string) (automation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered == nil {
		f.delivered = make(map[int]string)
	}
	f.delivered[tabID] = message
	result := f.result
	if result.State == "" {
		result = automation.Result{State: automation.StateSuccess, PlatformID: platformID}
	}
	return result, nil
}

func (f *fakeAgents) CloseTab(tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tabID)
	return nil
}

// fakeAPI scripts the coordinator: Complete echoes the submitted message so
// tests can see exactly what was delivered.
type fakeAPI struct {
	mu        sync.Mutex
	err       error
	available bool
	models    []string
	requests  map[string]string // platformID -> last message
}

func (f *fakeAPI) Complete(_ context.Context, platformID string, messages []types.ChatMessage) (*api.CompletionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	if f.requests == nil {
		f.requests = make(map[string]string)
	}
	f.requests[platformID] = messages[len(messages)-1].Content
	f.mu.Unlock()

	result := &api.CompletionResult{Content: "echo: " + messages[len(messages)-1].Content}
	result.Usage.Add(50, 10)
	return result, nil
}

func (f *fakeAPI) CheckAvailability(string) (bool, error) { return f.available, nil }

func (f *fakeAPI) ListModels(string) ([]string, error) { return f.models, nil }

type fixture struct {
	router *Router
	agents *fakeAgents
	api    *fakeAPI
	state  *state.Manager
	creds  *credentials.Manager
	local  storage.Store
	sync   storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	local, err := storage.NewFileStore(filepath.Join(dir, "local.json"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	syncStore, err := storage.NewFileStore(filepath.Join(dir, "sync.json"))
	if err != nil {
		t.Fatalf("sync store: %v", err)
	}
	t.Cleanup(func() {
		local.Close()
		syncStore.Close()
	})

	cat, err := catalog.NewLoader("", "").Load()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	log, _ := logging.NewLogger("router-test")
	t.Cleanup(func() { log.Close() })

	agents := &fakeAgents{local: local, content: make(map[int]*types.ExtractedContent)}
	apiClient := &fakeAPI{}
	st := state.NewManager(local, log)
	creds := credentials.NewManager(syncStore, nil)

	return &fixture{
		router: New(agents, apiClient, st, creds, cat, local, syncStore, log),
		agents: agents,
		api:    apiClient,
		state:  st,
		creds:  creds,
		local:  local,
		sync:   syncStore,
	}
}

func pageContent(title string) *types.ExtractedContent {
	return &types.ExtractedContent{
		ContentType: types.ContentTypeGeneral,
		Title:       title,
		URL:         "https://example.com/" + title,
		Body:        "Body text for " + title,
	}
}

func TestDispatchPing(t *testing.T) {
	fx := newFixture(t)
	resp := fx.router.Dispatch(context.Background(), types.PingRequest{})
	if !resp.Success || resp.Status != "pong" || !resp.Ready {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestDispatchUnknownRequest(t *testing.T) {
	fx := newFixture(t)
	resp := fx.router.Dispatch(context.Background(), nil)
	if resp.Success || resp.Error == "" {
		t.Fatalf("unknown requests must fail with an error, got %+v", resp)
	}
}

func TestSummarizeAPIPath(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[1] = pageContent("go-release-notes")

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      1,
		PlatformID: "openai",
		UseAPI:     true,
		TestPrompt: "Summarize briefly.",
	})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.HasPrefix(resp.Content, "echo: ") {
		t.Errorf("content = %q", resp.Content)
	}
	if !strings.Contains(resp.Content, "Summarize briefly.") || !strings.Contains(resp.Content, "go-release-notes") {
		t.Errorf("delivered message must carry prompt and content: %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 60 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	// The consumed content record must be cleared.
	var stale types.ExtractedContent
	if ok, _ := fx.local.Get(storage.TabContentKey(1), &stale); ok {
		t.Error("delivered content must be read-and-cleared")
	}

	// The exchange must be recorded against the tab's session.
	session, ok, err := fx.state.ActiveSession(1)
	if err != nil || !ok {
		t.Fatalf("ActiveSession: ok=%v err=%v", ok, err)
	}
	if len(session.Messages) != 2 || session.IsProvisional {
		t.Errorf("session = %+v", session)
	}
}

func TestSummarizeFallsBackToAutomation(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[2] = pageContent("fallback-page")
	fx.api.err = api.ErrNoCredential

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      2,
		PlatformID: "openai",
		UseAPI:     true,
		TestPrompt: "Summarize.",
	})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if fx.agents.delivered[2] == "" {
		t.Fatal("automation delivery must carry the formatted message")
	}
	if !strings.Contains(fx.agents.delivered[2], "fallback-page") {
		t.Errorf("delivered = %q", fx.agents.delivered[2])
	}
	if resp.Usage == nil || resp.Usage.InputTokens <= 0 {
		t.Errorf("automation deliveries must carry estimated usage: %+v", resp.Usage)
	}
}

func TestSummarizeAutomationPath(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[3] = pageContent("automation-page")

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      3,
		PlatformID: "gemini",
		TestPrompt: "Summarize.",
	})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}

	var stale types.ExtractedContent
	if ok, _ := fx.local.Get(storage.TabContentKey(3), &stale); ok {
		t.Error("delivered content must be cleared after automation success")
	}
}

func TestSummarizeInterfaceNotFoundWithoutCredential(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[4] = pageContent("broken-page")
	fx.agents.result = automation.Result{
		State:      automation.StateFailed,
		Reason:     automation.ReasonInterfaceNotFound,
		PlatformID: "openai",
	}

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      4,
		PlatformID: "openai",
		TestPrompt: "Summarize.",
	})
	if resp.Success {
		t.Fatal("delivery must fail")
	}
	if !strings.Contains(resp.Error, "API key") {
		t.Errorf("no-credential failure must be actionable: %q", resp.Error)
	}

	// Content stays for a later retry.
	var pending types.ExtractedContent
	if ok, _ := fx.local.Get(storage.TabContentKey(4), &pending); !ok {
		t.Error("undelivered content must not be cleared")
	}
}

func TestSummarizeLoginSuspected(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[4] = pageContent("signed-out")
	if err := fx.creds.Store("openai", types.Credential{APIKey: "sk-test-key-123"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	fx.agents.result = automation.Result{
		State:          automation.StateFailed,
		Reason:         automation.ReasonInterfaceNotFound,
		PlatformID:     "openai",
		LoginSuspected: true,
	}

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      4,
		PlatformID: "openai",
		TestPrompt: "Summarize.",
	})
	if resp.Success || !strings.Contains(resp.Error, "signed out") {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestConcurrentSummarizesStayIsolated(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[10] = pageContent("tab-ten-article")
	fx.agents.content[20] = pageContent("tab-twenty-article")

	var wg sync.WaitGroup
	responses := make([]types.Response, 2)
	for i, tabID := range []int{10, 20} {
		wg.Add(1)
		go func(i, tabID int) {
			defer wg.Done()
			responses[i] = fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
				TabID:      tabID,
				PlatformID: "openai",
				UseAPI:     true,
				TestPrompt: "Summarize.",
			})
		}(i, tabID)
	}
	wg.Wait()

	if !responses[0].Success || !responses[1].Success {
		t.Fatalf("responses = %+v", responses)
	}
	if !strings.Contains(responses[0].Content, "tab-ten-article") || strings.Contains(responses[0].Content, "tab-twenty-article") {
		t.Errorf("tab 10 response leaked other tab's content: %q", responses[0].Content)
	}
	if !strings.Contains(responses[1].Content, "tab-twenty-article") || strings.Contains(responses[1].Content, "tab-ten-article") {
		t.Errorf("tab 20 response leaked other tab's content: %q", responses[1].Content)
	}
}

func TestSummarizeCustomPromptResolution(t *testing.T) {
	fx := newFixture(t)
	fx.agents.content[5] = pageContent("prompted-page")
	custom := map[types.ContentType]catalog.Prompt{
		types.ContentTypeGeneral: {Name: "bullets", Content: "Reply with exactly three bullet points."},
	}
	if err := fx.sync.Set(storage.KeyCustomPrompts, custom); err != nil {
		t.Fatalf("seed custom prompts: %v", err)
	}

	resp := fx.router.Dispatch(context.Background(), types.SummarizeContentRequest{
		TabID:      5,
		PlatformID: "openai",
		UseAPI:     true,
		PromptID:   "bullets",
	})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(fx.api.requests["openai"], "three bullet points") {
		t.Errorf("custom prompt must win over the default: %q", fx.api.requests["openai"])
	}
}

func TestCredentialOps(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	resp := fx.router.Dispatch(ctx, types.CredentialOpRequest{
		Op:         types.CredentialOpStore,
		PlatformID: "openai",
		Credential: &types.Credential{APIKey: "sk-abcdef123456", Model: "gpt-4o"},
	})
	if !resp.Success {
		t.Fatalf("store: %+v", resp)
	}

	resp = fx.router.Dispatch(ctx, types.CredentialOpRequest{
		Op:         types.CredentialOpGet,
		PlatformID: "openai",
	})
	if !resp.Success || resp.Credential == nil {
		t.Fatalf("get: %+v", resp)
	}
	if resp.Credential.APIKey != "sk-a...3456" {
		t.Errorf("get must return a masked key, got %q", resp.Credential.APIKey)
	}

	resp = fx.router.Dispatch(ctx, types.CredentialOpRequest{
		Op:         types.CredentialOpValidate,
		PlatformID: "openai",
		Credential: &types.Credential{APIKey: "sk-abcdef123456"},
	})
	if !resp.Success || resp.ValidationResult == nil || !resp.ValidationResult.IsValid {
		t.Fatalf("validate: %+v", resp)
	}

	resp = fx.router.Dispatch(ctx, types.CredentialOpRequest{
		Op:         types.CredentialOpRemove,
		PlatformID: "openai",
	})
	if !resp.Success {
		t.Fatalf("remove: %+v", resp)
	}
	resp = fx.router.Dispatch(ctx, types.CredentialOpRequest{
		Op:         types.CredentialOpGet,
		PlatformID: "openai",
	})
	if !resp.Success || resp.Credential != nil {
		t.Fatalf("get after remove: %+v", resp)
	}
}

func TestCheckAPIModeAndModels(t *testing.T) {
	fx := newFixture(t)
	fx.api.available = false
	fx.api.models = []string{"gpt-4o", "gpt-4o-mini"}

	resp := fx.router.Dispatch(context.Background(), types.CheckAPIModeRequest{PlatformID: "openai"})
	if !resp.Success || resp.IsAvailable {
		t.Fatalf("no credential must mean success=true, available=false: %+v", resp)
	}

	fx.api.available = true
	resp = fx.router.Dispatch(context.Background(), types.CheckAPIModeRequest{PlatformID: "openai"})
	if !resp.Success || !resp.IsAvailable {
		t.Fatalf("resp = %+v", resp)
	}

	resp = fx.router.Dispatch(context.Background(), types.GetAPIModelsRequest{PlatformID: "openai"})
	if !resp.Success || len(resp.Models) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPanelLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	resp := fx.router.Dispatch(ctx, types.ResolvePanelStateRequest{TabID: 7, CurrentURL: "https://example.com"})
	if !resp.Success {
		t.Fatalf("resolve: %+v", resp)
	}
	session, ok, err := fx.state.ActiveSession(7)
	if err != nil || !ok {
		t.Fatalf("ActiveSession: ok=%v err=%v", ok, err)
	}

	resp = fx.router.Dispatch(ctx, types.PanelClosedRequest{TabID: 7})
	if !resp.Success {
		t.Fatalf("panel closed: %+v", resp)
	}
	if _, ok, _ := fx.state.ActiveSession(7); !ok {
		t.Error("session must survive panel close")
	}

	resp = fx.router.Dispatch(ctx, types.DeleteSessionRequest{SessionID: session.ID})
	if !resp.Success {
		t.Fatalf("delete session: %+v", resp)
	}
	if _, ok, _ := fx.state.ActiveSession(7); ok {
		t.Error("deleted session must be unbound")
	}
}

func TestTabRemoved(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.state.EnsureSession(9, "openai", "gpt-4o"); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}

	resp := fx.router.Dispatch(ctx, types.TabRemovedRequest{TabID: 9})
	if !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if len(fx.agents.closed) != 1 || fx.agents.closed[0] != 9 {
		t.Errorf("agent must be closed: %v", fx.agents.closed)
	}
	if _, ok, _ := fx.state.ActiveSession(9); ok {
		t.Error("removed tab must have no session")
	}
}
