// Package router is the background coordinator's single dispatch point. Every
// inbound typed request is matched exhaustively, resolved against the owning
// component, and answered exactly once; failures become structured error
// responses rather than dropped requests.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagerelay/pagerelay/pkg/api"
	"github.com/pagerelay/pagerelay/pkg/automation"
	"github.com/pagerelay/pagerelay/pkg/catalog"
	"github.com/pagerelay/pagerelay/pkg/credentials"
	"github.com/pagerelay/pagerelay/pkg/format"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/state"
	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/types"
)

// Agents is the router's view of the tab-scoped workers: extraction runs
// inside the tab and lands in storage; automation deliveries drive the tab's
// live page.
type Agents interface {
	// Extract runs the tab's matching extraction strategy. The record is
	// delivered through the tab's content key, not the return value.
	Extract(ctx context.Context, tabID int) error

	// DeliverAutomation drives the platform's web chat in the tab's
	// browser and submits the message.
	DeliverAutomation(ctx context.Context, tabID int, platformID, message string) (automation.Result, error)

	// CloseTab releases the tab's resources.
	CloseTab(tabID int) error
}

// APIClient is the router's view of the API coordinator.
type APIClient interface {
	Complete(ctx context.Context, platformID string, messages []types.ChatMessage) (*api.CompletionResult, error)
	CheckAvailability(platformID string) (bool, error)
	ListModels(platformID string) ([]string, error)
}

const (
	contentPollAttempts = 20
	contentPollInterval = 250 * time.Millisecond
)

// Router dispatches typed requests. Safe for concurrent use; per-request
// state is keyed by tab id through the storage layer, so requests from
// distinct tabs never interfere.
type Router struct {
	agents      Agents
	apiClient   APIClient
	state       *state.Manager
	credentials *credentials.Manager
	catalog     *catalog.Catalog
	local       storage.Store
	sync        storage.Store
	log         *logging.Logger
}

// New wires a router over its collaborators.
func New(agents Agents, apiClient APIClient, st *state.Manager, creds *credentials.Manager, cat *catalog.Catalog, local, sync storage.Store, log *logging.Logger) *Router {
	return &Router{
		agents:      agents,
		apiClient:   apiClient,
		state:       st,
		credentials: creds,
		catalog:     cat,
		local:       local,
		sync:        sync,
		log:         log,
	}
}

// Dispatch resolves one request into one response. A nil or unknown request
// type answers with a structured failure.
func (r *Router) Dispatch(ctx context.Context, req types.Request) types.Response {
	switch req := req.(type) {
	case types.ExtractContentRequest:
		return r.handleExtract(ctx, req)
	case types.SummarizeContentRequest:
		return r.handleSummarize(ctx, req)
	case types.CredentialOpRequest:
		return r.handleCredentialOp(ctx, req)
	case types.CheckAPIModeRequest:
		return r.handleCheckAPIMode(req)
	case types.GetAPIModelsRequest:
		return r.handleGetModels(req)
	case types.ResolvePanelStateRequest:
		return r.handleResolvePanel(req)
	case types.PanelClosedRequest:
		return r.handlePanelClosed(req)
	case types.DeleteSessionRequest:
		return r.handleDeleteSession(req)
	case types.TabRemovedRequest:
		return r.handleTabRemoved(req)
	case types.PingRequest:
		return types.Response{Success: true, Status: "pong", Ready: true}
	default:
		return types.Response{Success: false, Error: fmt.Sprintf("unsupported request type %T", req)}
	}
}

func (r *Router) handleExtract(ctx context.Context, req types.ExtractContentRequest) types.Response {
	if err := r.agents.Extract(ctx, req.TabID); err != nil {
		return types.ErrorResponse(fmt.Errorf("extraction failed for tab %d: %w", req.TabID, err))
	}
	return types.OKResponse()
}

func (r *Router) handleSummarize(ctx context.Context, req types.SummarizeContentRequest) types.Response {
	if err := r.agents.Extract(ctx, req.TabID); err != nil {
		return types.ErrorResponse(fmt.Errorf("extraction failed for tab %d: %w", req.TabID, err))
	}

	content, err := r.awaitContent(ctx, req.TabID)
	if err != nil {
		return types.ErrorResponse(err)
	}

	prompt := r.resolvePrompt(req, content.ContentType)
	message := format.Content(content, prompt)

	if req.UseAPI {
		resp, fellThrough := r.deliverAPI(ctx, req, message)
		if !fellThrough {
			return resp
		}
		// No credential: fall back to driving the provider's web chat.
		r.log.Infof("tab %d: no %s credential, falling back to automation", req.TabID, req.PlatformID)
	}

	return r.deliverAutomation(ctx, req, message)
}

// awaitContent polls the tab's content key until the agent's record lands.
func (r *Router) awaitContent(ctx context.Context, tabID int) (*types.ExtractedContent, error) {
	var content types.ExtractedContent
	key := storage.TabContentKey(tabID)

	ok, err := automation.Await(ctx, contentPollAttempts, contentPollInterval, func(context.Context) (bool, error) {
		found, err := r.local.Get(key, &content)
		if err != nil {
			return false, err
		}
		return found, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed waiting for extracted content: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no extracted content for tab %d after %d attempts", tabID, contentPollAttempts)
	}
	return &content, nil
}

// resolvePrompt picks the prompt text: an explicit test prompt wins, then a
// stored custom prompt for the content type (matched by name when PromptID
// is set), then the catalog default.
func (r *Router) resolvePrompt(req types.SummarizeContentRequest, contentType types.ContentType) string {
	if req.TestPrompt != "" {
		return req.TestPrompt
	}

	custom := make(map[types.ContentType]catalog.Prompt)
	if _, err := r.sync.Get(storage.KeyCustomPrompts, &custom); err != nil {
		r.log.Warnf("failed to load custom prompts: %v", err)
	}
	if p, ok := custom[contentType]; ok && (req.PromptID == "" || req.PromptID == p.Name) {
		return p.Content
	}

	return r.catalog.DefaultPrompt(contentType).Content
}

// deliverAPI attempts the direct HTTP path. The bool reports a credential
// miss, which the caller treats as a fall-through to automation rather than
// a failure.
func (r *Router) deliverAPI(ctx context.Context, req types.SummarizeContentRequest, message string) (types.Response, bool) {
	model := ""
	if desc, err := r.catalog.Platform(req.PlatformID); err == nil && desc.API != nil {
		model = desc.API.DefaultModel
	}
	if cred, ok, _ := r.credentials.Get(req.PlatformID); ok && cred.Model != "" {
		model = cred.Model
	}

	session, err := r.state.EnsureSession(req.TabID, req.PlatformID, model)
	if err != nil {
		return types.ErrorResponse(err), false
	}

	result, err := r.apiClient.Complete(ctx, req.PlatformID, []types.ChatMessage{
		{Role: types.RoleUser, Content: message},
	})
	if err != nil {
		if errors.Is(err, api.ErrNoCredential) || errors.Is(err, api.ErrAPIUnsupported) {
			return types.Response{}, true
		}
		return types.ErrorResponse(err), false
	}

	if err := r.finishDelivery(req.TabID, session.ID, message, result.Content, result.Usage); err != nil {
		return types.ErrorResponse(err), false
	}

	return types.Response{
		Success: true,
		Status:  "delivered",
		Content: result.Content,
		Usage:   &result.Usage,
	}, false
}

func (r *Router) deliverAutomation(ctx context.Context, req types.SummarizeContentRequest, message string) types.Response {
	session, err := r.state.EnsureSession(req.TabID, req.PlatformID, "")
	if err != nil {
		return types.ErrorResponse(err)
	}

	result, err := r.agents.DeliverAutomation(ctx, req.TabID, req.PlatformID, message)
	if err != nil {
		return types.ErrorResponse(err)
	}
	if result.Failed() {
		return types.ErrorResponse(r.automationFailure(req.PlatformID, result))
	}

	usage := r.state.EstimateUsage(message, "")
	if err := r.finishDelivery(req.TabID, session.ID, message, "", usage); err != nil {
		return types.ErrorResponse(err)
	}

	return types.Response{
		Success: true,
		Status:  "delivered",
		Usage:   &usage,
	}
}

// automationFailure turns a terminal state machine result into an actionable
// user-facing error.
func (r *Router) automationFailure(platformID string, result automation.Result) error {
	switch result.Reason {
	case automation.ReasonInterfaceNotFound:
		_, hasCred, _ := r.credentials.Get(platformID)
		if !hasCred {
			return fmt.Errorf("%s chat interface was not found and no API key is stored; log in to %s in the browser or add an API key in settings", platformID, platformID)
		}
		if result.LoginSuspected {
			return fmt.Errorf("%s appears to be signed out; log in and try again", platformID)
		}
		return fmt.Errorf("%s chat interface was not found; the provider's page may have changed", platformID)
	case automation.ReasonSubmitFailed:
		return fmt.Errorf("message could not be submitted to %s; the provider's page may have changed", platformID)
	default:
		return fmt.Errorf("delivery to %s failed: %s", platformID, result.Reason)
	}
}

// finishDelivery records the exchange and clears the tab's consumed content
// record. Read-and-clear is what keeps a record from being delivered twice.
func (r *Router) finishDelivery(tabID int, sessionID, prompt, reply string, usage types.TokenUsage) error {
	if err := r.state.RecordExchange(sessionID, prompt, reply, usage); err != nil {
		return err
	}
	if err := r.local.Delete(storage.TabContentKey(tabID)); err != nil {
		return fmt.Errorf("failed to clear delivered content: %w", err)
	}
	return nil
}

func (r *Router) handleCredentialOp(ctx context.Context, req types.CredentialOpRequest) types.Response {
	switch req.Op {
	case types.CredentialOpGet:
		cred, ok, err := r.credentials.GetMasked(req.PlatformID)
		if err != nil {
			return types.ErrorResponse(err)
		}
		if !ok {
			return types.Response{Success: true, Status: "not-found"}
		}
		return types.Response{Success: true, Status: "ok", Credential: &cred}

	case types.CredentialOpStore:
		if req.Credential == nil {
			return types.ErrorResponse(fmt.Errorf("store operation requires a credential"))
		}
		if err := r.credentials.Store(req.PlatformID, *req.Credential); err != nil {
			return types.ErrorResponse(err)
		}
		return types.OKResponse()

	case types.CredentialOpRemove:
		if err := r.credentials.Remove(req.PlatformID); err != nil {
			return types.ErrorResponse(err)
		}
		return types.OKResponse()

	case types.CredentialOpValidate:
		if req.Credential == nil {
			return types.ErrorResponse(fmt.Errorf("validate operation requires a credential"))
		}
		result := r.credentials.Validate(ctx, req.PlatformID, *req.Credential)
		return types.Response{Success: true, Status: "ok", ValidationResult: &result}

	default:
		return types.ErrorResponse(fmt.Errorf("unknown credential operation %q", req.Op))
	}
}

func (r *Router) handleCheckAPIMode(req types.CheckAPIModeRequest) types.Response {
	available, err := r.apiClient.CheckAvailability(req.PlatformID)
	if err != nil {
		return types.ErrorResponse(err)
	}
	return types.Response{Success: true, IsAvailable: available}
}

func (r *Router) handleGetModels(req types.GetAPIModelsRequest) types.Response {
	models, err := r.apiClient.ListModels(req.PlatformID)
	if err != nil {
		return types.ErrorResponse(err)
	}
	return types.Response{Success: true, Models: models}
}

func (r *Router) handleResolvePanel(req types.ResolvePanelStateRequest) types.Response {
	if _, err := r.state.ResolvePanelState(req.TabID, req.CurrentURL); err != nil {
		return types.ErrorResponse(err)
	}
	return types.OKResponse()
}

func (r *Router) handlePanelClosed(req types.PanelClosedRequest) types.Response {
	if err := r.state.PanelClosed(req.TabID); err != nil {
		return types.ErrorResponse(err)
	}
	return types.OKResponse()
}

func (r *Router) handleDeleteSession(req types.DeleteSessionRequest) types.Response {
	if err := r.state.DeleteSession(req.SessionID); err != nil {
		return types.ErrorResponse(err)
	}
	return types.OKResponse()
}

func (r *Router) handleTabRemoved(req types.TabRemovedRequest) types.Response {
	if err := r.agents.CloseTab(req.TabID); err != nil {
		r.log.Warnf("tab %d: agent close failed: %v", req.TabID, err)
	}
	if err := r.state.TabRemoved(req.TabID); err != nil {
		return types.ErrorResponse(err)
	}
	return types.OKResponse()
}
