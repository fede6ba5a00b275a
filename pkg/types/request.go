package types

// Request is the closed union of messages the router dispatches. Each request
// type carries its own payload shape; the marker method keeps the union
// closed so the router's switch stays exhaustive as actions are added.
type Request interface {
	isRequest()
}

// CredentialOp enumerates the credential manager operations.
type CredentialOp string

const (
	CredentialOpGet      CredentialOp = "get"
	CredentialOpStore    CredentialOp = "store"
	CredentialOpRemove   CredentialOp = "remove"
	CredentialOpValidate CredentialOp = "validate"
)

// Credential is one provider's stored API configuration.
type Credential struct {
	APIKey string `json:"apiKey"`
	Model  string `json:"model,omitempty"`
}

// ExtractContentRequest asks the tab's agent to run the matching extraction
// strategy. The result is delivered through tab-keyed storage, not the
// response value.
type ExtractContentRequest struct {
	TabID int
}

// SummarizeContentRequest routes extracted content plus a prompt to a
// provider. UseAPI selects the direct HTTP path when credentials allow it;
// otherwise delivery falls back to automation.
type SummarizeContentRequest struct {
	TabID      int
	PlatformID string
	URL        string
	PromptID   string
	TestPrompt string
	UseAPI     bool
}

// CredentialOpRequest performs a credential manager operation.
type CredentialOpRequest struct {
	Op         CredentialOp
	PlatformID string
	Credential *Credential
}

// CheckAPIModeRequest asks whether direct API mode is usable for a platform.
type CheckAPIModeRequest struct {
	PlatformID string
}

// GetAPIModelsRequest lists the models available for a platform.
type GetAPIModelsRequest struct {
	PlatformID string
}

// ResolvePanelStateRequest reconciles a reconnecting UI surface with the
// tab's stored session state.
type ResolvePanelStateRequest struct {
	TabID      int
	CurrentURL string
}

// PanelClosedRequest marks the tab's panel hidden. The session survives.
type PanelClosedRequest struct {
	TabID int
}

// DeleteSessionRequest removes a chat session explicitly.
type DeleteSessionRequest struct {
	SessionID string
}

// TabRemovedRequest drops all state for a permanently closed tab.
type TabRemovedRequest struct {
	TabID int
}

// PingRequest is a liveness probe.
type PingRequest struct{}

func (ExtractContentRequest) isRequest()    {}
func (SummarizeContentRequest) isRequest()  {}
func (CredentialOpRequest) isRequest()      {}
func (CheckAPIModeRequest) isRequest()      {}
func (GetAPIModelsRequest) isRequest()      {}
func (ResolvePanelStateRequest) isRequest() {}
func (PanelClosedRequest) isRequest()       {}
func (DeleteSessionRequest) isRequest()     {}
func (TabRemovedRequest) isRequest()        {}
func (PingRequest) isRequest()              {}

// Response is the uniform reply envelope. Every dispatched request resolves
// exactly one Response; failures set Success=false and Error instead of
// leaving the caller hanging.
type Response struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`

	// Content is the delivered summary for API-mode summarize requests.
	Content string `json:"content,omitempty"`

	// Usage carries reported or estimated token usage for a delivery.
	Usage *TokenUsage `json:"usage,omitempty"`

	// Credential is the (masked) stored credential for credential get ops.
	Credential *Credential `json:"credential,omitempty"`

	// ValidationResult holds the outcome of a credential validate op.
	ValidationResult *ValidationResult `json:"validationResult,omitempty"`

	// IsAvailable answers CheckAPIModeRequest.
	IsAvailable bool `json:"isAvailable,omitempty"`

	// Models answers GetAPIModelsRequest.
	Models []string `json:"models,omitempty"`

	// Ready answers PingRequest.
	Ready bool `json:"ready,omitempty"`
}

// ValidationResult reports whether a credential passed a live validation
// call, with a user-facing message either way.
type ValidationResult struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message"`
}

// OKResponse builds a bare success response.
func OKResponse() Response {
	return Response{Success: true, Status: "ok"}
}

// ErrorResponse builds a failure response from an error.
func ErrorResponse(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "unknown error"}
	}
	return Response{Success: false, Error: err.Error()}
}
