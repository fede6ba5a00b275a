// Package catalog loads the read-only provider catalog and default prompt
// documents. Both are YAML, loaded lazily and cached for the process
// lifetime; built-in defaults are embedded and can be overridden by files.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pagerelay/pagerelay/pkg/types"
)

//go:embed platforms.yaml
var defaultPlatformsYAML []byte

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// AuthType selects how the API coordinator attaches credentials.
type AuthType string

const (
	// AuthBearer sends "Authorization: Bearer <key>".
	AuthBearer AuthType = "bearer"
	// AuthHeader sends the key in a provider-named custom header.
	AuthHeader AuthType = "header"
)

// APIConfig describes a provider's direct HTTP call path. A nil APIConfig on
// a descriptor means the provider is automation-only.
type APIConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	AuthType     AuthType `yaml:"authType"`
	AuthHeader   string   `yaml:"authHeader,omitempty"`   // header name for AuthHeader
	ExtraHeaders map[string]string `yaml:"extraHeaders,omitempty"`
	WireFormat   string   `yaml:"wireFormat"` // "openai" or "anthropic"
	Models       []string `yaml:"models"`
	DefaultModel string   `yaml:"defaultModel"`
	ValidationModel string `yaml:"validationModel,omitempty"` // model for the cheap validate call; DefaultModel if empty
}

// AutomationSelectors is everything provider-specific the shared automation
// state machine needs: where the chat lives, how to find the input and send
// controls, and timing.
type AutomationSelectors struct {
	ChatURL string `yaml:"chatUrl"`

	// InputSelectors is an ordered candidate list; the first present wins.
	InputSelectors []string `yaml:"inputSelectors"`

	// SendSelectors is the ordered fallback list for the send control.
	SendSelectors []string `yaml:"sendSelectors"`

	// LoginMarkers are text fragments whose presence suggests a signed-out
	// page. Advisory only.
	LoginMarkers []string `yaml:"loginMarkers,omitempty"`

	// InsertMethod is "fill" for textarea-like inputs or "type" for
	// contenteditable editors that ignore programmatic value changes.
	InsertMethod string `yaml:"insertMethod"`

	// MaxAttempts bounds the interface-ready polling loop.
	MaxAttempts int `yaml:"maxAttempts"`

	// PollIntervalMs gates each readiness attempt.
	PollIntervalMs int `yaml:"pollIntervalMs"`

	// SettleDelayMs is the fixed wait between insertion and submit, giving
	// the provider's reactive UI time to notice the input change.
	SettleDelayMs int `yaml:"settleDelayMs"`
}

// PlatformDescriptor is one provider's full configuration. Immutable at
// runtime.
type PlatformDescriptor struct {
	ID          string               `yaml:"id"`
	DisplayName string               `yaml:"displayName"`
	API         *APIConfig           `yaml:"api,omitempty"`
	Automation  *AutomationSelectors `yaml:"automation,omitempty"`
}

// Prompt is one default or custom prompt entry.
type Prompt struct {
	Name    string `yaml:"name" json:"name"`
	Content string `yaml:"content" json:"content"`
}

// Catalog is the cached, parsed view of both documents.
type Catalog struct {
	platforms map[string]*PlatformDescriptor
	order     []string
	prompts   map[types.ContentType]Prompt
}

// Loader resolves the catalog lazily from optional override files, falling
// back to the embedded defaults.
type Loader struct {
	platformsPath string
	promptsPath   string

	once    sync.Once
	catalog *Catalog
	loadErr error
}

// NewLoader creates a loader. Empty paths select the embedded documents.
func NewLoader(platformsPath, promptsPath string) *Loader {
	return &Loader{platformsPath: platformsPath, promptsPath: promptsPath}
}

// Load parses both documents once and caches the result.
func (l *Loader) Load() (*Catalog, error) {
	l.once.Do(func() {
		l.catalog, l.loadErr = l.parse()
	})
	return l.catalog, l.loadErr
}

func (l *Loader) parse() (*Catalog, error) {
	platformsRaw := defaultPlatformsYAML
	if l.platformsPath != "" {
		raw, err := os.ReadFile(l.platformsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read platform catalog: %w", err)
		}
		platformsRaw = raw
	}

	promptsRaw := defaultPromptsYAML
	if l.promptsPath != "" {
		raw, err := os.ReadFile(l.promptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt catalog: %w", err)
		}
		promptsRaw = raw
	}

	var platformsDoc struct {
		Platforms []*PlatformDescriptor `yaml:"platforms"`
	}
	if err := yaml.Unmarshal(platformsRaw, &platformsDoc); err != nil {
		return nil, fmt.Errorf("failed to parse platform catalog: %w", err)
	}

	var promptsDoc struct {
		Prompts map[types.ContentType]Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(promptsRaw, &promptsDoc); err != nil {
		return nil, fmt.Errorf("failed to parse prompt catalog: %w", err)
	}

	c := &Catalog{
		platforms: make(map[string]*PlatformDescriptor, len(platformsDoc.Platforms)),
		prompts:   promptsDoc.Prompts,
	}
	for _, p := range platformsDoc.Platforms {
		if p.ID == "" {
			return nil, fmt.Errorf("platform catalog entry missing id")
		}
		if _, dup := c.platforms[p.ID]; dup {
			return nil, fmt.Errorf("duplicate platform id %q", p.ID)
		}
		c.platforms[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	return c, nil
}

// Platform returns the descriptor for a platform id.
func (c *Catalog) Platform(id string) (*PlatformDescriptor, error) {
	p, ok := c.platforms[id]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", id)
	}
	return p, nil
}

// PlatformIDs returns all platform ids in catalog order.
func (c *Catalog) PlatformIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// DefaultPrompt returns the default prompt for a content type, falling back
// to the general prompt for unknown types.
func (c *Catalog) DefaultPrompt(contentType types.ContentType) Prompt {
	if p, ok := c.prompts[contentType]; ok {
		return p
	}
	return c.prompts[types.ContentTypeGeneral]
}

// Models lists the configured models for a platform. Providers without an
// API config have no listable models.
func (p *PlatformDescriptor) Models() []string {
	if p.API == nil {
		return nil
	}
	models := make([]string, len(p.API.Models))
	copy(models, p.API.Models)
	return models
}
