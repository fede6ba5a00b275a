// Package tabagent runs one browser page per managed tab and owns everything
// that has to happen inside that tab: capturing the rendered document and any
// user selection, running the matching extraction strategy, and exposing the
// live page to automation deliveries. Agents share nothing with each other;
// results travel through tab-keyed storage.
package tabagent

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pagerelay/pagerelay/pkg/extract"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/storage"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	defaultTimeoutMs      = 30000
)

// Manager owns the playwright process and the set of live tab agents, keyed
// by tab id.
type Manager struct {
	mu          sync.RWMutex
	agents      map[int]*Agent
	playwright  *playwright.Playwright
	browser     playwright.Browser
	store       storage.Store
	registry    *extract.Registry
	log         *logging.Logger
	headless    bool
	initialized bool
}

// NewManager creates a tab agent manager. Initialize must be called before
// opening any tabs.
func NewManager(store storage.Store, registry *extract.Registry, log *logging.Logger, headless bool) *Manager {
	return &Manager{
		agents:   make(map[int]*Agent),
		store:    store,
		registry: registry,
		log:      log,
		headless: headless,
	}
}

// Initialize installs and starts playwright and launches the shared browser.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &m.headless,
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.playwright = pw
	m.browser = browser
	m.initialized = true
	return nil
}

// OpenTab starts an agent for a tab id. One agent per tab.
func (m *Manager) OpenTab(tabID int) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("tab agent manager not initialized")
	}
	if _, exists := m.agents[tabID]; exists {
		return nil, fmt.Errorf("tab %d already has an agent", tabID)
	}

	context, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  defaultViewportWidth,
			Height: defaultViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(defaultTimeoutMs)

	agent := &Agent{
		tabID:      tabID,
		context:    context,
		page:       page,
		store:      m.store,
		registry:   m.registry,
		log:        m.log,
		createdAt:  time.Now(),
		lastUsedAt: time.Now(),
	}
	m.agents[tabID] = agent
	m.log.Infof("tab %d: agent started", tabID)
	return agent, nil
}

// Agent returns the live agent for a tab.
func (m *Manager) Agent(tabID int) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[tabID]
	if !ok {
		return nil, fmt.Errorf("no agent for tab %d", tabID)
	}
	return agent, nil
}

// CloseTab shuts down a tab's agent and releases its page. Closing an
// unknown tab is a no-op.
func (m *Manager) CloseTab(tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[tabID]
	if !ok {
		return nil
	}
	agent.page.Close()
	agent.context.Close()
	delete(m.agents, tabID)
	m.log.Infof("tab %d: agent closed", tabID)
	return nil
}

// Shutdown closes every agent, the browser, and the playwright process.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tabID, agent := range m.agents {
		agent.page.Close()
		agent.context.Close()
		delete(m.agents, tabID)
	}

	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
