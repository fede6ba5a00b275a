// Package state owns the per-tab bindings between UI surfaces, chat sessions,
// and delivery bookkeeping. It is the only writer of the tab UI state rows
// and the global session and token-stats maps in the local partition.
package state

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/types"
)

// Manager keeps tab UI state and chat sessions consistent. All read-modify-
// write cycles on the shared maps run under one mutex; the storage layer
// itself is last-write-wins.
type Manager struct {
	store storage.Store
	log   *logging.Logger

	mu sync.Mutex

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewManager creates a state manager over the local storage partition.
func NewManager(store storage.Store, log *logging.Logger) *Manager {
	return &Manager{store: store, log: log}
}

func (m *Manager) loadSessions() (map[string]*types.ChatSession, error) {
	sessions := make(map[string]*types.ChatSession)
	if _, err := m.store.Get(storage.KeyChatSessions, &sessions); err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return sessions, nil
}

func (m *Manager) saveSessions(sessions map[string]*types.ChatSession) error {
	if err := m.store.Set(storage.KeyChatSessions, sessions); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

func (m *Manager) loadTabState(tabID int) (types.TabUIState, bool, error) {
	var ts types.TabUIState
	ok, err := m.store.Get(storage.TabUIStateKey(tabID), &ts)
	if err != nil {
		return types.TabUIState{}, false, fmt.Errorf("failed to load tab state: %w", err)
	}
	return ts, ok, nil
}

func (m *Manager) saveTabState(ts types.TabUIState) error {
	if err := m.store.Set(storage.TabUIStateKey(ts.TabID), ts); err != nil {
		return fmt.Errorf("failed to save tab state: %w", err)
	}
	return nil
}

// ActiveSession returns the tab's currently bound session, if any.
func (m *Manager) ActiveSession(tabID int) (*types.ChatSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSessionLocked(tabID)
}

func (m *Manager) activeSessionLocked(tabID int) (*types.ChatSession, bool, error) {
	ts, ok, err := m.loadTabState(tabID)
	if err != nil || !ok || ts.ActiveChatSessionID == "" {
		return nil, false, err
	}

	sessions, err := m.loadSessions()
	if err != nil {
		return nil, false, err
	}
	session, ok := sessions[ts.ActiveChatSessionID]
	if !ok || session.TabID != tabID {
		return nil, false, nil
	}
	return session, true, nil
}

// EnsureSession returns the tab's active session bound to the given platform
// and model, creating or rebinding as needed. A provisional session rebinds
// in place; a finalized session bound elsewhere is replaced by a fresh
// provisional one (the old session is kept, only the active binding moves).
func (m *Manager) EnsureSession(tabID int, platformID, modelID string) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok, err := m.activeSessionLocked(tabID)
	if err != nil {
		return nil, err
	}

	if ok {
		if session.PlatformID == platformID && session.ModelID == modelID {
			return session, nil
		}
		if session.Rebind(platformID, modelID) {
			sessions, err := m.loadSessions()
			if err != nil {
				return nil, err
			}
			sessions[session.ID] = session
			if err := m.saveSessions(sessions); err != nil {
				return nil, err
			}
			return session, nil
		}
		m.log.Infof("tab %d: session %s is finalized, starting a new session for %s/%s",
			tabID, session.ID, platformID, modelID)
	}

	return m.createSessionLocked(tabID, platformID, modelID)
}

func (m *Manager) createSessionLocked(tabID int, platformID, modelID string) (*types.ChatSession, error) {
	session := types.NewChatSession(tabID, platformID, modelID)

	sessions, err := m.loadSessions()
	if err != nil {
		return nil, err
	}
	sessions[session.ID] = session
	if err := m.saveSessions(sessions); err != nil {
		return nil, err
	}

	ts, _, err := m.loadTabState(tabID)
	if err != nil {
		return nil, err
	}
	ts.TabID = tabID
	ts.ActiveChatSessionID = session.ID
	if err := m.saveTabState(ts); err != nil {
		return nil, err
	}
	return session, nil
}

// ResolvePanelState reconciles a reconnecting UI surface with the tab's
// stored state. A consistent existing session is reused; missing or
// inconsistent metadata resets the tab to a fresh provisional session rather
// than being silently dropped. Either way the panel is marked visible.
func (m *Manager) ResolvePanelState(tabID int, currentURL string) (*types.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok, err := m.activeSessionLocked(tabID)
	if err != nil {
		return nil, err
	}

	if !ok {
		m.log.Infof("tab %d: no usable session on reconnect at %s, creating a fresh one", tabID, currentURL)
		session, err = m.createSessionLocked(tabID, "", "")
		if err != nil {
			return nil, err
		}
	}

	ts, _, err := m.loadTabState(tabID)
	if err != nil {
		return nil, err
	}
	ts.TabID = tabID
	ts.ActiveChatSessionID = session.ID
	ts.SidePanelVisible = true
	if err := m.saveTabState(ts); err != nil {
		return nil, err
	}
	return session, nil
}

// PanelClosed marks the tab's panel hidden. The session survives; only
// explicit deletion or tab removal drops it.
func (m *Manager) PanelClosed(tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok, err := m.loadTabState(tabID)
	if err != nil || !ok {
		return err
	}
	ts.SidePanelVisible = false
	return m.saveTabState(ts)
}

// DeleteSession removes a session and its token stats, and clears any tab
// binding pointing at it. Deleting an unknown session is a no-op.
func (m *Manager) DeleteSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.loadSessions()
	if err != nil {
		return err
	}
	session, ok := sessions[sessionID]
	if !ok {
		return nil
	}
	delete(sessions, sessionID)
	if err := m.saveSessions(sessions); err != nil {
		return err
	}

	if err := m.dropTokenStatsLocked(sessionID); err != nil {
		return err
	}

	ts, ok, err := m.loadTabState(session.TabID)
	if err != nil {
		return err
	}
	if ok && ts.ActiveChatSessionID == sessionID {
		ts.ActiveChatSessionID = ""
		return m.saveTabState(ts)
	}
	return nil
}

// TabRemoved drops everything keyed to a permanently closed tab: its UI
// state row, its pending extracted content, and every session bound to it.
func (m *Manager) TabRemoved(tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.loadSessions()
	if err != nil {
		return err
	}
	changed := false
	for id, session := range sessions {
		if session.TabID == tabID {
			delete(sessions, id)
			if err := m.dropTokenStatsLocked(id); err != nil {
				return err
			}
			changed = true
		}
	}
	if changed {
		if err := m.saveSessions(sessions); err != nil {
			return err
		}
	}

	if err := m.store.Delete(storage.TabUIStateKey(tabID)); err != nil {
		return fmt.Errorf("failed to drop tab state: %w", err)
	}
	if err := m.store.Delete(storage.TabContentKey(tabID)); err != nil {
		return fmt.Errorf("failed to drop tab content: %w", err)
	}
	return nil
}

// RecordExchange appends a prompt/reply pair to the session's history and
// folds the usage into the global token-stats map. The first recorded
// exchange finalizes a provisional session.
func (m *Manager) RecordExchange(sessionID, prompt, reply string, usage types.TokenUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions, err := m.loadSessions()
	if err != nil {
		return err
	}
	session, ok := sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session %q", sessionID)
	}

	session.Append(types.ChatMessage{
		Role:        types.RoleUser,
		Content:     prompt,
		InputTokens: usage.InputTokens,
	})
	session.Append(types.ChatMessage{
		Role:         types.RoleAssistant,
		Content:      reply,
		OutputTokens: usage.OutputTokens,
	})
	if err := m.saveSessions(sessions); err != nil {
		return err
	}

	stats := make(map[string]types.TokenUsage)
	if _, err := m.store.Get(storage.KeyTokenStats, &stats); err != nil {
		return fmt.Errorf("failed to load token stats: %w", err)
	}
	total := stats[sessionID]
	total.Add(usage.InputTokens, usage.OutputTokens)
	stats[sessionID] = total
	if err := m.store.Set(storage.KeyTokenStats, stats); err != nil {
		return fmt.Errorf("failed to save token stats: %w", err)
	}
	return nil
}

func (m *Manager) dropTokenStatsLocked(sessionID string) error {
	stats := make(map[string]types.TokenUsage)
	if _, err := m.store.Get(storage.KeyTokenStats, &stats); err != nil {
		return fmt.Errorf("failed to load token stats: %w", err)
	}
	if _, ok := stats[sessionID]; !ok {
		return nil
	}
	delete(stats, sessionID)
	if err := m.store.Set(storage.KeyTokenStats, stats); err != nil {
		return fmt.Errorf("failed to save token stats: %w", err)
	}
	return nil
}

// TokenStats returns the accumulated usage for a session.
func (m *Manager) TokenStats(sessionID string) (types.TokenUsage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]types.TokenUsage)
	if _, err := m.store.Get(storage.KeyTokenStats, &stats); err != nil {
		return types.TokenUsage{}, false, fmt.Errorf("failed to load token stats: %w", err)
	}
	usage, ok := stats[sessionID]
	return usage, ok, nil
}

// EstimateUsage estimates token usage for a delivery whose provider reports
// none (automation mode), using the cl100k_base encoding. When the encoding
// is unavailable a bytes/4 heuristic stands in.
func (m *Manager) EstimateUsage(prompt, reply string) types.TokenUsage {
	var usage types.TokenUsage
	usage.Add(m.estimateTokens(prompt), m.estimateTokens(reply))
	return usage
}

func (m *Manager) estimateTokens(text string) int {
	if text == "" {
		return 0
	}

	m.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			m.log.Warnf("token encoding unavailable, falling back to byte estimate: %v", err)
			return
		}
		m.enc = enc
	})

	if m.enc != nil {
		return len(m.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
