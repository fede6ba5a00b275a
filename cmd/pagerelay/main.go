// Package main provides the pagerelay daemon: it opens managed browser tabs,
// extracts their content, and delivers it with a prompt to an AI chat
// provider over the provider's API or by driving its web chat interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pagerelay/pagerelay/pkg/api"
	"github.com/pagerelay/pagerelay/pkg/automation"
	"github.com/pagerelay/pagerelay/pkg/catalog"
	"github.com/pagerelay/pagerelay/pkg/credentials"
	"github.com/pagerelay/pagerelay/pkg/extract"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/router"
	"github.com/pagerelay/pagerelay/pkg/state"
	"github.com/pagerelay/pagerelay/pkg/storage"
	"github.com/pagerelay/pagerelay/pkg/tabagent"
	"github.com/pagerelay/pagerelay/pkg/types"
)

const version = "0.1.0"

// Config holds the application configuration.
type Config struct {
	URL           string
	PlatformID    string
	Prompt        string
	UseAPI        bool
	APIKey        string
	Model         string
	Headless      bool
	PlatformsPath string
	PromptsPath   string
	SyncPath      string
	LocalPath     string
	ShowVersion   bool
}

func main() {
	// .env is optional; flags and real env vars win over it.
	_ = godotenv.Load()

	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("pagerelay v%s\n", version)
		return
	}

	if err := config.validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, config); err != nil {
		cancel()
		log.Fatalf("Application error: %v", err)
	}
}

// parseFlags parses command line flags and environment variables.
func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.URL, "url", "", "Page URL to capture and summarize")
	flag.StringVar(&config.PlatformID, "platform", "openai", "Target provider id from the platform catalog")
	flag.StringVar(&config.Prompt, "prompt", "", "Prompt text (optional, overrides the default for the content type)")
	flag.BoolVar(&config.UseAPI, "use-api", true, "Prefer the provider's HTTP API when a credential is stored")
	flag.StringVar(&config.APIKey, "api-key", os.Getenv("PAGERELAY_API_KEY"), "API key to store for the platform (or set PAGERELAY_API_KEY)")
	flag.StringVar(&config.Model, "model", "", "Model id (optional, defaults to the platform's default)")
	flag.BoolVar(&config.Headless, "headless", true, "Run the browser headless")
	flag.StringVar(&config.PlatformsPath, "platforms", "", "Platform catalog override file (YAML)")
	flag.StringVar(&config.PromptsPath, "prompts", "", "Default prompt override file (YAML)")
	flag.StringVar(&config.SyncPath, "sync-store", "", "Sync store path (default: ~/.pagerelay/sync.json)")
	flag.StringVar(&config.LocalPath, "local-store", "", "Local store path (default: ~/.pagerelay/local.db)")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "pagerelay - page content capture and AI delivery\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pagerelay [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PAGERELAY_API_KEY   API key to store for the selected platform\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pagerelay -url https://example.com/article\n")
		fmt.Fprintf(os.Stderr, "  pagerelay -url https://reddit.com/r/golang/comments/abc -platform anthropic\n")
		fmt.Fprintf(os.Stderr, "  pagerelay -url https://example.com/report.pdf -use-api=false -headless=false\n")
	}

	flag.Parse()
	return config
}

// validate checks that the configuration is usable.
func (c *Config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("a page URL is required (use -url)")
	}
	return nil
}

// run wires the pipeline and performs one capture-and-deliver cycle.
func run(ctx context.Context, config *Config) error {
	logger, err := logging.NewLogger("main")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: file logging degraded: %v\n", err)
	}
	defer logger.Close()

	syncStore, err := storage.NewFileStore(config.SyncPath)
	if err != nil {
		return fmt.Errorf("failed to open sync store: %w", err)
	}
	defer syncStore.Close()

	localStore, err := storage.NewSQLiteStore(config.LocalPath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer localStore.Close()

	cat, err := catalog.NewLoader(config.PlatformsPath, config.PromptsPath).Load()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	// The coordinator validates credentials and the manager stores them;
	// break the cycle with a store-only manager as the coordinator's source.
	coordinator := api.NewCoordinator(cat, credentials.NewManager(syncStore, nil), logger)
	credManager := credentials.NewManager(syncStore, coordinator)

	if config.APIKey != "" {
		cred := types.Credential{APIKey: config.APIKey, Model: config.Model}
		if err := credManager.Store(config.PlatformID, cred); err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}
	}

	stateManager := state.NewManager(localStore, logger)

	tabs := tabagent.NewManager(localStore, extract.NewRegistry(), logger, config.Headless)
	if err := tabs.Initialize(); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer tabs.Shutdown()

	bridge := &agentBridge{tabs: tabs, catalog: cat, log: logger}
	dispatcher := router.New(bridge, coordinator, stateManager, credManager, cat, localStore, syncStore, logger)

	fmt.Printf("pagerelay v%s\n", version)
	fmt.Printf("Page: %s\n", config.URL)
	fmt.Printf("Provider: %s\n\n", config.PlatformID)

	const tabID = 1
	agent, err := tabs.OpenTab(tabID)
	if err != nil {
		return err
	}
	if err := agent.Navigate(config.URL); err != nil {
		return err
	}

	resp := dispatcher.Dispatch(ctx, types.SummarizeContentRequest{
		TabID:      tabID,
		PlatformID: config.PlatformID,
		URL:        config.URL,
		TestPrompt: config.Prompt,
		UseAPI:     config.UseAPI,
	})

	cleanup := dispatcher.Dispatch(ctx, types.TabRemovedRequest{TabID: tabID})
	if !cleanup.Success {
		logger.Warnf("tab cleanup failed: %s", cleanup.Error)
	}

	if !resp.Success {
		return fmt.Errorf("delivery failed: %s", resp.Error)
	}

	if resp.Content != "" {
		fmt.Println(resp.Content)
	} else {
		fmt.Println("Delivered to the provider's chat interface.")
	}
	if resp.Usage != nil {
		fmt.Printf("\nTokens: %d in / %d out\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return nil
}

// agentBridge adapts the tab agent manager and the automation layer to the
// router's Agents contract.
type agentBridge struct {
	tabs    *tabagent.Manager
	catalog *catalog.Catalog
	log     *logging.Logger
}

func (b *agentBridge) Extract(ctx context.Context, tabID int) error {
	agent, err := b.tabs.Agent(tabID)
	if err != nil {
		return err
	}
	_, err = agent.ExtractContent(ctx)
	return err
}

func (b *agentBridge) DeliverAutomation(ctx context.Context, tabID int, platformID, message string) (automation.Result, error) {
	agent, err := b.tabs.Agent(tabID)
	if err != nil {
		return automation.Result{}, err
	}
	desc, err := b.catalog.Platform(platformID)
	if err != nil {
		return automation.Result{}, err
	}

	adapter, err := automation.NewAdapter(desc, automation.NewPlaywrightDriver(agent.Page()), b.log)
	if err != nil {
		return automation.Result{}, err
	}
	return adapter.Deliver(ctx, message)
}

func (b *agentBridge) CloseTab(tabID int) error {
	return b.tabs.CloseTab(tabID)
}
