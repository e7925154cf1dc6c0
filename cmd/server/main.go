// Package main is the entry point for the card runner server and CLI.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/pandeptwidyaop/card-runner/internal/airwallex"
	"github.com/pandeptwidyaop/card-runner/internal/automation"
	"github.com/pandeptwidyaop/card-runner/internal/config"
	"github.com/pandeptwidyaop/card-runner/internal/database"
	"github.com/pandeptwidyaop/card-runner/internal/metrics"
	"github.com/pandeptwidyaop/card-runner/internal/models"
	"github.com/pandeptwidyaop/card-runner/internal/router"
	"github.com/pandeptwidyaop/card-runner/internal/services"
	"github.com/pandeptwidyaop/card-runner/internal/version"
)

const (
	shutdownTimeout = 30 * time.Second
	// runDrainTimeout bounds how long shutdown waits for cancelled runs to
	// close their browsers and record their outcome.
	runDrainTimeout = 15 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			printVersion()
			os.Exit(0)
		case "install-browsers":
			log.Println("Installing Playwright driver and Chromium...")
			if err := automation.InstallBrowsers(); err != nil {
				fmt.Fprintf(os.Stderr, "Install failed: %v\n", err)
				os.Exit(1)
			}
			log.Println("Browsers installed")
			os.Exit(0)
		case "run":
			os.Exit(runOnce(os.Args[2:]))
		}
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	serve(loadConfig(*configPath))
}

func printVersion() {
	fmt.Println(version.Info())
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", path, err)
		log.Println("Using default configuration...")
		cfg, _ = config.Load("")
	}
	return cfg
}

// app holds the wired services shared by the server and the run command.
type app struct {
	db       *database.DB
	auth     *services.AuthService
	audit    *services.AuditService
	configs  *services.ConfigService
	runs     *services.RunService
	cards    *services.CardService
	settings *services.SettingsService
}

func newApp(cfg *config.Config) *app {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	crypto := mustCrypto(cfg)

	sessions := automation.NewSessionStore(cfg.Automation.AuthDir, cfg.Automation.GetSessionMaxAge(), crypto)
	runner := automation.NewRunner(automation.NewPlaywrightLauncher(), sessions)

	timeouts := automation.DefaultTimeouts()
	timeouts.Step = cfg.Automation.GetStepTimeout()
	timeouts.OTP = cfg.Automation.GetOTPTimeout()
	timeouts.Confirm = cfg.Automation.GetConfirmTimeout()

	script := &automation.CardScript{
		Sessions:     sessions,
		DashboardURL: cfg.Automation.DashboardURL,
		NamesDir:     cfg.Automation.NamesDir,
		ArtifactsDir: cfg.Automation.ArtifactsDir,
		Timeouts:     timeouts,
		Pacing:       automation.DefaultPacing(),
	}

	issuer := airwallex.NewClient(
		cfg.Airwallex.DemoBaseURL,
		cfg.Airwallex.ProdBaseURL,
		cfg.Airwallex.GetRequestTimeout(),
		airwallex.NewTokenCache(),
	)

	configs := services.NewConfigService(db)
	settings := services.NewSettingsService(db, crypto)
	slowMo := time.Duration(cfg.Automation.SlowMo) * time.Millisecond

	return &app{
		db:       db,
		auth:     services.NewAuthService(db, cfg),
		audit:    services.NewAuditService(db),
		configs:  configs,
		runs:     services.NewRunService(db, configs, runner, script, metrics.MustNewRunMetrics(prometheus.DefaultRegisterer), slowMo),
		cards:    services.NewCardService(db, crypto, settings, issuer, cfg.Automation.NamesDir),
		settings: settings,
	}
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// mustCrypto builds the cipher for secrets at rest. The server refuses to
// start without a valid key.
func mustCrypto(cfg *config.Config) *services.CryptoService {
	if cfg.Security.EncryptionKey == "" {
		log.Println("")
		log.Println("╔══════════════════════════════════════════════════════════════════╗")
		log.Println("║  SECURITY ERROR: Encryption key not configured!                  ║")
		log.Println("║                                                                  ║")
		log.Println("║  Please add 'security.encryption_key' to config.yaml.           ║")
		log.Println("║  Generate a key with: openssl rand -hex 32                       ║")
		log.Println("║                                                                  ║")
		log.Println("║  Example:                                                        ║")
		log.Println("║    security:                                                     ║")
		log.Println("║      encryption_key: \"<64-character-hex-string>\"                 ║")
		log.Println("╚══════════════════════════════════════════════════════════════════╝")
		log.Println("")
		log.Fatalf("Application startup aborted: encryption key is required")
	}

	key, err := hex.DecodeString(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Invalid encryption key (must be 64 hex chars for 32 bytes): %v", err)
	}
	if len(key) != 32 {
		log.Fatalf("Invalid encryption key length: expected 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	crypto, err := services.NewCryptoService(key)
	if err != nil {
		log.Fatalf("Failed to initialize crypto service: %v", err)
	}
	log.Println("Encryption enabled for sensitive data (sessions, API key, card numbers)")
	return crypto
}

func serve(cfg *config.Config) {
	a := newApp(cfg)
	defer a.close()

	if err := a.auth.EnsureAdminUser(); err != nil {
		log.Fatalf("Failed to ensure admin user: %v", err)
	}
	if n, err := a.runs.MarkInterrupted(); err != nil {
		log.Fatalf("Failed to recover interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("[Runs] Marked %d interrupted run(s) as failed", n)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Maintenance.SessionCleanupSchedule, func() {
		n, err := a.auth.CleanExpiredSessions()
		if err != nil {
			log.Printf("[Maintenance] Session cleanup failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[Maintenance] Removed %d expired session(s)", n)
		}
	}); err != nil {
		log.Fatalf("Invalid maintenance.session_cleanup_schedule %q: %v", cfg.Maintenance.SessionCleanupSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := router.New(ctx, cfg, router.Services{
		Auth:     a.auth,
		Audit:    a.audit,
		Configs:  a.configs,
		Runs:     a.runs,
		Cards:    a.cards,
		Settings: a.settings,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Card Runner %s starting on %s", version.Version, addr)
		log.Printf("Access at: http://%s%s/api", addr, cfg.Server.PathPrefix)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
		return
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	waitForRuns(a.runs, runDrainTimeout)
}

// waitForRuns gives cancelled background runs time to record their outcome
// before the database is closed.
func waitForRuns(runs *services.RunService, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for runs.ActiveCount() > 0 {
		if time.Now().After(deadline) {
			log.Printf("[Runs] %d run(s) still active at shutdown", runs.ActiveCount())
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// runOnce executes one config from the command line and prints the
// transcript. It returns the process exit code.
func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	headed := fs.Bool("headed", false, "show the browser window")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: card-runner run <config-id> [--headed] [-config path]")
		fs.PrintDefaults()
	}

	// Flags may come before or after the config ID.
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	configID := fs.Arg(0)
	_ = fs.Parse(fs.Args()[1:])

	a := newApp(loadConfig(*configPath))
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := a.runs.RunScript(ctx, &models.RunRequest{ConfigID: configID, Headless: !*headed})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println(run.Output)
	if run.Status != models.RunStatusSuccess {
		reason := "unknown error"
		if run.Error != nil {
			reason = *run.Error
		}
		fmt.Fprintf(os.Stderr, "Run %s failed: %s\n", run.ID, reason)
		return 1
	}
	fmt.Printf("Run %s finished: %d card(s) created\n", run.ID, run.CardsCreated)
	return 0
}
