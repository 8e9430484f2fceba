// Package main is the CLI entry point for applock.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/app_lock/internal/client"
	"github.com/eliteGoblin/focusd/app_lock/internal/config"
	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "applock",
	Short: "App lock - guards chosen apps behind a lock screen",
	Long: `applock watches which app is in the foreground. When a locked app
opens it sends you home and shows the lock screen. An unlock lasts until
you leave the app or the screen turns off.

applock also guards its own entry in the system settings, so it cannot be
disabled from there without unlocking first.`,
	Version:      Version,
	SilenceUsage: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start protection (launches watcher and guardian daemons)",
	Long: `Starts both the watcher and guardian daemons.
The watcher runs the lock engine and serves the control API.
The guardian monitors the watcher and restarts it if killed.
They monitor each other for resilience.`,
	RunE: runStart,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lock engine in the foreground",
	Long:  `Runs the watcher in the foreground without a guardian. Logs go to stderr.`,
	RunE:  runForeground,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check protection status",
	Long:  `Shows whether the daemons are running, which apps are locked and which are unlocked right now.`,
	RunE:  runStatus,
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage locked apps",
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locked apps",
	Args:  cobra.NoArgs,
	RunE:  runLockList,
}

var lockAddCmd = &cobra.Command{
	Use:   "add <package>...",
	Short: "Lock one or more apps",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLockAdd,
}

var lockRemoveCmd = &cobra.Command{
	Use:   "remove <package>...",
	Short: "Unlock one or more apps permanently",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLockRemove,
}

var protectCmd = &cobra.Command{
	Use:       "protect-settings [on|off]",
	Short:     "Show or change settings protection",
	Long:      `With protection on, opening applock's own page in the system settings requires unlocking.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE:      runProtect,
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <package>",
	Short: "Report a successful unlock for an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlock,
}

var screenOffCmd = &cobra.Command{
	Use:   "screen-off",
	Short: "Revoke every unlock as if the screen turned off",
	Args:  cobra.NoArgs,
	RunE:  runScreenOff,
}

var foregroundCmd = &cobra.Command{
	Use:    "foreground <package>",
	Short:  "Inject a foreground change (for testing without a desktop backend)",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE:   runInjectForeground,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec when spawning daemons
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	configPath string
	apiAddr    string
	daemonRole string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvPrefix+"_CONFIG"), "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "Control API address (overrides server.addr)")
	daemonCmd.Flags().StringVar(&daemonRole, "role", "", "Daemon role (watcher/guardian)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output engine status as JSON")

	lockCmd.AddCommand(lockListCmd, lockAddCmd, lockRemoveCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(protectCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(screenOffCmd)
	rootCmd.AddCommand(foregroundCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiAddr != "" {
		cfg.Server.Addr = apiAddr
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, nil
}

func newClient() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return apiClient(cfg)
}

// apiClient reads the daemon's API token from the data directory.
func apiClient(cfg *config.Config) (*client.Client, error) {
	token, err := infra.ReadAPIToken(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("cannot authenticate to the daemon (is it installed for this user?): %w", err)
	}
	return client.New(cfg.Server.Addr, token), nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Check if already running
	store, pm, err := daemon.OpenRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	entry, _ := store.GetAll(cmd.Context())
	store.Close()
	if entry != nil && pm.IsRunning(entry.WatcherPID) && pm.IsRunning(entry.GuardianPID) {
		fmt.Println("applock is already running (fully protected)")
		return nil
	}

	spawner, err := daemon.NewExecSpawner(configPath)
	if err != nil {
		return err
	}
	if err := daemon.StartBothDaemons(spawner); err != nil {
		return fmt.Errorf("failed to start daemons: %w", err)
	}

	// Wait a moment for daemons to register
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== applock Started ===")
	fmt.Printf("Data dir: %s\n", cfg.Store.DataDir)
	fmt.Printf("Control API: http://%s\n", cfg.Server.Addr)
	fmt.Println("Status: PROTECTED")
	fmt.Println("\nDaemons are running in the background.")
	fmt.Println("They will restart automatically if killed.")
	fmt.Println("=======================")
	return nil
}

func runForeground(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	rt, err := daemon.NewRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(logger)
	defer cancel()

	watcher := daemon.NewWatcherFromRuntime(cfg, rt, nil, Version, logger.Named("watcher"))
	return ignoreCanceled(watcher.Run(ctx))
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	api, err := apiClient(cfg)
	if err != nil {
		return err
	}

	status, statusErr := api.Status(ctx)
	if jsonOutput {
		if statusErr != nil {
			return statusErr
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Println("\n=== applock Status ===")

	if store, pm, err := daemon.OpenRegistry(cfg); err == nil {
		entry, _ := store.GetAll(ctx)
		store.Close()
		printDaemons(entry, pm)
	}

	if statusErr != nil {
		fmt.Printf("Lock engine: UNREACHABLE (%v)\n", statusErr)
		fmt.Println("\nRun 'applock start' to enable protection.")
		return nil
	}

	fmt.Printf("Settings protection: %s\n", onOff(status.ProtectSettings))
	fmt.Printf("Prompt UI: %s\n", connected(status.PromptListening))
	if status.Foreground != "" {
		fmt.Printf("Foreground: %s\n", status.Foreground)
	}
	if status.PendingPrompt != "" {
		fmt.Printf("Pending lock screen: %s\n", status.PendingPrompt)
	}
	printList("Locked apps", status.Locked)
	printList("Unlocked now", status.Allowed)
	fmt.Println("======================")
	return nil
}

func printDaemons(entry *domain.RegistryEntry, pm domain.ProcessManager) {
	if entry == nil {
		fmt.Println("Daemons: NOT RUNNING")
		return
	}
	watcherAlive := pm.IsRunning(entry.WatcherPID)
	guardianAlive := pm.IsRunning(entry.GuardianPID)

	switch {
	case watcherAlive && guardianAlive:
		fmt.Println("Daemons: RUNNING (fully protected)")
	case watcherAlive || guardianAlive:
		fmt.Println("Daemons: DEGRADED (partial protection)")
		if !watcherAlive {
			fmt.Println("        Watcher is down (will be restarted by guardian)")
		}
		if !guardianAlive {
			fmt.Println("        Guardian is down (will be restarted by watcher)")
		}
	default:
		fmt.Println("Daemons: NOT RUNNING")
	}

	if entry.LastHeartbeat > 0 {
		lastBeat := time.Unix(entry.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}
}

func printList(title string, ids []domain.AppID) {
	fmt.Printf("\n%s:\n", title)
	if len(ids) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, id := range ids {
		fmt.Printf("  - %s\n", id)
	}
}

func runLockList(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	ids, err := api.Locked(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runLockAdd(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	ids, err := api.AddLocked(cmd.Context(), toAppIDs(args)...)
	if err != nil {
		return err
	}
	printList("Locked apps", ids)
	return nil
}

func runLockRemove(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	ids, err := api.RemoveLocked(cmd.Context(), toAppIDs(args)...)
	if err != nil {
		return err
	}
	printList("Locked apps", ids)
	return nil
}

func runProtect(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		enabled, err := api.ProtectSettings(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Settings protection: %s\n", onOff(enabled))
		return nil
	}

	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return fmt.Errorf("expected on or off, got %q", args[0])
	}
	if err := api.SetProtectSettings(cmd.Context(), enabled); err != nil {
		return err
	}
	fmt.Printf("Settings protection: %s\n", onOff(enabled))
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	if err := api.Unlock(cmd.Context(), domain.AppID(args[0])); err != nil {
		return err
	}
	fmt.Printf("%s unlocked until you leave it or the screen turns off\n", args[0])
	return nil
}

func runScreenOff(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	if err := api.ScreenOff(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("All unlocks revoked")
	return nil
}

func runInjectForeground(cmd *cobra.Command, args []string) error {
	api, err := newClient()
	if err != nil {
		return err
	}
	return api.Foreground(cmd.Context(), domain.AppID(args[0]))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonRole == "" {
		return fmt.Errorf("--role is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	spawner, err := daemon.NewExecSpawner(configPath)
	if err != nil {
		logger.Error("failed to resolve executable", zap.Error(err))
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	// Run appropriate daemon
	switch role := domain.DaemonRole(daemonRole); role {
	case domain.RoleWatcher:
		rt, err := daemon.NewRuntime(cfg, logger)
		if err != nil {
			logger.Error("failed to build lock engine", zap.Error(err))
			return err
		}
		defer rt.Close()

		watcher := daemon.NewWatcherFromRuntime(cfg, rt, spawner, Version, logger.Named("watcher"))
		return ignoreCanceled(watcher.Run(ctx))

	case domain.RoleGuardian:
		store, pm, err := daemon.OpenRegistry(cfg)
		if err != nil {
			logger.Error("failed to open registry", zap.Error(err))
			return err
		}
		defer store.Close()

		guardian := daemon.NewGuardian(
			daemon.GuardianConfig{
				WatcherCheckInterval: cfg.Daemon.WatcherCheckInterval,
				HeartbeatInterval:    cfg.Daemon.HeartbeatInterval,
			},
			store,
			spawner,
			domain.Daemon{
				PID:        pm.GetCurrentPID(),
				Role:       role,
				StartedAt:  time.Now(),
				AppVersion: Version,
			},
			logger.Named("guardian"),
		)
		return ignoreCanceled(guardian.Run(ctx))

	default:
		return fmt.Errorf("unknown role: %s", role)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func createLogger(cfg *config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		zc.Level = level
	}

	infoPath, errPath := config.LogPaths(cfg.Store.DataDir)
	if err := os.MkdirAll(cfg.Store.DataDir, 0700); err == nil {
		zc.OutputPaths = []string{infoPath}
		zc.ErrorOutputPaths = []string{errPath}
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("applock %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

func toAppIDs(args []string) []domain.AppID {
	ids := make([]domain.AppID, 0, len(args))
	for _, a := range args {
		ids = append(ids, domain.AppID(strings.TrimSpace(a)))
	}
	return ids
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func connected(b bool) string {
	if b {
		return "connected"
	}
	return "not connected"
}
