package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Veraticus/idlewatch/pkg/config"
)

// version is stamped by the release build.
var version = "dev"

var (
	flagConfig    string
	flagTopic     string
	flagServer    string
	flagTimeout   time.Duration
	flagWarning   time.Duration
	flagListen    string
	flagQuiet     bool
	flagNoFocus   bool
	flagTerminate bool
	flagVersion   bool
	flagHelp      bool
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	ourArgs, childArgs := splitArgs(os.Args[1:])

	flag.StringVar(&flagConfig, "config", "", "Path to config file")
	flag.StringVar(&flagTopic, "topic", "", "Ntfy topic for notifications")
	flag.StringVar(&flagServer, "server", "", "Ntfy server URL")
	flag.DurationVar(&flagTimeout, "timeout", 0, "Inactivity timeout")
	flag.DurationVar(&flagWarning, "warning", 0, "Warning lead time before the timeout")
	flag.StringVar(&flagListen, "listen", "", "WebSocket bridge listen address")
	flag.BoolVar(&flagQuiet, "quiet", false, "Disable all notifications")
	flag.BoolVar(&flagNoFocus, "no-focus", false, "Disable terminal focus tracking")
	flag.BoolVar(&flagTerminate, "terminate-on-timeout", false, "End the session when the timeout fires")
	flag.BoolVar(&flagVersion, "version", false, "Print version and exit")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Show help message")

	// Without an explicit "--", the first non-flag argument starts the
	// wrapped command.
	flag.CommandLine.SetInterspersed(false)
	_ = flag.CommandLine.Parse(ourArgs)

	if flagVersion {
		fmt.Printf("idlewatch %s\n", version)
		return 0
	}
	if flagHelp {
		printUsage()
		return 0
	}

	if childArgs == nil {
		childArgs = flag.Args()
	} else if len(flag.Args()) > 0 {
		fmt.Fprintf(os.Stderr, "idlewatch: unexpected arguments before --: %v\n", flag.Args())
		return 2
	}

	// Load configuration
	var cfg *config.Config
	var err error
	configPath := config.DefaultPath()
	if flagConfig != "" {
		configPath = flagConfig
		cfg, err = config.LoadFromPath(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "idlewatch: %v\n", err)
		return 1
	}

	// Command line flags win over file and environment settings
	applyFlagOverrides(cfg)
	if err := cfg.Policy().Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "idlewatch: %v\n", err)
		return 1
	}

	if len(childArgs) == 0 && cfg.DefaultCommand != "" {
		childArgs = append([]string{cfg.DefaultCommand}, cfg.DefaultArgs...)
	}
	if len(childArgs) == 0 {
		fmt.Fprintln(os.Stderr, "idlewatch: no command to run")
		fmt.Fprintln(os.Stderr, "Usage: idlewatch [OPTIONS] [--] COMMAND [ARGS...]")
		return 2
	}
	command, args := childArgs[0], childArgs[1:]

	// Create dependencies
	deps, err := NewDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "idlewatch: %v\n", err)
		return 1
	}
	defer deps.Close()

	// Follow config file edits for the lifetime of the session
	if configPath != "" {
		deps.Watcher = config.NewWatcher(configPath, func(next *config.Config) {
			applyFlagOverrides(next)
			deps.ApplyConfig(next)
		})
	}

	// Create application
	app := NewApplication(deps)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Ensure terminal restoration on panic
	defer func() {
		if r := recover(); r != nil {
			_ = app.Stop() // Best effort terminal restoration
			panic(r)       // Re-panic
		}
	}()

	go func() {
		<-sigChan
		// Attempt graceful shutdown
		if err := app.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "idlewatch: error stopping process: %v\n", err)
		}
		deps.Close()
		// Exit with standard interrupt code
		os.Exit(130)
	}()

	if debugEnabled() {
		fmt.Fprintf(os.Stderr, "idlewatch: running %s\n", commandLine(command, args))
		fmt.Fprintf(os.Stderr, "idlewatch: timeout=%s warning=%s topic=%q listen=%q\n",
			cfg.Timeout, cfg.WarningThreshold, cfg.NtfyTopic, cfg.ListenAddr)
	}

	// Run the application
	if err := app.Run(command, args); err != nil {
		// The wrapped process's own failure exit is reported through
		// the exit code, not as an error line
		if _, ok := err.(*exec.ExitError); !ok {
			fmt.Fprintf(os.Stderr, "idlewatch: %v\n", err)
		}
	}

	// Exit with the same code as the wrapped process
	return app.ExitCode()
}

// splitArgs separates wrapper arguments from the command to run. An
// explicit "--" always starts the command.
func splitArgs(argv []string) (ours, child []string) {
	for i, arg := range argv {
		if arg == "--" {
			return argv[:i], argv[i+1:]
		}
	}
	return argv, nil
}

// applyFlagOverrides lets command-line flags win over file and
// environment configuration.
func applyFlagOverrides(cfg *config.Config) {
	fl := flag.CommandLine
	if fl.Changed("topic") {
		cfg.NtfyTopic = flagTopic
	}
	if fl.Changed("server") {
		cfg.NtfyServer = flagServer
	}
	if fl.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if fl.Changed("warning") {
		cfg.WarningThreshold = flagWarning
	}
	if fl.Changed("listen") {
		cfg.ListenAddr = flagListen
	}
	if flagQuiet {
		cfg.Quiet = true
	}
	if flagNoFocus {
		cfg.FocusTracking = false
	}
	if flagTerminate {
		cfg.TerminateOnTimeout = true
	}
}

func printUsage() {
	fmt.Println("idlewatch - inactivity watchdog for interactive terminal sessions")
	fmt.Println()
	fmt.Println("Usage: idlewatch [OPTIONS] [--] COMMAND [ARGS...]")
	fmt.Println()
	fmt.Println("Wraps COMMAND in a pseudo-terminal, watches its output and your")
	fmt.Println("keystrokes for activity, and notifies when the session goes idle.")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  IDLEWATCH_TOPIC      Ntfy topic for notifications")
	fmt.Println("  IDLEWATCH_SERVER     Ntfy server URL (default: https://ntfy.sh)")
	fmt.Println("  IDLEWATCH_TIMEOUT    Inactivity timeout (default: 10m)")
	fmt.Println("  IDLEWATCH_WARNING    Warning lead time before the timeout (default: 1m)")
	fmt.Println("  IDLEWATCH_LISTEN     WebSocket bridge listen address")
	fmt.Println("  IDLEWATCH_QUIET      Disable notifications (true/false)")
	fmt.Println("  IDLEWATCH_STARTUP    Send startup notification (default: true)")
	fmt.Println("  IDLEWATCH_FOCUS      Track terminal focus (default: true)")
	fmt.Println("  IDLEWATCH_TERMINATE  End the session on timeout (true/false)")
	fmt.Println("  IDLEWATCH_COMMAND    Command to wrap when none is given")
	fmt.Println("  IDLEWATCH_CONFIG     Path to config file")
	fmt.Println()
	fmt.Println("Configuration file: ~/.config/idlewatch/config.yaml")
}
