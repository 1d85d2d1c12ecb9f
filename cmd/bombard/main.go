package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/siohaza/bombard/internal/bans"
	"github.com/siohaza/bombard/internal/server"
	"github.com/siohaza/bombard/pkg/config"
	"github.com/siohaza/bombard/pkg/terraingen"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configPath string
	logLevel   string
	version    = "0.1.0"

	mapWidth  int
	mapHeight int

	banReason   string
	banDuration time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "bombard [port]",
	Short: "Bombard - turn based artillery duel server",
	Long: `Bombard is an authoritative TCP server for two player artillery duels
with destructible terrain, wind and Lua match rules.`,
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	Run:     runServer,
}

var startCmd = &cobra.Command{
	Use:   "start [port]",
	Short: "Start the Bombard server",
	Long:  "Start the Bombard server with the specified configuration",
	Args:  cobra.MaximumNArgs(1),
	Run:   runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Bombard v%s\n", version)
		fmt.Println("Artillery duel server")
	},
}

var mapgenCmd = &cobra.Command{
	Use:   "mapgen <gen:flat|gen:hills[:seed]> <output>",
	Short: "Write a generated terrain map to a text file",
	Args:  cobra.ExactArgs(2),
	Run:   runMapgen,
}

var banCmd = &cobra.Command{
	Use:   "ban <ip|user:id>",
	Short: "Add an address or user id to the bans file",
	Args:  cobra.ExactArgs(1),
	Run:   runBan,
}

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "List the active bans",
	Args:  cobra.NoArgs,
	Run:   runListBans,
}

var unbanCmd = &cobra.Command{
	Use:   "unban <ip|user:id>",
	Short: "Remove an address or user id from the bans file",
	Args:  cobra.ExactArgs(1),
	Run:   runBan,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.toml", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")

	mapgenCmd.Flags().IntVar(&mapWidth, "width", terraingen.DefaultWidth, "map width in cells")
	mapgenCmd.Flags().IntVar(&mapHeight, "height", terraingen.DefaultHeight, "map height in cells")

	banCmd.Flags().StringVarP(&banReason, "reason", "r", "banned by operator", "reason shown to the client")
	banCmd.Flags().DurationVarP(&banDuration, "duration", "d", 0, "ban length, 0 for permanent")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(mapgenCmd)
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(unbanCmd)
	rootCmd.AddCommand(bansCmd)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig falls back to the built-in defaults when the default config path does
// not exist. An explicit --config must point at a readable file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		return config.Default(), nil
	}
	return nil, err
}

func runServer(cmd *cobra.Command, args []string) {
	if err := serve(cmd, args, waitForSignal); err != nil {
		os.Exit(1)
	}
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

// serve runs the server until wait returns. Every failure is reported before it
// returns so deferred cleanup, including the log file, always runs.
func serve(cmd *cobra.Command, args []string, wait func()) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], err)
			return err
		}
		cfg.Server.Port = port
	}

	var logWriter io.Writer = os.Stdout
	if cfg.Server.LogToFile {
		if err := os.MkdirAll(filepath.Dir(cfg.Server.LogFile), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			return err
		}

		rolling := &lumberjack.Logger{
			Filename:   cfg.Server.LogFile,
			MaxSize:    cfg.Server.LogMaxSizeMB,
			MaxBackups: cfg.Server.LogMaxBackups,
		}
		defer rolling.Close()

		logWriter = io.MultiWriter(os.Stdout, rolling)
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting bombard server", "version", version)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return err
	}

	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		return err
	}

	logger.Info("server running",
		"name", cfg.Server.Name,
		"address", srv.Addr(),
		"default_map", cfg.Server.DefaultMap,
	)

	wait()
	logger.Info("shutting down server")

	srv.Stop()
	logger.Info("server stopped successfully")
	return nil
}

func runMapgen(cmd *cobra.Command, args []string) {
	name, output := args[0], args[1]

	grid, display, err := terraingen.FromName(name, mapWidth, mapHeight)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate map: %v\n", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
			os.Exit(1)
		}
	}

	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", output, err)
		os.Exit(1)
	}
	_, err = grid.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write map: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK   %s -> %s (%dx%d)\n", display, output, grid.Width(), grid.Height())
}

// parseBanTarget accepts "user:<id>" for user bans and anything else as an address.
func parseBanTarget(target string) (userID uint32, isUser bool, err error) {
	rest, ok := strings.CutPrefix(target, "user:")
	if !ok {
		return 0, false, nil
	}
	id, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, true, fmt.Errorf("invalid user id %q: %w", rest, err)
	}
	return uint32(id), true, nil
}

func openBans(cmd *cobra.Command) *bans.Manager {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.BansFile == "" {
		fmt.Fprintln(os.Stderr, "bans_file is not configured")
		os.Exit(1)
	}

	list := bans.NewManager(cfg.Server.BansFile)
	if err := list.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load bans: %v\n", err)
		os.Exit(1)
	}
	return list
}

func runListBans(cmd *cobra.Command, args []string) {
	active := openBans(cmd).GetAll()
	if len(active) == 0 {
		fmt.Println("no active bans")
		return
	}
	for _, ban := range active {
		target := ban.IP
		if ban.Type == bans.BanTypeUser {
			target = fmt.Sprintf("user:%d", ban.UserID)
		}
		expires := "never"
		if !ban.Permanent {
			expires = ban.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-24s expires %-25s %s\n", target, expires, ban.Reason)
	}
}

func runBan(cmd *cobra.Command, args []string) {
	list := openBans(cmd)

	userID, isUser, err := parseBanTarget(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	adding := cmd.Name() == "ban"
	switch {
	case adding && isUser:
		err = list.AddUserBan(userID, banReason, banDuration)
	case adding:
		err = list.AddBan(args[0], banReason, banDuration)
	case isUser:
		err = list.RemoveUserBan(userID)
	default:
		err = list.RemoveBan(args[0])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to update bans: %v\n", err)
		os.Exit(1)
	}

	if adding {
		fmt.Printf("banned %s (%s)\n", args[0], banReason)
	} else {
		fmt.Printf("unbanned %s\n", args[0])
	}
	fmt.Println("restart the server to apply")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
