// Command catanbot watches live Colonist.io games and reports final
// standings to a chat channel.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elektro-code/CatanTournamentBot/internal/browser"
	"github.com/elektro-code/CatanTournamentBot/internal/config"
	"github.com/elektro-code/CatanTournamentBot/internal/rewrite"
	"github.com/elektro-code/CatanTournamentBot/internal/score"
	"github.com/elektro-code/CatanTournamentBot/internal/watch"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "catanbot",
	Short: "catanbot - Colonist.io tournament watcher",
	Long: `catanbot follows live Colonist.io games through a headless browser,
detects when a game ends, and reports final standings to a chat channel.
Recent results are kept in a bounded history and can be mirrored to SQLite.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// watchCmd follows a single game synchronously and prints the result.
var watchCmd = &cobra.Command{
	Use:   "watch [game-id]",
	Short: "Watch one game to completion and print final standings",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatchOnce,
}

// statusCmd queries a running catanbot server.
var statusCmd = &cobra.Command{
	Use:   "status [game-id]",
	Short: "Query a running catanbot server for a game's standings",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var statusAddr string

func runWatchOnce(cmd *cobra.Command, args []string) error {
	gameID := args[0]
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rewriter, err := buildRewriter(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := browser.NewChrome(ctx, cfg.Browser, rewriter, logger)
	if err != nil {
		return err
	}

	session := watch.NewSession(gameID, cfg.Notify.DefaultChannel)
	watch.NewWatcher(cfg.Watch, logger).Run(ctx, session, rt)

	reason, watchErr := session.Finish()
	switch reason {
	case watch.FinishSuccess:
		end := session.EndState()
		if end == nil {
			fmt.Printf("Game %s ended, but final scores could not be retrieved.\n", gameID)
			return nil
		}
		fmt.Printf("Game %s has ended. Final scores:\n", gameID)
		for _, st := range score.FromEndGameState(end, session.Names()) {
			marker := ""
			if st.Winner {
				marker = " (winner)"
			}
			fmt.Printf("  %s: %d points%s\n", st.Name, st.Points, marker)
		}
		return nil
	case watch.FinishTimeout:
		return fmt.Errorf("timed out waiting for game %s to end", gameID)
	case watch.FinishCanceled:
		return fmt.Errorf("watch canceled")
	default:
		return fmt.Errorf("watch failed: %w", watchErr)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/status/%s", statusAddr, args[0])
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("query server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("game %s is neither active nor in history", args[0])
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Message == "" {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(parsed.Message)
	return nil
}

// buildRewriter loads the configured patch file, falling back to the
// built-in patch set.
func buildRewriter(cfg config.Config, log *zap.Logger) (*rewrite.Rewriter, error) {
	var patches []rewrite.Patch
	if cfg.Rewrite.PatchFile != "" {
		loaded, err := rewrite.LoadPatchFile(cfg.Rewrite.PatchFile)
		if err != nil {
			return nil, err
		}
		patches = loaded
	}
	return rewrite.New(log, patches), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	statusCmd.Flags().StringVar(&statusAddr, "addr", "localhost:8080", "address of the running server")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
