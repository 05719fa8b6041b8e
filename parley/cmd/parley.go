// Command parley is the chat client. `parley chat` opens the conversation
// screen against the gateway, or against a local sqlite store with --local.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"parley/parley/config"
	"parley/parley/services/chat"
	"parley/parley/services/chatstore"
	"parley/parley/services/feed"
	"parley/parley/services/identity"
	"parley/parley/services/llm"
	"parley/parley/session"
	"parley/parley/sources/local"
	"parley/parley/sources/psql"
	"parley/parley/ui"
	"parley/parley/utils/logging"
)

var (
	cfg       config.Config
	localMode bool
	plain     bool
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "parley - a minimal chat client",
	Long: `parley keeps one conversation per machine, syncs it live with the
conversation store and answers every message with the configured model.

Run without arguments to open the chat screen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.LoadConfig()
		if err := logging.InitLogger(cfg.LogDir); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the conversation screen",
	Long: `Opens the conversation screen. The conversation id is cached in the
state directory, so the same conversation is resumed on the next start.

With --local the conversation lives in a sqlite file next to the state and
no gateway is needed; sign-in is not available in that mode.`,
	RunE: runChat,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the cached conversation",
	Long:  `Forgets the cached conversation id. The next chat starts a new conversation; the old one stays in the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		storage := stateStore()
		if err := storage.Delete(local.KeyConversationID); err != nil {
			return fmt.Errorf("clear %s: %w", storage.Path(), err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Conversation forgotten.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&localMode, "local", false, "use a local sqlite store instead of the gateway")
	chatCmd.Flags().BoolVar(&plain, "plain", false, "show replies as plain text instead of rendered markdown")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "show replies as plain text instead of rendered markdown")

	rootCmd.AddCommand(chatCmd, resetCmd, loginCmd, logoutCmd, whoamiCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// stateStore keeps local and gateway conversations apart, since their ids
// belong to different stores.
func stateStore() *local.Store {
	if localMode {
		return local.NewStore(filepath.Join(cfg.StateDir, "local"))
	}
	return local.NewStore(cfg.StateDir)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	responder, err := llm.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("responder: %w", err)
	}

	storage := stateStore()
	opts := session.Options{
		Responder:   responder,
		Storage:     storage,
		Variant:     cfg.Variant,
		GuestUserID: cfg.GuestUserID,
	}

	var gateway *identity.Gateway
	title := cfg.GatewayURL
	if localMode {
		dir := filepath.Join(cfg.StateDir, "local")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
		db, err := psql.NewSQLite(ctx, filepath.Join(dir, "parley.db"))
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer db.Close()
		hub := feed.NewHub()
		opts.Store = chat.NewService(db.DB, chat.Options{
			Publisher:   hub,
			GuestUserID: cfg.GuestUserID,
			AllowGuests: true,
		})
		opts.Feed = hub
		opts.Identity = identity.Guest{}
		opts.Variant = config.VariantAnonymous
		title = "local"
	} else {
		gateway = identity.NewGateway(cfg.GatewayURL, storage)
		opts.Store = chatstore.New(cfg.GatewayURL, gateway.Token)
		opts.Feed = feed.NewRemote(cfg.GatewayURL, gateway.Token)
		opts.Identity = gateway
	}

	sess := session.New(opts)
	defer sess.Close()

	model := ui.New(ctx, ui.Options{
		Session:  sess,
		Identity: opts.Identity,
		Markdown: !plain,
		Title:    title,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if gateway != nil {
		gateway.OpenURL = func(u string) {
			if err := openBrowser(u); err != nil {
				logging.AppLogger.Info("could not open a browser", zap.Error(err))
			}
			go p.Send(ui.LoginURLMsg(u))
		}
	}

	logging.AppLogger.Info("chat started",
		zap.Bool("local", localMode), zap.String("variant", string(opts.Variant)), zap.String("state", storage.Path()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}
