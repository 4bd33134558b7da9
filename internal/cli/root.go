package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/czds-fetch/internal/adapter/czds"
	"github.com/vertextoedge/czds-fetch/internal/adapter/filesystem"
	"github.com/vertextoedge/czds-fetch/internal/config"
	"github.com/vertextoedge/czds-fetch/internal/logger"
)

// NewRootCmd creates the czds-fetch command tree
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "czds-fetch",
		Short: "Download zone files from ICANN CZDS",
		Long: `czds-fetch authenticates against the ICANN account API, lists the zone
files the account is entitled to and downloads them into a local directory.

Settings are read from a YAML file and CZDS_* environment variables,
e.g. CZDS_ACCOUNT_PASSWORD overrides account.password.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: environment only)")

	cmd.AddCommand(
		NewRunCmd(&configPath),
		NewLinksCmd(&configPath),
		NewHistoryCmd(&configPath),
		NewVersionCmd(),
	)

	return cmd
}

// app holds the components shared by the commands
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	files  *filesystem.Manager
	client *czds.Client
}

// loadApp reads configuration, initializes logging and builds the client
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.GetZapLogger()

	files, err := filesystem.NewManagerWithBufferSize(cfg.Download.Directory, cfg.Download.GetBufferSize())
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem manager: %w", err)
	}

	clientCfg := cfg.ClientConfig()
	session := czds.NewSession(clientCfg, nil, zapLogger.Named("session"))
	client := czds.NewClient(clientCfg, session, files, zapLogger.Named("czds"))

	return &app{
		cfg:    cfg,
		logger: zapLogger,
		files:  files,
		client: client,
	}, nil
}

// loadLocal reads configuration for commands that only touch local state
// and initializes logging. No account credentials are needed.
func loadLocal(configPath string) (*config.Config, error) {
	cfg, err := config.LoadLocal(configPath)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func (a *app) close() {
	logger.Sync()
}
