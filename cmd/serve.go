package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/cmd/bot"
	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/utils"
)

var autostart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and the scanner",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			log.Error("Failed to load config", zap.Error(err))
			return err
		}
		cfg.Logger = log

		secure, err := config.LoadSecureConfig()
		if err != nil {
			log.Error("Invalid secure config", zap.Error(err))
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		b, err := bot.New(ctx, cfg, secure, log)
		if err != nil {
			log.Error("Failed to create bot", zap.Error(err))
			return err
		}

		log.Info("Starting arbscan",
			zap.Int("port", cfg.API.Port),
			zap.String("identity", cfg.API.Identity),
			zap.Strings("chains", cfg.Summary().Chains),
			zap.Bool("autostart", autostart),
		)
		return b.Run(ctx, autostart)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&autostart, "autostart", false, "start scanning without waiting for POST /start")
}
