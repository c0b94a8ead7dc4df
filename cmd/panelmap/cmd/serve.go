package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/genomicsops/panelmap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the panelmap HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, cfg, m, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		srv := server.New(engine, m, server.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		})
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}
