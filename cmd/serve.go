package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/joescharf/notus/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start an HTTP server exposing the notebook as a JSON API under /api/v1.\nBy default it listens on 127.0.0.1:8080. Use --port and --host to change it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		nb, err := getNotebook()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}

		addr := fmt.Sprintf("%s:%d", viper.GetString("host"), viper.GetInt("port"))
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewServer(nb, logger, loc).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		ui.Success("Serving API at http://%s/api/v1", addr)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down", zap.String("addr", addr))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "address to bind")
	viper.SetDefault("port", 8080)
	viper.SetDefault("host", "127.0.0.1")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
}
