package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/api"
	"github.com/refset/telco-churn-scoring/internal/schema"
	"github.com/refset/telco-churn-scoring/internal/service"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve online predictions over HTTP",
		Long: `serve loads the model and the feature table from storage and answers
POST /predict. It refuses to start without a model. SIGHUP or
POST /admin/reload swaps in the latest stored model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	svc := service.New(schema.Telco(), a.store, service.Names{
		Model:    a.cfg.Artifacts.Model,
		Features: a.cfg.Artifacts.Features,
	}, a.cfg.Scoring.Workers, a.log)
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	m := a.metrics
	m.ModelLoaded(svc.Version(), svc.LoadedAt())

	var publisher api.PredictionPublisher
	if p := a.producer(); p != nil {
		publisher = p
	}
	srv := api.NewServer(a.cfg.Server, api.NewHandler(svc, m, publisher, a.log))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("serving predictions",
			zap.String("addr", srv.Addr),
			zap.String("model_version", svc.Version()))
		errCh <- srv.ListenAndServe()
	}()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-hup:
			if version, err := svc.Reload(ctx); err == nil {
				m.ModelLoaded(version, svc.LoadedAt())
			}
		case <-ctx.Done():
			a.log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
