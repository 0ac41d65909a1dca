package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/meetline/server/app"
	"github.com/meetline/server/config"
	"github.com/meetline/server/recording"
	"github.com/meetline/server/store"
	"github.com/meetline/server/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		addr  string
		title string
		noQR  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the meeting to WebSocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			closer := initLogger(cfg, false)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, title, !noQR, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	f.StringVar(&title, "title", "", "meeting title shown to clients")
	f.BoolVar(&noQR, "no-qr", false, "do not print the connect QR code")
	return cmd
}

func newEngine(ctx context.Context, cfg *config.Config) (*app.Engine, store.Store, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := seedIfEmpty(ctx, cfg, st); err != nil {
		st.Close()
		return nil, nil, err
	}
	journal, err := openJournal(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	policy, err := recording.ParsePausePolicy(cfg.PausePolicy)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	engine, err := app.New(ctx, app.Options{Store: st, Journal: journal, PausePolicy: policy})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return engine, st, nil
}

func serve(ctx context.Context, cfg *config.Config, title string, showQR bool, out io.Writer) error {
	token := cfg.Token
	if token == "" {
		token = uuid.NewString()
		slog.Info("no token configured, generated one for this run")
	}

	engine, st, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := engine.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer engine.Stop()

	rpcHandler := ws.NewRPCHandler(token, version, title, cfg.DevMode, engine)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           ws.NewHandler(rpcHandler, token, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	slog.Info("server starting", "addr", ln.Addr().String(), "store", cfg.Store, "pausePolicy", engine.Session.Policy())
	printBanner(out, ln.Addr(), token, showQR)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printBanner(out io.Writer, addr net.Addr, token string, showQR bool) {
	url := "ws://" + displayHost(addr) + "/ws"
	fmt.Fprintf(out, "meetline %s\n  url:   %s\n  token: %s\n", version, url, token)
	if showQR && isTerminal(out) {
		qrterminal.GenerateHalfBlock(url+"#token="+token, qrterminal.L, out)
	}
}

func displayHost(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "localhost"
		}
	}
	return net.JoinHostPort(host, port)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
