package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/linkdata/rdm"
)

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run a server with a demonstration namespace",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "the address the HTTP server should listen on",
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "write a cpu or mem profile to the current directory",
		},
		&cli.BoolFlag{
			Name:  "printurl",
			Usage: "print the listen URL on stdout",
		},
	},
	Action: serve,
}

func demoNamespace() *rdm.Namespace {
	ns := rdm.NewNamespace()
	ns.RegisterFunc("echo", func(args []interface{}) (interface{}, error) {
		return args, nil
	})
	ns.RegisterFunc("add", func(args []interface{}) (interface{}, error) {
		var sum float64
		for i, arg := range args {
			f, ok := arg.(float64)
			if !ok {
				return nil, errors.Errorf("argument %d is %T, not a number", i, arg)
			}
			sum += f
		}
		return sum, nil
	})
	return ns
}

func serve(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.IsSet("listen") {
		cfg.Listen = ctx.String("listen")
	}

	switch ctx.String("profile") {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	case "":
	default:
		return errors.Errorf("unknown profile %q", ctx.String("profile"))
	}

	stats := rdm.NewPrometheusStats("rdm", "server")
	registry := prometheus.NewRegistry()
	registry.MustRegister(stats)

	srv := rdm.NewServer(cfg, demoNamespace())
	srv.StatsCollector = stats
	srv.OnSession = func(s *rdm.Session) {
		s.OnConnectionLost = func(reason error) {
			logrus.WithField("session", s.ID).Infof("session ended: %v", reason)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", srv)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.WithStack(err)
	}
	if ctx.Bool("printurl") {
		_, _ = os.Stdout.WriteString("http://" + ln.Addr().String() + "/\n")
	}

	hs := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 10,
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logrus.WithField("addr", ln.Addr().String()).Info("listening")
		if err := hs.Serve(ln); err != http.ErrServerClosed {
			return errors.WithStack(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		srv.Close()
		return errors.WithStack(hs.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
