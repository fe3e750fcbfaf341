// Command tarpd runs a TARP server: the sine-wave demo endpoints behind a
// fiber-backed HTTP listener, configured through flags bound via viper.
// It mirrors serverExample.py's --secure/--port/--bind/--certfile/--keyfile
// surface 1:1.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tarp-project/tarp/examples/sineserver"
	"github.com/tarp-project/tarp/internal/asyncjob"
	"github.com/tarp-project/tarp/internal/dispatch"
	"github.com/tarp-project/tarp/internal/httpserver"
	"github.com/tarp-project/tarp/internal/middleware"
	"github.com/tarp-project/tarp/internal/registry"
)

var (
	cfgFile  string
	secure   bool
	port     int
	bind     string
	certFile       string
	keyFile        string
	workers        int
	requestTimeout time.Duration

	rootCmd = &cobra.Command{
		Use:   "tarpd",
		Short: "Run a TARP server",
		Long:  longRoot,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.tarpd/config.yml)")
	rootCmd.Flags().BoolVar(&secure, "secure", false, "run the server with TLS (HTTPS)")
	rootCmd.Flags().IntVar(&port, "port", 8080, "port to bind the server to")
	rootCmd.Flags().StringVar(&bind, "bind", "", "bind address for the server (default: all interfaces)")
	rootCmd.Flags().StringVar(&certFile, "certfile", "", "certificate file for secure connections")
	rootCmd.Flags().StringVar(&keyFile, "keyfile", "", "key file for secure connections")
	rootCmd.Flags().IntVar(&workers, "workers", 4, "async RPC worker pool size")
	rootCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 30*time.Second, "maximum time a single dispatched request may run")

	viper.BindPFlag("secure", rootCmd.Flags().Lookup("secure"))
	viper.BindPFlag("port", rootCmd.Flags().Lookup("port"))
	viper.BindPFlag("bind", rootCmd.Flags().Lookup("bind"))
	viper.BindPFlag("certfile", rootCmd.Flags().Lookup("certfile"))
	viper.BindPFlag("keyfile", rootCmd.Flags().Lookup("keyfile"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("request-timeout", rootCmd.Flags().Lookup("request-timeout"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.tarpd")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
	}
	viper.SetEnvPrefix("TARPD")
	viper.AutomaticEnv()
	// A missing config file is not fatal here: every setting has a flag
	// default, unlike a2a-go's embedded-config approach which requires one.
	_ = viper.ReadInConfig()
}

func runServer() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("tarpd: build logger: %w", err)
	}
	defer logger.Sync()

	reg := registry.NewRegistry()
	sineserver.Register(reg)

	jobs := asyncjob.NewManager(asyncjob.NewThreadPool(viper.GetInt("workers"))).WithTTL(10 * time.Minute)
	defer jobs.Close()

	disp := dispatch.New(reg, jobs, logger)
	srv := httpserver.New(disp, logger)
	srv.Use(middleware.Logging(logger), middleware.Timeout(viper.GetDuration("request-timeout")))

	cfg := httpserver.Config{
		Host:     viper.GetString("bind"),
		Port:     viper.GetInt("port"),
		Secure:   viper.GetBool("secure"),
		CertFile: viper.GetString("certfile"),
		KeyFile:  viper.GetString("keyfile"),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(cfg)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("tarpd: serve: %w", err)
		}
		return nil
	case <-stop:
		logger.Info("shutting down")
	}

	if err := srv.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		return err
	}
	logger.Info("stopped")
	return nil
}

var longRoot = `
tarpd serves the sine-wave demo endpoints (setRange, generateData, getData,
showFigure, rpcExample, asyncRPCExample) over TARP's HTTP framing.
`

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
