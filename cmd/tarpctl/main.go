// Command tarpctl drives the sine-wave demo against a running tarpd
// server, mirroring clientExample.py's --server-url/--server-key surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarp-project/tarp/client"
	"github.com/tarp-project/tarp/examples/sineclient"
)

var (
	serverURL  string
	serverKey  string
	figureFile string

	rootCmd = &cobra.Command{
		Use:   "tarpctl",
		Short: "Drive the TARP sine-wave demo against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo()
		},
	}
)

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8080", "URL of the TARP server")
	rootCmd.Flags().StringVar(&serverKey, "server-key", "", "optional CA certificate path to trust the server's TLS certificate")
	rootCmd.Flags().StringVar(&figureFile, "out", "figure.png", "path to write the rendered figure to")

	viper.BindPFlag("server-url", rootCmd.Flags().Lookup("server-url"))
	viper.BindPFlag("server-key", rootCmd.Flags().Lookup("server-key"))
	viper.BindPFlag("out", rootCmd.Flags().Lookup("out"))

	viper.SetEnvPrefix("TARPCTL")
	viper.AutomaticEnv()
}

func runDemo() error {
	c, err := client.New(viper.GetString("server-url"), viper.GetString("server-key"))
	if err != nil {
		return fmt.Errorf("tarpctl: connect: %w", err)
	}

	data, err := sineclient.Run(c, viper.GetString("out"))
	if err != nil {
		return fmt.Errorf("tarpctl: %w", err)
	}

	fmt.Printf("Data received: %v\n", data)
	fmt.Printf("Figure saved as %s\n", viper.GetString("out"))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
