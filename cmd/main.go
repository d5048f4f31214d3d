package main

import (
	"fmt"
	"os"

	"log/slog"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "ketowell-waitlist",
		Short: "KetoWell waitlist, drip email and checkout service",
		RunE:  serve,
	}

	dripCmd = &cobra.Command{
		Use:   "drip",
		Short: "Send the due drip emails once and exit",
		RunE:  drip,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the ketowell-waitlist version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	cfgFile string
	version string
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.AddCommand(dripCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		slog.Default().Error("can't run the service", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
