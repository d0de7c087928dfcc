package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/esimov/facecorpus"
	"github.com/esimov/facecorpus/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const HelpBanner = `
┌─┐┌─┐┌─┐┌─┐┌─┐┌─┐┬─┐┌─┐┬ ┬┌─┐
├┤ ├─┤│  ├┤ │  │ │├┬┘├─┘│ │└─┐
└  ┴ ┴└─┘└─┘└─┘└─┘┴└─┴  └─┘└─┘

Face corpus preparation tool.
    Version: %s

`

// Version indicates the current build version.
var Version = "0.1.0"

var (
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:           "facecorpus",
	Short:         "Prepare labeled face image corpora for attribute classifiers",
	Long:          fmt.Sprintf(HelpBanner, Version),
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.SetColors(utils.IsTerminal(os.Stderr))
		facecorpus.SetLogger(newLogger())
	},
}

// newLogger returns the logger of the library. Per image messages go to stdout.
func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    !utils.IsTerminal(os.Stdout),
	})

	switch {
	case verbose:
		l.SetLevel(logrus.DebugLevel)
	case quiet:
		l.SetLevel(logrus.WarnLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

func main() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, utils.DecorateText(err.Error(), utils.ErrorMessage))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug messages")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Log only warnings and errors")
}
