// Command copilot listens to a meeting and answers when addressed by name.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/meeting-copilot/internal/app"
	"github.com/meeting-copilot/internal/capture"
	"github.com/meeting-copilot/internal/config"
	"github.com/meeting-copilot/internal/control"
	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/llm"
)

// set at build time
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var envFiles []string

	load := func() (*config.Config, error) {
		return config.Load(configPath, envFiles...)
	}

	root := &cobra.Command{
		Use:          "copilot",
		Short:        "Meeting copilot that answers when addressed by name",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to copilot.yaml")
	root.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, ".env files to load before reading the environment")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Capture audio and answer wake phrases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logging.InitWithLevel(cfg.LogLevel)
			defer func() { _ = logging.Sync() }()

			r, err := app.New(cfg, app.Options{Version: version, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = r.Run(ctx)
			logging.Infow("shutdown complete")
			return err
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print it with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, d := range devices {
				mark := " "
				if d.Default {
					mark = "*"
				}
				fmt.Fprintf(w, "%s %s\n", mark, d.Name)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models [provider]",
		Short: "List the models an llm provider serves; * marks recommended ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath, envFiles...)
			if err != nil {
				return err
			}
			if len(args) == 1 && args[0] != cfg.LLM.Provider {
				cfg.LLM = config.LLMConfig{Provider: args[0], TimeoutMs: cfg.LLM.TimeoutMs}
				if err := cfg.ApplyVendorEnv(os.LookupEnv); err != nil {
					return err
				}
			}
			lister, err := app.NewModelLister(cfg.LLM)
			if err != nil {
				return err
			}
			listed, err := lister.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), cfg.LLM.Provider, listed)
		},
	}

	var ctlURL string
	var ctlTimeout time.Duration
	ctlCmd := &cobra.Command{
		Use:   "ctl <tool> [key=value ...]",
		Short: "Call a control tool on a running copilot (mute, set_mode, switch_source, status, recent_transcripts, quit)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs, err := parseToolArgs(args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
			defer cancel()
			c := control.NewClient("copilot-ctl", version)
			if err := c.Connect(ctx, ctlURL); err != nil {
				return err
			}
			defer c.Close()
			text, err := c.Call(ctx, args[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	ctlCmd.Flags().StringVar(&ctlURL, "url", "http://127.0.0.1:8765/mcp/ws", "MCP websocket endpoint")
	ctlCmd.Flags().DurationVar(&ctlTimeout, "timeout", 10*time.Second, "call timeout")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(runCmd, checkCmd, devicesCmd, modelsCmd, ctlCmd, versionCmd)
	return root
}

func printCatalog(w io.Writer, provider string, listed []string) error {
	for _, e := range llm.Catalog(provider, listed) {
		mark := " "
		if e.Recommended {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", mark, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// parseToolArgs turns key=value pairs into tool arguments. true/false and
// integers keep their JSON types.
func parseToolArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else if n, err := strconv.Atoi(v); err == nil {
			out[k] = n
		} else {
			out[k] = v
		}
	}
	return out, nil
}
