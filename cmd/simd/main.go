package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "simd",
	Short: "Multi-agent social simulation driver",
	Long: `simd steps a population of agents through discrete episodes. Each active
agent's intention is resolved into a validated social action, dispatched to the
social network adapter and recorded in the append-only action log.

The configuration file is taken from --config, then $SIM_CONFIG, then
configs/simulation.json.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the JSON configuration file")
	rootCmd.AddCommand(runCmd, catalogCmd, effectsCmd)
}

// main 是模拟守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "simd 运行失败: %v\n", err)
		os.Exit(1)
	}
}
