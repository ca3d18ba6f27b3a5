package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/api"
	"OpenAgent-Sim/internal/episode"
	"OpenAgent-Sim/internal/intent"
	"OpenAgent-Sim/internal/llm"
	"OpenAgent-Sim/internal/observability/alerting"
	"OpenAgent-Sim/internal/observability/metrics"
	"OpenAgent-Sim/internal/scenario"
	"OpenAgent-Sim/internal/sim"
	"OpenAgent-Sim/internal/social"
	"OpenAgent-Sim/internal/social/memory"
	"OpenAgent-Sim/pkg/logger"
)

var (
	runSteps int
	runSeed  int64
	runServe bool
	runStay  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation for a number of steps",
	Long: `Loads the scenario named in the configuration, seeds the in-process social
network and steps every agent through the configured number of steps. With
--serve the read-only status API is exposed while the simulation runs.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSimulation(cmd.Context(), cmd.Flags().Changed("seed"))
	},
}

func init() {
	runCmd.Flags().IntVar(&runSteps, "steps", 0, "number of steps to run (overrides simulation.steps)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "activation seed (overrides simulation.seed)")
	runCmd.Flags().BoolVar(&runServe, "serve", false, "expose the status API while running")
	runCmd.Flags().BoolVar(&runStay, "stay", false, "keep serving the status API after the last step until interrupted")
}

func runSimulation(ctx context.Context, seedOverride bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("simd")

	if runSteps > 0 {
		cfg.Simulation.Steps = runSteps
	}
	if seedOverride {
		cfg.Simulation.Seed = runSeed
	}
	if err := ensureDir(cfg.Runtime.DataDir); err != nil {
		return err
	}

	sc, err := scenario.Load(cfg.Simulation.Scenario)
	if err != nil {
		return err
	}
	network := memory.New()
	if err := sc.Populate(network); err != nil {
		return err
	}
	catalog, err := social.NewCatalog(network)
	if err != nil {
		return err
	}

	client, err := createLLMClient(cfg)
	if err != nil {
		return err
	}
	oracle := llm.NewOracle(client,
		llm.WithMaxAttempts(cfg.Oracle.MaxAttempts),
		llm.WithTemperature(cfg.Oracle.Temperature))

	sinks, reader, err := openSinks(ctx, cfg.ActionLog)
	if err != nil {
		return err
	}
	tally := &actionlog.Tally{}
	writerOpts := []actionlog.WriterOption{actionlog.WithObserver(metrics.ObserveRecord), actionlog.WithObserver(tally.Observe)}
	if cfg.ActionLog.Buffer > 0 {
		writerOpts = append(writerOpts, actionlog.WithBuffer(cfg.ActionLog.Buffer))
	}
	writer := actionlog.NewWriter(sinks, writerOpts...)
	defer func() {
		if err := writer.Close(); err != nil {
			log.Error("关闭动作日志失败", slog.Any("error", err))
		}
	}()

	dispatcher := action.NewDispatcher(catalog, writer)
	resolver := intent.NewResolver(catalog, dispatcher, oracle, network, writer,
		intent.WithTimelineLimit(cfg.Oracle.TimelineLimit),
		intent.WithMaxArgumentLength(cfg.Oracle.MaxArgumentLength))
	participant := sim.NewParticipant(resolver, sc.Script())

	start, err := cfg.Simulation.Start()
	if err != nil {
		return err
	}
	schedOpts := []episode.Option{
		episode.WithWorkers(cfg.Simulation.Workers),
		episode.WithStepsPerEpisode(cfg.Simulation.StepsPerEpisode),
		episode.WithObserver(metrics.ObserveStep),
	}
	if cfg.Alerting.Enabled {
		notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
		if cfg.Alerting.WebhookURL != "" {
			notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
		}
		alerts := alerting.NewQueue(alerting.NewFanout(notifiers...), 64)
		defer alerts.Close()
		schedOpts = append(schedOpts, episode.WithObserver(alerting.StepObserver(alerts, cfg.Alerting.Threshold)))
	}
	scheduler := episode.NewScheduler(episode.NewClock(start, cfg.Simulation.Tick()), writer, schedOpts...)
	for _, agent := range sc.Roster() {
		if err := scheduler.Add(agent, participant); err != nil {
			return err
		}
	}

	serve := runServe || cfg.Server.Enabled
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverDone := make(chan error, 1)
	if serve {
		server := api.NewServer(cfg.Server.Address, reader, catalog, scheduler)
		go func() { serverDone <- server.Start(serverCtx) }()
	} else {
		close(serverDone)
	}

	log.Info("模拟开始",
		slog.String("scenario", sc.Name),
		slog.Int("agents", len(sc.Agents)),
		slog.Int("steps", cfg.Simulation.Steps),
		slog.Int64("seed", cfg.Simulation.Seed))
	started := time.Now()
	reports, runErr := scheduler.Run(ctx, sc.Selector(cfg.Simulation.Seed), cfg.Simulation.Steps,
		cfg.Simulation.AgentTimeout(), cfg.Simulation.StepTimeout())
	if err := writer.Flush(context.WithoutCancel(ctx)); err != nil {
		log.Error("刷新动作日志失败", slog.Any("error", err))
	}

	summary := tally.Summary()
	log.Info("模拟结束",
		slog.Int("steps", len(reports)),
		slog.Int("records", summary.Total),
		slog.Int("ok", summary.OK),
		slog.Int("errors", summary.Errors),
		slog.Any("skipped", summary.Skipped),
		slog.Duration("elapsed", time.Since(started)))
	fmt.Printf("steps=%d records=%d ok=%d errors=%d skipped=%v\n", len(reports), summary.Total, summary.OK, summary.Errors, summary.Skipped)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if serve && runStay && runErr == nil {
		log.Info("模拟已完成，状态接口继续运行直到收到退出信号")
		<-ctx.Done()
	}
	stopServer()
	if err := <-serverDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
