package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/config"
)

var (
	effectsAgent   string
	effectsEpisode int
	effectsJSON    bool
)

var effectsCmd = &cobra.Command{
	Use:   "effects [action-log.jsonl]",
	Short: "Reconstruct the successful effects of every agent per episode",
	Long: `Reads a JSON lines action log and prints, per agent and episode, the ordered
list of actions that took effect. Failed attempts and skipped records are left
out. Without an argument the action log file from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load(config.ResolvePath(configPath))
			if err != nil {
				return err
			}
			path = cfg.ActionLog.File
		}

		records, err := actionlog.ReadFile(path)
		if err != nil {
			return err
		}
		var opts []actionlog.QueryOption
		if effectsAgent != "" {
			opts = append(opts, actionlog.WithAgent(effectsAgent))
		}
		if effectsEpisode >= 0 {
			opts = append(opts, actionlog.WithEpisode(effectsEpisode))
		}
		filter := actionlog.NewFilter(opts...)
		matched := records[:0]
		for _, rec := range records {
			if filter.Match(rec) {
				matched = append(matched, rec)
			}
		}
		effects := actionlog.Effects(matched)

		if effectsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(effects)
		}
		out := cmd.OutOrStdout()
		for _, e := range effects {
			fmt.Fprintf(out, "%s episode %d\n", e.Agent, e.Episode)
			for _, rec := range e.Records {
				args, _ := json.Marshal(rec.Arguments)
				fmt.Fprintf(out, "  tick %d  %s %s\n", rec.Tick, rec.Action, args)
			}
		}
		summary := actionlog.Summarize(matched)
		fmt.Fprintf(out, "total=%d ok=%d errors=%d skipped=%v\n", summary.Total, summary.OK, summary.Errors, summary.Skipped)
		return nil
	},
}

func init() {
	effectsCmd.Flags().StringVar(&effectsAgent, "agent", "", "only this agent")
	effectsCmd.Flags().IntVar(&effectsEpisode, "episode", -1, "only this episode index")
	effectsCmd.Flags().BoolVar(&effectsJSON, "json", false, "print as JSON")
}
