package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"OpenAgent-Sim/internal/social"
)

var catalogJSON bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the action catalog and the argument grammar",
	RunE: func(cmd *cobra.Command, _ []string) error {
		descs := social.Descriptors()
		if catalogJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(descs)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Arguments are written one per line as \"name: value\"; lists are comma-separated; omitted optional parameters have no value.")
		for _, d := range descs {
			fmt.Fprintf(out, "\n%s  %s\n", d.Name, d.Description)
			for _, p := range d.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				ref := ""
				if p.Reference {
					ref = ", post id"
				}
				fmt.Fprintf(out, "  %s: <%s> (%s%s) %s\n", p.Name, p.Kind, req, ref, p.Description)
			}
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogJSON, "json", false, "print the descriptors as JSON")
}
