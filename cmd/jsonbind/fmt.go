package main

import (
	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/reoring/jsonbind"
)

func toJSON(data []byte) []byte { return jsonc.ToJSON(data) }

func newFmtCmd(opts *options) *cobra.Command {
	indent := "  "
	cmd := &cobra.Command{
		Use:   "fmt [file]",
		Short: "Re-emit a JSON document with sorted keys and the chosen indentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args, opts.jsonc)
			if err != nil {
				return err
			}
			e, log, err := buildEngine(opts, func(c *jsonbind.Config) {
				c.Indent = indent
				c.NumberMode = "json-number"
			})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			v, err := jsonbind.Decode[any](e, data)
			if err != nil {
				return err
			}
			out, err := jsonbind.Encode[any](e, v)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := w.Write(out); err != nil {
				return err
			}
			_, err = w.Write([]byte("\n"))
			return err
		},
	}
	cmd.Flags().StringVar(&indent, "indent", indent, "indent unit; empty for compact output")
	return cmd
}
