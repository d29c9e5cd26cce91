package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(opts *options) *cobra.Command {
	maxIssues := -1
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Report duplicate keys, excessive nesting and oversized input without binding the document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args, opts.jsonc)
			if err != nil {
				return err
			}
			e, log, err := buildEngine(opts, nil)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			issues, err := e.DetectDuplicateKeys(bytes.NewReader(data), maxIssues)
			for _, is := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", is.Code, is.Path, is.Message)
			}
			if err != nil {
				return err
			}
			if len(issues) > 0 {
				return fmt.Errorf("found %d issue(s)", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().IntVar(&maxIssues, "max-issues", maxIssues, "stop collecting after this many issues (-1 = unlimited)")
	return cmd
}
