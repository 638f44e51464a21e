package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"blueprintcore/internal/adapters/exports"
	"blueprintcore/internal/adapters/httpapi"
	"blueprintcore/internal/blob"
	"blueprintcore/pkg/numeric"
)

func (a *app) exportCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current blueprint to the export store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return fmt.Errorf("open export store: %w", err)
			}
			exporter := exports.NewExporter(store)
			if list {
				artifacts, err := exporter.List(ctx)
				if err != nil {
					return err
				}
				for _, artifact := range artifacts {
					fmt.Fprintf(a.stdout, "%s\t%d\t%s\n", artifact.Key, artifact.SizeBytes, artifact.Title)
				}
				return nil
			}
			svc, closeStore, err := a.openService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			artifact, err := exporter.Export(ctx, svc.Blueprint())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, artifact.Key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list stored exports instead of writing one")
	return cmd
}

func (a *app) checkNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-number VALUE...",
		Short: "Validate raw numeric field input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			failed := 0
			for _, raw := range args {
				v, err := numeric.ValidateField("value", raw)
				if err != nil {
					failed++
					fmt.Fprintf(a.stdout, "%q: %v\n", raw, err)
					continue
				}
				fmt.Fprintf(a.stdout, "%q: ok (%s)\n", raw, numeric.Format(v))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d values invalid", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the API version",
		Run: func(*cobra.Command, []string) {
			fmt.Fprintln(a.stdout, httpapi.Version)
		},
	}
}
