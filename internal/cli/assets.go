package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"embykeeper/internal/datasource"
	"embykeeper/internal/ocr/worker"
)

func newAssetsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage downloaded model assets",
	}
	cmd.AddCommand(newAssetsFetchCmd(o))
	return cmd
}

func newAssetsFetchCmd(o *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "fetch <model>...",
		Short: "Download named models (or raw files with --raw) into the assets directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := o.resolvedAssetsDir()
			if err != nil {
				return err
			}
			fetcher, err := datasource.New(datasource.Options{
				Mirrors: o.cfg.Mirrors,
				Proxy:   o.cfg.Proxy,
				Logger:  o.log,
				Caller:  "assets",
			})
			if err != nil {
				return err
			}
			var names []string
			if raw {
				names = args
			} else {
				for _, model := range args {
					names = append(names, worker.AssetNames(model)...)
				}
			}
			paths, err := fetcher.Fetch(cmd.Context(), dir, names...)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(names))
			missing := 0
			for i, name := range names {
				p := paths[i]
				if p == "" {
					missing++
					p = "unavailable"
				}
				rows = append(rows, []string{name, p})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Asset", "Path"}, rows, nil))
			if missing > 0 {
				return fmt.Errorf("%d of %d assets unavailable", missing, len(names))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Treat arguments as file names instead of model names")
	return cmd
}
