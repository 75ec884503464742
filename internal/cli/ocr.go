package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"embykeeper/internal/ocr/charset"
)

type ocrResult struct {
	file    string
	text    string
	elapsed time.Duration
	err     error
}

func newOCRCmd(o *rootOptions) *cobra.Command {
	var (
		model       string
		charsetSpec string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ocr <image>...",
		Short: "Recognize one or more captcha images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := o.newPool(nil)
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()

			inst, err := pool.Lookup(model, charsetSpec)
			if err != nil {
				return err
			}
			sub := inst.Subscribe()
			defer sub.Release()

			ctx := cmd.Context()
			results := make([]ocrResult, len(args))
			var wg sync.WaitGroup
			for i, file := range args {
				wg.Add(1)
				go func(i int, file string) {
					defer wg.Done()
					res := ocrResult{file: file}
					img, err := os.ReadFile(file)
					if err != nil {
						res.err = err
						results[i] = res
						return
					}
					start := time.Now()
					res.text, res.err = inst.Run(ctx, img, timeout)
					res.elapsed = time.Since(start)
					results[i] = res
				}(i, file)
			}
			wg.Wait()

			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				errText := ""
				if r.err != nil {
					failed++
					errText = r.err.Error()
				}
				rows = append(rows, []string{
					filepath.Base(r.file),
					r.text,
					r.elapsed.Round(time.Millisecond).String(),
					errText,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model %s\n", inst.Config())
			fmt.Fprintln(out, renderTable(
				[]string{"File", "Text", "Time", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			if failed > 0 {
				return fmt.Errorf("%d of %d images failed", failed, len(results))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&model, "model", "", "Named model to use (empty for the built-in default)")
	f.StringVar(&charsetSpec, "charset", "", "Restrict output: a range name ("+strings.Join(charset.RangeNames(), ", ")+") or a literal alphabet")
	f.DurationVar(&timeout, "timeout", 0, "Per-image timeout (defaults to the pool run timeout)")
	return cmd
}
