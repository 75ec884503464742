package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"embykeeper/internal/common/fsutil"
	"embykeeper/internal/datasource"
	"embykeeper/internal/ocr/charset"
	"embykeeper/internal/ocr/tesseract"
	"embykeeper/internal/ocr/worker"
)

// newWorkerCmd is the child side of the pool. Stdout carries protocol frames
// only; logs go to stderr, which the parent forwards.
func newWorkerCmd(o *rootOptions) *cobra.Command {
	var (
		model    string
		rangeArg string
		alphabet string
	)
	cmd := &cobra.Command{
		Use:    "ocr-worker",
		Short:  "Serve OCR jobs over stdin/stdout (spawned by the pool)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C reaches the whole process group; the parent owns shutdown.
			signal.Ignore(os.Interrupt)

			set, err := workerCharset(rangeArg, alphabet)
			if err != nil {
				return err
			}
			log := o.log.With().Str("component", "ocr-worker").Int("pid", os.Getpid()).Logger()

			opts := worker.Options{
				Model:   model,
				Charset: set,
				Loader:  tesseract.Loader{},
				Logger:  log,
			}
			if model != "" {
				dir, err := fsutil.ResolveAssetsDir(o.cfg.AssetsDir)
				if err != nil {
					return err
				}
				fetcher, err := datasource.New(datasource.Options{
					Mirrors: o.cfg.Mirrors,
					Proxy:   o.cfg.Proxy,
					Logger:  log,
					Caller:  "OCR",
				})
				if err != nil {
					return err
				}
				opts.AssetsDir = dir
				opts.Fetcher = fetcher
			}
			return worker.Run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&model, "model", "", "Named model (empty for the built-in default)")
	f.StringVar(&rangeArg, "charset", "", "Range charset name")
	f.StringVar(&alphabet, "alphabet", "", "Literal alphabet")
	return cmd
}

// workerCharset decodes the split --charset/--alphabet flags. A literal
// alphabet is taken as-is even when it spells a range name.
func workerCharset(rangeArg, alphabet string) (charset.Set, error) {
	if alphabet != "" {
		return charset.Custom(alphabet), nil
	}
	if rangeArg == "" {
		return charset.Set{}, nil
	}
	set, err := charset.Parse(rangeArg)
	if err != nil {
		return charset.Set{}, err
	}
	if set.Custom != "" {
		return charset.Set{}, &unknownRangeError{name: rangeArg}
	}
	return set, nil
}

type unknownRangeError struct{ name string }

func (e *unknownRangeError) Error() string { return "unknown charset range " + e.name }
