// Command mkvdump prints a summary of a Matroska/WebM file's structure:
// the tracks it carries, the indexed keyframe count, and (with -v) every
// decoded element below the EBML header and Segment roots, each printed
// once it and its children are decoded. It is a thin consumer of package mkv
// and does not reimplement any parsing logic itself.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	mkv "github.com/gomkv/mkvparse"
)

func main() {
	var (
		get              []string
		binarySizeLimit  int64
		exhaustive       bool
		useMmap          bool
		verbose          bool
	)

	root := &cobra.Command{
		Use:   "mkvdump <file>",
		Short: "Summarize a Matroska/WebM container's structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := mkv.Options{
				Get:              get,
				BinarySizeLimit:  binarySizeLimit,
				ExhaustiveSearch: exhaustive,
				Mmap:             useMmap,
			}
			if verbose {
				opts.Logger = mkv.NewConsoleLogger(zerolog.DebugLevel)
				opts.EntryCallback = func(info mkv.ElementInfo) mkv.ControlReply {
					fmt.Fprintf(cmd.OutOrStdout(), "%*s%s (%s) @%d\n", info.Level*2, "", info.Path, info.Type, info.Start)
					return mkv.Continue
				}
			}

			tree, err := mkv.ParseFile(args[0], opts)
			if err != nil {
				return err
			}
			defer tree.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "EBML headers: %d\n", len(tree.EBMLHeaders))
			fmt.Fprintf(cmd.OutOrStdout(), "Segments: %d\n", len(tree.Segments))
			fmt.Fprintf(cmd.OutOrStdout(), "Keyframes indexed: %d\n", len(tree.Keyframes))
			for _, seg := range tree.Segments {
				for _, th := range tree.Find(seg, "Segment.Tracks.TrackEntry") {
					track := tree.Get(th)
					var name, codec string
					if h, ok := track.Children.Single("Name"); ok {
						name = tree.Get(h).Value.Str()
					}
					if h, ok := track.Children.Single("CodecID"); ok {
						codec = tree.Get(h).Value.Str()
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  track %q codec=%s\n", name, codec)
				}
			}
			if len(tree.Warnings) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "warnings: %d\n", len(tree.Warnings))
			}
			return nil
		},
	}

	root.Flags().StringSliceVar(&get, "get", nil, "restrict parsing to these dotted element paths")
	root.Flags().Int64Var(&binarySizeLimit, "binary-size-limit", 0, "max bytes read per BINARY element (0=default, <0=unlimited)")
	root.Flags().BoolVar(&exhaustive, "exhaustive", false, "accepted for Options.ExhaustiveSearch, which has no effect (traversal is always sequential)")
	root.Flags().BoolVar(&useMmap, "mmap", false, "memory-map the input file instead of buffered reads")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every decoded element below the EBML header and Segment roots")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
