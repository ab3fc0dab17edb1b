// Package extract wires the cobra root command for squashfs-extract:
// it opens an image, walks it, and materializes the result through
// fssink.FS, logging every warning the core or sink surfaces.
package extract

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/squashfs/go-squashfs/fssink"
	"github.com/squashfs/go-squashfs/squashfs"
)

// Command builds the squashfs-extract root command.
func Command() *cobra.Command {
	var (
		outputDir     string
		lenient       bool
		noMeta        bool
		fragmentCache int
	)

	cmd := &cobra.Command{
		Use:   "squashfs-extract IMAGE",
		Short: "extract a SquashFS 4.0 image onto the host filesystem",
		Long: `squashfs-extract decodes a SquashFS 4.0 filesystem image and
materializes its contents under --output, walking it depth-first and
reporting any corruption it tolerates as a warning rather than failing
the whole extraction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], runOptions{
				outputDir:     outputDir,
				lenient:       lenient,
				applyMetadata: !noMeta,
				fragmentCache: fragmentCache,
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "./extracted", "directory to extract into")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "downgrade per-entry corruption to warnings and skip the offending subtree")
	cmd.Flags().BoolVar(&noMeta, "no-meta", false, "skip applying permissions, timestamps, and xattrs")
	cmd.Flags().IntVar(&fragmentCache, "fragment-cache", squashfs.DefaultFragmentCacheSize, "number of decompressed fragment blocks to keep cached")

	return cmd
}

type runOptions struct {
	outputDir     string
	lenient       bool
	applyMetadata bool
	fragmentCache int
}

func run(imagePath string, opts runOptions) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := squashfs.Open(f, squashfs.Options{FragmentCacheSize: opts.fragmentCache})
	if err != nil {
		return fmt.Errorf("parse image: %w", err)
	}

	sink, err := fssink.New(fssink.Options{
		OutputRoot:    opts.outputDir,
		ApplyMetadata: opts.applyMetadata,
	})
	if err != nil {
		return fmt.Errorf("create output sink: %w", err)
	}

	walkErr := squashfs.Walk(img, sink, squashfs.WalkOptions{Lenient: opts.lenient})

	for _, w := range sink.Warnings() {
		log.Warnf("%s: %s", w.Kind, w.Detail)
	}

	if walkErr != nil {
		return fmt.Errorf("extract: %w", walkErr)
	}
	log.Infof("extracted %s to %s", imagePath, opts.outputDir)
	return nil
}
