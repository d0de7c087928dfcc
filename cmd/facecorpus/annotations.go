package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/esimov/facecorpus"
	"github.com/esimov/facecorpus/utils"
	"github.com/spf13/cobra"
)

var (
	annoDir    string
	annoImgDir string
	annoOut    string
)

var annotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Merge the per label annotation files into a single table",
	RunE: func(cmd *cobra.Command, args []string) error {
		if annoDir == "" {
			return errors.New("specify the annotation directory with --anno_dir")
		}
		return runAnnotations(cmd.OutOrStdout())
	},
}

func init() {
	annotationsCmd.Flags().StringVar(&annoDir, "anno_dir", "", "Directory containing the <n>-<label>.txt annotation files")
	annotationsCmd.Flags().StringVar(&annoImgDir, "img_dir", "", "Restrict the table to the images found under this directory")
	annotationsCmd.Flags().StringVarP(&annoOut, "out", "o", "", "Output TSV file (default stdout)")

	annotationsCmd.MarkFlagRequired("anno_dir")
	rootCmd.AddCommand(annotationsCmd)
}

func runAnnotations(stdout io.Writer) error {
	table, err := facecorpus.Aggregate(annoDir)
	if err != nil {
		return err
	}

	if annoImgDir != "" {
		paths, err := facecorpus.Discover(annoImgDir)
		if err != nil {
			return err
		}
		keys := make([]facecorpus.ImageKey, 0, len(paths))
		for _, p := range paths {
			if key, ok := facecorpus.ResolveKey(p); ok {
				keys = append(keys, key)
			}
		}
		table = table.Restrict(keys)
	}

	if annoOut == "" {
		return table.WriteTSV(stdout)
	}

	f, err := os.Create(annoOut)
	if err != nil {
		return fmt.Errorf("unable to create the output file: %w", err)
	}
	if err := table.WriteTSV(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%s %s\n",
		utils.DecorateText(fmt.Sprintf("%d rows × %d labels written to", table.Len(), len(table.Columns())), utils.StatusMessage),
		utils.DecorateText(annoOut, utils.SuccessMessage),
	)
	return nil
}
