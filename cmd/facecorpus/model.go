package main

import (
	"github.com/esimov/facecorpus/model"
	"github.com/spf13/cobra"
)

var blockSpec model.BlockSpec

var backbone string

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Print the transfer learning architecture built on a frozen backbone",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := model.Build(backbone, blockSpec)
		if err != nil {
			return err
		}
		return m.WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	modelCmd.Flags().StringVar(&backbone, "backbone", "vggface2", "Pretrained backbone: vggface2 or facenet")
	modelCmd.Flags().Float64Var(&blockSpec.DropoutRate, "dropout", 0.5, "Dropout rate applied after every hidden layer")
	modelCmd.Flags().StringVar(&blockSpec.Activation, "activation", "sigmoid", "Output activation")
	modelCmd.Flags().IntSliceVar(&blockSpec.FCSizes, "fc", model.FCSizes, "Widths of the fully-connected layers")
	modelCmd.Flags().StringVar(&blockSpec.LastLayerName, "last-layer", "", "Backbone layer to build on (default the last one)")

	rootCmd.AddCommand(modelCmd)
}
