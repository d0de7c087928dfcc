/*
Package facecorpus prepares labeled face image corpora for training binary attribute classifiers.

The source images are laid out as <personId>/<imageId>.jpg. The package finds them, detects and crops
the primary face of every image to a fixed square size and writes the crops under the same layout.
It also merges the per label annotation files into a single table keyed by image identity.

The package provides a command line interface. To check the supported commands type:

	$ facecorpus --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		"github.com/esimov/facecorpus"
	)

	func main() {
		p := &facecorpus.Pipeline{
			Cropper: facecorpus.NewCropper(facecorpus.NewPigoDetector("data/facefinder")),
		}

		outcomes, err := p.Run(context.Background(), "images", "faces")
		if err != nil {
			fmt.Printf("Error cropping faces: %s", err.Error())
			return
		}
		fmt.Println(facecorpus.Summarize(outcomes))
	}
*/
package facecorpus
