package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facealign/internal/inference"
)

func main() {
	ortLib := flag.String("ort-lib", "", "ONNX Runtime shared library path")
	layers := flag.Bool("layers", false, "List the layers go-metal imported")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelcheck [options] <model.onnx>\n\n")
		fmt.Fprintf(os.Stderr, "Prints an upscaler or detector model's tensors and metadata, and\n")
		fmt.Fprintf(os.Stderr, "reports whether go-metal can import it.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	modelPath := flag.Arg(0)
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		fmt.Printf("Error: File not found: %s\n", modelPath)
		os.Exit(1)
	}
	fmt.Printf("Checking ONNX model: %s\n", modelPath)

	ok := checkRuntime(modelPath, *ortLib)
	checkMetal(modelPath, *layers)

	if !ok {
		os.Exit(1)
	}
}

// checkRuntime reports whether ONNX Runtime can read the model.
func checkRuntime(modelPath, ortLib string) bool {
	fmt.Println("\n[onnxruntime]")
	if err := inference.Initialize(ortLib); err != nil {
		fmt.Printf("❌ %v\n", err)
		return false
	}
	defer inference.Shutdown()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		fmt.Printf("❌ Failed to get model info: %v\n", err)
		return false
	}

	fmt.Printf("Inputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("Outputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	if len(inputs) == 1 && len(outputs) == 1 {
		fmt.Println("✓ usable as an upscaler (1 input, 1 output)")
	}

	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		fmt.Printf("  (Could not read metadata: %v)\n", err)
		return true
	}
	defer metadata.Destroy()

	fmt.Println("Metadata:")
	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Printf("  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Printf("  Version: %d\n", version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		fmt.Printf("  Domain: %s\n", domain)
	}
	if desc, err := metadata.GetDescription(); err == nil {
		fmt.Printf("  Description: %s\n", desc)
	}
	return true
}

// checkMetal tries the go-metal importer. Failure is informational: the
// aligner only needs ONNX Runtime.
func checkMetal(modelPath string, listLayers bool) {
	fmt.Println("\n[go-metal]")
	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
	if err != nil {
		fmt.Printf("✗ not importable: %v\n", err)
		return
	}

	fmt.Printf("✓ imported: %d layers, %d weight tensors\n",
		len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	if !listLayers {
		return
	}
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
}
