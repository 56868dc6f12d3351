// Command gen-fixture writes a synthetic headset capture for --dev replay
// and for tests.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

func main() {
	output := flag.String("o", "mindwave.capture", "output path")
	frames := flag.Int("n", 600, "number of frames")
	seed := flag.Int64("seed", 1, "random seed")
	noise := flag.Int("noise-every", 25, "frames between corrupt frames or line noise, 0 disables")
	blinks := flag.Int("blink-every", 40, "frames between blinks, 0 disables")
	flag.Parse()

	gen := thinkgear.NewSyntheticGenerator(*seed)
	gen.NoiseEvery = *noise
	gen.BlinkEvery = *blinks

	capture := gen.Capture(*frames)
	if err := os.WriteFile(*output, capture, 0o644); err != nil {
		log.Fatalf("failed to write capture: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, %d bytes)", *output, gen.Frames(), len(capture))
}
