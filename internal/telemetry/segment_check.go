package telemetry

import (
	"context"
	"fmt"
	"os"

	"github.com/asticode/go-astits"
)

// CheckMPEGTSSegment performs a cheap sanity peek at an HLS segment file: it
// confirms the file begins with at least one packet go-astits can parse as
// MPEG-TS. This is advisory only — callers log a failure as a warning and
// never block or fail a job on its result, since a segment can legitimately
// still be mid-write when this runs.
func CheckMPEGTSSegment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dmx := astits.NewDemuxer(context.Background(), f)
	if _, err := dmx.NextPacket(); err != nil {
		return fmt.Errorf("segment %s did not parse as MPEG-TS: %w", path, err)
	}
	return nil
}
