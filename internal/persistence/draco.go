package persistence

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
)

// DracoCompressor shells out to the draco_encoder binary to compress a PLY
// point cloud into a .drc file, mirroring the teacher's subprocess
// invocation: draco_encoder has no Go binding in this stack, so every
// encode goes through os/exec the way the teacher's consumer does it.
type DracoCompressor struct {
	// EncoderPath is the draco_encoder binary to invoke.
	EncoderPath string

	// QuantizationBits sets -qp; draco_encoder's point-cloud position
	// quantization precision.
	QuantizationBits int

	// CompressionLevel sets -cl, draco's 0 (fastest) .. 10 (smallest) knob.
	CompressionLevel int
}

// Compress runs draco_encoder against plyPath, writing the compressed
// point cloud to drcPath.
func (c DracoCompressor) Compress(plyPath, drcPath string) error {
	qp := c.QuantizationBits
	if qp <= 0 {
		qp = 11
	}
	cl := c.CompressionLevel
	if cl <= 0 {
		cl = 7
	}

	args := []string{
		"-point_cloud",
		"-i", plyPath,
		"-o", drcPath,
		"-qp", strconv.Itoa(qp),
		"-cl", strconv.Itoa(cl),
	}
	cmd := exec.Command(c.EncoderPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("persistence: draco_encoder failed: %w (stderr: %s)", err, stderr.String())
	}
	return nil
}
