// Package program implements the compiled-program container (C1) and the
// host<->DDR tensor copy conventions (spec.md §6): a JSON manifest in
// place of the reference tool's protobuf subgraph format, which spec.md
// §1 explicitly puts out of scope.
//
// Grounded on original_source/sim-runner/include/Subgraph.hpp for the
// Subgraph/Tensor field set, and on oisee-z80-optimizer's cmd/z80opt for
// the "read one manifest file, hand it to the runner" CLI shape this
// package's Load feeds.
package program

import (
	"encoding/json"
	"io"

	"github.com/oisee/dpusim/internal/simerr"
	"github.com/oisee/dpusim/pkg/ddr"
)

// Tensor describes one input or output binding of a subgraph: which DDR
// reg it lives in, where copy-in/copy-out starts, and the arbitrary
// strides used to reshape a contiguous host buffer into (or out of)
// DDR's layout (spec.md §6 "Input/output tensors").
type Tensor struct {
	RegID      int    `json:"reg_id"`
	DDRAddr    uint64 `json:"ddr_addr"`
	Location   string `json:"location"`
	Stride     []int  `json:"stride"`
	BatchShape []int  `json:"batch_shape"`
}

// Subgraph is one compiled kernel: the DDR regs it needs allocated, any
// compile-time constants to seed them with, its AC code (CPU-side ops run
// outside the DPU's bit-level ISA, e.g. the norm/BFP kernels in
// pkg/kernel/norm and pkg/kernel/bfp, applied in place over AcReg) and MC
// code (the DPU microcode stream pkg/isa decodes and pkg/engine executes).
type Subgraph struct {
	RegSizes    map[int]uint64 `json:"reg_sizes"`
	RegConsts   map[int][]byte `json:"reg_consts,omitempty"`
	Fingerprint uint64         `json:"dpu_fingerprint"`
	AcCode      []string       `json:"ac_code,omitempty"`
	AcReg       int            `json:"ac_reg,omitempty"`
	McCode      []byte         `json:"mc_code"`
	Inputs      []Tensor       `json:"inputs"`
	Outputs     []Tensor       `json:"outputs"`
}

// Program is the top-level compiled-program container: an ordered list of
// subgraphs to run in sequence.
type Program struct {
	Subgraphs []Subgraph `json:"subgraphs"`
}

// Load decodes a JSON-encoded program manifest.
func Load(r io.Reader) (*Program, error) {
	var p Program
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, simerr.Wrap(simerr.FileOpenFailed, err, "program: decoding manifest")
	}
	for i, sg := range p.Subgraphs {
		if sg.RegSizes == nil {
			return nil, simerr.New(simerr.ParameterFailed, "program: subgraph %d has no reg_sizes", i)
		}
	}
	return &p, nil
}

// CopyIn reshapes host (laid out contiguously in row-major order over
// t.BatchShape, one byte per element) into dst at t.DDRAddr using t.Stride,
// one coordinate at a time (spec.md §6 "Copy-in reshapes batch-by-batch
// from host layout... to DDR layout... one coordinate at a time").
func CopyIn(dst *ddr.Store, t Tensor, host []byte) error {
	total := productOf(t.BatchShape)
	if len(host) != total {
		return simerr.New(simerr.ParameterFailed, "program: CopyIn host buffer has %d bytes, want %d for batch_shape %v", len(host), total, t.BatchShape)
	}
	return eachCoord(t.BatchShape, func(hostIdx int, coord []int) error {
		offset := t.DDRAddr + uint64(dotStride(coord, t.Stride))
		return dst.Write(t.RegID, offset, host[hostIdx:hostIdx+1])
	})
}

// CopyOut is CopyIn's inverse: it reads t.BatchShape elements out of src at
// t.DDRAddr/t.Stride back into a freshly-allocated contiguous host buffer.
func CopyOut(src *ddr.Store, t Tensor) ([]byte, error) {
	total := productOf(t.BatchShape)
	host := make([]byte, total)
	err := eachCoord(t.BatchShape, func(hostIdx int, coord []int) error {
		offset := t.DDRAddr + uint64(dotStride(coord, t.Stride))
		return src.Read(t.RegID, offset, host[hostIdx:hostIdx+1])
	})
	if err != nil {
		return nil, err
	}
	return host, nil
}

func productOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func dotStride(coord, stride []int) int {
	var sum int
	for i, c := range coord {
		if i < len(stride) {
			sum += c * stride[i]
		}
	}
	return sum
}

// eachCoord walks every row-major coordinate of shape exactly once,
// calling fn with the coordinate's linear host index and its per-axis
// coordinate vector.
func eachCoord(shape []int, fn func(hostIdx int, coord []int) error) error {
	if len(shape) == 0 {
		return fn(0, nil)
	}
	coord := make([]int, len(shape))
	total := productOf(shape)
	for hostIdx := 0; hostIdx < total; hostIdx++ {
		rem := hostIdx
		for d := len(shape) - 1; d >= 0; d-- {
			coord[d] = rem % shape[d]
			rem /= shape[d]
		}
		if err := fn(hostIdx, coord); err != nil {
			return err
		}
	}
	return nil
}
