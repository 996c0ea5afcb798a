// Package engine exposes the sfnnue evaluator through three operations:
// evaluation, activations with evaluation, and network metadata.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hailam/chessplay/sfnnue"
	"github.com/hailam/chessplay/sfnnue/features"

	"github.com/hailam/nnue-interface/internal/fen"
)

// SmallNetThreshold is the absolute material balance above which the small
// network is used, as in Stockfish.
const SmallNetThreshold = 962

// smallNetRecheck re-evaluates with the big network when the small network
// returns a score below this bound.
const smallNetRecheck = 236

// ErrNetworkMissing is returned when a network file is not in the directory.
var ErrNetworkMissing = errors.New("network file missing")

// Engine evaluates positions with a loaded pair of networks.
// It is safe for concurrent use; evaluations are serialized.
type Engine struct {
	mu      sync.Mutex
	nets    *sfnnue.Networks
	acc     *sfnnue.AccumulatorStack
	indices []int

	// feature transformer output of the last run
	transformed []uint8

	bigFile   string
	smallFile string
}

// Open loads the big and small networks from dir. The directory is passed
// explicitly; Open never consults the environment.
func Open(dir, bigName, smallName string) (*Engine, error) {
	bigPath := filepath.Join(dir, bigName)
	smallPath := filepath.Join(dir, smallName)

	for _, path := range []string{bigPath, smallPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNetworkMissing, path)
		}
	}

	nets, err := sfnnue.LoadNetworks(bigPath, smallPath)
	if err != nil {
		return nil, err
	}
	return newEngine(nets, bigPath, smallPath), nil
}

func newEngine(nets *sfnnue.Networks, bigFile, smallFile string) *Engine {
	return &Engine{
		nets:        nets,
		acc:         sfnnue.NewAccumulatorStack(),
		indices:     make([]int, features.MaxActiveDimensions),
		transformed: make([]uint8, sfnnue.TransformedFeatureDimensionsBig),
		bigFile:     bigFile,
		smallFile:   smallFile,
	}
}

// Activations is the network state for one position.
type Activations struct {
	UseSmallNet bool

	// Accumulator of the selected network, per perspective.
	AccumulationWhite []float32
	AccumulationBlack []float32

	// PSQT accumulation per perspective and bucket.
	PSQT [2][]float32

	// Transformed is the clipped pairwise product fed to the first layer,
	// side to move first.
	Transformed []float32

	// Layer1 is the squared and plain clipped ReLU of the first hidden
	// layer, L2 values each. Layer2 is the clipped ReLU of the second.
	Layer1 []float32
	Layer2 []float32

	Bucket   int
	Eval     float32 // pawns, side to move
	PSQTEval float32 // pawns, PSQT component only
}

// Evaluate returns the evaluation of the position in pawns from the side to
// move's point of view.
func (e *Engine) Evaluate(s string) (float32, error) {
	pos, err := fen.Parse(s)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.evaluate(pos)
	return toPawns(r.value), nil
}

// ActivationsAndEval returns the accumulator state and evaluation of the
// position.
func (e *Engine) ActivationsAndEval(s string) (*Activations, error) {
	pos, err := fen.Parse(s)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.evaluate(pos)
	acc := r.acc
	layer1, layer2 := layerOutputs(r.net.LayerStacks[r.bucket], r.transformed)

	out := &Activations{
		UseSmallNet:       r.small,
		AccumulationWhite: int16s(acc.Accumulation[fen.White]),
		AccumulationBlack: int16s(acc.Accumulation[fen.Black]),
		PSQT: [2][]float32{
			int32s(acc.PSQTAccumulation[fen.White]),
			int32s(acc.PSQTAccumulation[fen.Black]),
		},
		Transformed: uint8s(r.transformed),
		Layer1:      layer1,
		Layer2:      layer2,
		Bucket:      r.bucket,
		Eval:        toPawns(r.value),
		PSQTEval:    toPawns(int(r.psqt)),
	}
	return out, nil
}

type evalResult struct {
	value       int
	psqt        int32
	positional  int32
	bucket      int
	small       bool
	net         *sfnnue.Network
	acc         *sfnnue.Accumulator
	transformed []uint8
}

// evaluate runs the selected network, falling back to the big network when
// the small one is not confident. Callers hold e.mu.
func (e *Engine) evaluate(pos *fen.Position) evalResult {
	small := absInt(simpleEval(pos)) > SmallNetThreshold
	r := e.run(pos, small)
	if small && absInt(r.value) < smallNetRecheck {
		r = e.run(pos, false)
	}

	// Rule50 dampening
	r.value -= r.value * pos.HalfMoveClock / 199
	return r
}

func (e *Engine) run(pos *fen.Position, small bool) evalResult {
	e.acc.Reset()

	net, acc := e.nets.Big, e.acc.CurrentBig()
	if small {
		net, acc = e.nets.Small, e.acc.CurrentSmall()
	}

	for perspective := 0; perspective < 2; perspective++ {
		e.computeAccumulator(net, pos, acc, perspective)
	}

	pieceCount := pos.PieceCount()
	psqt, positional := net.Evaluate(
		acc.Accumulation,
		acc.PSQTAccumulation,
		pos.SideToMove,
		pieceCount,
	)

	bucket := bucketFor(pieceCount)
	transformed := e.transformed[:net.FeatureTransformer.HalfDimensions]
	net.FeatureTransformer.Transform(
		acc.Accumulation,
		acc.PSQTAccumulation,
		[2]int{pos.SideToMove, 1 - pos.SideToMove},
		bucket,
		transformed,
	)

	return evalResult{
		value:       (125*int(psqt) + 131*int(positional)) / 128,
		psqt:        psqt,
		positional:  positional,
		bucket:      bucket,
		small:       small,
		net:         net,
		acc:         acc,
		transformed: transformed,
	}
}

// computeAccumulator refreshes one perspective from scratch.
func (e *Engine) computeAccumulator(net *sfnnue.Network, pos *fen.Position, acc *sfnnue.Accumulator, perspective int) {
	ksq := pos.KingSquare[perspective]

	var active features.IndexList
	for sq, pc := range pos.Board {
		if pc == fen.NoPiece {
			continue
		}
		active.Push(features.MakeIndex(perspective, sq, pc, ksq))
	}

	indices := e.indices[:active.Size]
	copy(indices, active.Values[:active.Size])

	net.FeatureTransformer.ComputeAccumulator(
		indices,
		acc.Accumulation[perspective],
		acc.PSQTAccumulation[perspective],
	)
	acc.Computed[perspective] = true
	acc.KingSq[perspective] = ksq
}

// simpleEval returns the material balance from the side to move's view.
func simpleEval(pos *fen.Position) int {
	// Pawn=208, Knight=781, Bishop=825, Rook=1276, Queen=2538
	values := [...]int{fen.Pawn: 208, fen.Knight: 781, fen.Bishop: 825, fen.Rook: 1276, fen.Queen: 2538}

	score := 0
	for pt := fen.Pawn; pt <= fen.Queen; pt++ {
		score += (pos.Count(fen.White, pt) - pos.Count(fen.Black, pt)) * values[pt]
	}
	if pos.SideToMove == fen.Black {
		score = -score
	}
	return score
}

func bucketFor(pieceCount int) int {
	bucket := (pieceCount - 1) / 4
	if bucket < 0 {
		return 0
	}
	if bucket >= sfnnue.LayerStacks {
		return sfnnue.LayerStacks - 1
	}
	return bucket
}

// layerOutputs propagates the transformed features through the first two
// hidden layers of arch and returns their activations.
func layerOutputs(arch *sfnnue.NetworkArchitecture, transformed []uint8) (layer1, layer2 []float32) {
	fc0 := make([]int32, arch.FC0Outputs)
	arch.FC0.Propagate(transformed, fc0)

	// FC1 reads the squared half followed by the plain half
	ac0Both := make([]uint8, arch.FC0Outputs*2)
	ac0 := make([]uint8, arch.FC0Outputs)
	arch.AcSqr0.Propagate(fc0, ac0Both[:arch.FC0Outputs])
	arch.Ac0.Propagate(fc0, ac0)

	// The last FC0 output is the skip connection and is not an activation.
	l2 := arch.FC0Outputs - 1
	layer1 = make([]float32, 2*l2)
	for i := 0; i < l2; i++ {
		layer1[i] = float32(ac0Both[i])
		layer1[l2+i] = float32(ac0[i])
	}
	copy(ac0Both[arch.FC0Outputs:], ac0)

	fc1 := make([]int32, arch.FC1Outputs)
	arch.FC1.Propagate(ac0Both, fc1)
	ac1 := make([]uint8, arch.FC1Outputs)
	arch.Ac1.Propagate(fc1, ac1)

	return layer1, uint8s(ac1)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func toPawns(v int) float32 {
	return float32(v) / 100
}

func uint8s(v []uint8) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func int16s(v []int16) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func int32s(v []int32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
