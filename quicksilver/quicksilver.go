// Copyright © 2021 AMIS Technologies
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quicksilver implements the QuickSilver (eprint 2021/076)
// zero-knowledge core: a Prover holding IT-MACs on every wire and a
// Verifier holding the matching keys, authenticating AND gates over a
// correlated-OT channel and sacrificing a batch of them at a time against
// an ideal VOPE check.
package quicksilver

import (
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zeebo/blake3"

	"github.com/getamis/mpcore/gf128"
)

// CheckBufferSize is the number of AND gates buffered between sacrifice
// checks, matching the teacher's corpus convention for the equivalent
// Rust constant (CHECK_BUFFER_SIZE = 1 << 20).
const CheckBufferSize = 1 << 20

// DefaultBatchSize is the default number of authenticated gates carried
// per wire batch.
const DefaultBatchSize = 128

// parallelReductionThreshold is the minimum batch length worth splitting
// across goroutines; below it, the errgroup/chunk overhead outweighs the
// saved Gfmul work.
const parallelReductionThreshold = 4096

// checkInnerProduct computes xor_i (a[i] * b[i]) like
// gf128.InnerProductReduced, splitting the work across GOMAXPROCS
// goroutines once a/b are long enough to make that worthwhile: the
// sacrifice check's chi-weighted reduction runs over up to CheckBufferSize
// (1<<20) entries, which is exactly the inner loop worth parallelizing.
func checkInnerProduct(a, b []gf128.Block) (gf128.Block, error) {
	if len(a) != len(b) {
		return gf128.ZERO, gf128.ErrWrongInput
	}
	n := len(a)
	if n < parallelReductionThreshold {
		return gf128.InnerProductReduced(a, b)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	partials := make([]gf128.Block, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		g.Go(func() error {
			acc, err := gf128.InnerProductReduced(a[start:end], b[start:end])
			if err != nil {
				return err
			}
			partials[w] = acc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return gf128.ZERO, err
	}

	acc := gf128.ZERO
	for _, p := range partials {
		acc = acc.Xor(p)
	}
	return acc, nil
}

// Errors returned by the Prover and Verifier.
var (
	ErrInvalidInputs  = errors.New("quicksilver: cot output length does not match inputs")
	ErrLengthMismatch = errors.New("quicksilver: lengths do not match")
	ErrBufferFull     = errors.New("quicksilver: check buffer is full, call CheckAndGate first")
)

// boolsToBytes packs bits MSB-first into bytes, matching the byte layout
// the rest of the core feeds into BLAKE3 transcripts.
func boolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// setValue returns block with its pointer bit forced to b.
func setValue(block gf128.Block, b bool) gf128.Block {
	return block.SetLsb(b)
}

// setZero clears a block's pointer bit, leaving the rest untouched.
func setZero(block gf128.Block) gf128.Block {
	return block.SetLsb(false)
}

// Prover holds the MAC half of the correlation: one gf128.Block per wire,
// with the pointer bit of each MAC carrying the wire's truth value.
type Prover struct {
	bufLeft  []gf128.Block
	bufRight []gf128.Block
	bufOut   []gf128.Block
	counter  int
	hasher   *blake3.Hasher
	bufHash  []bool
}

// NewProver creates an empty Prover with a CheckBufferSize check window.
func NewProver() *Prover {
	return &Prover{
		bufLeft:  make([]gf128.Block, CheckBufferSize),
		bufRight: make([]gf128.Block, CheckBufferSize),
		bufOut:   make([]gf128.Block, CheckBufferSize),
		hasher:   blake3.New(),
		bufHash:  make([]bool, CheckBufferSize),
	}
}

// ComputeInputBits authenticates a batch of input wires: mask is the
// prover's RCOT receiver choice bits and blks its receiver messages for
// the same transfer. It returns the mask-corrected bits the prover must
// send to the verifier and the resulting MACs (pointer bit = truth bit).
func (p *Prover) ComputeInputBits(inputs []bool, mask []bool, blks []gf128.Block) ([]bool, []gf128.Block, error) {
	if len(mask) != len(inputs) || len(blks) != len(inputs) {
		return nil, nil, ErrInvalidInputs
	}
	sent := make([]bool, len(inputs))
	macs := make([]gf128.Block, len(inputs))
	for i := range inputs {
		sent[i] = inputs[i] != mask[i]
		macs[i] = setValue(blks[i], inputs[i])
	}
	p.hasher.Write(boolsToBytes(sent))
	return sent, macs, nil
}

// ComputeAndGate authenticates one AND gate's output: ma, mb are the
// input wires' MACs, and (s, blk) is a single fresh RCOT receiver output
// (one choice bit, one message). It buffers the gate for the next check
// and returns the mask bit the prover must send to the verifier.
func (p *Prover) ComputeAndGate(ma, mb gf128.Block, s bool, blk gf128.Block) (bool, error) {
	if p.counter >= CheckBufferSize {
		return false, ErrBufferFull
	}
	p.bufLeft[p.counter] = ma
	p.bufRight[p.counter] = mb

	v := ma.Lsb() && mb.Lsb()
	d := v != s

	p.bufOut[p.counter] = setValue(blk, v)
	p.bufHash[p.counter] = d
	p.counter++

	return d, nil
}

// PendingCount returns the number of AND gates buffered since the last
// check.
func (p *Prover) PendingCount() int { return p.counter }

// CheckAndGate sacrifices every buffered AND gate in one batch: it
// derives chi powers from the transcript hash and returns the masked
// (u, v) values to send the verifier, per vope's (coeff0, coeff1) mask.
func (p *Prover) CheckAndGate(vopeCoeff0, vopeCoeff1 gf128.Block) (gf128.Block, gf128.Block) {
	n := p.counter
	aBlocks := make([]gf128.Block, n)
	bBlocks := make([]gf128.Block, n)
	for i := 0; i < n; i++ {
		a, b, c := p.bufLeft[i], p.bufRight[i], p.bufOut[i]
		tmp0 := gf128.ZERO
		if a.Lsb() {
			tmp0 = b
		}
		tmp1 := gf128.ZERO
		if b.Lsb() {
			tmp1 = a
		}
		aBlocks[i] = a.Gfmul(b)
		bBlocks[i] = tmp0.Xor(tmp1).Xor(c)
	}

	p.hasher.Write(boolsToBytes(p.bufHash[:n]))
	seed := p.hasher.Sum(nil)
	chis := gf128.Powers(seedBlock(seed), n)

	u, _ := checkInnerProduct(aBlocks, chis)
	v, _ := checkInnerProduct(bBlocks, chis)

	u = u.Xor(vopeCoeff0)
	v = v.Xor(vopeCoeff1)

	uBytes := u.ToBytes()
	vBytes := v.ToBytes()
	p.hasher.Write(uBytes[:])
	p.hasher.Write(vBytes[:])
	p.counter = 0

	return u, v
}

// Verifier holds the key half of the correlation: Delta and one key per
// wire.
type Verifier struct {
	delta        gf128.Block
	bufLeft      []gf128.Block
	bufRight     []gf128.Block
	bufOut       []gf128.Block
	checkCounter int
	hasher       *blake3.Hasher
	bufHash      []bool
	checked      bool
}

// NewVerifier creates an empty Verifier for the given session Delta.
func NewVerifier(delta gf128.Block) *Verifier {
	return &Verifier{
		delta:    delta,
		bufLeft:  make([]gf128.Block, CheckBufferSize),
		bufRight: make([]gf128.Block, CheckBufferSize),
		bufOut:   make([]gf128.Block, CheckBufferSize),
		hasher:   blake3.New(),
		bufHash:  make([]bool, CheckBufferSize),
		checked:  true,
	}
}

// Delta returns the verifier's global correlation.
func (v *Verifier) Delta() gf128.Block { return v.delta }

// AuthInputBits authenticates a batch of input wires given the mask bits
// sent by the Prover and the verifier's RCOT sender messages for the same
// transfer, returning the resulting keys.
func (v *Verifier) AuthInputBits(masks []bool, blks []gf128.Block) ([]gf128.Block, error) {
	if len(masks) != len(blks) {
		return nil, ErrLengthMismatch
	}
	v.hasher.Write(boolsToBytes(masks))

	keys := make([]gf128.Block, len(masks))
	for i, blk := range blks {
		block := blk
		if masks[i] {
			block = block.Xor(v.delta)
		}
		keys[i] = setZero(block)
	}
	return keys, nil
}

// AuthAndGate authenticates one AND gate's output key given the input
// wires' keys, the mask bit sent by the Prover, and the verifier's RCOT
// sender message for this gate.
func (v *Verifier) AuthAndGate(ka, kb gf128.Block, mask bool, cot gf128.Block) (gf128.Block, error) {
	if v.checkCounter >= CheckBufferSize {
		return gf128.ZERO, ErrBufferFull
	}
	v.bufLeft[v.checkCounter] = ka
	v.bufRight[v.checkCounter] = kb
	v.bufHash[v.checkCounter] = mask

	block := cot
	if mask {
		block = block.Xor(v.delta)
	}
	kc := setZero(block)
	v.bufOut[v.checkCounter] = kc
	v.checkCounter++

	return kc, nil
}

// PendingCount returns the number of AND gates buffered since the last
// check.
func (v *Verifier) PendingCount() int { return v.checkCounter }

// EnableCheck reports whether the check buffer has reached capacity and
// should be sacrificed before authenticating more gates.
func (v *Verifier) EnableCheck() bool { return v.checkCounter == CheckBufferSize }

// EnableFinalCheck reports whether any gates remain buffered, i.e.
// whether a final (possibly partial) check is needed before Finish.
func (v *Verifier) EnableFinalCheck() bool { return v.checkCounter != 0 }

// CheckAndGates verifies every buffered AND gate against the Prover's
// (u, v) values and the ideal VOPE's masked evaluation, folding the
// result into Checked(). It always clears the buffer, even on failure, so
// the caller can keep going and inspect Checked() at the end.
func (v *Verifier) CheckAndGates(vopeEval gf128.Block, u, vVal gf128.Block) {
	n := v.checkCounter
	blocks := make([]gf128.Block, n)
	for i := 0; i < n; i++ {
		a, b, c := v.bufLeft[i], v.bufRight[i], v.bufOut[i]
		blocks[i] = a.Gfmul(b).Xor(c.Gfmul(v.delta))
	}

	v.hasher.Write(boolsToBytes(v.bufHash[:n]))
	seed := v.hasher.Sum(nil)
	chis := gf128.Powers(seedBlock(seed), n)

	w, _ := checkInnerProduct(blocks, chis)
	v.checked = v.checked && w.Xor(vopeEval).Equal(u.Xor(vVal.Gfmul(v.delta)))

	uBytes := u.ToBytes()
	vBytes := vVal.ToBytes()
	v.hasher.Write(uBytes[:])
	v.hasher.Write(vBytes[:])
	v.checkCounter = 0
}

// Finish folds a final output-opening check into Checked(): keys and
// outputs are the output wires' keys and the claimed output bits, and
// hash is the BLAKE3 digest the Prover computed over its own output MACs.
// The Verifier recomputes each MAC as key xor Delta wherever the claimed
// output bit is 1.
func (v *Verifier) Finish(hash [32]byte, keys []gf128.Block, outputs []bool) error {
	if len(keys) != len(outputs) {
		return ErrLengthMismatch
	}
	hasher := blake3.New()
	for i, k := range keys {
		pre := k
		if outputs[i] {
			pre = pre.Xor(v.delta)
		}
		b := pre.ToBytes()
		hasher.Write(b[:])
	}
	var got [32]byte
	copy(got[:], hasher.Sum(nil))
	v.checked = v.checked && got == hash
	return nil
}

// Checked returns whether every sacrifice check (and the final output
// check, once Finish has run) has passed so far.
func (v *Verifier) Checked() bool { return v.checked }

// ProveOutputs is the Prover-side counterpart of Verifier.Finish: it
// hashes the output wires' MACs, in order, into the digest the Verifier
// checks. delta does not enter the digest, and outputs is only checked
// for length against macs.
func ProveOutputs(delta gf128.Block, macs []gf128.Block, outputs []bool) ([32]byte, error) {
	if len(macs) != len(outputs) {
		return [32]byte{}, ErrLengthMismatch
	}
	hasher := blake3.New()
	for _, m := range macs {
		b := m.ToBytes()
		hasher.Write(b[:])
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// seedBlock takes a BLAKE3 digest's leading 16 bytes as a chi seed.
func seedBlock(digest []byte) gf128.Block {
	var b [16]byte
	copy(b[:], digest[:16])
	return gf128.FromBytes(b)
}
