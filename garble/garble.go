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

// Package garble implements the streaming half-gates garbled-circuit
// generator and evaluator cores: free-XOR/INV plus a two-ciphertext
// half-gates AND, batched into fixed-size EncryptedGateBatch entries.
//
// INV is realized on the generator's zero-labels as K_z = K_x xor Delta
// (free-XOR composed with the constant wire Delta), per the Open-Question
// decision recorded in DESIGN.md; the evaluator copies the label it holds
// unchanged, so no separate pointer-bit bookkeeping path is needed.
package garble

import (
	"crypto/aes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"

	"github.com/getamis/sirius/log"

	"github.com/getamis/mpcore/circuit"
	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory/correlated"
)

// BatchSize is the default number of encrypted-gate entries carried per
// EncryptedGateBatch wire payload, matching spec.md §6's table.
const BatchSize = 128

// HalfGate is the two-ciphertext half-gates encoding of one AND gate.
type HalfGate struct {
	TG gf128.Block
	TE gf128.Block
}

// EncryptedGateBatch is a fixed-size, possibly-padded window of
// HalfGates, the wire-level unit the generator streams and the evaluator
// consumes.
type EncryptedGateBatch struct {
	Gates []HalfGate
	// Count is the number of real (non-padding) entries in Gates.
	Count int
}

// Errors returned by the garbling engines.
var (
	ErrStreamEnded  = errors.New("garble: batch stream ended before all AND gates were consumed")
	ErrUnsupported  = errors.New("garble: unsupported gate kind")
	ErrWireMismatch = errors.New("garble: wire count mismatch")
)

// mmoHash realizes the half-gates hash H(message, index) := E(index,
// sigma(message)) xor sigma(message), following the teacher's
// crypto/circuit AES-based MMO construction adapted from []byte to Block.
func mmoHash(message gf128.Block, index uint64) gf128.Block {
	sig := sigma(message)
	var keyBytes [16]byte
	binary.BigEndian.PutUint64(keyBytes[8:], index)
	cipher, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		// aes.NewCipher only errors on bad key length; keyBytes is fixed
		// at 16 bytes, so this path is unreachable.
		panic(err)
	}
	sigBytes := sig.ToBytes()
	var ctBytes [16]byte
	cipher.Encrypt(ctBytes[:], sigBytes[:])
	ct := gf128.FromBytes(ctBytes)
	return ct.Xor(sig)
}

// sigma swaps and xors the two halves of a Block: sigma(xL||xR) = (xR xor
// xL) || xR. Operating on the two 64-bit limbs directly.
func sigma(x gf128.Block) gf128.Block {
	return gf128.Block{Lo: x.Hi, Hi: x.Lo ^ x.Hi}
}

// mulBit returns v if bit else ZERO.
func mulBit(v gf128.Block, bit bool) gf128.Block {
	if bit {
		return v
	}
	return gf128.ZERO
}

// Generator streams a half-gates garbling of a Circuit, producing one
// HalfGate batch entry per AND gate and deriving every wire label from
// the session Delta.
type Generator struct {
	circ         *circuit.Circuit
	delta        correlated.Delta
	labels       []gf128.Block // zero-label per wire
	counter      uint64
	startCounter uint64
	andIdx       int
	logger       log.Logger
}

// NewGenerator creates a generator for circ with the given Delta and the
// zero-labels of the input wires (InputLen() Blocks, in input-group
// order). It draws a random starting counter for the MMO hash tweaks, the
// same way the teacher's Circuit.Garbled draws a random StartCount, so
// independent garblings of the same circuit never reuse the same
// (counter, label) pair as an AES key/plaintext.
func NewGenerator(circ *circuit.Circuit, delta correlated.Delta, inputLabels []gf128.Block) (*Generator, error) {
	if len(inputLabels) != circ.InputLen() {
		return nil, ErrWireMismatch
	}
	labels := make([]gf128.Block, circ.FeedCount())
	copy(labels, inputLabels)
	start, err := randomCounter(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Generator{circ: circ, delta: delta, labels: labels, counter: start, startCounter: start, logger: log.New("package", "garble")}, nil
}

// StartCounter returns the random counter this garbling began from. The
// caller must pass it to NewEvaluator so both sides derive identical MMO
// hash tweaks per AND gate, mirroring the teacher's StartCount field
// carried on GarbleCircuitMessage.
func (g *Generator) StartCounter() uint64 { return g.startCounter }

func randomCounter(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Generate runs the full circuit, returning the encrypted-gate batches
// (BatchSize entries each, the last padded) and the zero-labels of the
// output wires.
func (g *Generator) Generate() ([]EncryptedGateBatch, []gf128.Block, error) {
	var pending []HalfGate
	var batches []EncryptedGateBatch

	flush := func(final bool) {
		for len(pending) >= BatchSize {
			batches = append(batches, EncryptedGateBatch{Gates: pending[:BatchSize], Count: BatchSize})
			pending = pending[BatchSize:]
		}
		if final && len(pending) > 0 {
			count := len(pending)
			padded := make([]HalfGate, BatchSize)
			copy(padded, pending)
			batches = append(batches, EncryptedGateBatch{Gates: padded, Count: count})
			pending = nil
		}
	}

	for _, gate := range g.circ.Gates() {
		switch gate.Kind {
		case circuit.Xor:
			g.labels[gate.Output] = g.labels[gate.Inputs[0]].Xor(g.labels[gate.Inputs[1]])
		case circuit.Inv:
			g.labels[gate.Output] = g.labels[gate.Inputs[0]].Xor(g.delta.AsBlock())
		case circuit.And:
			wa0 := g.labels[gate.Inputs[0]]
			wb0 := g.labels[gate.Inputs[1]]
			wa1 := wa0.Xor(g.delta.AsBlock())
			wb1 := wb0.Xor(g.delta.AsBlock())
			out, hg := g.gbAnd(wa0, wa1, wb0, wb1)
			g.labels[gate.Output] = out
			pending = append(pending, hg)
			g.andIdx++
			flush(false)
		default:
			g.logger.Warn("unsupported gate kind", "kind", gate.Kind)
			return nil, nil, ErrUnsupported
		}
	}
	flush(true)

	outputs := make([]gf128.Block, len(g.circ.OutputWires()))
	for i, w := range g.circ.OutputWires() {
		outputs[i] = g.labels[w]
	}
	return batches, outputs, nil
}

// gbAnd computes the half-gates AND following "Two Halves Make a Whole":
// the generator knows both labels of both inputs, so it can derive both
// ciphertexts and the output zero-label directly.
func (g *Generator) gbAnd(wa0, wa1, wb0, wb1 gf128.Block) (gf128.Block, HalfGate) {
	pa := wa0.Lsb()
	pb := wb0.Lsb()
	j := g.counter
	jPrime := g.counter + 1
	g.counter += 2

	hwa0 := mmoHash(wa0, j)
	hwa1 := mmoHash(wa1, j)
	tg := hwa0.Xor(hwa1).Xor(mulBit(g.delta.AsBlock(), pb))
	wg0 := hwa0.Xor(mulBit(tg, pa))

	hwb0 := mmoHash(wb0, jPrime)
	hwb1 := mmoHash(wb1, jPrime)
	te := hwb0.Xor(hwb1).Xor(wa0)
	we0 := hwb0.Xor(mulBit(te.Xor(wa0), pb))

	w0 := wg0.Xor(we0)
	return w0, HalfGate{TG: tg, TE: te}
}

// Evaluator consumes EncryptedGateBatches and derives output labels
// mirroring Generator's derivation bit-for-bit. It is resumable: Feed may
// be called repeatedly as batches arrive, advancing through the circuit's
// free gates eagerly and its AND gates as HalfGate entries become
// available.
type Evaluator struct {
	circ     *circuit.Circuit
	labels   []gf128.Block
	counter  uint64
	pending  []HalfGate
	gateIdx  int
	andDone  int
	finished bool
	logger   log.Logger
}

// NewEvaluator creates an evaluator for circ with the wire labels
// corresponding to the actual (garbler-chosen) input bits, in input-group
// order. startCounter must equal the value returned by the peer
// Generator's StartCounter, normally carried alongside the first
// EncryptedGateBatch.
func NewEvaluator(circ *circuit.Circuit, inputLabels []gf128.Block, startCounter uint64) (*Evaluator, error) {
	if len(inputLabels) != circ.InputLen() {
		return nil, ErrWireMismatch
	}
	labels := make([]gf128.Block, circ.FeedCount())
	copy(labels, inputLabels)
	return &Evaluator{circ: circ, labels: labels, counter: startCounter, logger: log.New("package", "garble")}, nil
}

// WantsGates reports whether the evaluator still needs more batches to
// finish the circuit, i.e. there are AND gates not yet consumed.
func (e *Evaluator) WantsGates() bool {
	return e.andDone < e.circ.AndCount()
}

// Feed appends one batch's real (non-padded) HalfGate entries to the
// pending buffer and advances evaluation as far as currently available.
func (e *Evaluator) Feed(batch EncryptedGateBatch) error {
	e.pending = append(e.pending, batch.Gates[:batch.Count]...)
	return e.advance()
}

func (e *Evaluator) advance() error {
	gates := e.circ.Gates()
	for e.gateIdx < len(gates) {
		gate := gates[e.gateIdx]
		switch gate.Kind {
		case circuit.Xor:
			e.labels[gate.Output] = e.labels[gate.Inputs[0]].Xor(e.labels[gate.Inputs[1]])
		case circuit.Inv:
			// The evaluator does not know Delta; the generator already
			// shifted the output wire's zero-label by Delta, so on the
			// evaluator side INV is the identity on whichever label it
			// holds (see DESIGN.md's Open-Question decision).
			e.labels[gate.Output] = e.labels[gate.Inputs[0]]
		case circuit.And:
			if len(e.pending) == 0 {
				return nil // wait for the next batch
			}
			hg := e.pending[0]
			e.pending = e.pending[1:]
			wa := e.labels[gate.Inputs[0]]
			wb := e.labels[gate.Inputs[1]]
			e.labels[gate.Output] = e.evalAnd(wa, wb, hg)
			e.andDone++
		default:
			e.logger.Warn("unsupported gate kind", "kind", gate.Kind)
			return ErrUnsupported
		}
		e.gateIdx++
	}
	e.finished = true
	return nil
}

// Finish returns the output labels once every gate has been evaluated, or
// ErrStreamEnded if AND gates remain unconsumed.
func (e *Evaluator) Finish() ([]gf128.Block, error) {
	if !e.finished {
		// Runs any gates not yet reached, e.g. a circuit with no AND gates
		// for which no batch was ever fed.
		if err := e.advance(); err != nil {
			return nil, err
		}
	}
	if !e.finished {
		e.logger.Warn("batch stream ended early", "need", e.circ.AndCount(), "have", e.andDone)
		return nil, ErrStreamEnded
	}
	outputs := make([]gf128.Block, len(e.circ.OutputWires()))
	for i, w := range e.circ.OutputWires() {
		outputs[i] = e.labels[w]
	}
	return outputs, nil
}

// RunAll feeds every batch up front and finishes in one call, the
// non-streaming convenience path the package tests use.
func (e *Evaluator) RunAll(batches []EncryptedGateBatch) ([]gf128.Block, error) {
	for _, b := range batches {
		if err := e.Feed(b); err != nil {
			return nil, err
		}
	}
	return e.Finish()
}

func (e *Evaluator) evalAnd(wa, wb gf128.Block, hg HalfGate) gf128.Block {
	sa := wa.Lsb()
	sb := wb.Lsb()
	j := e.counter
	jPrime := e.counter + 1
	e.counter += 2

	wg := mmoHash(wa, j).Xor(mulBit(hg.TG, sa))
	we := mmoHash(wb, jPrime).Xor(mulBit(hg.TE.Xor(wa), sb))
	return wg.Xor(we)
}
