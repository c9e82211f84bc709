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

package quicksilver

import (
	"errors"

	"github.com/getamis/sirius/log"

	"github.com/getamis/mpcore/circuit"
	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory"
)

// ErrAssignKind is returned when a store is asked to assign a kind its
// role cannot realize: a Prover always holds the witness, so it can
// never be Blind to one of its own wires; a Verifier never holds the
// witness, so it can never be Private to one. Per spec.md §7's usage-
// error handling, this is returned to the caller immediately rather than
// the Rust source's unreachable!() panic.
var ErrAssignKind = errors.New("quicksilver: store cannot realize this assign kind")

// ErrNotFinished is returned by Finish when AND gates remain un-checked.
var ErrNotFinished = errors.New("quicksilver: AND gates remain un-checked")

// ProverStore drives a Prover across a whole circuit: one MAC per wire,
// authenticated input wires, and free XOR/INV/AND per spec.md §4.8. A
// Prover always knows every wire's truth value, so AssignInputs only
// accepts Public (verifier also knows) or Private (verifier does not);
// Blind is a usage error.
type ProverStore struct {
	*Prover
	circ   *circuit.Circuit
	wires  []gf128.Block
	logger log.Logger
}

// NewProverStore creates a ProverStore for circ.
func NewProverStore(circ *circuit.Circuit) *ProverStore {
	return &ProverStore{
		Prover: NewProver(),
		circ:   circ,
		wires:  make([]gf128.Block, circ.FeedCount()),
		logger: log.New("package", "quicksilver", "role", "prover"),
	}
}

// AssignInputs authenticates one input group's wires. kind must be
// Public or Private. cotChoices/cotBlocks are one fresh RCOT-receiver
// draw per wire (see ot.IdealCOT.RandomCorrelated). Public and Private
// wires are authenticated the same way: each sent bit is the truth bit
// xor its COT choice bit.
//
// Returns the mask bits the caller must send the VerifierStore.
func (s *ProverStore) AssignInputs(wires []int, kind memory.AssignKind, bits []bool, cotChoices []bool, cotBlocks []gf128.Block) ([]bool, error) {
	if kind == memory.Blind {
		return nil, ErrAssignKind
	}
	sent, macs, err := s.ComputeInputBits(bits, cotChoices, cotBlocks)
	if err != nil {
		return nil, err
	}
	for i, w := range wires {
		s.wires[w] = macs[i]
	}
	return sent, nil
}

// RunGates walks every XOR/INV/AND gate in the circuit, authenticating
// each AND gate against the matching entry of a pre-drawn RCOT batch
// (choices/blocks, one per AND gate in circuit order — see
// ot.IdealCOT.RandomCorrelated(circ.AndCount())) and buffering the
// resulting triple for the next Check. It returns the mask bit stream
// the VerifierStore must consume gate-for-gate, in circuit order.
//
// choices/blocks must be the Prover's (receiver-side) half of the exact
// same ideal draw whose sender-side half is fed to VerifierStore.RunGates;
// an ideal COT computes both halves from one RandomCorrelated call, so
// the caller draws once and routes each half to the matching store.
func (s *ProverStore) RunGates(choices []bool, blocks []gf128.Block) ([]bool, error) {
	if len(choices) != s.circ.AndCount() || len(blocks) != s.circ.AndCount() {
		return nil, ErrLengthMismatch
	}
	masks := make([]bool, 0, s.circ.AndCount())
	idx := 0
	for _, gate := range s.circ.Gates() {
		switch gate.Kind {
		case circuit.Xor:
			s.wires[gate.Output] = s.wires[gate.Inputs[0]].Xor(s.wires[gate.Inputs[1]])
		case circuit.Inv:
			x := s.wires[gate.Inputs[0]]
			s.wires[gate.Output] = x.XorLsb(true)
		case circuit.And:
			if s.PendingCount() >= CheckBufferSize {
				return nil, ErrBufferFull
			}
			d, err := s.ComputeAndGate(s.wires[gate.Inputs[0]], s.wires[gate.Inputs[1]], choices[idx], blocks[idx])
			if err != nil {
				return nil, err
			}
			idx++
			masks = append(masks, d)
		default:
			s.logger.Warn("unsupported gate kind", "kind", gate.Kind)
			return nil, ErrUnsupportedGate
		}
	}
	return masks, nil
}

// Check sacrifices every buffered AND gate against coeff0/coeff1,
// returning the (U, V) the VerifierStore must check. coeff0/coeff1 must
// be the receiver-side Coeff of the exact same ideal VOPE draw whose
// sender-side Eval is fed to VerifierStore.Check; an ideal VOPE computes
// both halves from one RandomCorrelated(1) call, so the caller draws
// once and routes each half to the matching store (see RunGates).
func (s *ProverStore) Check(coeff0, coeff1 gf128.Block) (gf128.Block, gf128.Block) {
	return s.CheckAndGate(coeff0, coeff1)
}

// Finish hashes the circuit's output wire MACs and returns the digest
// the VerifierStore's Finish must match.
func (s *ProverStore) Finish(delta gf128.Block, outputBits []bool) ([32]byte, error) {
	outWires := s.circ.OutputWires()
	macs := make([]gf128.Block, len(outWires))
	for i, w := range outWires {
		macs[i] = s.wires[w]
	}
	return ProveOutputs(delta, macs, outputBits)
}

// ErrUnsupportedGate is returned for a gate kind neither store knows how
// to authenticate.
var ErrUnsupportedGate = errors.New("quicksilver: unsupported gate kind")

// VerifierStore mirrors ProverStore with the key-side view: one key per
// wire, Delta, and the running Checked() status. A Verifier never knows
// the witness, so AssignInputs only accepts Public or Blind; Private is
// a usage error.
type VerifierStore struct {
	*Verifier
	circ   *circuit.Circuit
	wires  []gf128.Block
	logger log.Logger
}

// NewVerifierStore creates a VerifierStore for circ under delta.
func NewVerifierStore(circ *circuit.Circuit, delta gf128.Block) *VerifierStore {
	return &VerifierStore{
		Verifier: NewVerifier(delta),
		circ:     circ,
		wires:    make([]gf128.Block, circ.FeedCount()),
		logger:   log.New("package", "quicksilver", "role", "verifier"),
	}
}

// AssignInputs authenticates one input group's wires from the Prover's
// mask bits. kind must be Public or Blind. cotBlocks is the
// RCOT-sender side of the same draw the ProverStore used.
func (s *VerifierStore) AssignInputs(wires []int, kind memory.AssignKind, masks []bool, cotBlocks []gf128.Block) error {
	if kind == memory.Private {
		return ErrAssignKind
	}
	keys, err := s.AuthInputBits(masks, cotBlocks)
	if err != nil {
		return err
	}
	for i, w := range wires {
		s.wires[w] = keys[i]
	}
	return nil
}

// RunGates consumes the ProverStore's per-gate mask stream, deriving
// this side's wire keys. masks and senderBlocks must each carry exactly
// circ.AndCount() entries, one per AND gate in circuit order;
// senderBlocks must be the sender-side half of the exact same ideal
// draws whose receiver-side half fed ProverStore.RunGates.
func (s *VerifierStore) RunGates(senderBlocks []gf128.Block, masks []bool) error {
	if len(senderBlocks) != s.circ.AndCount() || len(masks) != s.circ.AndCount() {
		return ErrLengthMismatch
	}
	i := 0
	for _, gate := range s.circ.Gates() {
		switch gate.Kind {
		case circuit.Xor:
			s.wires[gate.Output] = s.wires[gate.Inputs[0]].Xor(s.wires[gate.Inputs[1]])
		case circuit.Inv:
			s.wires[gate.Output] = s.wires[gate.Inputs[0]].Xor(s.Delta()).Xor(gf128.ONE)
		case circuit.And:
			kc, err := s.AuthAndGate(s.wires[gate.Inputs[0]], s.wires[gate.Inputs[1]], masks[i], senderBlocks[i])
			if err != nil {
				return err
			}
			s.wires[gate.Output] = kc
			i++
		default:
			s.logger.Warn("unsupported gate kind", "kind", gate.Kind)
			return ErrUnsupportedGate
		}
	}
	return nil
}

// Check verifies every buffered AND gate against the Prover's (u, v)
// and eval, folding into Checked(). eval must be the sender-side Eval of
// the exact same ideal VOPE draw whose receiver-side Coeff fed
// ProverStore.Check.
func (s *VerifierStore) Check(eval, u, v gf128.Block) {
	s.CheckAndGates(eval, u, v)
}

// Finish checks the Prover's output-hash against this store's output
// wire keys and the claimed output bits. Every buffered AND gate must
// have been sacrificed by a prior Check call first.
func (s *VerifierStore) Finish(hash [32]byte, outputBits []bool) error {
	if s.EnableFinalCheck() {
		return ErrNotFinished
	}
	outWires := s.circ.OutputWires()
	keys := make([]gf128.Block, len(outWires))
	for i, w := range outWires {
		keys[i] = s.wires[w]
	}
	return s.Verifier.Finish(hash, keys, outputBits)
}
