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

// Package vm drives the cross-party store orchestration on top of
// memory/correlated: it buffers AssignOp/DecodeOp requests issued by a
// caller, batches them into a single round per spec.md §4.4-4.5, and
// exposes the canonical wire payloads (AssignPayload, DecodePayload,
// MacPayload) the two sides exchange.
//
// GeneratorStore wraps the key side (correlated.KeyStore); EvaluatorStore
// wraps the mac side (correlated.MacStore). Both additionally hold a
// parallel plaintext-bit arena for the slices the local party knows,
// matching spec.md §3's "Bit/data store" component.
package vm

import (
	"errors"
	"fmt"

	"github.com/getamis/mpcore/circuit"
	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory"
	"github.com/getamis/mpcore/rangeset"
)

// Usage errors: returned to the caller immediately, never retried.
var (
	ErrInvalidSlice    = memory.ErrInvalidSlice
	ErrUninit          = memory.ErrUninit
	ErrAlreadySet      = memory.ErrAlreadySet
	ErrAlreadyAssigned = errors.New("vm: slice already buffered for assignment this round")
	ErrAlreadyDecoding = errors.New("vm: slice already buffered for decode this round")
	ErrInputCount      = errors.New("vm: wrong number of input groups for circuit")
	ErrInputLength     = errors.New("vm: input group length does not match circuit's declared size")
)

// ProtocolError wraps a fatal, session-aborting mismatch between a
// received payload and the locally expected state. Per spec.md §7, any
// such mismatch (a range-set disagreement, a length mismatch, an
// out-of-sequence payload) MUST abort the session rather than panic or
// silently proceed; the Rust source the spec distills left this as
// todo!(), which this rewrite resolves in favor of a typed, wrapped error.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("vm: protocol error during %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Sentinels wrapped by ProtocolError.
var (
	ErrRangeMismatch     = errors.New("vm: payload range-set does not match locally expected set")
	ErrPayloadLength     = errors.New("vm: payload length does not match its declared range-set")
	ErrUnexpectedPayload = errors.New("vm: payload received with no matching buffered operation")
)

// AssignOp is a buffered request to assign a slice's truth value by the
// given kind, per spec.md §3's "Buffered operations".
type AssignOp struct {
	Slice memory.Slice
	Kind  memory.AssignKind
}

// DecodeOp is a buffered request to reveal a slice's plaintext once the
// decode round completes, paired with the one-shot future its caller
// will read the result from.
type DecodeOp struct {
	Slice  memory.Slice
	Future *DecodeFuture
}

// DecodeFuture is a one-shot receiver for a slice's decoded plaintext.
// Send is a non-blocking best-effort operation: dropping interest in a
// future (never calling TryRecv/Recv again) silently cancels it, exactly
// as spec.md §5 requires ("the corresponding DecodeOp remains scheduled
// and completes; its send is no-op").
type DecodeFuture struct {
	ch chan []bool
}

func newDecodeFuture() *DecodeFuture {
	return &DecodeFuture{ch: make(chan []bool, 1)}
}

// Send resolves the future with bits. It never blocks: if the caller has
// already stopped reading (or the future was already resolved), the send
// is dropped.
func (f *DecodeFuture) Send(bits []bool) {
	select {
	case f.ch <- bits:
	default:
	}
}

// TryRecv performs a non-blocking read of the resolved plaintext.
func (f *DecodeFuture) TryRecv() ([]bool, bool) {
	select {
	case bits := <-f.ch:
		return bits, true
	default:
		return nil, false
	}
}

// Recv blocks until the future resolves.
func (f *DecodeFuture) Recv() []bool {
	return <-f.ch
}

// partitionAssignOps splits ops into the direct (MAC sent straight from
// the key side's own authentication) and oblivious (MAC delivered via
// COT) groups, sorted by slice pointer. Because distinct allocations
// never overlap (spec.md §3), sorting by Ptr reproduces the same order a
// canonical RangeSet iteration would, without needing to pre-merge
// ranges across ops.
//
// The direct/oblivious split is role-dependent, not just kind-dependent:
// obliviousKind names the one AssignKind this store's role realizes via
// COT. A GeneratorStore always knows Public/Private wires locally and
// authenticates them directly, so it is oblivious only for Blind (the
// peer knows the bit, so the key is released via COT). An EvaluatorStore
// mirrors this from the other side: it is oblivious only for Private
// (it knows the bit locally and must receive the matching MAC via COT
// using that bit as the choice), while Public (both sides agree) and
// Blind (the peer/generator knows it and authenticates + sends the MAC
// directly) both land in direct, straight from the payload.
//
// This is the "filter_drain" partitioning primitive spec.md §9 calls for
// (remove-if-matches while iterating the buffered queue).
func partitionAssignOps(ops []AssignOp, obliviousKind memory.AssignKind) (direct, oblivious []AssignOp) {
	for _, op := range ops {
		if op.Kind == obliviousKind {
			oblivious = append(oblivious, op)
		} else {
			direct = append(direct, op)
		}
	}
	sortByPtr(direct)
	sortByPtr(oblivious)
	return direct, oblivious
}

func sortByPtr(ops []AssignOp) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Slice.Ptr < ops[j-1].Slice.Ptr; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

func slicesOf(ops []AssignOp) []memory.Slice {
	out := make([]memory.Slice, len(ops))
	for i, op := range ops {
		out[i] = op.Slice
	}
	return out
}

func sortDecodeOpsByPtr(ops []DecodeOp) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j].Slice.Ptr < ops[j-1].Slice.Ptr; j-- {
			ops[j], ops[j-1] = ops[j-1], ops[j]
		}
	}
}

// AssignPayload is the wire message a round's direct assignments and
// the announcement of its oblivious range travel in, per spec.md §6.
type AssignPayload struct {
	IdxDirect    *rangeset.RangeSet
	IdxOblivious *rangeset.RangeSet
	Macs         []gf128.Block
}

// DecodePayload is the key-side-to-mac-side message of the decode
// protocol's first round.
type DecodePayload struct {
	Idx     *rangeset.RangeSet
	KeyBits []bool
}

// MacPayload is the mac-side-to-key-side reply completing the decode
// protocol's second round.
type MacPayload struct {
	Idx   *rangeset.RangeSet
	Bits  []bool
	Proof [32]byte
}

// Call validates a circuit invocation's input slices against the
// circuit's declared input groups before any gate is touched, per
// SPEC_FULL.md §12's supplemented Call/arity-validation feature.
type Call struct {
	Circuit *circuit.Circuit
	Inputs  []memory.Slice
	Outputs []memory.Slice
}

// NewCall validates inputs/outputs against circ's declared group sizes.
func NewCall(circ *circuit.Circuit, inputs, outputs []memory.Slice) (*Call, error) {
	inGroups := circ.Inputs()
	if len(inputs) != len(inGroups) {
		return nil, ErrInputCount
	}
	for i, sl := range inputs {
		if sl.Size != inGroups[i] {
			return nil, ErrInputLength
		}
	}
	outGroups := circ.Outputs()
	if len(outputs) != len(outGroups) {
		return nil, ErrInputCount
	}
	for i, sl := range outputs {
		if sl.Size != outGroups[i] {
			return nil, ErrInputLength
		}
	}
	return &Call{Circuit: circ, Inputs: inputs, Outputs: outputs}, nil
}

// FlatInputs concatenates the call's input slices into one combined
// RangeSet, in declared-group order.
func (c *Call) FlatInputs() *rangeset.RangeSet {
	return memory.ToRangeSet(c.Inputs...)
}
