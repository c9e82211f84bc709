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

package vm

import (
	"github.com/getamis/sirius/log"

	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory"
	"github.com/getamis/mpcore/memory/correlated"
	"github.com/getamis/mpcore/ot"
	"github.com/getamis/mpcore/rangeset"
)

// AssignKind convention used throughout vm (documented once here, shared
// by GeneratorStore and EvaluatorStore): Public means both parties know
// the bit; Private means the LOCAL party knows it; Blind means the PEER
// knows it. A matched pair of AssignOps for the same logical wire must
// declare complementary kinds: {Public,Public}, {Private,Blind}, or
// {Blind,Private} — never {Private,Private} or {Blind,Blind}, since
// exactly one side must hold the witness (or both, for Public).
//
// Mechanically this collapses to two wire paths, matching spec.md §4.4's
// "{direct, oblivious}" partition: when the key side knows the bit
// (generator Public/Private, evaluator Public/Blind) the KeyStore
// authenticates it and ships the MAC directly; when only the MAC side
// knows it (generator Blind, evaluator Private) the KeyStore releases its
// keys via ObliviousTransfer and the MacStore receives the MACs via COT,
// using its own bits as the choices.

// GeneratorStore is the key-side (Sender) half of the cross-party store:
// it wraps a correlated.KeyStore plus a parallel plaintext-bit arena for
// wires whose truth value this party locally knows.
type GeneratorStore struct {
	keys *correlated.KeyStore
	bits *memory.Store[bool]

	pendingAssign []AssignOp

	pendingDecode  []DecodeOp
	awaitingDecode []DecodeOp
	awaitingIdx    *rangeset.RangeSet

	logger log.Logger
}

// NewGeneratorStore creates an empty GeneratorStore bound to delta.
func NewGeneratorStore(delta correlated.Delta) *GeneratorStore {
	return &GeneratorStore{
		keys:   correlated.NewKeyStore(delta),
		bits:   memory.New[bool](),
		logger: log.New("package", "vm", "role", "generator"),
	}
}

// Keys exposes the underlying KeyStore for callers that need direct
// access (e.g. the garbled-circuit engine's wire labels).
func (g *GeneratorStore) Keys() *correlated.KeyStore { return g.keys }

// Alloc reserves a fresh, uninitialized key range and its parallel bit
// range, kept in lockstep so a Slice addresses the same positions in
// both arenas.
func (g *GeneratorStore) Alloc(n int) memory.Slice {
	sl := g.keys.Alloc(n)
	g.bits.Alloc(n)
	return sl
}

// AllocWithKeys reserves and initializes a key range; the parallel bit
// range is left uninitialized until SetBits is called (needed only for
// slices this party will assign Public or Private).
func (g *GeneratorStore) AllocWithKeys(keys []gf128.Block) memory.Slice {
	sl := g.keys.AllocWith(keys)
	g.bits.Alloc(len(keys))
	return sl
}

// SetBits records the locally-known plaintext for sl. Required before
// BufferAssign(sl, Public|Private) can be committed.
func (g *GeneratorStore) SetBits(sl memory.Slice, bits []bool) error {
	return g.bits.TrySet(sl, bits)
}

// BufferAssign queues sl for assignment by kind in the next round.
// Submitting the same slice twice before a commit is a usage error.
func (g *GeneratorStore) BufferAssign(sl memory.Slice, kind memory.AssignKind) error {
	for _, op := range g.pendingAssign {
		if !rangeset.Disjoint(rangeset.New(sl.ToRange()), rangeset.New(op.Slice.ToRange())) {
			return ErrAlreadyAssigned
		}
	}
	g.pendingAssign = append(g.pendingAssign, AssignOp{Slice: sl, Kind: kind})
	return nil
}

// BufferDecode queues sl for decode in the next round and returns the
// future its plaintext will be delivered through.
func (g *GeneratorStore) BufferDecode(sl memory.Slice) *DecodeFuture {
	f := newDecodeFuture()
	g.pendingDecode = append(g.pendingDecode, DecodeOp{Slice: sl, Future: f})
	return f
}

// WantsAssign reports whether any assign ops are buffered.
func (g *GeneratorStore) WantsAssign() bool { return len(g.pendingAssign) > 0 }

// WantsDecode reports whether any decode ops are buffered.
func (g *GeneratorStore) WantsDecode() bool { return len(g.pendingDecode) > 0 }

// CommitAssign executes the buffered AssignOps: direct slices are
// authenticated locally and their MACs placed in the returned payload;
// oblivious slices have their keys released to cotSender for delivery
// to the peer's MacStore via an external COT.
func (g *GeneratorStore) CommitAssign(cotSender ot.COTSender) (AssignPayload, error) {
	direct, oblivious := partitionAssignOps(g.pendingAssign, memory.Blind)
	g.pendingAssign = nil

	var macs []gf128.Block
	for _, op := range direct {
		bits, err := g.bits.TryGet(op.Slice)
		if err != nil {
			return AssignPayload{}, err
		}
		m, err := g.keys.Authenticate(op.Slice, bits)
		if err != nil {
			return AssignPayload{}, err
		}
		macs = append(macs, m...)
	}

	var obliviousKeys []gf128.Block
	for _, op := range oblivious {
		keys, err := g.keys.ObliviousTransfer(op.Slice)
		if err != nil {
			return AssignPayload{}, err
		}
		obliviousKeys = append(obliviousKeys, keys...)
	}
	if len(obliviousKeys) > 0 {
		if err := cotSender.SendCorrelated(obliviousKeys); err != nil {
			return AssignPayload{}, err
		}
	}

	return AssignPayload{
		IdxDirect:    memory.ToRangeSet(slicesOf(direct)...),
		IdxOblivious: memory.ToRangeSet(slicesOf(oblivious)...),
		Macs:         macs,
	}, nil
}

// PrepareDecode builds the first-round DecodePayload for every buffered
// DecodeOp and moves them to "awaiting", so FinishDecode can later route
// the recovered plaintext back to each op's future.
func (g *GeneratorStore) PrepareDecode() (DecodePayload, error) {
	ops := g.pendingDecode
	g.pendingDecode = nil
	sortDecodeOpsByPtr(ops)

	var keyBits []bool
	for _, op := range ops {
		bits, err := g.keys.TryGetBits(op.Slice)
		if err != nil {
			return DecodePayload{}, err
		}
		keyBits = append(keyBits, bits...)
	}

	idx := memory.ToRangeSet(decodeSlices(ops)...)
	g.awaitingDecode = ops
	g.awaitingIdx = idx
	return DecodePayload{Idx: idx, KeyBits: keyBits}, nil
}

// FinishDecode verifies the peer's MacPayload against the DecodePayload
// this store sent, and on success resolves every awaiting DecodeOp's
// future with its recovered plaintext. A range-set mismatch against the
// payload this store itself sent is a fatal ProtocolError (it means the
// peer replied to a different round than the one in flight). Verify
// failure returns correlated.ErrVerify unwrapped: per
// spec.md §7, futures are left unresolved rather than revealing partial
// plaintext.
func (g *GeneratorStore) FinishDecode(sent DecodePayload, reply MacPayload) error {
	if !sent.Idx.Equal(reply.Idx) {
		return &ProtocolError{Op: "decode.finish", Err: ErrRangeMismatch}
	}
	if len(reply.Bits) != len(sent.KeyBits) {
		return &ProtocolError{Op: "decode.finish", Err: ErrPayloadLength}
	}

	recovered := append([]bool(nil), reply.Bits...)
	if err := g.keys.Verify(sent.Idx, recovered, reply.Proof); err != nil {
		g.logger.Warn("decode verify failed, futures left unresolved", "err", err)
		g.awaitingDecode = nil
		g.awaitingIdx = nil
		return err
	}

	offset := 0
	for _, op := range g.awaitingDecode {
		bits := recovered[offset : offset+op.Slice.Size]
		offset += op.Slice.Size
		if err := g.bits.TrySet(op.Slice, bits); err != nil && err != memory.ErrAlreadySet {
			return err
		}
		op.Future.Send(append([]bool(nil), bits...))
	}
	g.awaitingDecode = nil
	g.awaitingIdx = nil
	return nil
}

func decodeSlices(ops []DecodeOp) []memory.Slice {
	out := make([]memory.Slice, len(ops))
	for i, op := range ops {
		out[i] = op.Slice
	}
	return out
}

// EvaluatorStore is the mac-side (Receiver) half of the cross-party
// store: it wraps a correlated.MacStore plus a parallel plaintext-bit
// arena for wires it locally knows (its own Private inputs, and every
// Public wire).
type EvaluatorStore struct {
	macs *correlated.MacStore
	bits *memory.Store[bool]

	pendingAssign []AssignOp
	pendingDecode []DecodeOp

	logger log.Logger
}

// NewEvaluatorStore creates an empty EvaluatorStore.
func NewEvaluatorStore() *EvaluatorStore {
	return &EvaluatorStore{
		macs:   correlated.NewMacStore(),
		bits:   memory.New[bool](),
		logger: log.New("package", "vm", "role", "evaluator"),
	}
}

// Macs exposes the underlying MacStore.
func (e *EvaluatorStore) Macs() *correlated.MacStore { return e.macs }

// Alloc reserves a fresh, uninitialized MAC range and its parallel bit
// range.
func (e *EvaluatorStore) Alloc(n int) memory.Slice {
	sl := e.macs.Alloc(n)
	e.bits.Alloc(n)
	return sl
}

// SetBits records the locally-known plaintext for sl (this party's own
// Private inputs, or a Public wire it already knows).
func (e *EvaluatorStore) SetBits(sl memory.Slice, bits []bool) error {
	return e.bits.TrySet(sl, bits)
}

// BufferAssign queues sl for assignment by kind in the next round.
func (e *EvaluatorStore) BufferAssign(sl memory.Slice, kind memory.AssignKind) error {
	for _, op := range e.pendingAssign {
		if !rangeset.Disjoint(rangeset.New(sl.ToRange()), rangeset.New(op.Slice.ToRange())) {
			return ErrAlreadyAssigned
		}
	}
	e.pendingAssign = append(e.pendingAssign, AssignOp{Slice: sl, Kind: kind})
	return nil
}

// WantsAssign reports whether any assign ops are buffered.
func (e *EvaluatorStore) WantsAssign() bool { return len(e.pendingAssign) > 0 }

// BufferDecode queues sl for decode in the next round and returns the
// future its plaintext will be delivered through.
func (e *EvaluatorStore) BufferDecode(sl memory.Slice) *DecodeFuture {
	f := newDecodeFuture()
	e.pendingDecode = append(e.pendingDecode, DecodeOp{Slice: sl, Future: f})
	return f
}

// WantsDecode reports whether any decode ops are buffered.
func (e *EvaluatorStore) WantsDecode() bool { return len(e.pendingDecode) > 0 }

// ApplyAssign completes a round begun by the peer GeneratorStore's
// CommitAssign: direct MACs (this store's own Public and Blind ops,
// matching the generator's Public/Private direct group) are taken
// straight from payload; oblivious MACs (this store's own Private ops,
// matching the generator's Blind oblivious group) are fetched from
// cotReceiver using this party's locally-known choice bits. A mismatch
// between payload's range sets and this store's own partition of its
// buffered ops is a fatal ProtocolError.
func (e *EvaluatorStore) ApplyAssign(payload AssignPayload, cotReceiver ot.COTReceiver) error {
	direct, oblivious := partitionAssignOps(e.pendingAssign, memory.Private)
	e.pendingAssign = nil

	wantDirect := memory.ToRangeSet(slicesOf(direct)...)
	wantOblivious := memory.ToRangeSet(slicesOf(oblivious)...)
	if !wantDirect.Equal(payload.IdxDirect) {
		return &ProtocolError{Op: "assign.direct", Err: ErrRangeMismatch}
	}
	if !wantOblivious.Equal(payload.IdxOblivious) {
		return &ProtocolError{Op: "assign.oblivious", Err: ErrRangeMismatch}
	}
	if payload.IdxDirect.Len() != len(payload.Macs) {
		return &ProtocolError{Op: "assign.direct", Err: ErrPayloadLength}
	}

	offset := 0
	for _, op := range direct {
		chunk := payload.Macs[offset : offset+op.Slice.Size]
		offset += op.Slice.Size
		if err := e.macs.TrySet(op.Slice, chunk); err != nil {
			return err
		}
	}

	if len(oblivious) > 0 {
		var choices []bool
		for _, op := range oblivious {
			bits, err := e.bits.TryGet(op.Slice)
			if err != nil {
				return err
			}
			choices = append(choices, bits...)
		}
		received, err := cotReceiver.ReceiveCorrelated(choices)
		if err != nil {
			return err
		}
		if len(received) != len(choices) {
			return &ProtocolError{Op: "assign.oblivious", Err: ErrPayloadLength}
		}
		off := 0
		for _, op := range oblivious {
			chunk := received[off : off+op.Slice.Size]
			off += op.Slice.Size
			if err := e.macs.TrySet(op.Slice, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyDecode answers the key-side's DecodePayload: it resolves its own
// buffered decode futures immediately (it already holds both the
// incoming key bits and its own MAC bits, per spec.md §4.5's "the MAC
// side had already resolved its waiters ... as soon as it possessed
// both"), and returns the MacPayload the key side needs to verify and
// resolve its own side.
func (e *EvaluatorStore) ApplyDecode(payload DecodePayload) (MacPayload, error) {
	ops := e.pendingDecode
	e.pendingDecode = nil
	sortDecodeOpsByPtr(ops)
	idx := memory.ToRangeSet(decodeSlices(ops)...)
	if !idx.Equal(payload.Idx) {
		return MacPayload{}, &ProtocolError{Op: "decode.apply", Err: ErrRangeMismatch}
	}
	if len(payload.KeyBits) != idx.Len() {
		return MacPayload{}, &ProtocolError{Op: "decode.apply", Err: ErrPayloadLength}
	}

	bits, proof, err := e.macs.Prove(idx)
	if err != nil {
		return MacPayload{}, err
	}

	offset := 0
	for _, op := range ops {
		plain := make([]bool, op.Slice.Size)
		for i := 0; i < op.Slice.Size; i++ {
			plain[i] = payload.KeyBits[offset+i] != bits[offset+i]
		}
		offset += op.Slice.Size
		if err := e.bits.TrySet(op.Slice, plain); err != nil && err != memory.ErrAlreadySet {
			return MacPayload{}, err
		}
		op.Future.Send(plain)
	}

	return MacPayload{Idx: idx, Bits: bits, Proof: proof}, nil
}
