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

// Package correlated implements the Sender/Receiver sides of the IT-MAC
// correlated memory model: KeyStore holds keys under a global correlation
// Delta, MacStore holds the matching authenticated MACs.
//
// The authentication relation is M = K xor (x * Delta), where x is a
// single truth bit and "x * Delta" means Delta if x else the zero Block.
// LSB(Delta) is fixed to 1, so LSB(M) xor LSB(K) always recovers x.
package correlated

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/zeebo/blake3"

	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory"
	"github.com/getamis/mpcore/rangeset"
)

// Delta is the session's global linear correlation, held only by the
// key-side party. Its pointer bit is always 1.
type Delta struct {
	block gf128.Block
}

// NewDelta fixes the pointer bit of x to 1 and returns the resulting Delta.
func NewDelta(x gf128.Block) Delta {
	return Delta{block: x.SetLsb(true)}
}

// RandomDelta draws a uniformly random Delta from rng.
func RandomDelta(rng io.Reader) (Delta, error) {
	var buf [16]byte
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return Delta{}, err
	}
	return NewDelta(gf128.FromBytes(buf)), nil
}

// AsBlock returns the underlying Block.
func (d Delta) AsBlock() gf128.Block { return d.block }

// mask returns Delta if b else ZERO.
func (d Delta) mask(b bool) gf128.Block {
	if b {
		return d.block
	}
	return gf128.ZERO
}

// Errors shared by KeyStore and MacStore. These mirror §7's taxonomy:
// usage errors (InvalidSlice, Uninit, AlreadySet, AlreadyAssigned) are
// returned immediately and never retried; Verify is security-relevant.
var (
	ErrInvalidSlice    = memory.ErrInvalidSlice
	ErrUninit          = memory.ErrUninit
	ErrAlreadySet      = memory.ErrAlreadySet
	ErrAlreadyAssigned = errors.New("correlated: slice already used")
	ErrVerify          = errors.New("correlated: MAC proof verification failed")
	ErrLengthMismatch  = errors.New("correlated: ranges and bits length mismatch")
)

// KeyStore is the Sender side of the correlated store: it holds keys and
// the session Delta, and authorizes release of keys only through
// authenticate or oblivious_transfer.
type KeyStore struct {
	keys  *memory.Store[gf128.Block]
	delta Delta
	used  *rangeset.RangeSet
}

// NewKeyStore creates an empty KeyStore bound to delta for the session.
func NewKeyStore(delta Delta) *KeyStore {
	return &KeyStore{keys: memory.New[gf128.Block](), delta: delta, used: rangeset.New()}
}

// Delta returns the session correlation.
func (k *KeyStore) Delta() Delta { return k.delta }

// IsSet reports whether every key in sl has been initialized.
func (k *KeyStore) IsSet(sl memory.Slice) bool { return k.keys.IsInit(sl) }

// IsUsed reports whether every key in sl has already been consumed by
// Authenticate or ObliviousTransfer.
func (k *KeyStore) IsUsed(sl memory.Slice) bool {
	return rangeset.Subset(rangeset.New(sl.ToRange()), k.used)
}

// Alloc reserves an uninitialized key range.
func (k *KeyStore) Alloc(n int) memory.Slice { return k.keys.Alloc(n) }

// AllocWith reserves and initializes a key range.
func (k *KeyStore) AllocWith(keys []gf128.Block) memory.Slice { return k.keys.AllocWith(keys) }

// TryGet returns a copy of the keys in sl. This never crosses a trust
// boundary on its own; callers must route keys to the peer only via
// Authenticate or ObliviousTransfer.
func (k *KeyStore) TryGet(sl memory.Slice) ([]gf128.Block, error) { return k.keys.TryGet(sl) }

// TrySet initializes sl with keys.
func (k *KeyStore) TrySet(sl memory.Slice, keys []gf128.Block) error {
	return k.keys.TrySet(sl, keys)
}

// TryGetBits returns the pointer bits of the keys in sl.
func (k *KeyStore) TryGetBits(sl memory.Slice) ([]bool, error) {
	keys, err := k.keys.TryGet(sl)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, len(keys))
	for i, key := range keys {
		bits[i] = key.Lsb()
	}
	return bits, nil
}

func (k *KeyStore) markUsed(sl memory.Slice) error {
	r := rangeset.New(sl.ToRange())
	if !rangeset.Disjoint(r, k.used) {
		return ErrAlreadyAssigned
	}
	k.used.Insert(sl.ToRange())
	return nil
}

// Authenticate computes M_i = K_i xor (bits[i] * Delta) for each key in sl,
// marks sl used, and returns the MACs to ship to the peer (the direct
// assignment path, for wires whose bits the key side knows).
func (k *KeyStore) Authenticate(sl memory.Slice, bits []bool) ([]gf128.Block, error) {
	if sl.Size != len(bits) {
		return nil, ErrInvalidSlice
	}
	if !k.keys.IsInit(sl) {
		return nil, ErrUninit
	}
	if err := k.markUsed(sl); err != nil {
		return nil, err
	}
	keys, _ := k.keys.TryGetRaw(sl)
	macs := make([]gf128.Block, len(keys))
	for i, key := range keys {
		macs[i] = key.Xor(k.delta.mask(bits[i]))
	}
	return macs, nil
}

// ObliviousTransfer marks sl used and returns the raw keys to hand to an
// external COT sender (the oblivious assignment path, for wires whose bits
// only the MAC side knows). This is the other
// authorized conduit by which keys leave the store.
func (k *KeyStore) ObliviousTransfer(sl memory.Slice) ([]gf128.Block, error) {
	if !k.keys.IsInit(sl) {
		return nil, ErrUninit
	}
	if err := k.markUsed(sl); err != nil {
		return nil, err
	}
	keys, _ := k.keys.TryGetRaw(sl)
	out := make([]gf128.Block, len(keys))
	copy(out, keys)
	return out, nil
}

// Adjust XORs adjustBits[i] into the pointer bit of each key in sl
// (derandomization).
func (k *KeyStore) Adjust(sl memory.Slice, adjustBits []bool) error {
	if sl.Size != len(adjustBits) {
		return ErrInvalidSlice
	}
	keys, err := k.keys.TryGetRaw(sl)
	if err != nil {
		return err
	}
	for i := range keys {
		keys[i] = keys[i].XorLsb(adjustBits[i])
	}
	return nil
}

// Verify reconstructs each key's truth bit from the claimed MAC pointer
// bits, recomputes the full MACs, and checks their BLAKE3 hash against
// proof. On success it overwrites macBits in place with the recovered
// truth bits. ranges and macBits must describe the same total length.
func (k *KeyStore) Verify(ranges *rangeset.RangeSet, macBits []bool, proof [32]byte) error {
	if ranges.Len() != len(macBits) {
		return ErrLengthMismatch
	}
	idx := ranges.Indices()
	hasher := blake3.New()
	recovered := make([]bool, len(macBits))
	for i, ptr := range idx {
		sl := memory.Slice{Ptr: memory.Ptr(ptr), Size: 1}
		keys, err := k.keys.TryGetRaw(sl)
		if err != nil {
			return err
		}
		key := keys[0]
		x := key.Lsb() != macBits[i]
		recovered[i] = x
		reconstructed := key.Xor(k.delta.mask(x))
		b := reconstructed.ToBytes()
		hasher.Write(b[:])
	}
	var got [32]byte
	copy(got[:], hasher.Sum(nil))
	if got != proof {
		return ErrVerify
	}
	copy(macBits, recovered)
	return nil
}

// MacStore is the Receiver side: it holds only MACs, with no Delta.
type MacStore struct {
	macs *memory.Store[gf128.Block]
}

// NewMacStore creates an empty MacStore.
func NewMacStore() *MacStore { return &MacStore{macs: memory.New[gf128.Block]()} }

// Alloc reserves an uninitialized MAC range.
func (m *MacStore) Alloc(n int) memory.Slice { return m.macs.Alloc(n) }

// AllocWith reserves and initializes a MAC range.
func (m *MacStore) AllocWith(macs []gf128.Block) memory.Slice { return m.macs.AllocWith(macs) }

// TryGet returns a copy of the MACs in sl.
func (m *MacStore) TryGet(sl memory.Slice) ([]gf128.Block, error) { return m.macs.TryGet(sl) }

// TrySet initializes sl with macs.
func (m *MacStore) TrySet(sl memory.Slice, macs []gf128.Block) error {
	return m.macs.TrySet(sl, macs)
}

// TryGetBits returns the pointer bits of the MACs in sl.
func (m *MacStore) TryGetBits(sl memory.Slice) ([]bool, error) {
	macs, err := m.macs.TryGet(sl)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, len(macs))
	for i, mac := range macs {
		bits[i] = mac.Lsb()
	}
	return bits, nil
}

// TryAdjust XORs adjustBits[i] into the pointer bit of each MAC in sl,
// mirroring KeyStore.Adjust on the receiver side.
func (m *MacStore) TryAdjust(sl memory.Slice, adjustBits []bool) error {
	if sl.Size != len(adjustBits) {
		return ErrInvalidSlice
	}
	macs, err := m.macs.TryGetRaw(sl)
	if err != nil {
		return err
	}
	for i := range macs {
		macs[i] = macs[i].XorLsb(adjustBits[i])
	}
	return nil
}

// Prove concatenates the pointer bits of the MACs in ranges order and
// returns a BLAKE3 hash over the canonical (little-endian, range-order)
// byte representation of the full MACs.
func (m *MacStore) Prove(ranges *rangeset.RangeSet) ([]bool, [32]byte, error) {
	idx := ranges.Indices()
	bits := make([]bool, len(idx))
	hasher := blake3.New()
	for i, ptr := range idx {
		sl := memory.Slice{Ptr: memory.Ptr(ptr), Size: 1}
		macs, err := m.macs.TryGetRaw(sl)
		if err != nil {
			return nil, [32]byte{}, err
		}
		bits[i] = macs[0].Lsb()
		b := macs[0].ToBytes()
		hasher.Write(b[:])
	}
	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return bits, out, nil
}

// randReader is exposed for tests that want deterministic delta draws.
var randReader = rand.Reader
