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

// Package gf128 implements the 128-bit word used throughout the IT-MAC
// core: xor, carryless multiplication in GF(2^128), and the pointer-bit
// helpers that every correlated store and garbling routine relies on.
package gf128

import (
	"encoding/binary"
	"errors"
	"io"
	"math/big"
)

// ErrWrongInput is returned when two slices of mismatched length are
// combined elementwise.
var ErrWrongInput = errors.New("gf128: wrong input")

// reductionPoly encodes the canonical irreducible polynomial used to
// reduce products mod x^128 + x^7 + x^2 + x + 1 (the AES-GCM poly).
// Bit 128 stands for the leading x^128 term; bits 7,2,1,0 are the rest.
var reductionPoly = func() *big.Int {
	p := new(big.Int)
	p.SetBit(p, 128, 1)
	p.SetBit(p, 7, 1)
	p.SetBit(p, 2, 1)
	p.SetBit(p, 1, 1)
	p.SetBit(p, 0, 1)
	return p
}()

// Block is a 128-bit value in GF(2^128). Bit i of the polynomial
// representation (coefficient of x^i) lives in bit (i mod 64) of Lo
// (i < 64) or Hi (i >= 64). Bit 0 of Lo is the "pointer bit".
type Block struct {
	Lo uint64
	Hi uint64
}

var (
	// ZERO is the additive identity.
	ZERO = Block{}
	// ONE is the multiplicative identity (x^0), pointer bit set.
	ONE = Block{Lo: 1}
	// MINUS_ONE is all-ones except the pointer bit, i.e. Block with
	// every coefficient set except x^0. Used to clear/overwrite the
	// pointer bit while preserving the remaining 127 bits of a value.
	MINUS_ONE = Block{Lo: ^uint64(0) &^ 1, Hi: ^uint64(0)}
)

// Xor returns a ^ b.
func (a Block) Xor(b Block) Block {
	return Block{Lo: a.Lo ^ b.Lo, Hi: a.Hi ^ b.Hi}
}

// And returns a & b. Used together with MINUS_ONE to clear the pointer bit.
func (a Block) And(b Block) Block {
	return Block{Lo: a.Lo & b.Lo, Hi: a.Hi & b.Hi}
}

// Equal reports whether a and b represent the same value.
func (a Block) Equal(b Block) bool {
	return a.Lo == b.Lo && a.Hi == b.Hi
}

// Lsb returns the pointer bit, the coefficient of x^0.
func (a Block) Lsb() bool {
	return a.Lo&1 == 1
}

// SetLsb returns a copy of a with the pointer bit forced to b.
func (a Block) SetLsb(b bool) Block {
	if b {
		a.Lo |= 1
	} else {
		a.Lo &^= 1
	}
	return a
}

// XorLsb returns a copy of a with the pointer bit xored by b.
func (a Block) XorLsb(b bool) Block {
	if b {
		a.Lo ^= 1
	}
	return a
}

// ToBytes returns the little-endian 16-byte encoding of a: bytes[0:8] hold
// Lo, bytes[8:16] hold Hi.
func (a Block) ToBytes() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint64(out[0:8], a.Lo)
	binary.LittleEndian.PutUint64(out[8:16], a.Hi)
	return out
}

// FromBytes decodes the little-endian 16-byte encoding produced by ToBytes.
func FromBytes(b [16]byte) Block {
	return Block{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// toBig returns the big.Int representation of a (bit i = coefficient of x^i).
func (a Block) toBig() *big.Int {
	v := new(big.Int).SetUint64(a.Hi)
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(a.Lo))
	return v
}

func fromBig(v *big.Int) Block {
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(v, mask).Uint64()
	hi := new(big.Int).And(new(big.Int).Rsh(v, 64), mask).Uint64()
	return Block{Lo: lo, Hi: hi}
}

// Gfmul returns the carryless product of a and b, reduced modulo the fixed
// irreducible polynomial x^128 + x^7 + x^2 + x + 1. The implementation must
// be bit-exact across both parties of a session.
func (a Block) Gfmul(b Block) Block {
	av, bv := a.toBig(), b.toBig()

	product := new(big.Int)
	shifted := new(big.Int)
	for i := 0; i < 128; i++ {
		if av.Bit(i) == 1 {
			shifted.Lsh(bv, uint(i))
			product.Xor(product, shifted)
		}
	}

	for j := 255; j >= 128; j-- {
		if product.Bit(j) == 1 {
			shifted.Lsh(reductionPoly, uint(j-128))
			product.Xor(product, shifted)
		}
	}

	return fromBig(product)
}

// Powers returns [x^1, x^2, ..., x^n], computed by successive
// multiplication by x (powers[i] = x^(i+1)).
func Powers(x Block, n int) []Block {
	out := make([]Block, n)
	if n == 0 {
		return out
	}
	out[0] = x
	for i := 1; i < n; i++ {
		out[i] = out[i-1].Gfmul(x)
	}
	return out
}

// InnerProductReduced returns xor_i (a[i] * b[i]) in GF(2^128).
func InnerProductReduced(a, b []Block) (Block, error) {
	if len(a) != len(b) {
		return ZERO, ErrWrongInput
	}
	acc := ZERO
	for i := range a {
		acc = acc.Xor(a[i].Gfmul(b[i]))
	}
	return acc, nil
}

// RandomVec draws n uniformly random blocks from rng.
func RandomVec(rng io.Reader, n int) ([]Block, error) {
	out := make([]Block, n)
	var buf [16]byte
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(rng, buf[:]); err != nil {
			return nil, err
		}
		out[i] = FromBytes(buf)
	}
	return out, nil
}

// XorVec xors two equal-length block vectors elementwise.
func XorVec(a, b []Block) ([]Block, error) {
	if len(a) != len(b) {
		return nil, ErrWrongInput
	}
	out := make([]Block, len(a))
	for i := range a {
		out[i] = a[i].Xor(b[i])
	}
	return out, nil
}
