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

package circuit

// BuildAES128 constructs a gate-level boolean circuit computing AES-128
// encryption of one 16-byte block. No Bristol-fashion AES-128 file is
// available to load (see DESIGN.md), so the circuit is built
// programmatically against the standard AES S-box and round structure,
// which makes its correctness a property of the construction rather than
// of a transcription.
//
// Input groups: group 0 is the 128-bit key (MSB-first per byte, byte 0
// first), group 1 is the 128-bit plaintext block, same convention.
// Output: a single 128-bit group, the ciphertext block.
func BuildAES128() *Circuit {
	b := NewBuilder()
	keyWires := b.AllocInputGroup(128)
	msgWires := b.AllocInputGroup(128)

	key := wiresToState(keyWires)
	state := wiresToState(msgWires)

	roundKeys := expandKey128(b, key)

	state = addRoundKey(b, state, roundKeys[0])
	for round := 1; round <= 9; round++ {
		state = subBytesState(b, state)
		state = shiftRows(state)
		state = mixColumns(b, state)
		state = addRoundKey(b, state, roundKeys[round])
	}
	state = subBytesState(b, state)
	state = shiftRows(state)
	state = addRoundKey(b, state, roundKeys[10])

	out := stateToWires(state)
	b.MarkOutput(out...)
	return b.Build([]int{128})
}

// byteWires is 8 wire ids, bit 0 = MSB (bit 7 of the byte) .. bit 7 = LSB.
type byteWires [8]int

// wiresToState groups 128 input wires into 16 bytes in input order, which
// is the AES column-major state layout (byte i is column i/4, row i%4).
func wiresToState(wires []int) [16]byteWires {
	var state [16]byteWires
	for i := 0; i < 16; i++ {
		copy(state[i][:], wires[i*8:i*8+8])
	}
	return state
}

func stateToWires(state [16]byteWires) []int {
	out := make([]int, 0, 128)
	for _, by := range state {
		out = append(out, by[:]...)
	}
	return out
}

func xorByte(b *Builder, x, y byteWires) byteWires {
	var out byteWires
	for i := range out {
		out[i] = b.Xor(x[i], y[i])
	}
	return out
}

func addRoundKey(b *Builder, state [16]byteWires, key [16]byteWires) [16]byteWires {
	var out [16]byteWires
	for i := range state {
		out[i] = xorByte(b, state[i], key[i])
	}
	return out
}

func subBytesState(b *Builder, state [16]byteWires) [16]byteWires {
	var out [16]byteWires
	for i, by := range state {
		out[i] = subByte(b, by)
	}
	return out
}

// shiftRows permutes state bytes; AES indexes the 16-byte state
// column-major (byte i = row i%4, column i/4). Row r is rotated left by
// r positions.
func shiftRows(state [16]byteWires) [16]byteWires {
	var out [16]byteWires
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			srcCol := (col + row) % 4
			out[col*4+row] = state[srcCol*4+row]
		}
	}
	return out
}

// xtime computes GF(2^8) doubling. This is F2-linear in the input bits:
// the conditional reduction by 0x1B is realized as a plain XOR with the
// (boolean) top-bit wire wherever 0x1B has a 1 bit, since XOR-by-a-wire
// already implements "conditionally flip", needing no AND gate.
func xtime(b *Builder, in byteWires) byteWires {
	const reducePoly = 0x1B
	top := in[0]
	var out byteWires
	for i := 0; i < 7; i++ {
		out[i] = in[i+1]
	}
	out[7] = b.Zero(in[0])
	for i := 0; i < 8; i++ {
		bitPos := 7 - i // bit i of out corresponds to byte bit (7-i)
		if reducePoly&(1<<uint(bitPos)) != 0 {
			out[i] = b.Xor(out[i], top)
		}
	}
	return out
}

func gmul2(b *Builder, in byteWires) byteWires { return xtime(b, in) }

func gmul3(b *Builder, in byteWires) byteWires {
	return xorByte(b, xtime(b, in), in)
}

// mixColumns applies the standard AES MixColumns matrix, column by
// column; every term is either the input byte, gmul2, or gmul3, so the
// whole transform is free (XOR-only, no AND gates).
func mixColumns(b *Builder, state [16]byteWires) [16]byteWires {
	var out [16]byteWires
	for col := 0; col < 4; col++ {
		s0, s1, s2, s3 := state[col*4+0], state[col*4+1], state[col*4+2], state[col*4+3]
		out[col*4+0] = xorByte(b, xorByte(b, gmul2(b, s0), gmul3(b, s1)), xorByte(b, s2, s3))
		out[col*4+1] = xorByte(b, xorByte(b, s0, gmul2(b, s1)), xorByte(b, gmul3(b, s2), s3))
		out[col*4+2] = xorByte(b, xorByte(b, s0, s1), xorByte(b, gmul2(b, s2), gmul3(b, s3)))
		out[col*4+3] = xorByte(b, xorByte(b, gmul3(b, s0), s1), xorByte(b, s2, gmul2(b, s3)))
	}
	return out
}

// expandKey128 builds the 11 AES-128 round keys (each 16 bytes) from the
// original key, following the standard key schedule. Rcon XOR and
// RotWord/SubWord are expressed the same way the round function is: XOR
// gates, AND gates (only inside SubWord's S-box lookups), no other
// primitives.
func expandKey128(b *Builder, key [16]byteWires) [11][16]byteWires {
	// words[i] is one 32-bit (4-byte) word; words[0..3] is the original key.
	var words [44][4]byteWires
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			words[i][j] = key[i*4+j]
		}
	}

	rcon := [10]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1B, 0x36}

	for i := 4; i < 44; i++ {
		temp := words[i-1]
		if i%4 == 0 {
			// RotWord
			temp = [4]byteWires{temp[1], temp[2], temp[3], temp[0]}
			// SubWord
			for j := range temp {
				temp[j] = subByte(b, temp[j])
			}
			// XOR Rcon into the most significant byte.
			rc := rcon[i/4-1]
			var rcWires byteWires
			for bit := 0; bit < 8; bit++ {
				bitPos := 7 - bit
				anyWire := temp[0][0]
				if rc&(1<<uint(bitPos)) != 0 {
					rcWires[bit] = b.One(anyWire)
				} else {
					rcWires[bit] = b.Zero(anyWire)
				}
			}
			temp[0] = xorByte(b, temp[0], rcWires)
		}
		for j := 0; j < 4; j++ {
			words[i][j] = b.Xor(words[i-4][j], temp[j])
		}
	}

	var roundKeys [11][16]byteWires
	for r := 0; r < 11; r++ {
		for w := 0; w < 4; w++ {
			for j := 0; j < 4; j++ {
				roundKeys[r][w*4+j] = words[r*4+w][j]
			}
		}
	}
	return roundKeys
}

// subByte substitutes one byte through the AES S-box, implemented as a
// balanced binary mux tree over the 256-entry table so correctness
// follows directly from the table rather than from a hand-transcribed
// gate list.
func subByte(b *Builder, in byteWires) byteWires {
	sel := in // sel[0] = MSB .. sel[7] = LSB, matches lookup8x8's convention
	return lookup8x8(b, sel, aesSBox)
}

// mux returns a XOR (sel AND (a XOR b)): sel=0 selects a, sel=1 selects b.
func mux(b *Builder, sel, a, bb int) int {
	diff := b.Xor(a, bb)
	masked := b.And(sel, diff)
	return b.Xor(a, masked)
}

// lookup8x8 builds an 8-input/8-output lookup table as a balanced binary
// mux tree: 256 constant leaves (one per table row) are folded pairwise,
// 8 levels deep, selecting on sel[7], sel[6], ..., sel[0] in turn.
func lookup8x8(b *Builder, sel [8]int, table [256]byte) byteWires {
	anyWire := sel[0]
	zero := b.Zero(anyWire)
	one := b.One(anyWire)

	leaves := make([][8]int, 256)
	for row := 0; row < 256; row++ {
		for bit := 0; bit < 8; bit++ {
			bitPos := 7 - bit
			if table[row]&(1<<uint(bitPos)) != 0 {
				leaves[row][bit] = one
			} else {
				leaves[row][bit] = zero
			}
		}
	}

	level := leaves
	for depth := 0; depth < 8; depth++ {
		selWire := sel[7-depth]
		next := make([][8]int, len(level)/2)
		for i := 0; i < len(next); i++ {
			a := level[2*i]
			c := level[2*i+1]
			for bit := 0; bit < 8; bit++ {
				next[i][bit] = mux(b, selWire, a[bit], c[bit])
			}
		}
		level = next
	}

	var out byteWires
	copy(out[:], level[0][:])
	return out
}
