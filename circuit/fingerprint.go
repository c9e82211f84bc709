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

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a deterministic digest of a circuit's gate list and
// input/output shape. Two parties that build the same circuit by calling
// the same constructor (BuildAES128, a Builder script, LoadBristol on
// identical bytes) always get equal fingerprints; any difference in gate
// order, wiring, or shape changes the digest. This is the identity check
// a generator and evaluator, or a prover and verifier, can exchange out of
// band to confirm they are about to run the same circuit before spending
// any OT or VOPE material on it.
func Fingerprint(c *Circuit) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}

	var buf [8]byte
	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	writeInt(len(c.inputSizes))
	for _, n := range c.inputSizes {
		writeInt(n)
	}
	writeInt(len(c.outputSizes))
	for _, n := range c.outputSizes {
		writeInt(n)
	}
	writeInt(len(c.outputWires))
	for _, w := range c.outputWires {
		writeInt(w)
	}
	writeInt(len(c.gates))
	for _, g := range c.gates {
		writeInt(int(g.Kind))
		writeInt(len(g.Inputs))
		for _, in := range g.Inputs {
			writeInt(in)
		}
		writeInt(g.Output)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
