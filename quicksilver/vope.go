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
	"math/rand"

	"github.com/getamis/mpcore/gf128"
)

// VOPESenderOutput is the verifier's share of one VOPE execution: the
// polynomial evaluated at the verifier's own Delta.
type VOPESenderOutput struct {
	ID   uint64
	Eval gf128.Block
}

// VOPEReceiverOutput is the prover's share: the polynomial's coefficients.
type VOPEReceiverOutput struct {
	ID    uint64
	Coeff []gf128.Block
}

// IdealVOPE is a test-double vector oblivious polynomial evaluation
// functionality, grounded on mpz-zk-core's ideal::vope::IdealVOPE: it
// draws random coefficients, gives them to the receiver (the prover), and
// gives the polynomial's value at Delta to the sender (the verifier).
// Like IdealCOT, both shares are computed in the same struct: this is a
// test double standing in for a real VOPE extension, not a security
// primitive.
type IdealVOPE struct {
	delta      gf128.Block
	transferID uint64
	counter    uint64
	prg        *rand.Rand
}

// NewIdealVOPE creates an ideal VOPE functionality fixed to delta, with
// its internal PRG seeded deterministically from seed.
func NewIdealVOPE(seed int64, delta gf128.Block) *IdealVOPE {
	return &IdealVOPE{delta: delta, prg: rand.New(rand.NewSource(seed))}
}

// Delta returns the fixed evaluation point.
func (v *IdealVOPE) Delta() gf128.Block { return v.delta }

// SetDelta overwrites the evaluation point.
func (v *IdealVOPE) SetDelta(delta gf128.Block) { v.delta = delta }

// Count returns the number of VOPE executions performed so far.
func (v *IdealVOPE) Count() uint64 { return v.counter }

// RandomCorrelated evaluates a fresh degree-degree polynomial with random
// coefficients at Delta, returning the verifier's (masked) evaluation and
// the prover's coefficient vector (length degree+1).
func (v *IdealVOPE) RandomCorrelated(degree int) (VOPESenderOutput, VOPEReceiverOutput) {
	coeff := make([]gf128.Block, degree+1)
	var buf [16]byte
	for i := range coeff {
		v.prg.Read(buf[:])
		coeff[i] = gf128.FromBytes(buf)
	}

	eval := coeff[0]
	if degree > 0 {
		powers := gf128.Powers(v.delta, degree)
		acc, _ := gf128.InnerProductReduced(coeff[1:], powers)
		eval = eval.Xor(acc)
	}

	v.counter++
	id := v.transferID
	v.transferID++

	return VOPESenderOutput{ID: id, Eval: eval}, VOPEReceiverOutput{ID: id, Coeff: coeff}
}
