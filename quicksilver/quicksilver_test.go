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
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/ot"
)

// authInputs runs one authenticated-input-bit round for a fixed set of
// truth values, returning the resulting MACs (prover) and keys (verifier).
func authInputs(cot *ot.IdealCOT, prover *Prover, verifier *Verifier, inputs []bool) ([]gf128.Block, []gf128.Block) {
	senderMsgs, choices, receiverMsgs := cot.RandomCorrelated(len(inputs))
	sent, macs, err := prover.ComputeInputBits(inputs, choices, receiverMsgs)
	Expect(err).ShouldNot(HaveOccurred())
	keys, err := verifier.AuthInputBits(sent, senderMsgs)
	Expect(err).ShouldNot(HaveOccurred())
	return macs, keys
}

var _ = Describe("Prover/Verifier", func() {
	It("authenticates input bits consistently with delta", func() {
		delta := gf128.Block{Lo: 0xc0ffee, Hi: 0x1234}.SetLsb(true)
		cot := ot.NewIdealCOT(7, delta)
		prover := NewProver()
		verifier := NewVerifier(delta)

		inputs := []bool{true, false, true, true, false}
		macs, keys := authInputs(cot, prover, verifier, inputs)

		for i, in := range inputs {
			// M = K xor (x * Delta): recover x by comparing pointer bits.
			x := macs[i].Lsb() != keys[i].Lsb()
			Expect(x).Should(Equal(in))
			Expect(macs[i].Equal(keys[i])).Should(Equal(!in))
			if in {
				Expect(macs[i].Equal(keys[i].Xor(delta))).Should(BeTrue())
			} else {
				Expect(macs[i].Equal(keys[i])).Should(BeTrue())
			}
		}
	})

	It("authenticates and checks a batch of AND gates (S1/S4-style)", func() {
		delta := gf128.Block{Lo: 0xdead, Hi: 0xbeef}.SetLsb(true)
		cot := ot.NewIdealCOT(9, delta)
		vope := NewIdealVOPE(9, delta)
		prover := NewProver()
		verifier := NewVerifier(delta)

		inputs := []bool{true, false, true, false, true, true, false, false}
		macs, keys := authInputs(cot, prover, verifier, inputs)

		numGates := len(inputs) / 2
		for i := 0; i < numGates; i++ {
			a, b := 2*i, 2*i+1
			senderMsgs, choices, receiverMsgs := cot.RandomCorrelated(1)
			mask, err := prover.ComputeAndGate(macs[a], macs[b], choices[0], receiverMsgs[0])
			Expect(err).ShouldNot(HaveOccurred())
			_, err = verifier.AuthAndGate(keys[a], keys[b], mask, senderMsgs[0])
			Expect(err).ShouldNot(HaveOccurred())
		}
		Expect(prover.PendingCount()).Should(Equal(numGates))
		Expect(verifier.PendingCount()).Should(Equal(numGates))

		vopeSender, vopeReceiver := vope.RandomCorrelated(1)
		u, v := prover.CheckAndGate(vopeReceiver.Coeff[0], vopeReceiver.Coeff[1])
		verifier.CheckAndGates(vopeSender.Eval, u, v)

		Expect(verifier.Checked()).Should(BeTrue())
		Expect(prover.PendingCount()).Should(Equal(0))
		Expect(verifier.PendingCount()).Should(Equal(0))
	})

	It("rejects a tampered u value (S4)", func() {
		delta := gf128.Block{Lo: 0xaaaa, Hi: 0xbbbb}.SetLsb(true)
		cot := ot.NewIdealCOT(11, delta)
		vope := NewIdealVOPE(11, delta)
		prover := NewProver()
		verifier := NewVerifier(delta)

		inputs := []bool{true, false}
		macs, keys := authInputs(cot, prover, verifier, inputs)

		senderMsgs, choices, receiverMsgs := cot.RandomCorrelated(1)
		mask, err := prover.ComputeAndGate(macs[0], macs[1], choices[0], receiverMsgs[0])
		Expect(err).ShouldNot(HaveOccurred())
		_, err = verifier.AuthAndGate(keys[0], keys[1], mask, senderMsgs[0])
		Expect(err).ShouldNot(HaveOccurred())

		vopeSender, vopeReceiver := vope.RandomCorrelated(1)
		u, v := prover.CheckAndGate(vopeReceiver.Coeff[0], vopeReceiver.Coeff[1])
		tamperedU := u.Xor(gf128.ONE)
		verifier.CheckAndGates(vopeSender.Eval, tamperedU, v)

		Expect(verifier.Checked()).Should(BeFalse())
	})

	It("verifies the final output opening and rejects a tampered hash", func() {
		delta := gf128.Block{Lo: 0x1, Hi: 0x2}.SetLsb(true)
		key := gf128.Block{Lo: 0x99, Hi: 0x88}
		mac := key // truth bit false: mac == key
		hash, err := ProveOutputs(delta, []gf128.Block{mac}, []bool{false})
		Expect(err).ShouldNot(HaveOccurred())

		verifier := NewVerifier(delta)
		Expect(verifier.Finish(hash, []gf128.Block{key}, []bool{false})).Should(Succeed())
		Expect(verifier.Checked()).Should(BeTrue())

		verifier2 := NewVerifier(delta)
		var badHash [32]byte
		Expect(verifier2.Finish(badHash, []gf128.Block{key}, []bool{false})).Should(Succeed())
		Expect(verifier2.Checked()).Should(BeFalse())
	})
})

func TestQuickSilver(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "QuickSilver Suite")
}
