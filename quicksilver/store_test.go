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
	stdaes "crypto/aes"
	"crypto/rand"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/mpcore/circuit"
	"github.com/getamis/mpcore/memory"
	"github.com/getamis/mpcore/memory/correlated"
	"github.com/getamis/mpcore/ot"
)

func bytesToBits(b []byte) []bool {
	bits := make([]bool, len(b)*8)
	for i, by := range b {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (by>>(7-j))&1 == 1
		}
	}
	return bits
}

func bitsToBytes(bits []bool) []byte {
	out := make([]byte, len(bits)/8)
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			if bits[i*8+j] {
				b |= 1 << uint(7-j)
			}
		}
		out[i] = b
	}
	return out
}

// evalPlain evaluates circ over inputBits in the clear, so the test
// harness can learn the expected output; ProverStore itself only ever
// tracks MACs, never plaintext wire values.
func evalPlain(circ *circuit.Circuit, inputBits []bool) []bool {
	wires := make([]bool, circ.FeedCount())
	copy(wires, inputBits)
	for _, gate := range circ.Gates() {
		switch gate.Kind {
		case circuit.Xor:
			wires[gate.Output] = wires[gate.Inputs[0]] != wires[gate.Inputs[1]]
		case circuit.Inv:
			wires[gate.Output] = !wires[gate.Inputs[0]]
		case circuit.And:
			wires[gate.Output] = wires[gate.Inputs[0]] && wires[gate.Inputs[1]]
		}
	}
	out := make([]bool, 0, len(circ.OutputWires()))
	for _, w := range circ.OutputWires() {
		out = append(out, wires[w])
	}
	return out
}

// runCircuit drives a fresh ProverStore/VerifierStore pair across circ for
// one public input assignment and reports whether the Verifier's final
// check succeeded.
func runCircuit(circ *circuit.Circuit, inputBits []bool) (bool, error) {
	delta, err := correlated.RandomDelta(rand.Reader)
	if err != nil {
		return false, err
	}
	idealCOT := ot.NewIdealCOT(42, delta.AsBlock())
	vope := NewIdealVOPE(43, delta.AsBlock())

	prover := NewProverStore(circ)
	verifier := NewVerifierStore(circ, delta.AsBlock())

	wires := make([]int, circ.InputLen())
	for i := range wires {
		wires[i] = i
	}

	senderMsgs, choices, receiverMsgs := idealCOT.RandomCorrelated(len(inputBits))
	sent, err := prover.AssignInputs(wires, memory.Public, inputBits, choices, receiverMsgs)
	if err != nil {
		return false, err
	}
	if err := verifier.AssignInputs(wires, memory.Public, sent, senderMsgs); err != nil {
		return false, err
	}

	andCount := circ.AndCount()
	gateSenderMsgs, gateChoices, gateReceiverMsgs := idealCOT.RandomCorrelated(andCount)
	masks, err := prover.RunGates(gateChoices, gateReceiverMsgs)
	if err != nil {
		return false, err
	}
	if err := verifier.RunGates(gateSenderMsgs, masks); err != nil {
		return false, err
	}

	vopeSender, vopeReceiver := vope.RandomCorrelated(1)
	u, v := prover.Check(vopeReceiver.Coeff[0], vopeReceiver.Coeff[1])
	verifier.Check(vopeSender.Eval, u, v)
	if !verifier.Checked() {
		return false, nil
	}

	plain := evalPlain(circ, inputBits)
	hash, err := prover.Finish(delta.AsBlock(), plain)
	if err != nil {
		return false, err
	}
	if err := verifier.Finish(hash, plain); err != nil {
		return false, err
	}
	return verifier.Checked(), nil
}

var _ = Describe("ProverStore/VerifierStore", func() {
	It("checks out a single AND gate circuit for every input combination", func() {
		b := circuit.NewBuilder()
		in := b.AllocInputGroup(2)
		out := b.And(in[0], in[1])
		b.MarkOutput(out)
		circ := b.Build([]int{1})

		for _, tc := range []struct{ a, bBit bool }{
			{false, false}, {false, true}, {true, false}, {true, true},
		} {
			ok, err := runCircuit(circ, []bool{tc.a, tc.bBit})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(ok).Should(BeTrue())
		}
	})

	It("checks out a free XOR/INV-only circuit", func() {
		b := circuit.NewBuilder()
		in := b.AllocInputGroup(2)
		x := b.Xor(in[0], in[1])
		y := b.Inv(x)
		b.MarkOutput(x, y)
		circ := b.Build([]int{2})

		ok, err := runCircuit(circ, []bool{true, false})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(ok).Should(BeTrue())
	})

	// S3: AES-128 QuickSilver check against the software reference.
	It("matches software AES-128 encryption and checks out (S3)", func() {
		key := make([]byte, 16)
		msg := make([]byte, 16)
		for i := range key {
			key[i] = 69
			msg[i] = 42
		}
		blockCipher, err := stdaes.NewCipher(key)
		Expect(err).ShouldNot(HaveOccurred())
		want := make([]byte, 16)
		blockCipher.Encrypt(want, msg)

		circ := circuit.BuildAES128()
		inputBits := append(bytesToBits(key), bytesToBits(msg)...)

		ok, err := runCircuit(circ, inputBits)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(ok).Should(BeTrue())

		Expect(bitsToBytes(evalPlain(circ, inputBits))).Should(Equal(want))
	})
})

func TestQuickSilverStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "QuickSilver Store Suite")
}
