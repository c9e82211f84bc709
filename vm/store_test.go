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
	"crypto/rand"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory"
	"github.com/getamis/mpcore/memory/correlated"
	"github.com/getamis/mpcore/ot"
)

// cotSender/cotReceiver adapt a single in-process ot.IdealCOT's Delta
// into the COTSender/COTReceiver pair the generator/evaluator round
// expects, standing in for a real correlated-OT extension per spec.md's
// "an ideal COT/RCOT is assumed" scoping.
type cotSender struct{ keys []gf128.Block }

func (s *cotSender) SendCorrelated(keys []gf128.Block) error {
	s.keys = append([]gf128.Block(nil), keys...)
	return nil
}

type cotReceiver struct {
	idealCOT *ot.IdealCOT
	sender   *cotSender
}

func (r *cotReceiver) ReceiveCorrelated(choices []bool) ([]gf128.Block, error) {
	out := make([]gf128.Block, len(choices))
	for i, c := range choices {
		if c {
			out[i] = r.sender.keys[i].Xor(r.idealCOT.Delta())
		} else {
			out[i] = r.sender.keys[i]
		}
	}
	return out, nil
}

var _ = Describe("GeneratorStore/EvaluatorStore", func() {
	It("round-trips a Public+Private assignment and decode (S1)", func() {
		delta, err := correlated.RandomDelta(rand.Reader)
		Expect(err).ShouldNot(HaveOccurred())
		idealCOT := ot.NewIdealCOT(0, delta.AsBlock())

		gen := NewGeneratorStore(delta)
		eval := NewEvaluatorStore()

		publicBits := []bool{true, false, true, true, false, false, true, false}
		privateBits := []bool{false, true, true, false, true, true, false, true}

		pubKeys, err := gf128.RandomVec(rand.Reader, len(publicBits))
		Expect(err).ShouldNot(HaveOccurred())
		privKeys, err := gf128.RandomVec(rand.Reader, len(privateBits))
		Expect(err).ShouldNot(HaveOccurred())

		pubSl := gen.AllocWithKeys(pubKeys)
		Expect(gen.SetBits(pubSl, publicBits)).Should(Succeed())
		privSl := gen.AllocWithKeys(privKeys)
		// Private here means "evaluator knows it, generator does not"; the
		// generator is never asked to supply bits for it.

		Expect(gen.BufferAssign(pubSl, memory.Public)).Should(Succeed())
		Expect(gen.BufferAssign(privSl, memory.Blind)).Should(Succeed())

		evalPubSl := eval.Alloc(len(publicBits))
		Expect(eval.SetBits(evalPubSl, publicBits)).Should(Succeed())
		evalPrivSl := eval.Alloc(len(privateBits))
		Expect(eval.SetBits(evalPrivSl, privateBits)).Should(Succeed())

		Expect(eval.BufferAssign(evalPubSl, memory.Public)).Should(Succeed())
		Expect(eval.BufferAssign(evalPrivSl, memory.Private)).Should(Succeed())

		sender := &cotSender{}
		payload, err := gen.CommitAssign(sender)
		Expect(err).ShouldNot(HaveOccurred())

		receiver := &cotReceiver{idealCOT: idealCOT, sender: sender}
		Expect(eval.ApplyAssign(payload, receiver)).Should(Succeed())

		decPub := gen.BufferDecode(pubSl)
		decPriv := gen.BufferDecode(privSl)
		decPayload, err := gen.PrepareDecode()
		Expect(err).ShouldNot(HaveOccurred())

		evalDecPub := eval.BufferDecode(evalPubSl)
		evalDecPriv := eval.BufferDecode(evalPrivSl)
		macPayload, err := eval.ApplyDecode(decPayload)
		Expect(err).ShouldNot(HaveOccurred())

		Expect(gen.FinishDecode(decPayload, macPayload)).Should(Succeed())

		Expect(decPub.Recv()).Should(Equal(publicBits))
		Expect(decPriv.Recv()).Should(Equal(privateBits))
		Expect(evalDecPub.Recv()).Should(Equal(publicBits))
		Expect(evalDecPriv.Recv()).Should(Equal(privateBits))
	})

	It("rejects a tampered decode proof and leaves futures unresolved (S4-style)", func() {
		delta, err := correlated.RandomDelta(rand.Reader)
		Expect(err).ShouldNot(HaveOccurred())

		gen := NewGeneratorStore(delta)
		eval := NewEvaluatorStore()

		bits := []bool{true, false, true}
		keys, err := gf128.RandomVec(rand.Reader, len(bits))
		Expect(err).ShouldNot(HaveOccurred())

		sl := gen.AllocWithKeys(keys)
		Expect(gen.SetBits(sl, bits)).Should(Succeed())
		Expect(gen.BufferAssign(sl, memory.Public)).Should(Succeed())

		evalSl := eval.Alloc(len(bits))
		Expect(eval.SetBits(evalSl, bits)).Should(Succeed())
		Expect(eval.BufferAssign(evalSl, memory.Public)).Should(Succeed())

		sender := &cotSender{}
		payload, err := gen.CommitAssign(sender)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(eval.ApplyAssign(payload, &cotReceiver{})).Should(Succeed())

		future := gen.BufferDecode(sl)
		decPayload, err := gen.PrepareDecode()
		Expect(err).ShouldNot(HaveOccurred())

		eval.BufferDecode(evalSl)
		macPayload, err := eval.ApplyDecode(decPayload)
		Expect(err).ShouldNot(HaveOccurred())
		macPayload.Proof[0] ^= 0xFF // tamper

		err = gen.FinishDecode(decPayload, macPayload)
		Expect(err).Should(HaveOccurred())

		_, ok := future.TryRecv()
		Expect(ok).Should(BeFalse())
	})

	It("rejects a buffered-twice slice within one round", func() {
		delta, err := correlated.RandomDelta(rand.Reader)
		Expect(err).ShouldNot(HaveOccurred())
		gen := NewGeneratorStore(delta)

		sl := gen.Alloc(2)
		Expect(gen.BufferAssign(sl, memory.Public)).Should(Succeed())
		err = gen.BufferAssign(sl, memory.Public)
		Expect(err).Should(MatchError(ErrAlreadyAssigned))
	})
})

func TestVM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "VM Suite")
}
