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
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fingerprint", func() {
	It("is stable across independent builds of the same circuit", func() {
		a := BuildAES128()
		b := BuildAES128()
		Expect(Fingerprint(a)).Should(Equal(Fingerprint(b)))
	})

	It("changes when the gate list changes", func() {
		b := NewBuilder()
		in := b.AllocInputGroup(2)
		out := b.And(in[0], in[1])
		b.MarkOutput(out)
		andCirc := b.Build([]int{1})

		b2 := NewBuilder()
		in2 := b2.AllocInputGroup(2)
		out2 := b2.Xor(in2[0], in2[1])
		b2.MarkOutput(out2)
		xorCirc := b2.Build([]int{1})

		Expect(Fingerprint(andCirc)).ShouldNot(Equal(Fingerprint(xorCirc)))
	})

	It("changes when output wiring changes but gate count does not", func() {
		b := NewBuilder()
		in := b.AllocInputGroup(3)
		w1 := b.Xor(in[0], in[1])
		_ = b.Xor(in[1], in[2])
		b.MarkOutput(w1)
		c1 := b.Build([]int{1})

		b2 := NewBuilder()
		in2 := b2.AllocInputGroup(3)
		_ = b2.Xor(in2[0], in2[1])
		w2b := b2.Xor(in2[1], in2[2])
		b2.MarkOutput(w2b)
		c2 := b2.Build([]int{1})

		Expect(Fingerprint(c1)).ShouldNot(Equal(Fingerprint(c2)))
	})
})
