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
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/getamis/mpcore/gf128"
)

var _ = Describe("IdealVOPE", func() {
	It("evaluates the receiver's polynomial at the sender's delta", func() {
		delta := gf128.Block{Lo: 0x42, Hi: 0x24}.SetLsb(true)
		v := NewIdealVOPE(5, delta)

		sender, receiver := v.RandomCorrelated(10)

		want := receiver.Coeff[0]
		powers := gf128.Powers(delta, 10)
		for i := 1; i <= 10; i++ {
			want = want.Xor(receiver.Coeff[i].Gfmul(powers[i-1]))
		}
		Expect(sender.Eval.Equal(want)).Should(BeTrue())
		Expect(receiver.Coeff).Should(HaveLen(11))
	})

	It("degree-1 evaluation matches coeff0 xor coeff1*delta", func() {
		delta := gf128.Block{Lo: 0x1, Hi: 0x1}.SetLsb(true)
		v := NewIdealVOPE(6, delta)
		sender, receiver := v.RandomCorrelated(1)
		want := receiver.Coeff[0].Xor(receiver.Coeff[1].Gfmul(delta))
		Expect(sender.Eval.Equal(want)).Should(BeTrue())
	})

	It("is deterministic for a fixed seed and advances the transfer id", func() {
		delta := gf128.Block{Lo: 0x7, Hi: 0x8}.SetLsb(true)
		a := NewIdealVOPE(9, delta)
		b := NewIdealVOPE(9, delta)
		sa, ra := a.RandomCorrelated(3)
		sb, rb := b.RandomCorrelated(3)
		Expect(sa).Should(Equal(sb))
		Expect(ra).Should(Equal(rb))
		Expect(a.Count()).Should(Equal(uint64(1)))

		sa2, _ := a.RandomCorrelated(3)
		Expect(sa2.ID).ShouldNot(Equal(sa.ID))
	})
})
