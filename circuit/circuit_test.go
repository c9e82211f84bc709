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
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Builder", func() {
	It("builds a single AND gate circuit", func() {
		b := NewBuilder()
		in := b.AllocInputGroup(2)
		out := b.And(in[0], in[1])
		b.MarkOutput(out)
		c := b.Build([]int{1})

		Expect(c.InputLen()).Should(Equal(2))
		Expect(c.OutputLen()).Should(Equal(1))
		Expect(c.AndCount()).Should(Equal(1))
		Expect(c.FeedCount()).Should(Equal(3))
		Expect(c.OutputWires()).Should(Equal([]int{2}))
	})

	It("Zero/One allocate distinct wires using only free gates", func() {
		b := NewBuilder()
		in := b.AllocInputGroup(1)
		zero := b.Zero(in[0])
		one := b.One(in[0])
		Expect(zero).ShouldNot(Equal(one))
		// Zero/One cost only free gates.
		Expect(b.andCount).Should(Equal(0))
	})
})

var _ = Describe("BuildAES128", func() {
	It("declares the expected input/output shape", func() {
		c := BuildAES128()
		Expect(c.Inputs()).Should(Equal([]int{128, 128}))
		Expect(c.InputLen()).Should(Equal(256))
		Expect(c.Outputs()).Should(Equal([]int{128}))
		Expect(c.OutputLen()).Should(Equal(128))
		Expect(c.AndCount()).Should(BeNumerically(">", 0))
		Expect(len(c.OutputWires())).Should(Equal(128))
	})

	It("uses only XOR/AND/INV gates", func() {
		c := BuildAES128()
		for _, g := range c.Gates() {
			Expect(g.Kind == Xor || g.Kind == And || g.Kind == Inv).Should(BeTrue())
		}
	})
})

func TestCircuit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Circuit Suite")
}
