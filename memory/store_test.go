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

package memory

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Store", func() {
	It("allocates uninitialized slots", func() {
		s := New[int]()
		sl := s.Alloc(4)
		Expect(sl.Ptr).Should(Equal(Ptr(0)))
		Expect(sl.Size).Should(Equal(4))
		Expect(s.IsInit(sl)).Should(BeFalse())
	})

	It("AllocWith initializes immediately", func() {
		s := New[int]()
		sl := s.AllocWith([]int{1, 2, 3})
		got, err := s.TryGet(sl)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(got).Should(Equal([]int{1, 2, 3}))
	})

	It("TryGet fails on uninitialized data", func() {
		s := New[int]()
		sl := s.Alloc(2)
		_, err := s.TryGet(sl)
		Expect(err).Should(Equal(ErrUninit))
	})

	It("TryGet fails out of bounds", func() {
		s := New[int]()
		s.Alloc(2)
		_, err := s.TryGet(Slice{Ptr: 0, Size: 5})
		Expect(err).Should(Equal(ErrInvalidSlice))
	})

	It("TrySet succeeds exactly once per slice", func() {
		s := New[int]()
		sl := s.Alloc(2)
		Expect(s.TrySet(sl, []int{7, 8})).Should(Succeed())
		got, err := s.TryGet(sl)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(got).Should(Equal([]int{7, 8}))

		err = s.TrySet(sl, []int{9, 9})
		Expect(err).Should(Equal(ErrAlreadySet))
	})

	It("TrySet rejects length mismatch", func() {
		s := New[int]()
		sl := s.Alloc(2)
		err := s.TrySet(sl, []int{1})
		Expect(err).Should(Equal(ErrInvalidSlice))
	})

	It("ToRangeSet canonicalizes multiple slices", func() {
		rs := ToRangeSet(Slice{Ptr: 0, Size: 2}, Slice{Ptr: 5, Size: 3})
		Expect(rs.Len()).Should(Equal(5))
	})
})

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Store Suite")
}
