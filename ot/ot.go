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

// Package ot declares the external (correlated) oblivious-transfer
// contracts the core depends on, and provides an ideal (test-double)
// implementation used to exercise every protocol without a real OT
// extension, per spec.md's explicit "an ideal COT/RCOT is assumed"
// scoping.
package ot

import (
	"errors"
	"math/rand"

	"github.com/getamis/mpcore/gf128"
)

// ErrLengthMismatch is returned when sender messages and receiver choices
// disagree in length.
var ErrLengthMismatch = errors.New("ot: messages and choices length mismatch")

// COTSender is the external correlated-OT sender contract. Delta MUST
// equal the caller's session Delta.
type COTSender interface {
	SendCorrelated(keys []gf128.Block) error
}

// COTReceiver is the external correlated-OT receiver contract.
type COTReceiver interface {
	ReceiveCorrelated(choices []bool) ([]gf128.Block, error)
}

// RandomCOTSender produces random correlated pairs ahead of choice.
type RandomCOTSender interface {
	SendRandomCorrelated(count int) (id uint64, msgs []gf128.Block, err error)
}

// RandomCOTReceiver is the receiver side of RandomCOTSender.
type RandomCOTReceiver interface {
	ReceiveRandomCorrelated(count int) (id uint64, choices []bool, msgs []gf128.Block, err error)
}

// IdealCOT is a test-double realization of COTSender/COTReceiver/
// RandomCOTSender/RandomCOTReceiver sharing a single Delta in-process,
// grounded on mpz-ot-core's ideal::cot::IdealCOT. It is not a security
// primitive: both sides of a "transfer" are computed in the same struct.
type IdealCOT struct {
	delta      gf128.Block
	transferID uint64
	counter    uint64
	prg        *rand.Rand
}

// NewIdealCOT creates an ideal COT functionality fixed to delta, with its
// internal PRG seeded deterministically from seed. This is a test double:
// determinism is a feature (reproducible test vectors), not a weakness,
// since no real extension protocol is being modeled.
func NewIdealCOT(seed int64, delta gf128.Block) *IdealCOT {
	return &IdealCOT{delta: delta, prg: rand.New(rand.NewSource(seed))}
}

// Delta returns the fixed correlation.
func (c *IdealCOT) Delta() gf128.Block { return c.delta }

// SetDelta overwrites the correlation (used when a session rekeys).
func (c *IdealCOT) SetDelta(delta gf128.Block) { c.delta = delta }

// Count returns the number of correlated values produced so far.
func (c *IdealCOT) Count() uint64 { return c.counter }

func (c *IdealCOT) randomBlock() gf128.Block {
	var b [16]byte
	c.prg.Read(b[:])
	return gf128.FromBytes(b)
}

// RandomCorrelated draws count random pairs (q, q xor choice*delta) for a
// freshly drawn random choice bit per item, returning the sender's q
// values and the receiver's (choices, chosen) values.
func (c *IdealCOT) RandomCorrelated(count int) (senderMsgs []gf128.Block, choices []bool, receiverMsgs []gf128.Block) {
	senderMsgs = make([]gf128.Block, count)
	choices = make([]bool, count)
	receiverMsgs = make([]gf128.Block, count)
	for i := 0; i < count; i++ {
		q := c.randomBlock()
		choice := c.prg.Intn(2) == 1
		senderMsgs[i] = q
		choices[i] = choice
		if choice {
			receiverMsgs[i] = q.Xor(c.delta)
		} else {
			receiverMsgs[i] = q
		}
	}
	c.counter += uint64(count)
	c.transferID++
	return senderMsgs, choices, receiverMsgs
}

// Correlated transfers msgs under delta-correlation to a receiver holding
// choices, returning the sender's output (msgs, unchanged) and the
// receiver's output (msgs[i] xor delta if choices[i] else msgs[i]).
func (c *IdealCOT) Correlated(msgs []gf128.Block, choices []bool) (senderOut, receiverOut []gf128.Block, err error) {
	if len(msgs) != len(choices) {
		return nil, nil, ErrLengthMismatch
	}
	receiverOut = make([]gf128.Block, len(msgs))
	for i, m := range msgs {
		if choices[i] {
			receiverOut[i] = m.Xor(c.delta)
		} else {
			receiverOut[i] = m
		}
	}
	c.transferID++
	c.counter += uint64(len(msgs))
	senderOut = make([]gf128.Block, len(msgs))
	copy(senderOut, msgs)
	return senderOut, receiverOut, nil
}
