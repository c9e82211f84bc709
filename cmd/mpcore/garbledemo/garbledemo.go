// Copyright © 2021 AMIS Technologies
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package garbledemo wires a generator and an evaluator together over an
// in-process io.Pipe, standing in for the real network transport spec.md
// §1 scopes out, and prints the garbled AES-128 result against the
// software reference.
package garbledemo

import (
	stdaes "crypto/aes"
	"crypto/rand"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/getamis/sirius/log"

	"github.com/getamis/mpcore/circuit"
	"github.com/getamis/mpcore/garble"
	"github.com/getamis/mpcore/gf128"
	"github.com/getamis/mpcore/memory/correlated"
)

// Cmd runs the garbled-circuit AES-128 demo: the generator garbles
// circuit.BuildAES128 under a fresh Delta, streams it over an io.Pipe as
// EncryptedGateBatch entries, and the evaluator reconstructs the
// ciphertext and checks it against crypto/aes.
var Cmd = &cobra.Command{
	Use:   "garble-aes128",
	Short: "Garble and evaluate one AES-128 block encryption (S2)",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := make([]byte, 16)
		msg := make([]byte, 16)
		for i := range key {
			key[i] = 69
			msg[i] = 42
		}
		blockCipher, err := stdaes.NewCipher(key)
		if err != nil {
			return err
		}
		want := make([]byte, 16)
		blockCipher.Encrypt(want, msg)

		circ := circuit.BuildAES128()
		inputBits := append(bytesToBits(key), bytesToBits(msg)...)

		got, err := runGarbleDemo(circ, inputBits)
		if err != nil {
			return err
		}

		fmt.Printf("plaintext:  %x\n", msg)
		fmt.Printf("key:        %x\n", key)
		fmt.Printf("want:       %x\n", want)
		fmt.Printf("got:        %x\n", bitsToBytes(got))
		if string(bitsToBytes(got)) != string(want) {
			return fmt.Errorf("garbledemo: evaluator output does not match software reference")
		}
		fmt.Println("OK: garbled evaluation matches crypto/aes")
		return nil
	},
}

// startMsg carries the generator's random MMO counter ahead of the first
// batch, mirroring the teacher's GarbleCircuitMessage.StartCount field.
// Fingerprint lets the evaluator confirm it is about to feed gate batches
// for the exact circuit it built locally, before spending any garbling
// work on a mismatched one.
type startMsg struct {
	StartCounter uint64
	Outputs      []gf128.Block
	Fingerprint  [32]byte
}

func runGarbleDemo(circ *circuit.Circuit, inputBits []bool) ([]bool, error) {
	logger := log.New("package", "garbledemo")

	delta, err := correlated.RandomDelta(rand.Reader)
	if err != nil {
		return nil, err
	}
	zeroLabels, err := gf128.RandomVec(rand.Reader, circ.InputLen())
	if err != nil {
		return nil, err
	}
	actualLabels := make([]gf128.Block, len(zeroLabels))
	for i, zl := range zeroLabels {
		if inputBits[i] {
			actualLabels[i] = zl.Xor(delta.AsBlock())
		} else {
			actualLabels[i] = zl
		}
	}

	gen, err := garble.NewGenerator(circ, delta, zeroLabels)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	go func() {
		defer pw.Close()
		batches, outputs, err := gen.Generate()
		if err != nil {
			errCh <- err
			return
		}
		enc := gob.NewEncoder(pw)
		if err := enc.Encode(startMsg{StartCounter: gen.StartCounter(), Outputs: outputs, Fingerprint: circuit.Fingerprint(circ)}); err != nil {
			errCh <- err
			return
		}
		for _, b := range batches {
			if err := enc.Encode(b); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	dec := gob.NewDecoder(pr)
	var start startMsg
	if err := dec.Decode(&start); err != nil {
		return nil, err
	}
	if want := circuit.Fingerprint(circ); want != start.Fingerprint {
		return nil, fmt.Errorf("garbledemo: generator and evaluator circuit fingerprints differ")
	}

	ev, err := garble.NewEvaluator(circ, actualLabels, start.StartCounter)
	if err != nil {
		return nil, err
	}
	for ev.WantsGates() {
		var b garble.EncryptedGateBatch
		if err := dec.Decode(&b); err != nil {
			return nil, err
		}
		if err := ev.Feed(b); err != nil {
			return nil, err
		}
	}
	evalOutputs, err := ev.Finish()
	if err != nil {
		return nil, err
	}
	if genErr := <-errCh; genErr != nil {
		return nil, genErr
	}

	outBits := make([]bool, len(start.Outputs))
	for i := range start.Outputs {
		outBits[i] = evalOutputs[i].Lsb() != start.Outputs[i].Lsb()
	}
	logger.Debug("garble demo complete", "bits", len(outBits))
	return outBits, nil
}

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
