/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package chunk_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/httpengine/chunk"
)

var _ = Describe("Queue", func() {
	It("is a no-op for empty string/byte appends", func() {
		cq := chunk.New()
		cq.AppendString(nil)
		cq.AppendBytes(nil)
		cq.AppendMem(nil)
		Expect(cq.Length()).To(BeZero())
		Expect(cq.BytesIn()).To(BeZero())
	})

	It("conserves bytes across append and skip", func() {
		cq := chunk.New()
		cq.AppendString([]byte("hello "))
		cq.AppendMem([]byte("world"))
		Expect(cq.Length()).To(Equal(int64(11)))
		Expect(cq.BytesIn()).To(Equal(int64(11)))

		skipped := cq.Skip(5)
		Expect(skipped).To(Equal(int64(5)))
		Expect(cq.Length()).To(Equal(int64(6)))
		Expect(cq.BytesOut()).To(Equal(int64(5)))
	})

	It("extracts without consuming", func() {
		cq := chunk.New()
		cq.AppendString([]byte("abcdef"))
		var dest []byte
		Expect(cq.ExtractTo(4, &dest)).To(BeTrue())
		Expect(string(dest)).To(Equal("abcd"))
		Expect(cq.Length()).To(Equal(int64(6)))
	})

	It("fails extraction past queue length", func() {
		cq := chunk.New()
		cq.AppendString([]byte("abc"))
		var dest []byte
		Expect(cq.ExtractTo(10, &dest)).To(BeFalse())
	})

	It("skip_all discards everything exactly once and is idempotent", func() {
		cq := chunk.New()
		cq.AppendString([]byte("abc"))
		cq.AppendMem([]byte("def"))
		n := cq.SkipAll()
		Expect(n).To(Equal(int64(6)))
		Expect(cq.Length()).To(BeZero())

		again := cq.SkipAll()
		Expect(again).To(BeZero())
		Expect(cq.Length()).To(BeZero())
	})

	It("steals a bounded prefix and splits the boundary chunk", func() {
		in := chunk.New()
		in.AppendString([]byte("0123456789"))
		out := chunk.New()

		moved := out.StealLen(in, 4)
		Expect(moved).To(Equal(int64(4)))
		Expect(out.Length()).To(Equal(int64(4)))
		Expect(in.Length()).To(Equal(int64(6)))

		var dest []byte
		Expect(out.ExtractTo(4, &dest)).To(BeTrue())
		Expect(string(dest)).To(Equal("0123"))
	})

	It("steals everything and leaves the source empty", func() {
		in := chunk.New()
		in.AppendString([]byte("abc"))
		in.AppendMem([]byte("def"))
		out := chunk.New()

		n := out.StealAll(in)
		Expect(n).To(Equal(int64(6)))
		Expect(in.Length()).To(BeZero())
		Expect(out.Length()).To(Equal(int64(6)))

		var dest []byte
		Expect(out.ExtractTo(6, &dest)).To(BeTrue())
		Expect(string(dest)).To(Equal("abcdef"))
	})

	It("steals a single chunk at a time", func() {
		in := chunk.New()
		in.AppendString([]byte("one"))
		in.AppendMem([]byte("two"))
		out := chunk.New()

		n := out.StealChunk(in)
		Expect(n).To(Equal(int64(3)))
		Expect(in.Length()).To(Equal(int64(3)))
		Expect(out.Length()).To(Equal(int64(3)))
	})

	It("round-trips file chunks through a temp file", func() {
		f, err := os.CreateTemp("", "cq-test-*")
		Expect(err).ToNot(HaveOccurred())
		defer os.Remove(f.Name())
		_, err = f.WriteString("filedata")
		Expect(err).ToNot(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		cq := chunk.New()
		cq.AppendFile(f.Name(), 0, 8)
		Expect(cq.Length()).To(Equal(int64(8)))

		var dest []byte
		Expect(cq.ExtractTo(8, &dest)).To(BeTrue())
		Expect(string(dest)).To(Equal("filedata"))
	})
})

var _ = Describe("CQLimit", func() {
	It("starts unlimited", func() {
		l := chunk.NewCQLimit()
		Expect(l.Available()).To(Equal(int64(-1)))
		Expect(l.Locked()).To(BeFalse())
	})

	It("locks when current reaches the limit and unlocks on drain", func() {
		l := chunk.NewCQLimit()
		var flips []bool
		l.SetNotify(func(locked bool, _ interface{}) {
			flips = append(flips, locked)
		}, nil)
		l.SetLimit(4)

		cq := chunk.New()
		cq.SetLimit(l)

		cq.AppendString([]byte("abcd"))
		Expect(l.Locked()).To(BeTrue())
		Expect(flips).To(Equal([]bool{true}))

		cq.Skip(4)
		Expect(l.Locked()).To(BeFalse())
		Expect(flips).To(Equal([]bool{true, false}))
	})

	It("tracks shared usage across two queues using the same token", func() {
		l := chunk.NewCQLimit()
		l.SetLimit(100)

		a := chunk.New()
		a.SetLimit(l)
		b := chunk.New()
		b.SetLimit(l)

		a.AppendString([]byte("12345"))
		b.AppendString([]byte("67890"))
		Expect(l.Available()).To(Equal(int64(90)))
	})
})
