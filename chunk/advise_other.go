//go:build !unix

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

package chunk

import (
	"errors"
	"os"
)

var errEINTR = errors.New("chunk: no EINTR on this platform")

// Non-unix platforms get no advisory syscalls and no mmap path; the
// ChunkIter falls back to plain read() unconditionally, which is always
// a correct (if slower) implementation per spec §4.1's "optimization,
// not a correctness requirement" note.
func adviseSequential(f *os.File) {}

func madviseWillNeed(data []byte) {}

func mmapFile(f *os.File, offset int64, length int) ([]byte, error) {
	return nil, errMmapUnsupported
}

func munmapFile(data []byte) error { return nil }
