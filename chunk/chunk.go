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

// Package chunk implements the universal byte-pipeline data model:
// Chunk, ChunkQueue, ChunkIter and CQLimit, grounded on
// original_source/include/lighttpd/chunk.h and src/chunk.c (the
// reference lighttpd2 implementation this engine is modeled on).
package chunk

import (
	"os"
)

// Kind tags the variant a Chunk holds.
type Kind uint8

const (
	Unused Kind = iota
	Inline      // inline-string chunk (small, owned byte slice)
	Bytes       // heap byte-buffer chunk
	File        // file-region chunk
)

// File is a reference-counted handle to an opened file, shared by every
// Chunk that was split from the same append_file call. When the last
// reference is released, a temp file is unlinked.
type File struct {
	refcount int
	Name     string
	fd       *os.File
	IsTemp   bool
}

func newFile(name string, isTemp bool) *File {
	return &File{Name: name, IsTemp: isTemp, refcount: 1}
}

func (f *File) acquire() *File {
	f.refcount++
	return f
}

func (f *File) release() {
	f.refcount--
	if f.refcount > 0 {
		return
	}
	if f.fd != nil {
		_ = f.fd.Close()
		f.fd = nil
	}
	if f.IsTemp {
		_ = os.Remove(f.Name)
	}
}

// Open lazily opens the underlying file read-only, caching the *os.File
// across subsequent calls and Chunks sharing this File.
func (f *File) Open() (*os.File, error) {
	if f.fd != nil {
		return f.fd, nil
	}
	fh, err := os.Open(f.Name)
	if err != nil {
		return nil, err
	}
	adviseSequential(fh)
	f.fd = fh
	return fh, nil
}

// mmapCache holds the current mmap window for a file chunk; at most one
// of mmapCache or readBuf exists on a Chunk at a time (spec §3 invariant).
type mmapCache struct {
	data       []byte
	fileOffset int64
	advised    bool
}

// Chunk is a tagged payload segment: inline string, heap bytes, or a
// region of a shared File. Offset counts bytes already consumed from
// the front (spec §3: offset <= length-of-chunk).
type Chunk struct {
	kind   Kind
	offset int64

	str []byte // Inline
	mem []byte // Bytes

	file       *File
	fileStart  int64
	fileLength int64

	mmap    *mmapCache
	readBuf []byte
}

// Length returns the number of unconsumed bytes remaining in the chunk.
func (c *Chunk) Length() int64 {
	if c == nil {
		return 0
	}
	switch c.kind {
	case Inline:
		return int64(len(c.str)) - c.offset
	case Bytes:
		return int64(len(c.mem)) - c.offset
	case File:
		return c.fileLength - c.offset
	default:
		return 0
	}
}

func (c *Chunk) Kind() Kind { return c.kind }

// split splits this chunk at n bytes from the front (n < remaining
// length), mutating c to be the first n bytes and returning a new Chunk
// holding the rest. File chunks split by acquiring another reference to
// the same File (spec §3/§9: never copy file data on split).
func (c *Chunk) split(n int64) *Chunk {
	switch c.kind {
	case Inline:
		rest := &Chunk{kind: Bytes, mem: append([]byte(nil), c.str[c.offset+n:]...)}
		c.str = c.str[:c.offset+n]
		return rest
	case Bytes:
		rest := &Chunk{kind: Bytes, mem: append([]byte(nil), c.mem[c.offset+n:]...)}
		c.mem = c.mem[:c.offset+n]
		return rest
	case File:
		rest := &Chunk{
			kind:       File,
			file:       c.file.acquire(),
			fileStart:  c.fileStart + c.offset + n,
			fileLength: c.fileLength - c.offset - n,
		}
		c.fileLength = c.offset + n
		return rest
	default:
		return &Chunk{}
	}
}

func (c *Chunk) release() {
	if c.kind == File && c.file != nil {
		c.file.release()
		c.file = nil
	}
}
