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

import "os"

// Queue is an ordered list of Chunks plus running byte counters,
// grounded on lighttpd2's chunkqueue (chunk.h/chunk.c). It is the
// backbone data structure threaded through the stream graph and the
// virtual-request body/response pipelines (spec §4.1).
type Queue struct {
	chunks []*Chunk

	isClosed bool
	bytesIn  int64
	bytesOut int64
	length   int64
	memUsage int64

	limit *CQLimit
}

// New returns an empty, unlimited Queue.
func New() *Queue {
	return &Queue{}
}

func (cq *Queue) IsClosed() bool  { return cq.isClosed }
func (cq *Queue) Close()          { cq.isClosed = true }
func (cq *Queue) BytesIn() int64  { return cq.bytesIn }
func (cq *Queue) BytesOut() int64 { return cq.bytesOut }
func (cq *Queue) Length() int64   { return cq.length }
func (cq *Queue) MemUsage() int64 { return cq.memUsage }

// UseLimit installs a private CQLimit token for this queue if it
// doesn't already have one (spec §4.2: chunkqueue_use_limit).
func (cq *Queue) UseLimit() {
	if cq.limit != nil {
		return
	}
	cq.limit = NewCQLimit()
}

// SetLimit attaches an existing (possibly shared) CQLimit token,
// transferring this queue's current mem_usage accounting from the old
// token to the new one (grounded on chunkqueue_set_limit).
func (cq *Queue) SetLimit(l *CQLimit) {
	changing := l != cq.limit
	usage := cq.memUsage
	if l != nil {
		l.acquire()
	}
	if cq.limit != nil {
		cq.limit.release()
	}
	if changing && cq.limit != nil {
		cq.limit.update(-usage)
	}
	cq.limit = l
	if changing && l != nil {
		l.update(usage)
	}
}

// LimitAvailable returns -1 for unlimited, 0 for full, n>0 for n bytes
// free (chunkqueue_limit_available).
func (cq *Queue) LimitAvailable() int64 {
	if cq.limit == nil {
		return -1
	}
	return cq.limit.Available()
}

func (cq *Queue) accountAppend(n int64) {
	cq.length += n
	cq.bytesIn += n
	cq.memUsage += n
	if cq.limit != nil {
		cq.limit.update(n)
	}
}

// AppendString appends an owned byte slice as an Inline chunk. A zero
// length slice is a no-op (spec §4.1 edge case).
func (cq *Queue) AppendString(s []byte) {
	if len(s) == 0 {
		return
	}
	cq.chunks = append(cq.chunks, &Chunk{kind: Inline, str: s})
	cq.accountAppend(int64(len(s)))
}

// AppendBytes appends an owned byte slice as a Bytes chunk without
// copying (pass ownership, grounded on chunkqueue_append_bytearr).
func (cq *Queue) AppendBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	cq.chunks = append(cq.chunks, &Chunk{kind: Bytes, mem: b})
	cq.accountAppend(int64(len(b)))
}

// AppendMem copies mem into a new Bytes chunk.
func (cq *Queue) AppendMem(mem []byte) {
	if len(mem) == 0 {
		return
	}
	cq.AppendBytes(append([]byte(nil), mem...))
}

func (cq *Queue) appendFile(name string, start, length int64, fd *os.File, isTemp bool) {
	if length == 0 {
		return
	}
	f := newFile(name, isTemp)
	if fd != nil {
		f.fd = fd
	}
	cq.chunks = append(cq.chunks, &Chunk{kind: File, file: f, fileStart: start, fileLength: length})
	cq.length += length
	cq.bytesIn += length
}

// AppendFile appends a file-region chunk for [start, start+length) of
// the named file, to be opened lazily.
func (cq *Queue) AppendFile(name string, start, length int64) {
	cq.appendFile(name, start, length, nil, false)
}

// AppendFileFD is like AppendFile but reuses an already-open fd; the
// queue takes ownership and closes it once the last chunk referencing
// it is released, so the caller must not close it independently. A
// zero length appends nothing and leaves fd untouched (grounded on
// chunkqueue_append_file_fd).
func (cq *Queue) AppendFileFD(name string, start, length int64, fd *os.File) {
	cq.appendFile(name, start, length, fd, false)
}

// AppendTempfile is like AppendFile but the file is unlinked once the
// last chunk referencing it is released.
func (cq *Queue) AppendTempfile(name string, start, length int64) {
	cq.appendFile(name, start, length, nil, true)
}

// AppendTempfileFD is the already-open-fd variant of AppendTempfile.
func (cq *Queue) AppendTempfileFD(name string, start, length int64, fd *os.File) {
	cq.appendFile(name, start, length, fd, true)
}

// StealLen moves up to length bytes from in into cq (the output
// queue), splitting the boundary chunk if necessary, and returns the
// number of bytes moved (grounded on chunkqueue_steal_len).
func (cq *Queue) StealLen(in *Queue, length int64) int64 {
	var moved int64
	for length > 0 {
		c := in.firstNonEmpty()
		if c == nil {
			break
		}
		have := c.Length()
		if have <= length {
			in.popFront()
			cq.chunks = append(cq.chunks, c)
			moved += have
			length -= have
			cq.crossAccount(in, have, c.kind)
		} else {
			rest := c.split(length)
			in.chunks[0] = rest
			cq.chunks = append(cq.chunks, c)
			moved += length
			cq.crossAccount(in, length, c.kind)
			length = 0
		}
	}
	in.bytesOut += moved
	in.length -= moved
	cq.bytesIn += moved
	cq.length += moved
	return moved
}

// crossAccount mirrors the cqlimit_update pair in chunkqueue_steal_len:
// moved bytes of String/Bytes chunks leave `in`'s mem usage and enter
// cq's. File chunks never counted against mem_usage. When both queues
// share the same CQLimit token (pointer identity), the token's current
// count is untouched — only the per-queue counters move, avoiding a
// spurious lock/unlock flip pair for a net-zero transfer.
func (cq *Queue) crossAccount(in *Queue, n int64, k Kind) {
	if k != Inline && k != Bytes {
		return
	}
	in.memUsage -= n
	cq.memUsage += n
	if in.limit == cq.limit {
		return
	}
	if in.limit != nil {
		in.limit.update(-n)
	}
	if cq.limit != nil {
		cq.limit.update(n)
	}
}

// StealAll moves every chunk from in into cq and returns the byte
// count (grounded on chunkqueue_steal_all).
func (cq *Queue) StealAll(in *Queue) int64 {
	if in.length == 0 {
		return 0
	}
	if in.limit != cq.limit {
		if cq.limit != nil {
			cq.limit.update(in.memUsage)
		}
		if in.limit != nil {
			in.limit.update(-in.memUsage)
		}
		cq.memUsage += in.memUsage
		in.memUsage = 0
	} else {
		cq.memUsage += in.memUsage
		in.memUsage = 0
	}

	cq.chunks = append(cq.chunks, in.chunks...)
	in.chunks = nil

	n := in.length
	in.bytesOut += n
	in.length = 0
	cq.bytesIn += n
	cq.length += n
	return n
}

// StealChunk moves exactly the first chunk from in to cq.
func (cq *Queue) StealChunk(in *Queue) int64 {
	c := in.popFront()
	if c == nil {
		return 0
	}
	n := c.Length()
	cq.chunks = append(cq.chunks, c)
	in.bytesOut += n
	in.length -= n
	cq.bytesIn += n
	cq.length += n
	cq.crossAccount(in, n, c.kind)
	return n
}

// Skip discards up to length bytes from the front of the queue and
// returns the number of bytes actually skipped.
func (cq *Queue) Skip(length int64) int64 {
	var bytes int64
	for length > 0 {
		c := cq.firstNonEmpty()
		if c == nil {
			break
		}
		have := c.Length()
		if have <= length {
			cq.popFront()
			c.release()
			cq.accountRemove(c, have)
			bytes += have
			length -= have
		} else {
			c.offset += length
			cq.accountRemove(c, length)
			bytes += length
			length = 0
		}
	}
	cq.bytesOut += bytes
	cq.length -= bytes
	return bytes
}

func (cq *Queue) accountRemove(c *Chunk, n int64) {
	if c.kind != Inline && c.kind != Bytes {
		return
	}
	cq.memUsage -= n
	if cq.limit != nil {
		cq.limit.update(-n)
	}
}

// SkipAll discards every chunk in the queue and returns the total
// byte count removed.
func (cq *Queue) SkipAll() int64 {
	bytes := cq.length
	for _, c := range cq.chunks {
		c.release()
		cq.accountRemove(c, c.Length())
	}
	cq.chunks = nil
	cq.bytesOut += bytes
	cq.length = 0
	return bytes
}

// ExtractTo copies up to len bytes from the queue (without consuming
// them) into dest, which is truncated first. Returns false if len
// exceeds the queue's length or a read fails.
func (cq *Queue) ExtractTo(length int64, dest *[]byte) bool {
	*dest = (*dest)[:0]
	if length > cq.length {
		return false
	}
	it := cq.Iter()
	for length > 0 {
		coff := int64(0)
		clen := it.Length()
		for coff < clen {
			buf, err := it.Read(coff, length)
			if err != nil || len(buf) == 0 {
				*dest = (*dest)[:0]
				return false
			}
			*dest = append(*dest, buf...)
			coff += int64(len(buf))
			length -= int64(len(buf))
			if length <= 0 {
				return true
			}
		}
		if !it.Next() {
			break
		}
	}
	return true
}

// Iter returns a fresh iterator positioned at the first chunk.
func (cq *Queue) Iter() *Iter {
	return &Iter{cq: cq, pos: 0}
}

func (cq *Queue) firstNonEmpty() *Chunk {
	for len(cq.chunks) > 0 {
		c := cq.chunks[0]
		if c.Length() > 0 {
			return c
		}
		cq.popFront()
		c.release()
	}
	return nil
}

func (cq *Queue) popFront() *Chunk {
	if len(cq.chunks) == 0 {
		return nil
	}
	c := cq.chunks[0]
	cq.chunks = cq.chunks[1:]
	return c
}
