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
	"io"
	"os"
)

var errMmapUnsupported = errors.New("chunk: mmap not supported on this platform")

const (
	mmapWindow       = 2 * 1024 * 1024 // 2 MiB, spec §4.1
	mmapAlign        = 4096            // 4 KiB page alignment
	madviseThreshold = 64 * 1024       // issue WILLNEED after 64 KiB consumed
	maxReadPerCall   = 2 * 1024 * 1024 // spec §4.1: max bytes returned per call
)

// Iter is a cursor into a ChunkQueue's linked list of chunks. Advancing
// past the chunk the iterator was built from (via a queue mutation)
// invalidates it; callers must not retain it across steal/skip calls.
type Iter struct {
	cq  *Queue
	pos int // index into cq.chunks
}

// Chunk returns the chunk the iterator currently refers to, or nil if
// the iterator has run past the end of the queue.
func (it *Iter) Chunk() *Chunk {
	if it.cq == nil || it.pos >= len(it.cq.chunks) {
		return nil
	}
	return it.cq.chunks[it.pos]
}

// Next advances the iterator; returns false if there is no next chunk.
func (it *Iter) Next() bool {
	if it.cq == nil {
		return false
	}
	it.pos++
	return it.pos < len(it.cq.chunks)
}

// Length returns chunk_length of the chunk currently under the cursor.
func (it *Iter) Length() int64 {
	return it.Chunk().Length()
}

// Read returns a pointer into memory holding up to maxLen bytes of the
// current chunk's data starting at byte `start` of the chunk's
// unconsumed data (relative to offset, so 0 is the first byte Length
// counts). For file chunks this opens
// the fd lazily and either serves from a 2 MiB mmap window or falls
// back to a read() buffer. The returned slice is only valid until the
// next mutation of the queue (spec §4.1).
func (it *Iter) Read(start, maxLen int64) ([]byte, error) {
	c := it.Chunk()
	if c == nil {
		return nil, io.EOF
	}
	if maxLen > maxReadPerCall {
		maxLen = maxReadPerCall
	}
	start += c.offset

	switch c.kind {
	case Inline:
		return sliceBounded(c.str, start, maxLen), nil
	case Bytes:
		return sliceBounded(c.mem, start, maxLen), nil
	case File:
		return it.readFile(c, start, maxLen)
	default:
		return nil, nil
	}
}

func sliceBounded(b []byte, start, maxLen int64) []byte {
	if start >= int64(len(b)) {
		return nil
	}
	end := start + maxLen
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	return b[start:end]
}

func isEINTR(err error) bool {
	return errors.Is(err, errEINTR)
}

func (it *Iter) readFile(c *Chunk, start, maxLen int64) ([]byte, error) {
	f, err := c.file.Open()
	if err != nil {
		return nil, err
	}

	absolute := c.fileStart + start
	remaining := c.fileLength - start
	if remaining < maxLen {
		maxLen = remaining
	}
	if maxLen <= 0 {
		return nil, nil
	}

	if data, ok := it.tryMmap(c, f, absolute, maxLen); ok {
		return data, nil
	}
	return it.readFallback(c, f, absolute, maxLen)
}

func (it *Iter) tryMmap(c *Chunk, f *os.File, absolute, maxLen int64) ([]byte, bool) {
	if c.mmap != nil && c.readBuf != nil {
		// Invariant: never both at once in steady state (spec §3); if we
		// ever see this, prefer the mmap and drop the stale read buffer.
		c.readBuf = nil
	}

	winStart := (absolute / mmapAlign) * mmapAlign
	winLen := mmapWindow
	needEnd := absolute + maxLen

	if c.mmap != nil && c.mmap.fileOffset <= absolute && absolute+maxLen <= c.mmap.fileOffset+int64(len(c.mmap.data)) {
		return serveFromWindow(c, absolute, maxLen)
	}

	if c.mmap != nil {
		_ = munmapFile(c.mmap.data)
		c.mmap = nil
	}

	for winStart+int64(winLen) < needEnd {
		winLen += mmapWindow
	}

	data, err := mmapFile(f, winStart, winLen)
	if err != nil {
		return nil, false
	}
	c.mmap = &mmapCache{data: data, fileOffset: winStart}
	return serveFromWindow(c, absolute, maxLen)
}

func serveFromWindow(c *Chunk, absolute, maxLen int64) ([]byte, bool) {
	rel := absolute - c.mmap.fileOffset
	end := rel + maxLen
	if end > int64(len(c.mmap.data)) {
		end = int64(len(c.mmap.data))
	}
	if rel > madviseThreshold && !c.mmap.advised {
		madviseWillNeed(c.mmap.data)
		c.mmap.advised = true
	}
	return c.mmap.data[rel:end], true
}

// readFallback is used when mmap fails (non-regular fd, or the mmap
// syscall itself failed). It retries any read interrupted by EINTR and
// shrinks length on a short read, per spec §4.1.
func (it *Iter) readFallback(c *Chunk, f *os.File, absolute, maxLen int64) ([]byte, error) {
	buf := make([]byte, maxLen)
	var total int
	for total < len(buf) {
		n, err := f.ReadAt(buf[total:], absolute+int64(total))
		total += n
		if err != nil {
			if isEINTR(err) {
				continue
			}
			if err == io.EOF {
				break
			}
			if total == 0 {
				return nil, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	c.readBuf = buf[:total]
	if total < len(buf) {
		// Short read: the file is shorter than this chunk's metadata
		// claimed, so shrink fileLength to the actually observed extent
		// (spec §4.1).
		c.fileLength = (absolute + int64(total)) - c.fileStart
	}
	return c.readBuf, nil
}
