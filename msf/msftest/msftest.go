// Package msftest assembles small MSF containers for tests.
package msftest

import (
	"encoding/binary"

	"github.com/skdltmxn/classsort/msf"
)

// Build lays out streams in a container with the given block size. A nil
// stream is written as deleted.
func Build(blockSize uint32, streams [][]byte) []byte {
	le := binary.LittleEndian
	blocks := make([][]byte, 3) // superblock and both free page maps
	alloc := func(data []byte) []uint32 {
		var ids []uint32
		for off := 0; off < len(data); off += int(blockSize) {
			b := make([]byte, blockSize)
			copy(b, data[off:])
			ids = append(ids, uint32(len(blocks)))
			blocks = append(blocks, b)
		}
		return ids
	}

	dir := le.AppendUint32(nil, uint32(len(streams)))
	for _, s := range streams {
		if s == nil {
			dir = le.AppendUint32(dir, msf.NilStreamSize)
			continue
		}
		dir = le.AppendUint32(dir, uint32(len(s)))
	}
	var lists [][]uint32
	for _, s := range streams {
		lists = append(lists, alloc(s))
	}
	for _, l := range lists {
		for _, b := range l {
			dir = le.AppendUint32(dir, b)
		}
	}

	var blockMap []byte
	for _, b := range alloc(dir) {
		blockMap = le.AppendUint32(blockMap, b)
	}
	mapAddr := alloc(blockMap)[0]

	sb := []byte(msf.Magic)
	sb = le.AppendUint32(sb, blockSize)
	sb = le.AppendUint32(sb, 1)
	sb = le.AppendUint32(sb, uint32(len(blocks)))
	sb = le.AppendUint32(sb, uint32(len(dir)))
	sb = le.AppendUint32(sb, 0)
	sb = le.AppendUint32(sb, mapAddr)
	blocks[0] = make([]byte, blockSize)
	copy(blocks[0], sb)
	blocks[1] = make([]byte, blockSize)
	blocks[2] = make([]byte, blockSize)

	out := make([]byte, 0, len(blocks)*int(blockSize))
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}
