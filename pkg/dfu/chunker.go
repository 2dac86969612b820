// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 oltaco

package dfu

// Chunks splits data into frames of at most size bytes. The returned slices
// alias data; nothing is copied. Every chunk except possibly the last has
// length exactly size. A nil or empty input yields no chunks.
func Chunks(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, NumChunks(len(data), size))
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// NumChunks returns the number of frames Chunks produces for n bytes at the
// given frame size.
func NumChunks(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
