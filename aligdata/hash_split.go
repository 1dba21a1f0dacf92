package aligdata

import (
	"crypto/md5"
	"encoding/binary"
	"hash"
	"math"
)

// A Hasher is a SampleList which can produce a stable
// hash for any of its samples.
type Hasher interface {
	SampleList
	Hash(i int) []byte
}

// Hash hashes the label and input of the sample at index
// i.
func (s SliceSampleList) Hash(i int) []byte {
	h := md5.New()
	temp := make([]byte, 8)
	writeFloatBits(h, temp, float64(s[i].Label))
	for _, x := range floats(s[i].Input) {
		writeFloatBits(h, temp, x)
	}
	return h.Sum(nil)
}

// HashSplit partitions a Hasher.
// It is used to deterministically carve a validation set
// out of the training samples.
//
// The Hasher h will be re-ordered as needed.
//
// The leftRatio argument specifies the expected fraction
// of samples that should end up on the left partition.
func HashSplit(h Hasher, leftRatio float64) (left, right SampleList) {
	if leftRatio <= 0 {
		return h.Slice(0, 0), h
	} else if leftRatio >= 1 {
		return h, h.Slice(0, 0)
	}
	cutoff := hashCutoff(leftRatio)
	splitIdx := 0
	for i := 0; i < h.Len(); i++ {
		if compareHashes(h.Hash(i), cutoff) < 0 {
			h.Swap(splitIdx, i)
			splitIdx++
		}
	}
	return h.Slice(0, splitIdx), h.Slice(splitIdx, h.Len())
}

func hashCutoff(ratio float64) []byte {
	res := make([]byte, 8)
	for i := range res {
		ratio *= 256
		value := int(ratio)
		ratio -= float64(value)
		if value == 256 {
			value = 255
		}
		res[i] = byte(value)
	}
	return res
}

func compareHashes(h1, h2 []byte) int {
	n := len(h1)
	if len(h2) > n {
		n = len(h2)
	}
	for i := 0; i < n; i++ {
		var b1, b2 byte
		if i < len(h1) {
			b1 = h1[i]
		}
		if i < len(h2) {
			b2 = h2[i]
		}
		if b1 < b2 {
			return -1
		} else if b1 > b2 {
			return 1
		}
	}
	return 0
}

func writeFloatBits(h hash.Hash, temp []byte, val float64) {
	binary.BigEndian.PutUint64(temp, math.Float64bits(val))
	h.Write(temp)
}
