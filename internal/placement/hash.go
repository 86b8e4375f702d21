package placement

import (
	"encoding/binary"
	"hash/crc64"
)

var ecmaTable = crc64.MakeTable(crc64.ECMA)

// jumpHash is Lamping and Veach's jump consistent hash: it maps key to a
// bucket in [0, buckets) and moves only 1/n of the keys when a bucket is
// appended.
func jumpHash(key uint64, buckets int) int {
	var b int64 = -1
	var j int64
	for j < int64(buckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}

// crc mixes data with a 32-bit seed through the reflected ECMA-182 CRC-64.
// Jump hash needs evenly spread keys and raw object ids are not.
func crc(data uint64, seed uint32) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], data)
	return crc64.Update(uint64(seed), ecmaTable, buf[:])
}

const goldenPrime64 = 0x9e37fffffffc0001

// goldenHash keeps the top bits of key multiplied by a 64-bit golden prime.
func goldenHash(key uint64, bits uint) uint64 {
	return (key * goldenPrime64) >> (64 - bits)
}

// mix96 is Bob Jenkins' 96-bit mix, used to shuffle ring members.
func mix96(a, b, c uint32) uint32 {
	a -= b
	a -= c
	a ^= c >> 13
	b -= c
	b -= a
	b ^= a << 8
	c -= a
	c -= b
	c ^= b >> 13
	a -= b
	a -= c
	a ^= c >> 12
	b -= c
	b -= a
	b ^= a << 16
	c -= a
	c -= b
	c ^= b >> 5
	a -= b
	a -= c
	a ^= c >> 3
	b -= c
	b -= a
	b ^= a << 10
	c -= a
	c -= b
	c ^= b >> 15
	return c
}

// searchHashes returns the index of the last entry of the sorted slice h
// that is not greater than v, or 0 when v precedes every entry.
func searchHashes(h []uint64, v uint64) int {
	high, low := len(h)-1, 0
	for i := high / 2; high-low > 1; i = (low + high) / 2 {
		if v >= h[i] {
			low = i
		} else {
			high = i
		}
	}
	if v >= h[high] {
		return high
	}
	return low
}

// power2Bits returns the number of bits needed to index v buckets.
func power2Bits(v uint32) uint {
	shift := uint(1)
	for v>>shift != 0 {
		shift++
	}
	if v&(v-1) == 0 {
		return shift - 1
	}
	return shift
}
