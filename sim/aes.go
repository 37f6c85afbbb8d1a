package sim

// sbox is the AES S-box, derived at init from the multiplicative inverse in
// GF(2^8) followed by the affine transform.
var sbox [256]byte

func init() {
	rotl := func(x byte, n uint) byte { return x<<n | x>>(8-n) }
	p, q := byte(1), byte(1)
	for {
		// p *= 3
		hi := p & 0x80
		p ^= p << 1
		if hi != 0 {
			p ^= 0x1b
		}
		// q /= 3
		q ^= q << 1
		q ^= q << 2
		q ^= q << 4
		if q&0x80 != 0 {
			q ^= 0x09
		}
		sbox[p] = q ^ rotl(q, 1) ^ rotl(q, 2) ^ rotl(q, 3) ^ rotl(q, 4) ^ 0x63
		if p == 1 {
			break
		}
	}
	sbox[0] = 0x63
}

func xtime(b byte) byte {
	if b&0x80 != 0 {
		return b<<1 ^ 0x1b
	}
	return b << 1
}

// Lane is a 128-bit vector register value, low half first.
type Lane [2]uint64

func (l Lane) bytes() (out [16]byte) {
	for i := range out {
		out[i] = byte(l[i/8] >> (8 * (i % 8)))
	}
	return out
}

func laneFromBytes(b [16]byte) Lane {
	var l Lane
	for i, v := range b {
		l[i/8] |= uint64(v) << (8 * (i % 8))
	}
	return l
}

// shiftSub applies ShiftRows and SubBytes. State byte i is row i%4 of
// column i/4, the layout AESENC uses.
func shiftSub(s [16]byte) (out [16]byte) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[4*c+r] = sbox[s[4*((c+r)%4)+r]]
		}
	}
	return out
}

func mixColumns(s [16]byte) (out [16]byte) {
	for c := 0; c < 4; c++ {
		a0, a1, a2, a3 := s[4*c], s[4*c+1], s[4*c+2], s[4*c+3]
		out[4*c] = xtime(a0) ^ xtime(a1) ^ a1 ^ a2 ^ a3
		out[4*c+1] = a0 ^ xtime(a1) ^ xtime(a2) ^ a2 ^ a3
		out[4*c+2] = a0 ^ a1 ^ xtime(a2) ^ xtime(a3) ^ a3
		out[4*c+3] = xtime(a0) ^ a0 ^ a1 ^ a2 ^ xtime(a3)
	}
	return out
}

// AESEncRound models AESENC: ShiftRows, SubBytes, MixColumns, then XOR with
// the round key.
func AESEncRound(state, key Lane) Lane {
	out := laneFromBytes(mixColumns(shiftSub(state.bytes())))
	return Lane{out[0] ^ key[0], out[1] ^ key[1]}
}
