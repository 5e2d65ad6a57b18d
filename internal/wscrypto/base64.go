package wscrypto

const stdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Base64EncodedLen returns the encoded length for an input of n bytes:
// ceil(n/3)*4.
func Base64EncodedLen(n int) int {
	return ((n + 2) / 3) * 4
}

// Base64Encode encodes src into dst using the standard alphabet with '='
// padding. dst must be at least Base64EncodedLen(len(src)) bytes. Returns
// the number of bytes written.
func Base64Encode(dst []byte, src []byte) int {
	di, si := 0, 0
	n := len(src)

	for ; si+3 <= n; si += 3 {
		b0, b1, b2 := src[si], src[si+1], src[si+2]
		dst[di+0] = stdAlphabet[b0>>2]
		dst[di+1] = stdAlphabet[(b0&0x03)<<4|b1>>4]
		dst[di+2] = stdAlphabet[(b1&0x0F)<<2|b2>>6]
		dst[di+3] = stdAlphabet[b2&0x3F]
		di += 4
	}

	remaining := n - si
	switch remaining {
	case 1:
		b0 := src[si]
		dst[di+0] = stdAlphabet[b0>>2]
		dst[di+1] = stdAlphabet[(b0&0x03)<<4]
		dst[di+2] = '='
		dst[di+3] = '='
		di += 4
	case 2:
		b0, b1 := src[si], src[si+1]
		dst[di+0] = stdAlphabet[b0>>2]
		dst[di+1] = stdAlphabet[(b0&0x03)<<4|b1>>4]
		dst[di+2] = stdAlphabet[(b1&0x0F)<<2]
		dst[di+3] = '='
		di += 4
	}

	return di
}
