package shamir

// Arithmetic over GF(2^8) with the AES reduction polynomial
// x^8 + x^4 + x^3 + x + 1 (0x11B). The engine operates byte-wise, so this
// field is sufficient for secrets of arbitrary length.

// gfMul multiplies two field elements (Russian peasant multiplication).
func gfMul(a, b byte) byte {
	var product byte
	for b > 0 {
		if b&1 != 0 {
			product ^= a
		}
		carry := a & 0x80
		a <<= 1
		if carry != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return product
}

// gfDiv divides a by b. Division by zero never occurs here: divisors are
// x-coordinates (1..n) and their XOR differences, which are non-zero for
// distinct indexes.
func gfDiv(a, b byte) byte {
	return gfMul(a, gfInv(b))
}

// gfInv computes the multiplicative inverse via a^254 = a^-1 in GF(2^8).
func gfInv(a byte) byte {
	if a == 0 {
		return 0
	}
	result := a
	for i := 0; i < 6; i++ {
		result = gfMul(result, result)
		result = gfMul(result, a)
	}
	return gfMul(result, result)
}

// evalPoly evaluates constant + coeffs[0]*x + coeffs[1]*x^2 + ... at x using
// Horner's method.
func evalPoly(constant byte, coeffs []byte, x byte) byte {
	var y byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = gfMul(y, x) ^ coeffs[i]
	}
	return gfMul(y, x) ^ constant
}

// interpolateAtZero evaluates the Lagrange interpolation polynomial through
// the given shares' points at x=0 for one byte position, recovering the
// polynomial's constant term.
func interpolateAtZero(points []Share, pos int) byte {
	var secret byte
	for i, pi := range points {
		xi := byte(pi.Index)
		basis := byte(1)
		for j, pj := range points {
			if i == j {
				continue
			}
			xj := byte(pj.Index)
			// l_i(0) = prod_{j != i} x_j / (x_j - x_i); subtraction is XOR.
			basis = gfMul(basis, gfDiv(xj, xj^xi))
		}
		secret ^= gfMul(basis, pi.Data[pos])
	}
	return secret
}
