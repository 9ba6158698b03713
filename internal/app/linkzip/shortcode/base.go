package shortcode

import (
	"fmt"
	"math/bits"
)

// maxDigits 是 base-2 下 uint64 的最大位数，足够容纳任何字母表的结果
const maxDigits = 64

// EnbaseToString 把 x 转成 base-N 字符串，高位在前。
// x == 0 也会输出一个字符 alphabet[0]。结果比 minLength 短时用 alphabet[0] 左补齐，长了不截断。
//
// 注意：补齐字符和数字 0 是同一个字符，所以 "mmjq" 和 "mmmjq" 会解析成同一个值。
// 已有短链依赖这个行为，保持不变。
func (c *Codec) EnbaseToString(x uint64, minLength int) string {
	var buf [maxDigits]rune
	i := len(buf)
	for {
		i--
		buf[i] = c.alphabet[x%c.base]
		x /= c.base
		if x == 0 {
			break
		}
	}
	digits := buf[i:]

	pad := minLength - len(digits)
	if pad <= 0 {
		return string(digits)
	}
	out := make([]rune, 0, minLength)
	for ; pad > 0; pad-- {
		out = append(out, c.alphabet[0])
	}
	out = append(out, digits...)
	return string(out)
}

// DebaseFromString 是 EnbaseToString 的逆运算：result = result*N + index(ch)。
func (c *Codec) DebaseFromString(s string) (uint64, error) {
	if s == "" {
		return 0, ErrEmptyCode
	}
	var result uint64
	pos := 0
	for _, r := range s {
		d, ok := c.index[r]
		if !ok {
			return 0, fmt.Errorf("%w: %q at position %d", ErrInvalidCharacter, r, pos)
		}
		hi, lo := bits.Mul64(result, c.base)
		sum, carry := bits.Add64(lo, d, 0)
		if hi != 0 || carry != 0 || sum > MaxID {
			return 0, fmt.Errorf("%w: %q exceeds %d bits", ErrIDOutOfRange, s, IDBits)
		}
		result = sum
		pos++
	}
	return result, nil
}
