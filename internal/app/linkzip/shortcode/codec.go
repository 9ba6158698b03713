// Package shortcode 把自增 ID 映射成短码（以及反向解析）。
//
// 算法分两步：
//   - Encode：把 ID 低 blockSize 位按位反转，高位保持不变，连续 ID 生成的短码看起来不再连续
//   - EnbaseToString：按字母表做 base-N 转换，不足 minLength 用 alphabet[0] 左补齐
//
// 映射是确定的、可逆的：同一个 ID 永远得到同一个短码，不同 ID 不会冲突。
// 已经发出去的短链依赖这个映射，字母表和 blockSize 上线后不能再改。
package shortcode

import (
	"errors"
	"fmt"
)

const (
	// DefaultAlphabet 31 个字符（素数），去掉了 0/o、1/l/i 这类容易看错的字符。
	DefaultAlphabet  = "mn6j2c4rv8bpygw95z7hsdaetxuk3fq"
	DefaultBlockSize = 24
	DefaultMinLength = 5

	// IDBits ID 的可用位数。63 位保证能放进 PostgreSQL 的 BIGINT。
	IDBits = 63
	MaxID  = uint64(1)<<IDBits - 1
)

var (
	ErrInvalidAlphabet  = errors.New("shortcode: invalid alphabet")
	ErrInvalidBlockSize = errors.New("shortcode: invalid block size")
	ErrInvalidCharacter = errors.New("shortcode: invalid character")
	ErrEmptyCode        = errors.New("shortcode: empty code")
	ErrIDOutOfRange     = errors.New("shortcode: id out of range")
)

// Codec 自增 ID 和短码之间的双向转换：先反转低 blockSize 位，再按字母表转 N 进制。
//
// 说明：
// - 反转只作用于低 blockSize 位，高位原样保留，所以 [0, MaxID] 映射回自身
// - 相邻 ID 反转后差别落在高位，生成的短码看起来不连续
// - 补位字符就是 alphabet[0]，它同时也是数字 0，所以 "mmjq" 和 "mmmjq" 解出同一个 ID
//
// 设计原因：
// - 已经发出去的短码必须一直能解开，字母表、blockSize、补位规则一旦上线就不能改
// - 构造后只读，可以被任意 goroutine 并发使用
type Codec struct {
	alphabet  []rune
	index     map[rune]uint64
	base      uint64
	blockSize uint
	mask      uint64
	mapping   []uint
}

// New 校验字母表（至少 2 个字符、不能重复）和 blockSize（不超过 IDBits）。
func New(alphabet string, blockSize uint) (*Codec, error) {
	runes := []rune(alphabet)
	if len(runes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 characters, got %d", ErrInvalidAlphabet, len(runes))
	}
	index := make(map[rune]uint64, len(runes))
	for i, r := range runes {
		if _, dup := index[r]; dup {
			return nil, fmt.Errorf("%w: duplicate character %q", ErrInvalidAlphabet, r)
		}
		index[r] = uint64(i)
	}
	if blockSize > IDBits {
		return nil, fmt.Errorf("%w: %d exceeds %d bits", ErrInvalidBlockSize, blockSize, IDBits)
	}

	// mapping[i] 是第 i 位反转后的位置
	mapping := make([]uint, blockSize)
	for i := range mapping {
		mapping[i] = blockSize - 1 - uint(i)
	}

	return &Codec{
		alphabet:  runes,
		index:     index,
		base:      uint64(len(runes)),
		blockSize: blockSize,
		mask:      uint64(1)<<blockSize - 1,
		mapping:   mapping,
	}, nil
}

// MustNew 用于测试和固定配置，配置错误直接 panic。
func MustNew(alphabet string, blockSize uint) *Codec {
	c, err := New(alphabet, blockSize)
	if err != nil {
		panic(err)
	}
	return c
}

// 只读访问器，CLI 打印当前配置时用。
func (c *Codec) Alphabet() string { return string(c.alphabet) }
func (c *Codec) BlockSize() uint  { return c.blockSize }
func (c *Codec) Base() int        { return int(c.base) }

// Encode 反转低 blockSize 位，高位原样保留。
func (c *Codec) Encode(n uint64) uint64 {
	var low uint64
	for i, b := range c.mapping {
		if n&(1<<uint(i)) != 0 {
			low |= 1 << b
		}
	}
	return n&^c.mask | low
}

// Decode 是 Encode 的逆运算。
func (c *Codec) Decode(n uint64) uint64 {
	var low uint64
	for i, b := range c.mapping {
		if n&(1<<b) != 0 {
			low |= 1 << uint(i)
		}
	}
	return n&^c.mask | low
}

// EncodeURL 生成短码。id 超过 MaxID 时直接拒绝，不做截断（截断会让两个 ID 撞到同一个短码）。
func (c *Codec) EncodeURL(id uint64, minLength int) (string, error) {
	if id > MaxID {
		return "", fmt.Errorf("%w: %d > %d", ErrIDOutOfRange, id, MaxID)
	}
	return c.EnbaseToString(c.Encode(id), minLength), nil
}

// DecodeURL 把短码还原成 ID。
func (c *Codec) DecodeURL(code string) (uint64, error) {
	n, err := c.DebaseFromString(code)
	if err != nil {
		return 0, err
	}
	return c.Decode(n), nil
}
