package util

import (
	"fmt"
	"strconv"
)

// ParseID 解析路径中的正整数ID，超出 uint 范围或为 0 时返回错误
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidID, s, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("%w %q", ErrInvalidID, s)
	}
	return uint(id), nil
}
