// Package id provides the identifier generators used by budgetqa.
//
//	rid := id.NewULID() // e.g. "01ARZ3NDEKTSV4RRFFQ69G5FAV", request ids
//	cid := id.NewUUID() // e.g. "550e8400-e29b-41d4-a716-446655440000", conversation ids
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ULIDGenerator 使用 ULID 算法生成时间可排序的唯一 ID。
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULIDGenerator 创建新的 ULID 生成器。
// 使用单调熵源确保同一毫秒内生成的 ID 也是有序的。
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Generate 生成一个 ULID 字符串。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var defaultULID = NewULIDGenerator()

// NewULID generates a new ULID string.
func NewULID() string {
	return defaultULID.Generate()
}

// NewUUID generates a new random (v4) UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
