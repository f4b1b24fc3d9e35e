// Package sim 提供离散时间随机过程的路径生成与蒙特卡洛模拟。
package sim

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/Buypolar-Capital/buypolarcapital/cast"
)

// Source 是模拟所需的最小随机源，返回 [0,1) 上的均匀分布随机数.
// *rand.Rand 天然满足该接口，测试中可注入固定种子的实现.
type Source interface {
	Float64() float64
}

// NewSource 返回以 seed 为种子的确定性 PCG 随机源.
// 可选的 stream 用于从同一种子派生互不相关的子序列（如并行批次）.
func NewSource(seed uint64, stream ...uint64) *rand.Rand {
	var s uint64
	if len(stream) > 0 {
		s = stream[0]
	}
	return rand.New(rand.NewPCG(seed, s))
}

// NewCryptoSource 使用 crypto/rand 产生种子，读取失败时退化为当前时间.
func NewCryptoSource() *rand.Rand {
	var b [16]byte
	if _, err := crypto_rand.Read(b[:]); err != nil {
		val := cast.Int64ToUint64(time.Now().UnixNano())
		binary.LittleEndian.PutUint64(b[:8], val)
		binary.LittleEndian.PutUint64(b[8:], ^val)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// uniformShock 返回 [-1,1) 上的均匀冲击，作为布朗增量的简化代理.
// 注意：这里刻意不使用高斯增量.
func uniformShock(src Source) float64 {
	return (src.Float64() - 0.5) * 2
}
