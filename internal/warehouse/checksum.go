package warehouse

// ============================================================================
// 校驗和計算
// 職責：計算與驗證 journal 條目的 CRC32 校驗和
// ============================================================================

import (
	"fmt"
	"hash/crc32"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// CalculateChecksum 計算 journal 條目的 CRC32 校驗和
//
// 演算法：
// - 將條目的關鍵欄位串接成字串（seq + job_id + 四個計數）
// - 使用 CRC32-IEEE 多項式計算
// - 不包含寫入時間，避免重放時產生差異
func CalculateChecksum(seq uint64, record types.MetricsRecord) uint32 {
	data := fmt.Sprintf("%d|%d|%d|%d|%d|%d",
		seq,
		record.JobID,
		record.TotalAdded,
		record.TotalRemoved,
		record.TotalModified,
		record.TotalUnchanged,
	)
	return crc32.ChecksumIEEE([]byte(data))
}

// VerifyChecksum 驗證條目的校驗和是否正確
func VerifyChecksum(entry Entry) bool {
	return entry.Checksum == CalculateChecksum(entry.Seq, entry.Record)
}
