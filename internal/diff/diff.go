// ============================================================================
// Diff Engine - 快照比對核心
// ============================================================================
//
// Package: internal/diff
// 文件: diff.go
// 功能: 比對兩份快照的指紋映射，將每個 key 分類為
//       added / removed / modified / unchanged，並偵測搬移配對
//
// 設計原則:
//   純函式，無 I/O、無共享狀態；相同輸入必得相同輸出，
//   可在多個請求間併發呼叫而不需加鎖
//
// 搬移偵測:
//   removed 側的指紋若出現在 added 側的另一個 key 下，視為同一物件
//   改名而非改內容。指紋碰撞時以 key 字典序決定配對，保證結果可重現，
//   且每個 key 至多配對一次。配對僅為註記，計數上仍屬 added/removed。
//
// ============================================================================

package diff

import (
	"sort"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Diff 比對 previous 與 current 兩份快照，回傳完整的 ChangeSet
//
// 行為：
//   - 不要求 previous.JobID < current.JobID（前驅解析由呼叫端負責）
//   - 指紋比較為精確相等，不做模糊比對
//   - 輸出的所有切片都按 key 字典序排序，保證確定性
func Diff(previous, current types.Snapshot) types.ChangeSet {
	cs := types.ChangeSet{
		Added:     []string{},
		Removed:   []string{},
		Modified:  []string{},
		Unchanged: []string{},
		Moves:     []types.MovePair{},
	}

	// 1. 分類：只在 current、只在 previous、兩邊都有
	for key, fp := range current.Objects {
		prevFP, ok := previous.Objects[key]
		switch {
		case !ok:
			cs.Added = append(cs.Added, key)
		case prevFP != fp:
			cs.Modified = append(cs.Modified, key)
		default:
			cs.Unchanged = append(cs.Unchanged, key)
		}
	}
	for key := range previous.Objects {
		if _, ok := current.Objects[key]; !ok {
			cs.Removed = append(cs.Removed, key)
		}
	}

	// map 迭代順序不定，統一排序後輸出
	sort.Strings(cs.Added)
	sort.Strings(cs.Removed)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Unchanged)

	cs.Moves = detectMoves(previous, current, cs.Removed, cs.Added)

	return cs
}

// detectMoves 在 removed/added 之間尋找指紋相同的配對
//
// 決定性配對規則：
//   - 兩側候選都按 key 字典序排列
//   - 同一指紋下，第 i 個 removed key 配第 i 個 added key
//   - 多餘的候選（數量不對等時）不配對
//
// removed 與 added 必須已排序（Diff 保證）
func detectMoves(previous, current types.Snapshot, removed, added []string) []types.MovePair {
	// 指紋 -> 該指紋下新增的 key（維持字典序）
	addedByFP := make(map[types.Fingerprint][]string)
	for _, key := range added {
		fp := current.Objects[key]
		addedByFP[fp] = append(addedByFP[fp], key)
	}

	moves := []types.MovePair{}
	for _, key := range removed {
		fp := previous.Objects[key]
		candidates := addedByFP[fp]
		if len(candidates) == 0 {
			continue
		}
		// 取最小的未配對候選，並自佇列移除避免重複配對
		moves = append(moves, types.MovePair{From: key, To: candidates[0]})
		addedByFP[fp] = candidates[1:]
	}

	return moves
}
