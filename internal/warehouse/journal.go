package warehouse

// ============================================================================
// Journal Sink 核心實作
// 職責：
// 1. 追加 MetricsRecord 到日誌檔案（append-only）
// 2. 提供重放功能以重建倉儲資料
// 3. 支援日誌旋轉（匯出後清空）
// 4. 確保寫入持久性與資料完整性（CRC32 + fsync）
// ============================================================================

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Entry 代表一筆 journal 記錄
type Entry struct {
	Seq      uint64              `json:"seq"`      // 條目序號（單調遞增）
	Record   types.MetricsRecord `json:"record"`   // 彙總列本體
	Written  int64               `json:"written"`  // 寫入時間（Unix 毫秒）
	Checksum uint32              `json:"checksum"` // CRC32 校驗和
}

// EntryHandler 重放時逐筆處理條目的函式型別
type EntryHandler func(entry Entry) error

// fileInterface 定義檔案操作所需的方法，允許在測試中模擬檔案故障
type fileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Journal 是以 append-only 檔案為後端的 Sink 實作
type Journal struct {
	mu      sync.Mutex
	file    fileInterface
	encoder *json.Encoder
	path    string
	seq     uint64
	closed  bool

	buffer        []Entry // 批次寫入緩衝區
	bufferSize    int
	lastFlushTime time.Time
	flushInterval time.Duration
}

// JournalOptions journal 的可調參數，零值使用預設
type JournalOptions struct {
	BufferSize    int           // 緩衝條目數，滿了就 flush（預設 64）
	FlushInterval time.Duration // 距上次 flush 超過此時長就 flush（預設 1s）
}

// OpenJournal 建立或開啟一個 journal
//
// 行為：
// - 檔案不存在時建立新檔案，seq 從 0 開始
// - 檔案已存在時讀取最後一筆條目的 seq 並接續
// - 以追加模式（O_APPEND）開啟，確保寫入不覆蓋
func OpenJournal(path string, opts JournalOptions) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open journal: %v", ErrInsertFailed, err)
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}

	var seq uint64
	stat, statErr := file.Stat()
	if statErr == nil && stat.Size() > 0 {
		if last, err := lastEntry(path); err == nil && last != nil {
			seq = last.Seq
		}
		// 讀取失敗時 seq 保持 0，重放端靠 checksum 擋掉損壞條目
	}

	return &Journal{
		file:          file,
		encoder:       json.NewEncoder(file),
		path:          path,
		seq:           seq,
		buffer:        make([]Entry, 0, opts.BufferSize),
		bufferSize:    opts.BufferSize,
		lastFlushTime: time.Now(),
		flushInterval: opts.FlushInterval,
	}, nil
}

// Insert 追加一筆彙總列
//
// 行為：
// - 自動遞增 seq，計算 checksum
// - 先入緩衝區，滿了或超時才批次寫入並 fsync
func (j *Journal) Insert(ctx context.Context, record types.MetricsRecord) error {
	j.mu.Lock()

	if j.closed {
		j.mu.Unlock()
		return ErrSinkClosed
	}

	j.seq++
	entry := Entry{
		Seq:     j.seq,
		Record:  record,
		Written: time.Now().UnixMilli(),
	}
	entry.Checksum = CalculateChecksum(entry.Seq, record)

	j.buffer = append(j.buffer, entry)

	needFlush := len(j.buffer) >= j.bufferSize || time.Since(j.lastFlushTime) > j.flushInterval
	if needFlush {
		err := j.flushLocked()
		j.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInsertFailed, err)
		}
		return nil
	}

	j.mu.Unlock()
	return nil
}

// Replay 重放所有 journal 條目
//
// 行為：
// - 先 flush 緩衝區，再從頭讀取檔案
// - 驗證每筆條目的 checksum，失敗立即停止
func (j *Journal) Replay(handler EntryHandler) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.closed {
		if err := j.flushLocked(); err != nil {
			return err
		}
	}

	file, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	for decoder.More() {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			return fmt.Errorf("%w: %v", ErrJournalCorrupted, err)
		}
		if !VerifyChecksum(entry) {
			return fmt.Errorf("%w: seq=%d", ErrChecksumMismatch, entry.Seq)
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
	return nil
}

// Rotate 旋轉日誌檔案：現有內容改名保留，開新檔從 seq 0 開始
func (j *Journal) Rotate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrSinkClosed
	}

	if err := j.flushLocked(); err != nil {
		return err
	}
	if err := j.file.Close(); err != nil {
		return err
	}

	backupPath := j.path + "." + time.Now().Format("20060102_150405")
	if err := os.Rename(j.path, backupPath); err != nil {
		return err
	}

	newFile, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	j.file = newFile
	j.encoder = json.NewEncoder(newFile)
	j.seq = 0
	j.buffer = j.buffer[:0]
	j.lastFlushTime = time.Now()
	return nil
}

// Close 關閉 journal，關閉後的實例不可重用
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if err := j.flushLocked(); err != nil {
		return err
	}
	j.closed = true
	return j.file.Close()
}

// LastSeq 取得當前的條目序號
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// flushLocked 將緩衝條目批次寫入並同步到磁碟，呼叫端必須持有 j.mu
func (j *Journal) flushLocked() error {
	for _, entry := range j.buffer {
		if err := j.encoder.Encode(entry); err != nil {
			return err
		}
	}
	j.buffer = j.buffer[:0]
	j.lastFlushTime = time.Now()
	return j.file.Sync()
}

// lastEntry 讀取檔案中最後一筆可解析的條目（開檔時接續 seq 用）
func lastEntry(path string) (*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var last *Entry
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			break
		}
		e := entry
		last = &e
	}
	return last, nil
}
