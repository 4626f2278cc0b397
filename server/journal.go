package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// JournalEntry 一次广播的记录（JSONL 一行）
type JournalEntry struct {
	Tick     uint64          `json:"tick"`
	Time     time.Time       `json:"ts"`
	Entities json.RawMessage `json:"entities"`
}

// Journal 把广播按小时写入 zstd 压缩的 JSONL 文件，仅用于离线排查，启动时从不读回。
// Record 在 Tick 协程调用，不能阻塞：写协程跟不上时丢弃记录。
type Journal struct {
	baseDir string
	prefix  string
	log     *zap.SugaredLogger

	ch      chan JournalEntry
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64

	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	now     func() time.Time
}

// OpenJournal 创建记录器并启动写协程
func OpenJournal(baseDir string, logger *zap.SugaredLogger) (*Journal, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("empty journal dir")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	j := &Journal{
		baseDir: baseDir,
		prefix:  "broadcast",
		log:     logger,
		ch:      make(chan JournalEntry, 1024),
		now:     time.Now,
	}
	j.wg.Add(1)
	go j.loop()
	return j, nil
}

// Record 投递一条广播记录；payload 为已编码的状态表
func (j *Journal) Record(tick uint64, payload []byte) {
	select {
	case j.ch <- JournalEntry{Tick: tick, Time: j.now().UTC(), Entities: payload}:
	default:
		j.dropped.Add(1)
	}
}

// Close 写完队列中的记录后关闭文件；调用前房间必须已停止
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		close(j.ch)
		j.wg.Wait()
		err = j.closeFile()
		if n := j.dropped.Load(); n > 0 {
			j.log.Warnw("journal dropped entries", "count", n)
		}
	})
	return err
}

func (j *Journal) loop() {
	defer j.wg.Done()
	for e := range j.ch {
		if err := j.write(e); err != nil {
			j.log.Errorw("journal write", "err", err)
		}
	}
}

func (j *Journal) write(e JournalEntry) error {
	hour := e.Time.Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotate(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	return j.w.WriteByte('\n')
}

func (j *Journal) rotate(hour string) error {
	if err := j.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(j.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.w = bufio.NewWriterSize(enc, 128*1024)
	j.curHour = hour
	return nil
}

func (j *Journal) closeFile() error {
	var err error
	if j.w != nil {
		err = j.w.Flush()
	}
	if j.enc != nil {
		if cerr := j.enc.Close(); err == nil {
			err = cerr
		}
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.w = nil
	return err
}

func (j *Journal) pathForHour(hour string) string {
	return filepath.Join(j.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", j.prefix, hour))
}
