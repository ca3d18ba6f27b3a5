package actionlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileSink 以 JSON Lines 的格式追加写入动作日志，每条记录一行。
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// NewFileSink 打开（必要时创建）日志文件。
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("动作日志路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建动作日志目录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开动作日志失败: %w", err)
	}
	return &FileSink{path: path, file: file, buf: bufio.NewWriter(file)}, nil
}

// Path 返回日志文件路径。
func (s *FileSink) Path() string { return s.path }

// Write 实现 Sink。每行写完立即刷新，保证其他进程读取时看到完整的行。
func (s *FileSink) Write(_ context.Context, rec Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化动作记录失败: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("动作日志已关闭")
	}
	if _, err := s.buf.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入动作日志失败: %w", err)
	}
	return s.buf.Flush()
}

// Query 实现 Reader，直接从磁盘读取。
func (s *FileSink) Query(_ context.Context, filter Filter) ([]Record, error) {
	records, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return filter.apply(records), nil
}

// Close 实现 Sink。
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	s.file = nil
	return errors.Join(flushErr, closeErr)
}

// ReadFile 读取 JSON Lines 动作日志。空行会被忽略，最后一行若不完整（进程中断时写了一半）也会被忽略。
func ReadFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开动作日志失败: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode 从任意 reader 解析 JSON Lines 动作日志。
func Decode(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		records []Record
		pending error
		line    int
	)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		if pending != nil {
			// 损坏的行后面还有内容，说明不是截断而是格式错误。
			return nil, pending
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			pending = fmt.Errorf("解析动作日志第 %d 行失败: %w", line, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取动作日志失败: %w", err)
	}
	return records, nil
}
