package logging

import (
	"bytes"
	"sync"
	"time"
)

// Formatter 日志格式化接口
type Formatter interface {
	// Format 格式化日志条目，返回的切片归调用方所有
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry 日志条目
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

var buffers = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// render 在池化的 buffer 中写出一条日志，返回独立的副本
func render(write func(*bytes.Buffer)) []byte {
	buf := buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer buffers.Put(buf)

	write(buf)
	return bytes.Clone(buf.Bytes())
}
