package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleLoggerOptions 控制台日志选项
type ConsoleLoggerOptions struct {
	Formatter Formatter
	Output    io.Writer
	// Async 为 true 时通过 AsyncWriter 在后台写出
	Async      bool
	BufferSize int
}

// ConsoleLoggerProvider 将日志格式化后写入 io.Writer
type ConsoleLoggerProvider struct {
	formatter Formatter
	output    io.Writer
	async     *AsyncWriter
	mu        sync.Mutex
}

// NewConsoleLoggerProvider 创建控制台日志提供者
func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if options.Formatter == nil {
		options.Formatter = NewTextFormatter()
	}

	p := &ConsoleLoggerProvider{
		formatter: options.Formatter,
		output:    options.Output,
	}
	if options.Async {
		size := options.BufferSize
		if size <= 0 {
			size = 1024
		}
		p.async = NewAsyncWriter(options.Output, options.Formatter, size)
	}
	return p
}

// Write 实现 LoggerProvider
func (p *ConsoleLoggerProvider) Write(entry *LogEntry) {
	if p.async != nil {
		p.async.WriteLog(entry)
		return
	}

	data, err := p.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: format error: %v\n", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	writeLine(p.output, data)
}

// Close 刷新并关闭异步写入器
func (p *ConsoleLoggerProvider) Close() error {
	if p.async != nil {
		return p.async.Close()
	}
	return nil
}

// writeLine 写出一行，缺少换行时补齐
func writeLine(w io.Writer, data []byte) {
	if _, err := w.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "logging: write error: %v\n", err)
		return
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		w.Write([]byte{'\n'})
	}
}

// colorize 为日志级别添加颜色
func colorize(level LogLevel, text string) string {
	const (
		reset  = "\033[0m"
		gray   = "\033[90m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		red    = "\033[31m"
	)

	switch level {
	case LogLevelTrace:
		return gray + text + reset
	case LogLevelDebug:
		return cyan + text + reset
	case LogLevelInfo:
		return green + text + reset
	case LogLevelWarn:
		return yellow + text + reset
	case LogLevelError:
		return red + text + reset
	default:
		return text
	}
}
