package logging

import (
	"bytes"
	"fmt"
)

// TextFormatter 文本格式化器
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
	}
}

// Format 格式化为一行文本: 时间 级别 [分类] 消息 {k=v, ...}
func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	return render(func(buf *bytes.Buffer) {
		if f.IncludeTimestamp {
			buf.WriteString(entry.Time.Format(f.TimestampFormat))
			buf.WriteByte(' ')
		}

		level := entry.Level.String()
		if f.ColorOutput {
			level = colorize(entry.Level, level)
		}
		buf.WriteString(level)

		if entry.Category != "" {
			fmt.Fprintf(buf, " [%s]", entry.Category)
		}
		buf.WriteByte(' ')
		buf.WriteString(entry.Message)

		for i, field := range entry.Fields {
			sep := ", "
			if i == 0 {
				sep = " {"
			}
			fmt.Fprintf(buf, "%s%s=%v", sep, field.Key, field.Value)
		}
		if len(entry.Fields) > 0 {
			buf.WriteByte('}')
		}
		buf.WriteByte('\n')
	}), nil
}
