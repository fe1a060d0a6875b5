package di_test

import (
	"sync"

	"github.com/gocrud/ioc/logging"
)

type Database struct {
	DSN string
}

type Logger interface {
	Log(msg string)
}

type ConsoleLogger struct {
	Prefix string
}

func (l *ConsoleLogger) Log(string) {}

type Plugin interface {
	Name() string
}

type namedPlugin struct {
	name string
}

func (p *namedPlugin) Name() string { return p.name }

func plugin(name string) Plugin { return &namedPlugin{name: name} }

type ServiceWithNamedDB struct {
	Master *Database `di:"master"`
	Slave  *Database `di:"slave"`
}

type ServiceWithOptional struct {
	Required *Database `di:"master"`
	Optional *Database `di:"missing,?"`
}

type ServiceWithLogger struct {
	Logger Logger `di:""`
}

// closer 记录关闭顺序
type closer struct {
	name  string
	order *[]string
	mu    *sync.Mutex
	err   error
}

func (c *closer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.order = append(*c.order, c.name)
	return c.err
}

type closeRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *closeRecorder) new(name string) *closer {
	return &closer{name: name, order: &r.order, mu: &r.mu}
}

func (r *closeRecorder) closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// recordingProvider 收集日志条目
type recordingProvider struct {
	mu      sync.Mutex
	entries []logging.LogEntry
}

func (p *recordingProvider) Write(entry *logging.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, *entry)
}

func (p *recordingProvider) count(level logging.LogLevel, msg string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.entries {
		if e.Level == level && e.Message == msg {
			n++
		}
	}
	return n
}

func newRecordingLogger(level logging.LogLevel) (logging.Logger, *recordingProvider) {
	p := &recordingProvider{}
	logger := logging.NewLoggingBuilder().
		SetMinimumLevel(level).
		AddProvider(p).
		Build().
		CreateLogger("di")
	return logger, p
}
