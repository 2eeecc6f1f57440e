package logger

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockLogger records log calls for assertions in tests.
//
// Log methods are recorded with two arguments, the message and the key/value slice.
type MockLogger struct {
	mock.Mock

	mu       sync.Mutex
	messages map[string][]string
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// NewNopMockLogger returns a MockLogger that accepts any call at any level. With returns the
// same logger, so calls of derived loggers are recorded too.
func NewNopMockLogger() *MockLogger {
	m := &MockLogger{}
	for _, method := range []string{"Debug", "Info", "Warn", "Error", "Fatal"} {
		m.On(method, mock.Anything, mock.Anything).Return().Maybe()
	}
	m.On("With", mock.Anything).Return(m).Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.record("Debug", msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.record("Info", msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.record("Warn", msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.record("Error", msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.record("Fatal", msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level)
}

func (m *MockLogger) With(keyValues ...any) Logger {
	args := m.Called(keyValues)
	return args.Get(0).(Logger)
}

func (m *MockLogger) record(method string, msg string, keysAndValues []any) {
	m.mu.Lock()
	if m.messages == nil {
		m.messages = make(map[string][]string)
	}
	m.messages[method] = append(m.messages[method], msg)
	m.mu.Unlock()

	m.MethodCalled(method, msg, keysAndValues)
}

// Messages returns the messages logged through method ("Debug", "Info", ...) so far, in call
// order.
func (m *MockLogger) Messages(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.messages[method]))
	copy(out, m.messages[method])

	return out
}
