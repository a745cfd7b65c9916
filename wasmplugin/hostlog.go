package wasmplugin

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otelwasm/guestmem/guestmem"
	"github.com/otelwasm/guestmem/runtime"
)

const (
	// hostModuleName is the import module guests use for host functions
	hostModuleName = "env"

	// logFunction is log(level i32, ptr i32, len i32)
	logFunction = "log"
)

// LogMessage is the structured form a guest may pass to log. Plain text is
// accepted too and logged as the message.
type LogMessage struct {
	Level   int32             `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// zapLevel maps slog-style levels (-4 debug, 0 info, 4 warn, 8 error) to zap.
func zapLevel(level int32) zapcore.Level {
	switch {
	case level < 0:
		return zapcore.DebugLevel
	case level < 4:
		return zapcore.InfoLevel
	case level < 8:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// parseLogMessage turns raw guest bytes into a LogMessage, preferring the
// JSON form when it decodes with a message.
func parseLogMessage(level int32, raw string) LogMessage {
	if strings.HasPrefix(raw, "{") {
		var msg struct {
			Level   *int32            `json:"level"`
			Message string            `json:"message"`
			Fields  map[string]string `json:"fields"`
		}
		if err := json.Unmarshal([]byte(raw), &msg); err == nil && msg.Message != "" {
			if msg.Level != nil {
				level = *msg.Level
			}
			return LogMessage{Level: level, Message: msg.Message, Fields: msg.Fields}
		}
	}
	return LogMessage{Level: level, Message: raw}
}

func (m LogMessage) zapFields() []zap.Field {
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, m.Fields[k]))
	}
	return fields
}

// newHostModule builds the env module exposing log to the guest.
func newHostModule(logger *zap.Logger) *runtime.HostModule {
	guestLogger := logger.Named("guest")
	return runtime.NewHostModule(hostModuleName).AddFunction(
		logFunction,
		[]runtime.ValueType{runtime.ValueTypeI32, runtime.ValueTypeI32, runtime.ValueTypeI32},
		[]runtime.ValueType{},
		&runtime.WazeroHostFunction{Function: func(ctx context.Context, mod api.Module, stack []uint64) {
			logFn(ctx, guestLogger, mod, stack)
		}},
	)
}

func logFn(ctx context.Context, logger *zap.Logger, mod api.Module, stack []uint64) {
	level := int32(uint32(stack[0]))
	ptr := uint32(stack[1])
	size := uint32(stack[2])

	raw, err := readGuestString(ctx, mod, ptr, size)
	if err != nil {
		logger.Warn("dropped guest log message", zap.Error(err))
		return
	}

	msg := parseLogMessage(level, raw)
	if ce := logger.Check(zapLevel(msg.Level), msg.Message); ce != nil {
		ce.Write(msg.zapFields()...)
	}
}

// readGuestString reads through the Region of the in-flight call. During
// instantiation (start functions) there is none yet, so it falls back to
// the raw memory and replaces invalid UTF-8.
func readGuestString(ctx context.Context, mod api.Module, ptr, size uint32) (string, error) {
	if region, ok := guestmem.FromContext(ctx); ok {
		return region.ReadUTF8(region.Capture(ptr, size), size)
	}
	b, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return "", &guestmem.MemoryError{Op: "read", Offset: ptr, Length: uint64(size), Size: mod.Memory().Size(), Err: guestmem.ErrOutOfBounds}
	}
	return strings.ToValidUTF8(string(b), "�"), nil
}
