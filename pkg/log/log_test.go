package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, format string) (*zap.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	lg, _, err := InitLoggerWithWriteSyncer(&Config{Level: "debug", Format: format, DisableCaller: true}, zapcore.AddSync(buf))
	require.NoError(t, err)
	return lg, buf
}

func TestInitLoggerWithWriteSyncer_JSON(t *testing.T) {
	lg, buf := newBufferLogger(t, FormatJSON)
	lg.Info("session registered", FieldSession("alice"), FieldConnID(7))

	out := buf.String()
	assert.Contains(t, out, `"message":"session registered"`)
	assert.Contains(t, out, `"session":"alice"`)
	assert.Contains(t, out, `"connID":7`)
}

func TestInitLoggerWithWriteSyncer_Text(t *testing.T) {
	lg, buf := newBufferLogger(t, FormatText)
	lg.Warn("caller lost", FieldCaller("bob"))

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "caller lost")
	assert.Contains(t, out, "bob")
}

func TestInitLoggerWithWriteSyncer_BadLevel(t *testing.T) {
	_, _, err := InitLoggerWithWriteSyncer(&Config{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestWithFields(t *testing.T) {
	lg, buf := newBufferLogger(t, FormatJSON)
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: lg})
	ctx = WithFields(ctx, FieldAction("connect"))
	ctx = WithTraceID(ctx, "abc123")

	Ctx(ctx).Info("handled")
	out := buf.String()
	assert.Contains(t, out, `"action":"connect"`)
	assert.Contains(t, out, `"traceID":"abc123"`)
}

func TestCtxWithoutLogger(t *testing.T) {
	assert.NotNil(t, Ctx(context.Background()))
	//nolint:staticcheck
	assert.NotNil(t, Ctx(nil))
}

func TestNewIntentContext(t *testing.T) {
	ctx, span := NewIntentContext(context.Background(), "switchboard", "listen")
	defer span.End()
	_, ok := ctx.Value(CtxLogKey).(*MLogger)
	assert.True(t, ok)
}

func TestMLoggerRateGroup(t *testing.T) {
	lg, buf := newBufferLogger(t, FormatJSON)
	ml := (&MLogger{Logger: lg}).WithRateGroup("test.protocol", 0.0001, 1)

	assert.True(t, ml.RatedWarn(1, "first"))
	assert.False(t, ml.RatedWarn(1, "second"))
	assert.Contains(t, buf.String(), "first")
	assert.NotContains(t, buf.String(), "second")

	child := ml.With(FieldModule("hub"))
	assert.False(t, child.RatedInfo(1, "third"))
}

func TestSetRateLimit(t *testing.T) {
	defer SetRateLimit(0, 0)

	SetRateLimit(0, 0)
	assert.True(t, R().CheckCredit(1000))

	SetRateLimit(0.0001, 1)
	assert.True(t, R().CheckCredit(1))
	assert.False(t, R().CheckCredit(1))
}

func TestConfigureRateLimiterFromEnv(t *testing.T) {
	defer SetRateLimit(0, 0)

	t.Setenv(envRateEnable, "true")
	t.Setenv(envRateCreditPerSecond, "0.0001")
	t.Setenv(envRateMaxBalance, "2")
	configureRateLimiterFromEnv()
	assert.True(t, R().CheckCredit(2))
	assert.False(t, R().CheckCredit(1))

	t.Setenv(envRateEnable, "false")
	configureRateLimiterFromEnv()
	assert.True(t, R().CheckCredit(1000))
}

func TestReplaceLeveledLoggersSkipsLowerLevels(t *testing.T) {
	saved := map[any]any{}
	_globalLevelLogger.Range(func(k, v any) bool {
		saved[k] = v
		return true
	})
	defer func() {
		for k, v := range saved {
			_globalLevelLogger.Store(k, v)
		}
	}()

	errBuf := &bytes.Buffer{}
	infoL, _, err := InitLoggerWithWriteSyncer(&Config{Level: "info"}, zapcore.AddSync(&bytes.Buffer{}), zap.ErrorOutput(zapcore.AddSync(errBuf)))
	require.NoError(t, err)

	replaceLeveledLoggers(infoL)
	assert.Empty(t, errBuf.String())
	_, ok := _globalLevelLogger.Load(zapcore.DebugLevel)
	assert.False(t, ok)
	_, ok = _globalLevelLogger.Load(zapcore.WarnLevel)
	assert.True(t, ok)
}

func TestNewLoggerKeepsGlobals(t *testing.T) {
	before, ok := _globalLevelLogger.Load(zapcore.InfoLevel)
	require.True(t, ok)

	lg, props, err := NewLogger(&Config{Level: "warn"})
	require.NoError(t, err)
	assert.NotNil(t, lg)
	assert.Equal(t, zapcore.WarnLevel, props.Level.Level())

	after, _ := _globalLevelLogger.Load(zapcore.InfoLevel)
	assert.Same(t, before, after)
}

func TestInitFileLogRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := initFileLog(&FileLogConfig{RootPath: dir, Filename: ""})
	assert.Error(t, err)

	lj, err := initFileLog(&FileLogConfig{RootPath: dir, Filename: "hub.log"})
	require.NoError(t, err)
	assert.Equal(t, defaultLogMaxSize, lj.MaxSize)
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "info"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, props.Level.Level())
	lg.Info("visible in test output")
}
