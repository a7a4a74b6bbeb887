package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/vecfs/internal/identity"
)

func TestTestLogger_Assertions(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tl.Debug(ctx, "resource saved", zap.String("path", "/docs/a"), zap.Int("nodes", 3))

	tl.AssertLogged(t, zapcore.DebugLevel, "resource saved")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "resource saved")
	tl.AssertField(t, "resource saved", "path", "/docs/a")
	tl.AssertField(t, "resource saved", "nodes", int64(3))
	assert.Len(t, tl.FilterMessage("resource saved").All(), 1)
}

func TestTestLogger_OutputIsRedacted(t *testing.T) {
	tl := NewTestLogger()
	bob := identity.MustParse("@@node2.shinkai/bob")
	ctx := WithAccess(context.Background(), identity.MustParse("@@node1.shinkai/main"), bob)

	tl.Info(ctx, "reader denied", zap.String("path", "/wl"))

	tl.AssertField(t, "reader denied", "vfs.requester", bob.String())
	tl.AssertNotWritten(t, bob.String())
	assert.Contains(t, tl.Output(), HashIdentity(bob.String()))
	assert.Contains(t, tl.Output(), "@@node1.shinkai/main")
	tl.AssertNoSecrets(t)
}

// recordingTB notes failures instead of failing the running test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.failed = true }

func TestTestLogger_AssertNoSecretsFlagsRawCredentials(t *testing.T) {
	tests := []struct {
		name  string
		field zap.Field
	}{
		{"raw api key field", zap.String("api_key", "plain")},
		{"openai key in error", zap.String("error", "bad key sk-0123456789abcdefghij")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := NewTestLogger()
			tl.Info(context.Background(), "embedding failed", tt.field)

			rec := &recordingTB{}
			tl.AssertNoSecrets(rec)
			assert.True(t, rec.failed)
		})
	}
}
