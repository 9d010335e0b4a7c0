package camunda

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"notification-dispatch/internal/common/errors"
)

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want errors.ErrorCode
	}{
		{"rpc error: code = DeadlineExceeded desc = context deadline exceeded", errors.ErrCodeTimeout},
		{"rpc error: code = PermissionDenied desc = permission denied", errors.ErrCodeAuthentication},
		{"rpc error: code = Unavailable desc = connection refused", errors.ErrCodeExternalService},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			err := mapZeebeError(stderrors.New(tt.msg), "topology")
			assert.True(t, errors.HasCode(err, tt.want), "got %v", err)
		})
	}
}
