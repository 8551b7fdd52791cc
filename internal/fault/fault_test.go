package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cmdErr := &CommandError{Cmd: []string{"systemctl", "restart", "x"}, Code: 5, Stderr: "unit not found\n"}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"validation", Validation("bad %s", "size"), KindValidation},
		{"not block device", NotBlockDevice("/dev/nope"), KindNotBlockDevice},
		{"wrapped not supported", fmt.Errorf("configure: %w", NotSupported(nil, "no backing_dev")), KindNotSupported},
		{"command", cmdErr, KindCommandFailed},
		{"wrapped command", fmt.Errorf("restart: %w", cmdErr), KindCommandFailed},
		{"internal", Internal(errors.New("gone"), "device vanished"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIs_NotBlockDeviceIsValidation(t *testing.T) {
	err := NotBlockDevice("/dev/sdz")
	assert.True(t, Is(err, KindValidation))
	assert.True(t, Is(err, KindNotBlockDevice))
	assert.False(t, Is(Validation("x"), KindNotBlockDevice))
}

func TestCommandError_Message(t *testing.T) {
	err := &CommandError{Cmd: []string{"blkid", "/dev/loop0"}, Code: 4, Stdout: "junk", Stderr: "  permission denied \n"}
	assert.Equal(t, "command failed: blkid /dev/loop0 (code 4): permission denied", err.Error())

	noOutput := &CommandError{Cmd: []string{"true"}, Code: 1}
	assert.Equal(t, "command failed: true (code 1)", noOutput.Error())
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("ENOENT")
	err := NotSupported(cause, "hot-add unsupported")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "hot-add unsupported: ENOENT", err.Error())
}
