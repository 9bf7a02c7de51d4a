package provisioning

import (
	"testing"

	"github.com/glaserf/opentitan/protocol"
	"github.com/stretchr/testify/assert"
)

func TestActionSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		actions ActionSet
		wantErr bool
	}{
		{"empty", ActionSet{}, false},
		{"all steps alone", ActionSet{AllSteps: true}, false},
		{"individual flags", ActionSet{CreatorSwCfg: true, HwCfg: true}, false},
		{"all steps with creator", ActionSet{AllSteps: true, CreatorSwCfg: true}, true},
		{"all steps with owner", ActionSet{AllSteps: true, OwnerSwCfg: true}, true},
		{"all steps with hw", ActionSet{AllSteps: true, HwCfg: true}, true},
		{"all steps with every flag", ActionSet{AllSteps: true, CreatorSwCfg: true, OwnerSwCfg: true, HwCfg: true}, true},
		{"stage flags never conflict", ActionSet{AllSteps: true, Unlock: true, Exit: true, Personalize: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actions.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConflictingActions)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionSetCommandsOrderAndDone(t *testing.T) {
	tests := []struct {
		name    string
		actions ActionSet
		want    []protocol.Command
	}{
		{
			"nothing selected still sends done",
			ActionSet{},
			[]protocol.Command{protocol.CommandDone},
		},
		{
			"all steps is a single write-all",
			ActionSet{AllSteps: true},
			[]protocol.Command{protocol.CommandWriteAll, protocol.CommandDone},
		},
		{
			"hw cfg only",
			ActionSet{HwCfg: true},
			[]protocol.Command{protocol.CommandOtpHwCfgWrite, protocol.CommandDone},
		},
		{
			"fixed order regardless of selection",
			ActionSet{HwCfg: true, CreatorSwCfg: true, OwnerSwCfg: true},
			[]protocol.Command{
				protocol.CommandOtpCreatorSwCfgWrite,
				protocol.CommandOtpOwnerSwCfgWrite,
				protocol.CommandOtpHwCfgWrite,
				protocol.CommandDone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actions.Commands())
		})
	}
}
