package fwup

import (
	"reflect"
	"testing"
)

func TestParseVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    Variant
		wantErr bool
	}{
		{"v1", V1, false},
		{"V1", V1, false},
		{"1", V1, false},
		{" v2 ", V2, false},
		{"2", V2, false},
		{"qclocgnss", V2, false},
		{"v3", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseVariant(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVariant(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVariant(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDialectCommands(t *testing.T) {
	chunk := Chunk{Seq: 1, Data: []byte{0x00, 0x1A, 0xFF}, Size: 3}

	v1, _ := DialectFor(V1)
	v2, _ := DialectFor(V2)

	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"v1 push", v1.PushChunk(chunk), `AT+QLOCTEST="locWriteDataToQCX217NVM dataSize 3 data 0x00_0x1A_0xFF"`},
		{"v1 init", v1.InitLoc(), `AT+QLOCTEST="locInit"`},
		{"v1 version", v1.GetVersion(), `AT+QLOCTEST="locGetFWVersion"`},
		{"v1 trigger", v1.Trigger(3072), `AT+QLOCTEST="locTriggerFWUP fwBinarySize 3072"`},
		{"v1 reset", v1.Reset(), "AT$QCRST"},
		{"v2 push", v2.PushChunk(chunk), "AT$QCLOCGNSSPUSHFWBIN =3, 0x00_0x1A_0xFF"},
		{"v2 reset", v2.Reset(), "AT$QCRST"},
		{"v2 clear", v2.ClearRegion(), "AT$QCLOCGNSSFWUPOPTIONS=2"},
		{"v2 metadata", v2.Metadata(512, 3072), "AT$QCLOCGNSSFWUPOPTIONS=1,512,3072"},
		{"v2 version", v2.GetVersion(), "AT$QCLOCGNSSGETFWVERSION"},
		{"v2 trigger", v2.Trigger(3072), "AT$QCLOCGNSSTRIGGERFWUP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.Text != tt.want {
				t.Errorf("command = %q, want %q", tt.cmd.Text, tt.want)
			}
		})
	}
}

func TestDialectPlan(t *testing.T) {
	v1, _ := DialectFor(V1)
	v2, _ := DialectFor(V2)

	tests := []struct {
		name    string
		dialect *Dialect
		trigger bool
		reset   bool
		want    []Stage
	}{
		{
			name:    "v1 transfer only",
			dialect: v1,
			want:    []Stage{StageTransfer},
		},
		{
			name:    "v1 with reset and trigger",
			dialect: v1,
			trigger: true,
			reset:   true,
			want:    []Stage{StageReset, StageTransfer, StageInitLoc, StageGetVersion, StageTrigger, StageVerifyVersion},
		},
		{
			name:    "v2 without trigger",
			dialect: v2,
			want:    []Stage{StageReset, StageClearRegion, StageWriteMetadata, StageTransfer},
		},
		{
			name:    "v2 with trigger ignores v1 reset",
			dialect: v2,
			trigger: true,
			reset:   true,
			want:    []Stage{StageReset, StageClearRegion, StageWriteMetadata, StageTransfer, StageGetVersion, StageTrigger, StageVerifyVersion},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.Plan(tt.trigger, tt.reset); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Plan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDialectForUnknown(t *testing.T) {
	if _, err := DialectFor(Variant(7)); err == nil {
		t.Error("DialectFor(7) error = nil, want error")
	}
}
