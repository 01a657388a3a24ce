package live

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Provider: "gemini", APIKey: "k"}, false},
		{"missing provider", Config{APIKey: "k"}, true},
		{"missing credential", Config{Provider: "gemini"}, true},
		{"negative rate", Config{Provider: "gemini", APIKey: "k", InputSampleRate: -1}, true},
		{"negative queue", Config{Provider: "gemini", APIKey: "k", OutboundQueueSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQueueSizeDefault(t *testing.T) {
	if got := (Config{}).QueueSize(); got != DefaultOutboundQueueSize {
		t.Errorf("QueueSize = %d, want %d", got, DefaultOutboundQueueSize)
	}
	if got := (Config{OutboundQueueSize: 7}).QueueSize(); got != 7 {
		t.Errorf("QueueSize = %d, want 7", got)
	}
}

func TestTranslationInstruction(t *testing.T) {
	instr := TranslationInstruction("German", "Japanese")
	for _, want := range []string{"German", "Japanese", "interpreter"} {
		if !strings.Contains(instr, want) {
			t.Errorf("instruction missing %q: %s", want, instr)
		}
	}
}
