package track

import "testing"

func TestIsTerminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()
	dur := 3.2
	neg := -1.0
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"pending ok", Record{PlayerID: 1, Status: StatusPending}, false},
		{"unknown status", Record{PlayerID: 1, Status: "done"}, true},
		{"negative retry", Record{PlayerID: 1, Status: StatusPending, RetryCount: -1}, true},
		{"completed ok", Record{PlayerID: 1, Status: StatusCompleted, OutputPath: "/o.png", Duration: &dur}, false},
		{"completed without output", Record{PlayerID: 1, Status: StatusCompleted, Duration: &dur}, true},
		{"completed without duration", Record{PlayerID: 1, Status: StatusCompleted, OutputPath: "/o.png"}, true},
		{"completed negative duration", Record{PlayerID: 1, Status: StatusCompleted, OutputPath: "/o.png", Duration: &neg}, true},
		{"failed ok", Record{PlayerID: 1, Status: StatusFailed, RetryCount: 1, ErrorLog: []string{"x"}}, false},
		{"failed empty log", Record{PlayerID: 1, Status: StatusFailed, RetryCount: 1}, true},
		{"failed zero retries", Record{PlayerID: 1, Status: StatusFailed, ErrorLog: []string{"x"}}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rec.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
