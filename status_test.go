package monit

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		service   string
		wantFound bool
		wantText  string
		wantState State
		want      ServiceStatus
	}{
		{
			name:      "not monitored",
			raw:       "Process 'myapp'\n  status       Not monitored",
			service:   "myapp",
			wantFound: true,
			wantText:  "Not monitored",
			wantState: StateNotMonitored,
			want:      ServiceStatus{},
		},
		{
			name:      "running",
			raw:       statusOutput("myapp", "Running"),
			service:   "myapp",
			wantFound: true,
			wantText:  "Running",
			wantState: StateRunning,
			want:      ServiceStatus{Enabled: true, Running: true},
		},
		{
			name:      "status ok on same line",
			raw:       "System 'host' status Status ok\n",
			service:   "host",
			wantFound: true,
			wantText:  "Status ok",
			wantState: StateRunning,
			want:      ServiceStatus{Enabled: true, Running: true},
		},
		{
			name:      "remote host online",
			raw:       "Remote Host 'gateway'\n  status   Online with all services\n",
			service:   "gateway",
			wantFound: true,
			wantText:  "Online with all services",
			wantState: StateRunning,
			want:      ServiceStatus{Enabled: true, Running: true},
		},
		{
			name:      "file accessible",
			raw:       "File 'cfg'\n  status   Accessible\r\n",
			service:   "cfg",
			wantFound: true,
			wantText:  "Accessible",
			wantState: StateRunning,
			want:      ServiceStatus{Enabled: true, Running: true},
		},
		{
			name:      "does not exist",
			raw:       statusOutput("myapp", "Does not exist"),
			service:   "myapp",
			wantFound: true,
			wantText:  "Does not exist",
			wantState: StateMissing,
			want:      ServiceStatus{Enabled: true},
		},
		{
			name:      "does not exist with detail",
			raw:       statusOutput("myapp", "Does not exist - pid file missing"),
			service:   "myapp",
			wantFound: true,
			wantText:  "Does not exist - pid file missing",
			wantState: StateMissing,
			want:      ServiceStatus{Enabled: true},
		},
		{
			name:      "initializing",
			raw:       statusOutput("myapp", "Initializing"),
			service:   "myapp",
			wantFound: true,
			wantText:  "Initializing",
			wantState: StatePending,
			want:      ServiceStatus{Enabled: true},
		},
		{
			name:      "not monitored with suffix is transitional",
			raw:       statusOutput("myapp", "Not monitored - start pending"),
			service:   "myapp",
			wantFound: true,
			wantText:  "Not monitored - start pending",
			wantState: StatePending,
			want:      ServiceStatus{Enabled: true},
		},
		{
			name:      "other service only",
			raw:       statusOutput("other", "Running"),
			service:   "myapp",
			wantState: StateUnknown,
		},
		{
			name:      "name is matched literally",
			raw:       statusOutput("my.app", "Running"),
			service:   "my-app",
			wantState: StateUnknown,
		},
		{
			name:      "no service",
			raw:       "There is no service by that name\n",
			service:   "myapp",
			wantState: StateUnknown,
		},
		{
			name:      "empty",
			service:   "myapp",
			wantState: StateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.raw, tt.service)
			if c.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", c.Found, tt.wantFound)
			}
			if c.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", c.Text, tt.wantText)
			}
			if c.State != tt.wantState {
				t.Errorf("State = %v, want %v", c.State, tt.wantState)
			}
			if got := c.Status(); got != tt.want {
				t.Errorf("Status() = %+v, want %+v", got, tt.want)
			}
			if again := Classify(tt.raw, tt.service); again != c {
				t.Errorf("second Classify = %+v, want %+v", again, c)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnknown, "unknown"},
		{StateNotMonitored, "not_monitored"},
		{StatePending, "pending"},
		{StateMissing, "missing"},
		{StateRunning, "running"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestOutputMarkers(t *testing.T) {
	if !IsInitializing("Monit daemon Initializing") {
		t.Error("IsInitializing missed marker")
	}
	if IsInitializing(statusOutput("a", "Running")) {
		t.Error("IsInitializing false positive")
	}
	if !IsNoService("There is no service by that name") {
		t.Error("IsNoService missed marker")
	}
}
