package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"0.0.0.0:8443", false},
		{":8091", false},
		{"239.255.42.99:5007", false},
		{"localhost", true},
		{"host:http", true},
		{"host:70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultsAreValid(t *testing.T) {
	opts := []IOptions{
		NewHttpOptions(),
		NewGrpcOptions(),
		NewMqttOptions(),
		NewS3Options(),
		NewBeaconOptions(),
		NewCoordinationOptions(),
		NewJournalOptions(),
		NewArbiterOptions(),
	}
	for _, o := range opts {
		if errs := o.Validate(); len(errs) != 0 {
			t.Errorf("%T defaults invalid: %v", o, errs)
		}
	}
}

func TestCoordinationOptionsValidate(t *testing.T) {
	o := NewCoordinationOptions()
	o.Mode = "token-ring"
	o.SendTimeout = 5 * time.Second
	if got := len(o.Validate()); got != 2 {
		t.Errorf("Validate() returned %d errors, want 2", got)
	}
}

func TestBeaconEvictionThreshold(t *testing.T) {
	o := NewBeaconOptions()
	if got, want := o.EvictionThreshold(), 5*time.Second; got != want {
		t.Errorf("EvictionThreshold() = %s, want %s", got, want)
	}

	o.MaxPeriod = o.MinPeriod / 2
	if len(o.Validate()) != 1 {
		t.Errorf("expected an error for max-period below min-period")
	}
}

func TestPrefixedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := NewHttpOptions()
	o.AddFlags(fs, "arbiter")

	if err := fs.Parse([]string{"--arbiter.http.addr=127.0.0.1:9000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", o.Addr)
	}
}

func TestVehicleOptionsCompleteFromEnv(t *testing.T) {
	t.Setenv("CROSSWAY_VEHICLE_ID", "veh-7")
	o := NewVehicleOptions()
	if err := o.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if o.ID != "veh-7" {
		t.Errorf("ID = %q, want veh-7", o.ID)
	}
	if errs := o.Validate(); len(errs) != 0 {
		t.Errorf("Validate: %v", errs)
	}
}

func TestArbiterOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *ArbiterOptions)
		errs   int
	}{
		{name: "trafficlight defaults", modify: func(o *ArbiterOptions) { o.Policy = PolicyTrafficLight }},
		{name: "unknown policy", modify: func(o *ArbiterOptions) { o.Policy = "roundabout" }, errs: 1},
		{name: "bad road", modify: func(o *ArbiterOptions) {
			o.Policy = PolicyTrafficLight
			o.Roads = []string{"0+north"}
		}, errs: 1},
		{name: "yellow longer than rotation", modify: func(o *ArbiterOptions) {
			o.Policy = PolicyTrafficLight
			o.TransitionPeriod = o.RotationInterval
		}, errs: 1},
		{name: "roads ignored by parallel", modify: func(o *ArbiterOptions) { o.Roads = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewArbiterOptions()
			tt.modify(o)
			if got := len(o.Validate()); got != tt.errs {
				t.Errorf("Validate() returned %d errors, want %d: %v", got, tt.errs, o.Validate())
			}
		})
	}

	roads, err := NewArbiterOptions().RoadEntries()
	if err != nil || len(roads) != 2 || roads[0][0] != 0 || roads[0][1] != 2 || roads[1][1] != 3 {
		t.Errorf("RoadEntries() = %v, %v", roads, err)
	}
}
