package entity

import (
	"testing"
	"time"
)

func validRecord() *Record {
	now := time.Now().UTC()
	return &Record{
		ID:           "ord-1",
		TenantID:     "cafe@example.com",
		CreatedAt:    now,
		LastModified: now,
		Payload:      Payload{"total_amount": 42.0},
	}
}

// TestRecordValidate_Success tests a fully populated record.
func TestRecordValidate_Success(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
}

// TestRecordValidate_Errors tests each required-field violation.
func TestRecordValidate_Errors(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"missing id", func(r *Record) { r.ID = "" }},
		{"missing tenant", func(r *Record) { r.TenantID = "" }},
		{"zero created_at", func(r *Record) { r.CreatedAt = time.Time{} }},
		{"zero last_modified", func(r *Record) { r.LastModified = time.Time{} }},
		{"last_modified before created_at", func(r *Record) {
			r.CreatedAt = now
			r.LastModified = now.Add(-time.Second)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Errorf("Validate() succeeded, want error")
			}
		})
	}
}

// TestRecordTouch tests that Touch advances LastModified and backfills CreatedAt.
func TestRecordTouch(t *testing.T) {
	r := &Record{ID: "x", TenantID: "t"}
	r.Touch()

	if r.LastModified.IsZero() {
		t.Error("LastModified not set")
	}
	if r.CreatedAt.IsZero() {
		t.Error("CreatedAt not backfilled")
	}

	before := r.LastModified
	time.Sleep(time.Millisecond)
	r.Touch()
	if !r.LastModified.After(before) {
		t.Error("Touch did not advance LastModified")
	}
}

// TestRecordClone tests that clones do not share payload storage.
func TestRecordClone(t *testing.T) {
	r := validRecord()
	c := r.Clone()

	c.Payload["total_amount"] = 99.0
	if r.Payload.Number("total_amount") != 42.0 {
		t.Error("Clone shares payload map with original")
	}
}

// TestPayloadAccessors tests typed payload reads across JSON-decoded and
// Go-native value types.
func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"name":     "Butter Chicken",
		"price":    15.99,
		"quantity": 3, // Go int, as written by local code
		"voided":   true,
	}

	if got := p.String("name"); got != "Butter Chicken" {
		t.Errorf("String(name) = %q", got)
	}
	if got := p.Number("price"); got != 15.99 {
		t.Errorf("Number(price) = %v", got)
	}
	if got := p.Number("quantity"); got != 3 {
		t.Errorf("Number(quantity) = %v", got)
	}
	if !p.Bool("voided") {
		t.Error("Bool(voided) = false")
	}
	if got := p.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
	if got := p.Number("missing"); got != 0 {
		t.Errorf("Number(missing) = %v, want 0", got)
	}
}

// TestRoundCents tests half-up rounding at the cent boundary.
func TestRoundCents(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{2.925, 2.93},
		{2.924, 2.92},
		{22.5, 22.5},
		{0, 0},
		{10.004999, 10.0},
	}
	for _, tt := range tests {
		if got := RoundCents(tt.in); got != tt.want {
			t.Errorf("RoundCents(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
