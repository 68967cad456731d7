package capability

import (
	"context"
	"testing"
)

func TestCasbinRoles(t *testing.T) {
	c, err := NewCasbin()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	tests := []struct {
		sub  Subject
		cap  string
		want bool
	}{
		{Subject{User: "1", Roles: []string{"admin"}}, EditReadonly, true},
		{Subject{User: "2", Roles: []string{"editor"}}, EditRecord, true},
		{Subject{User: "2", Roles: []string{"editor"}}, EditReadonly, false},
		{Subject{}, EditRecord, false},
	}
	for _, tt := range tests {
		got := c.Can(WithSubject(ctx, tt.sub), tt.cap, "")
		if got != tt.want {
			t.Fatalf("Can(%v,%q)=%v want %v", tt.sub, tt.cap, got, tt.want)
		}
	}
}

func TestCasbinUserPolicy(t *testing.T) {
	c, err := NewCasbin()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Enf.AddPolicy("42", "signup", EditReadonly)
	ctx := WithSubject(context.Background(), Subject{User: "42"})
	if !c.Can(ctx, EditReadonly, "signup") {
		t.Fatalf("user policy not applied")
	}
	if c.Can(ctx, EditReadonly, "list") {
		t.Fatalf("policy must be scoped to context")
	}
}
