package domain

import "testing"

func TestRequest_Matches(t *testing.T) {
	r := &Request{RequestID: "k", EntityID: "e1", FromState: "open", ToState: "closed"}
	testCases := []struct {
		name         string
		entity, from string
		to           string
		want         bool
	}{
		{"same tuple", "e1", "open", "closed", true},
		{"no from", "e1", "", "closed", true},
		{"other entity", "e2", "open", "closed", false},
		{"other from", "e1", "resolved", "closed", false},
		{"other to", "e1", "open", "resolved", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Matches(tc.entity, tc.from, tc.to); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}
